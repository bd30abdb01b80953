package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"trustwatch/internal/trust"
)

// User describes one account served by UsersAPI. An empty Username makes the
// stats endpoint omit the name, as it does for private profiles.
type User struct {
	Level    string
	Value    int
	Username string
}

// UsersAPI is an in-memory stand-in for the remote users API.
type UsersAPI struct {
	*httptest.Server

	mu    sync.RWMutex
	users map[trust.ID]User
}

// NewUsersAPI starts a users API serving the given accounts. Unknown IDs
// return 404.
func NewUsersAPI(t testing.TB, users map[trust.ID]User) *UsersAPI {
	t.Helper()

	api := &UsersAPI{users: make(map[trust.ID]User, len(users))}
	for id, u := range users {
		api.users[id] = u
	}
	api.Server = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.Close)
	return api
}

// Set replaces the account for id.
func (a *UsersAPI) Set(id trust.ID, user User) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[id] = user
}

func (a *UsersAPI) serve(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	a.mu.RLock()
	user, ok := a.users[trust.ID(id)]
	a.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch parts[1] {
	case "trust_factor":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"trust_level": user.Level,
			"trust_value": user.Value,
		})
	case "stats":
		data := map[string]any{}
		if user.Username != "" {
			data["username"] = user.Username
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	default:
		http.NotFound(w, r)
	}
}
