package preflight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"trustwatch/internal/services"
	"trustwatch/internal/services/hackatime"
	"trustwatch/internal/snapshot"
)

// probeID is looked up to confirm the users API answers.
const probeID = 1

// CheckAPI verifies that the users API is reachable. A 404 for the probe ID
// still proves the API is up.
func CheckAPI(ctx context.Context, baseURL, userAgent string) Result {
	const name = "Users API"

	client, err := hackatime.New(baseURL,
		hackatime.WithUserAgent(userAgent),
		hackatime.WithTimeout(5*time.Second),
	)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err = client.Classification(checkCtx, probeID)
	switch {
	case err == nil:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case errors.Is(err, services.ErrNotFound), errors.Is(err, hackatime.ErrMissingField):
		return Result{Name: name, Passed: true, Detail: "Reachable (probe user unavailable)"}
	default:
		return Result{Name: name, Detail: summarizeError(err)}
	}
}

// CheckSlack verifies the bot token with Slack's auth.test method, which
// lives next to the configured chat.postMessage endpoint.
func CheckSlack(ctx context.Context, postMessageURL, token string) Result {
	const name = "Slack"

	if strings.TrimSpace(token) == "" {
		return Result{Name: name, Detail: "missing bot token"}
	}
	endpoint, err := authTestURL(postMessageURL)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodPost, endpoint, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%v)", err)}
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%d)", resp.StatusCode)}
	}
	var payload struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		Team  string `json:"team"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8192)).Decode(&payload); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (decode: %v)", err)}
	}
	if !payload.OK {
		return Result{Name: name, Detail: fmt.Sprintf("auth failed (%s)", payload.Error)}
	}
	if payload.Team != "" {
		return Result{Name: name, Passed: true, Detail: "Authenticated to " + payload.Team}
	}
	return Result{Name: name, Passed: true, Detail: "Authenticated"}
}

func authTestURL(postMessageURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(postMessageURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid slack api url %q", postMessageURL)
	}
	parsed.Path = path.Join(path.Dir(parsed.Path), "auth.test")
	parsed.RawQuery = ""
	return parsed.String(), nil
}

// CheckStore verifies that the snapshot backend answers a version query.
func CheckStore(ctx context.Context, store snapshot.Store) Result {
	const name = "Snapshot store"

	if store == nil {
		return Result{Name: name, Detail: "not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	version, err := store.Version(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", store.Describe(), err)}
	}
	if version == 0 {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (empty)", store.Describe())}
	}
	return Result{Name: name, Passed: true, Detail: store.Describe()}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (service unreachable)"
	}
	return err.Error()
}
