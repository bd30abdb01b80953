package scan

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"trustwatch/internal/logging"
	"trustwatch/internal/metrics"
	"trustwatch/internal/trust"
)

// NameLookup fetches a user's display name.
type NameLookup interface {
	Username(ctx context.Context, id trust.ID) (string, error)
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	Workers       int
	Attempts      int
	RetryDelay    time.Duration
	ProgressEvery int
}

// Resolver attaches display names to classified IDs.
type Resolver struct {
	lookup  NameLookup
	opts    ResolverOptions
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type workItem struct {
	id    trust.ID
	group trust.Group
}

// NewResolver constructs a resolver. Attempts below one are treated as one.
func NewResolver(lookup NameLookup, opts ResolverOptions, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	return &Resolver{
		lookup:  lookup,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "resolver"),
		metrics: m,
	}
}

// Resolve returns a snapshot whose key set equals the input membership. IDs
// whose name cannot be fetched after all attempts get trust.SentinelLabel.
func (r *Resolver) Resolve(ctx context.Context, m Membership) trust.Snapshot {
	logger := logging.WithContext(ctx, r.logger)
	total := m.Len()
	queue := make(chan workItem, total)
	for _, group := range trust.Groups {
		for _, id := range m.IDs(group) {
			queue <- workItem{id: id, group: group}
		}
	}
	close(queue)

	logger.Info("label resolution started",
		logging.String(logging.FieldEventType, "resolve_start"),
		logging.Int("total", total),
		logging.Int("workers", r.opts.Workers),
	)
	started := time.Now()
	progress := logging.NewProgressCounter(r.opts.ProgressEvery, total)

	var (
		mu       sync.Mutex
		snap     = trust.NewSnapshot()
		sentinel int
		g        errgroup.Group
	)
	for range r.opts.Workers {
		g.Go(func() error {
			for item := range queue {
				label, ok := r.resolveOne(ctx, logger, item)
				mu.Lock()
				snap.Set(item.group, item.id, label)
				if !ok {
					sentinel++
				}
				mu.Unlock()
				if n, emit := progress.Add(); emit {
					logger.Info("label resolution progress",
						logging.Int64("completed", n),
						logging.Int("total", total),
					)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	r.metrics.ObservePhase("resolve", time.Since(started))
	logger.Info("label resolution complete",
		logging.String(logging.FieldEventType, "resolve_complete"),
		logging.Int("resolved", total-sentinel),
		logging.Int("sentinel", sentinel),
		logging.Duration("duration", time.Since(started)),
	)
	return snap
}

func (r *Resolver) resolveOne(ctx context.Context, logger *slog.Logger, item workItem) (string, bool) {
	var lastErr error
	for attempt := 1; attempt <= r.opts.Attempts; attempt++ {
		if attempt > 1 {
			if err := sleepWithContext(ctx, r.opts.RetryDelay); err != nil {
				lastErr = err
				break
			}
		}
		name, err := r.lookup.Username(ctx, item.id)
		if err == nil && strings.TrimSpace(name) != "" {
			r.metrics.IncLabel("resolved")
			return name, true
		}
		lastErr = err
	}
	r.metrics.IncLabel("sentinel")
	logger.Debug("label lookup failed, using sentinel",
		logging.UserID(int(item.id)),
		logging.GroupName(string(item.group)),
		logging.Int("attempts", r.opts.Attempts),
		logging.Error(lastErr),
	)
	return trust.SentinelLabel, false
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
