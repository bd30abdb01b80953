package scan

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"trustwatch/internal/logging"
	"trustwatch/internal/metrics"
	"trustwatch/internal/trust"
)

// TrustLookup fetches a user's trust classification.
type TrustLookup interface {
	Classification(ctx context.Context, id trust.ID) (trust.Classification, error)
}

// Membership lists the IDs matched into each group. Order is arrival order
// within a worker, then worker order; callers must not depend on it.
type Membership struct {
	Primary   []trust.ID
	Secondary []trust.ID
}

// IDs returns the members of g.
func (m Membership) IDs(g trust.Group) []trust.ID {
	if g == trust.GroupPrimary {
		return m.Primary
	}
	return m.Secondary
}

// Len returns the total number of matched IDs.
func (m Membership) Len() int {
	return len(m.Primary) + len(m.Secondary)
}

func (m *Membership) add(g trust.Group, id trust.ID) {
	if g == trust.GroupPrimary {
		m.Primary = append(m.Primary, id)
		return
	}
	m.Secondary = append(m.Secondary, id)
}

// ClassifierOptions configures a Classifier.
type ClassifierOptions struct {
	MaxID         int
	Workers       int
	Rules         trust.Rules
	ProgressEvery int
}

// Classifier sweeps [1, MaxID] and sorts matching IDs into groups.
type Classifier struct {
	lookup  TrustLookup
	opts    ClassifierOptions
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClassifier constructs a classifier. A nil logger discards output and
// nil metrics are ignored.
func NewClassifier(lookup TrustLookup, opts ClassifierOptions, logger *slog.Logger, m *metrics.Metrics) *Classifier {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Classifier{
		lookup:  lookup,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "classifier"),
		metrics: m,
	}
}

// StrideIDs returns the IDs owned by worker k (1-based) of w workers:
// k, k+w, k+2w, ... up to and including max.
func StrideIDs(k, w, max int) []trust.ID {
	if k <= 0 || w <= 0 || k > max {
		return nil
	}
	ids := make([]trust.ID, 0, (max-k)/w+1)
	for id := k; id <= max; id += w {
		ids = append(ids, trust.ID(id))
	}
	return ids
}

// Classify looks up every ID once. Lookup failures and unmatched
// classifications are skipped. Workers stop early only when ctx is done.
func (c *Classifier) Classify(ctx context.Context) Membership {
	logger := logging.WithContext(ctx, c.logger)
	total := max(c.opts.MaxID, 0)
	logger.Info("classification started",
		logging.String(logging.FieldEventType, "classify_start"),
		logging.Int("max_id", total),
		logging.Int("workers", c.opts.Workers),
	)
	started := time.Now()
	progress := logging.NewProgressCounter(c.opts.ProgressEvery, total)

	buffers := make([]Membership, c.opts.Workers)
	var g errgroup.Group
	for k := 1; k <= c.opts.Workers; k++ {
		buf := &buffers[k-1]
		ids := StrideIDs(k, c.opts.Workers, total)
		g.Go(func() error {
			for _, id := range ids {
				if ctx.Err() != nil {
					return nil
				}
				c.classifyOne(ctx, logger, id, buf)
				if n, ok := progress.Add(); ok {
					logger.Info("classification progress",
						logging.Int64("completed", n),
						logging.Int("total", total),
					)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var merged Membership
	for _, buf := range buffers {
		merged.Primary = append(merged.Primary, buf.Primary...)
		merged.Secondary = append(merged.Secondary, buf.Secondary...)
	}

	c.metrics.ObservePhase("classify", time.Since(started))
	logger.Info("classification complete",
		logging.String(logging.FieldEventType, "classify_complete"),
		logging.Int64("completed", progress.Done()),
		logging.Int(string(trust.GroupPrimary), len(merged.Primary)),
		logging.Int(string(trust.GroupSecondary), len(merged.Secondary)),
		logging.Duration("duration", time.Since(started)),
	)
	return merged
}

func (c *Classifier) classifyOne(ctx context.Context, logger *slog.Logger, id trust.ID, buf *Membership) {
	classification, err := c.lookup.Classification(ctx, id)
	if err != nil {
		c.metrics.IncLookup("error")
		logger.Debug("trust lookup failed", logging.UserID(int(id)), logging.Error(err))
		return
	}
	group, ok := c.opts.Rules.Match(classification)
	if !ok {
		c.metrics.IncLookup("other")
		return
	}
	c.metrics.IncLookup(string(group))
	buf.add(group, id)
}
