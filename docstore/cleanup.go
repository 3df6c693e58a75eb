// ABOUTME: Retention sweep for short-lived collections (edited recipes, job status).
// ABOUTME: Maintenance path only; nothing in the request path depends on the sweep having run.
package docstore

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Default retention periods for the swept collections.
const (
	DefaultEditedRecipeRetention = 14 * 24 * time.Hour
	DefaultJobStatusRetention    = 30 * 24 * time.Hour
)

// Sweeper periodically deletes documents older than their collection's
// retention period, keyed off the store's update timestamp.
type Sweeper struct {
	Store     Store
	Interval  time.Duration
	Retention map[string]time.Duration // collection -> retention period

	// Now is the clock used to compute cutoffs. Overridable in tests;
	// defaults to time.Now.
	Now func() time.Time
}

// NewSweeper creates a Sweeper over the collections subject to retention,
// with the default periods.
func NewSweeper(store Store, interval time.Duration) *Sweeper {
	return &Sweeper{
		Store:    store,
		Interval: interval,
		Retention: map[string]time.Duration{
			CollectionEditedRecipes: DefaultEditedRecipeRetention,
			CollectionJobStatus:     DefaultJobStatusRetention,
		},
		Now: time.Now,
	}
}

// Run sweeps once immediately, then at every Interval until ctx is
// cancelled. Sweep errors are logged and do not stop the loop.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		if n, err := s.SweepOnce(ctx); err != nil {
			log.Printf("component=docstore action=sweep_failed err=%v", err)
		} else if n > 0 {
			log.Printf("component=docstore action=sweep_done deleted=%d", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce deletes expired documents from every retained collection and
// returns how many were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	deleted := 0
	for collection, retention := range s.Retention {
		cutoff := now().Add(-retention)
		docs, err := s.Store.QueryUpdatedBefore(ctx, collection, cutoff)
		if err != nil {
			return deleted, fmt.Errorf("query expired %s: %w", collection, err)
		}
		for _, doc := range docs {
			if err := s.Store.Delete(ctx, collection, doc.ID); err != nil {
				return deleted, fmt.Errorf("delete expired %s/%s: %w", collection, doc.ID, err)
			}
			deleted++
		}
	}
	return deleted, nil
}
