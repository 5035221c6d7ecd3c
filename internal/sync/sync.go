// Package sync is the Eviction/Sync pass (C10): expires registry entries
// past their deadline and reconciles the Processed-Ids Registry against the
// live vector index, guarded to run at most once per interval.
package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/altitut/fundingmatch/internal/ingest"
	"github.com/altitut/fundingmatch/internal/vectorindex"
)

// defaultInterval is the minimum gap between runs when the caller passes a
// non-positive interval.
const defaultInterval = 24 * time.Hour

// Syncer runs the expire-then-reconcile pass against a registry and the
// opportunities collection it mirrors.
type Syncer struct {
	Registry *ingest.Registry
	Index    *vectorindex.Index
	Interval time.Duration
}

// Report summarizes one Run.
type Report struct {
	Ran                bool
	Expired            []string
	ReconciledRegistry []string
	OrphanedInIndex    []string
}

func (s *Syncer) interval() time.Duration {
	if s.Interval > 0 {
		return s.Interval
	}
	return defaultInterval
}

// Run performs Expire then Reconcile if at least Interval has passed since
// the registry's last recorded cleanup; otherwise it's a no-op reported via
// Report.Ran == false. now is supplied by the caller so behavior is
// deterministic under test.
func (s *Syncer) Run(ctx context.Context, now time.Time) (Report, error) {
	if !s.Registry.DueForCleanup(s.interval(), now) {
		return Report{Ran: false}, nil
	}

	report := Report{Ran: true}
	report.Expired = s.expire(ctx, now)
	report.ReconciledRegistry, report.OrphanedInIndex = s.reconcile()

	if err := s.Registry.MarkCleanup(now); err != nil {
		return report, fmt.Errorf("sync: marking cleanup: %w", err)
	}
	return report, nil
}

// expire removes every registry entry whose ExpirationDate is strictly
// before now, best-effort deleting the matching document from the
// opportunities collection; a delete failure is logged but never fatal.
func (s *Syncer) expire(ctx context.Context, now time.Time) []string {
	var expired []string
	for _, id := range s.Registry.IDs() {
		entry, ok := s.Registry.Get(id)
		if !ok || entry.ExpirationDate == nil || !entry.ExpirationDate.Before(now) {
			continue
		}

		if _, err := s.Index.Opportunities.Delete(ctx, id); err != nil {
			log.Printf("sync: best-effort delete of expired %s failed: %v", id, err)
		}
		s.Registry.Delete(id)
		expired = append(expired, id)
	}
	return expired
}

// reconcile set-differences the registry against the live index: a
// registry key missing from the index is dropped (the index is
// authoritative on identity); an index id missing from the registry is only
// reported, never auto-removed.
func (s *Syncer) reconcile() (droppedFromRegistry []string, orphanedInIndex []string) {
	liveIDs := make(map[string]struct{})
	for _, id := range s.Index.Opportunities.AllIDs() {
		liveIDs[id] = struct{}{}
	}

	registryIDs := make(map[string]struct{})
	for _, id := range s.Registry.IDs() {
		registryIDs[id] = struct{}{}
		if _, ok := liveIDs[id]; !ok {
			s.Registry.Delete(id)
			droppedFromRegistry = append(droppedFromRegistry, id)
		}
	}

	for id := range liveIDs {
		if _, ok := registryIDs[id]; !ok {
			log.Printf("sync: opportunity %s present in index but missing from registry", id)
			orphanedInIndex = append(orphanedInIndex, id)
		}
	}

	return droppedFromRegistry, orphanedInIndex
}
