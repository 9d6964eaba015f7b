package audit

import (
	"fmt"

	"github.com/davidahmann/gatelog/pkg/types"
)

// VerifyIntegrity walks the stored sequence in insertion order and confirms
// each event links to the recomputed hash of its predecessor. On the first
// mismatch it reports the failing index and stops; broken chains are a
// tamper signal and are never repaired here.
func VerifyIntegrity(store Store) (types.IntegrityReport, error) {
	events, err := store.List()
	if err != nil {
		return types.IntegrityReport{}, fmt.Errorf("list audit events: %w", err)
	}

	prev := ""
	for i, event := range events {
		if event.PreviousHash != prev {
			idx := i
			return types.IntegrityReport{
				Valid:       false,
				TotalEvents: len(events),
				BrokenAt:    &idx,
				Message:     fmt.Sprintf("chain broken at event %d: previous_hash does not match predecessor", idx),
			}, nil
		}
		recomputed, err := ComputeHash(event)
		if err != nil {
			return types.IntegrityReport{}, fmt.Errorf("recompute hash for event %d: %w", i, err)
		}
		prev = recomputed
	}

	// The linkage walk cannot see tampering with the final event, so the
	// stored tail hash is checked against the recomputed one.
	if len(events) > 0 && events[len(events)-1].Hash != prev {
		idx := len(events) - 1
		return types.IntegrityReport{
			Valid:       false,
			TotalEvents: len(events),
			BrokenAt:    &idx,
			Message:     fmt.Sprintf("chain broken at event %d: stored hash does not match content", idx),
		}, nil
	}

	return types.IntegrityReport{
		Valid:       true,
		TotalEvents: len(events),
		Message:     "chain intact",
	}, nil
}
