package model

import (
	"fmt"
	"time"
)

// BatchState is the persisted progress of a batch run. Every organization
// id is in exactly one of pending, completed, or failed at any checkpoint;
// Validate enforces this before the state is written.
type BatchState struct {
	BatchID      string    `json:"batch_id"`
	Pending      []string  `json:"pending"`
	Completed    []string  `json:"completed"`
	Failed       []string  `json:"failed"`
	Concurrency  int       `json:"concurrency"`
	StartedAt    time.Time `json:"started_at"`
	CheckpointAt time.Time `json:"checkpoint_at"`
	Done         bool      `json:"done"`
}

// Counts returns pending/completed/failed totals.
func (s *BatchState) Counts() (pending, completed, failed int) {
	return len(s.Pending), len(s.Completed), len(s.Failed)
}

// Validate checks the exactly-one-set invariant.
func (s *BatchState) Validate() error {
	seen := make(map[string]string, len(s.Pending)+len(s.Completed)+len(s.Failed))
	for set, ids := range map[string][]string{
		"pending":   s.Pending,
		"completed": s.Completed,
		"failed":    s.Failed,
	} {
		for _, id := range ids {
			if prev, ok := seen[id]; ok {
				return fmt.Errorf("batch state: org %s in both %s and %s", id, prev, set)
			}
			seen[id] = set
		}
	}
	return nil
}
