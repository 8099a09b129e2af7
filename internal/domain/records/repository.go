// Package records defines the upstream record entity served through the
// batch loader and the contract for fetching it.
package records

import (
	"context"
	"time"
)

// Record is an upstream business row. OwnerID names the entity whose
// mutation invalidates the cached copy.
type Record struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Size reports the approximate retained bytes so the cache can estimate memory.
func (r *Record) Size() int64 {
	return int64(len(r.ID)+len(r.OwnerID)+len(r.Kind)+len(r.Payload)) + 24
}

// RecordRepository is the upstream source consulted on cache misses.
type RecordRepository interface {
	// FindByIDs returns the records that exist for ids in a single round trip.
	// Missing ids are simply absent from the result.
	FindByIDs(ctx context.Context, ids []string) ([]*Record, error)
}
