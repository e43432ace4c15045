// Package store persists computed diver ratings behind a versioned record contract.
//
// Records carry an optimistic-concurrency version. Updates and deletes must present the
// version they read; a stale version fails with ErrVersionConflict. Deletes are soft: the
// record stays with Deleted set until it is created again.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aluiziolira/divemeets-skill-rating/models"
)

var (
	// ErrNotFound means no record exists for the id.
	ErrNotFound = errors.New("store: record not found")
	// ErrVersionConflict means the expected version no longer matches the stored one.
	ErrVersionConflict = errors.New("store: version conflict")
	// ErrAlreadyExists means a live record already exists for the id.
	ErrAlreadyExists = errors.New("store: record already exists")
)

// Store is the record store contract used by the batch processor.
type Store interface {
	// Get returns the record for id, including soft-deleted ones, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.DiverRecord, error)
	// Create inserts rec, reviving a soft-deleted record with the same id.
	Create(ctx context.Context, rec *models.DiverRecord) (*models.DiverRecord, error)
	// Update replaces the rating fields of a live record at expectedVersion.
	Update(ctx context.Context, rec *models.DiverRecord, expectedVersion int) (*models.DiverRecord, error)
	// Delete soft-deletes a live record at expectedVersion.
	Delete(ctx context.Context, id string, expectedVersion int) error
}

// StaleCounter counts records whose last change is at or before a cutoff.
type StaleCounter interface {
	CountStale(ctx context.Context, before time.Time) (int, error)
}

// Outcome describes what Upsert did.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
)

// Upsert creates rec when no live record exists and otherwise updates it at the stored version.
func Upsert(ctx context.Context, s Store, rec *models.DiverRecord) (Outcome, *models.DiverRecord, error) {
	current, err := s.Get(ctx, rec.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		current = nil
	case err != nil:
		return "", nil, fmt.Errorf("get %s: %w", rec.ID, err)
	}

	if current == nil || current.Deleted {
		created, err := s.Create(ctx, rec)
		if err != nil {
			return "", nil, fmt.Errorf("create %s: %w", rec.ID, err)
		}
		return OutcomeCreated, created, nil
	}

	updated, err := s.Update(ctx, rec, current.Version)
	if err != nil {
		return "", nil, fmt.Errorf("update %s: %w", rec.ID, err)
	}
	return OutcomeUpdated, updated, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
