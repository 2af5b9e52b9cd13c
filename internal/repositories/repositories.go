package repositories

import (
	"context"
	"errors"

	"github.com/LiiXo/nomercy-sub000/internal/models"
)

var (
	// ErrNotFound is returned when the requested document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStaleMatch is returned when an optimistic update lost the race:
	// the match changed since it was loaded.
	ErrStaleMatch = errors.New("match modified concurrently")
	// ErrAlreadySettled is returned when a settlement claim finds the
	// match already stamped.
	ErrAlreadySettled = errors.New("match already settled")
)

// MatchRepository stores ranked matches durably.
type MatchRepository interface {
	Create(ctx context.Context, m *models.Match) error
	Get(ctx context.Context, id string) (*models.Match, error)
	// UpdateWithStatus replaces the stored match only if its current
	// status equals expectStatus and its revision still equals m.Revision,
	// bumping the revision on success. Returns ErrStaleMatch otherwise.
	// This is the single write path for state transitions.
	UpdateWithStatus(ctx context.Context, m *models.Match, expectStatus string) error
	// ActiveForUser returns the user's pending/in_progress/disputed match
	// in the given mode, or ErrNotFound.
	ActiveForUser(ctx context.Context, userID, mode string) (*models.Match, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]models.Match, error)
	HistoryForUser(ctx context.Context, userID, mode string, limit int) ([]models.Match, error)
	// MarkSettled stamps settledAt exactly once; a second call returns
	// ErrAlreadySettled. Grants are recorded on the players at the same time.
	MarkSettled(ctx context.Context, id string, grants []models.RewardGrant) error
}

// RankingRepository stores per-user, per-mode ladder records.
type RankingRepository interface {
	// Get returns the entry or ErrNotFound. Callers treat ErrNotFound as
	// "first-time player, default skill" -- never a hard failure.
	Get(ctx context.Context, userID, mode string) (*models.RankingEntry, error)
	// ApplyResult atomically applies one match outcome: points delta
	// (floored at zero), win/loss counter, streak update. Creates the
	// entry lazily if missing.
	ApplyResult(ctx context.Context, userID, mode string, pointsDelta int, won bool) (*models.RankingEntry, error)
	Top(ctx context.Context, mode string, limit int) ([]models.RankingEntry, error)
}
