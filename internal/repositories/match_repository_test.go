package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiiXo/nomercy-sub000/internal/models"
)

func storedMatch(t *testing.T, repo *InMemoryMatchRepository) *models.Match {
	t.Helper()
	now := time.Now().UTC()
	m := &models.Match{
		ID:       "m1",
		GameMode: models.GameModeDuel,
		Mode:     models.ModeHardcore,
		TeamSize: 1,
		Players: []models.MatchPlayer{
			{UserID: "u1", Team: 1},
			{UserID: "u2", Team: 2},
		},
		HostID:         "u1",
		Status:         models.StatusInProgress,
		CreatedAt:      now,
		StartedAt:      now,
		LastActivityAt: now,
	}
	require.NoError(t, repo.Create(context.Background(), m))
	return m
}

func TestUpdateWithStatusRejectsStaleRevision(t *testing.T) {
	repo := NewInMemoryMatchRepository()
	ctx := context.Background()
	storedMatch(t, repo)

	first, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	second, err := repo.Get(ctx, "m1")
	require.NoError(t, err)

	first.Chat = append(first.Chat, models.ChatMessage{SenderID: "u1", Text: "one"})
	require.NoError(t, repo.UpdateWithStatus(ctx, first, models.StatusInProgress))

	// second still carries the old revision: its save must lose, not win
	second.Chat = append(second.Chat, models.ChatMessage{SenderID: "u2", Text: "two"})
	err = repo.UpdateWithStatus(ctx, second, models.StatusInProgress)
	assert.ErrorIs(t, err, ErrStaleMatch)

	stored, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, stored.Chat, 1)
	assert.Equal(t, "one", stored.Chat[0].Text)
}

func TestUpdateWithStatusRejectsStatusChange(t *testing.T) {
	repo := NewInMemoryMatchRepository()
	ctx := context.Background()
	storedMatch(t, repo)

	first, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	first.Status = models.StatusCancelled
	require.NoError(t, repo.UpdateWithStatus(ctx, first, models.StatusInProgress))

	stale, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	err = repo.UpdateWithStatus(ctx, stale, models.StatusInProgress)
	assert.ErrorIs(t, err, ErrStaleMatch)
}

func TestUpdateWithStatusBumpsRevision(t *testing.T) {
	repo := NewInMemoryMatchRepository()
	ctx := context.Background()
	m := storedMatch(t, repo)

	require.NoError(t, repo.UpdateWithStatus(ctx, m, models.StatusInProgress))
	assert.Equal(t, int64(1), m.Revision, "caller's copy stays current after a save")
	require.NoError(t, repo.UpdateWithStatus(ctx, m, models.StatusInProgress))
	assert.Equal(t, int64(2), m.Revision)
}
