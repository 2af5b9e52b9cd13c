package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LiiXo/nomercy-sub000/internal/models"
	"github.com/LiiXo/nomercy-sub000/internal/repositories"
)

func TestComputeDeltaEvenMatch(t *testing.T) {
	assert.Equal(t, 25, ComputeDelta(1000, 1000))
}

func TestComputeDeltaMonotonicInSkillGap(t *testing.T) {
	prev := maxDelta + 1
	for gap := -800; gap <= 800; gap += 100 {
		d := ComputeDelta(1000+float64(gap), 1000)
		assert.LessOrEqual(t, d, prev, "delta must shrink as the winner's edge grows (gap %d)", gap)
		prev = d
	}
}

func TestComputeDeltaClamps(t *testing.T) {
	assert.Equal(t, minDelta, ComputeDelta(3000, 500), "expected stomp moves the floor")
	assert.Equal(t, maxDelta, ComputeDelta(500, 3000), "huge upset moves the cap")
}

func newTestMatch() *models.Match {
	now := time.Now().UTC()
	return &models.Match{
		ID:       "m1",
		GameMode: models.GameModeDuel,
		Mode:     models.ModeHardcore,
		TeamSize: 1,
		Players: []models.MatchPlayer{
			{UserID: "w", Team: 1, Points: 1200},
			{UserID: "l", Team: 2, Points: 1000},
		},
		HostID:         "w",
		Status:         models.StatusCompleted,
		CreatedAt:      now,
		StartedAt:      now,
		LastActivityAt: now,
	}
}

func setupSettler(t *testing.T) (*Settler, *repositories.InMemoryRankingRepository, *repositories.InMemoryMatchRepository) {
	t.Helper()
	rankings := repositories.NewInMemoryRankingRepository()
	matches := repositories.NewInMemoryMatchRepository()
	s := NewSettler(rankings, matches, zap.NewNop())
	s.SetWinXP(func() int { return 500 })
	return s, rankings, matches
}

func TestSettleIsZeroSum(t *testing.T) {
	s, _, matches := setupSettler(t)
	ctx := context.Background()
	m := newTestMatch()
	require.NoError(t, matches.Create(ctx, m))

	report, err := s.Settle(ctx, m, 1)
	require.NoError(t, err)
	require.Len(t, report.Grants, 2)

	sum := 0
	for _, g := range report.Grants {
		sum += g.PointsDelta
	}
	assert.Equal(t, 0, sum)
}

func TestSettleGrantsRewards(t *testing.T) {
	s, rankings, matches := setupSettler(t)
	ctx := context.Background()
	m := newTestMatch()
	require.NoError(t, matches.Create(ctx, m))

	// seed the ladder so the loser has points to lose
	_, err := rankings.ApplyResult(ctx, "l", models.ModeHardcore, 1000, true)
	require.NoError(t, err)

	report, err := s.Settle(ctx, m, 1)
	require.NoError(t, err)

	delta := ComputeDelta(1200, 1000)
	winner, err := rankings.Get(ctx, "w", models.ModeHardcore)
	require.NoError(t, err)
	assert.Equal(t, delta, winner.Points)
	assert.Equal(t, 1, winner.Wins)
	assert.Equal(t, 1, winner.CurrentStreak)

	loser, err := rankings.Get(ctx, "l", models.ModeHardcore)
	require.NoError(t, err)
	assert.Equal(t, 1000-delta, loser.Points)
	assert.Equal(t, 1, loser.Losses)
	assert.Equal(t, 0, loser.CurrentStreak, "a loss resets the streak")
	assert.Equal(t, 1, loser.BestStreak, "best streak survives the loss")

	for _, g := range report.Grants {
		if g.UserID == "w" {
			assert.Equal(t, 50, g.Gold)
			assert.Equal(t, 500, g.XP)
		} else {
			assert.Equal(t, 0, g.Gold)
			assert.Equal(t, 100, g.XP)
		}
	}
}

func TestSettleFloorsAtZero(t *testing.T) {
	s, rankings, matches := setupSettler(t)
	ctx := context.Background()
	m := newTestMatch()
	require.NoError(t, matches.Create(ctx, m))

	_, err := s.Settle(ctx, m, 1)
	require.NoError(t, err)

	loser, err := rankings.Get(ctx, "l", models.ModeHardcore)
	require.NoError(t, err)
	assert.Equal(t, 0, loser.Points)
}

func TestSettleExactlyOnce(t *testing.T) {
	s, rankings, matches := setupSettler(t)
	ctx := context.Background()
	m := newTestMatch()
	require.NoError(t, matches.Create(ctx, m))

	_, err := s.Settle(ctx, m, 1)
	require.NoError(t, err)

	_, err = s.Settle(ctx, m, 1)
	assert.ErrorIs(t, err, repositories.ErrAlreadySettled)

	winner, err := rankings.Get(ctx, "w", models.ModeHardcore)
	require.NoError(t, err)
	assert.Equal(t, 1, winner.Wins, "a replayed settlement must not pay twice")
}

// flakyRankings fails the first n ApplyResult calls, then behaves normally.
type flakyRankings struct {
	*repositories.InMemoryRankingRepository
	mu       sync.Mutex
	failures int
}

func (f *flakyRankings) ApplyResult(ctx context.Context, userID, mode string, delta int, won bool) (*models.RankingEntry, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errors.New("transient store error")
	}
	f.mu.Unlock()
	return f.InMemoryRankingRepository.ApplyResult(ctx, userID, mode, delta, won)
}

func TestSettleRetriesTransientLadderFailure(t *testing.T) {
	rankings := &flakyRankings{
		InMemoryRankingRepository: repositories.NewInMemoryRankingRepository(),
		failures:                  1,
	}
	matches := repositories.NewInMemoryMatchRepository()
	s := NewSettler(rankings, matches, zap.NewNop())
	s.SetWinXP(func() int { return 500 })
	ctx := context.Background()
	m := newTestMatch()
	require.NoError(t, matches.Create(ctx, m))

	_, err := s.Settle(ctx, m, 1)
	require.NoError(t, err)

	winner, err := rankings.Get(ctx, "w", models.ModeHardcore)
	require.NoError(t, err)
	assert.Equal(t, 1, winner.Wins, "failed grant recovers on retry")

	loser, err := rankings.Get(ctx, "l", models.ModeHardcore)
	require.NoError(t, err)
	assert.Equal(t, 1, loser.Losses)
}

func TestStreaksAccumulate(t *testing.T) {
	s, rankings, matches := setupSettler(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m := newTestMatch()
		m.ID = m.ID + string(rune('a'+i))
		require.NoError(t, matches.Create(ctx, m))
		_, err := s.Settle(ctx, m, 1)
		require.NoError(t, err)
	}

	winner, err := rankings.Get(ctx, "w", models.ModeHardcore)
	require.NoError(t, err)
	assert.Equal(t, 3, winner.Wins)
	assert.Equal(t, 3, winner.CurrentStreak)
	assert.Equal(t, 3, winner.BestStreak)
}
