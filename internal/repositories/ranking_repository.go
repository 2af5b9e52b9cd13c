package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LiiXo/nomercy-sub000/internal/models"
)

// InMemoryRankingRepository is the ladder store used by tests and local
// development.
type InMemoryRankingRepository struct {
	mu      sync.RWMutex
	entries map[string]models.RankingEntry // key userID + ":" + mode
}

func NewInMemoryRankingRepository() *InMemoryRankingRepository {
	return &InMemoryRankingRepository{entries: make(map[string]models.RankingEntry)}
}

func rankingKey(userID, mode string) string { return userID + ":" + mode }

func (r *InMemoryRankingRepository) Get(ctx context.Context, userID, mode string) (*models.RankingEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[rankingKey(userID, mode)]
	if !ok {
		return nil, ErrNotFound
	}
	c := e
	return &c, nil
}

func (r *InMemoryRankingRepository) ApplyResult(ctx context.Context, userID, mode string, pointsDelta int, won bool) (*models.RankingEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := rankingKey(userID, mode)
	e, ok := r.entries[key]
	if !ok {
		e = models.RankingEntry{UserID: userID, Mode: mode}
	}
	e.Points += pointsDelta
	if e.Points < 0 {
		e.Points = 0
	}
	if won {
		e.Wins++
		e.CurrentStreak++
		if e.CurrentStreak > e.BestStreak {
			e.BestStreak = e.CurrentStreak
		}
	} else {
		e.Losses++
		e.CurrentStreak = 0
	}
	e.UpdatedAt = time.Now().UTC()
	r.entries[key] = e
	c := e
	return &c, nil
}

func (r *InMemoryRankingRepository) Top(ctx context.Context, mode string, limit int) ([]models.RankingEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.RankingEntry
	for _, e := range r.entries {
		if e.Mode == mode {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Points > out[j].Points })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
