package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LiiXo/nomercy-sub000/internal/models"
)

// InMemoryMatchRepository is the store used by tests and local development.
// The Mongo implementation in repositories/mongo is the durable one.
type InMemoryMatchRepository struct {
	mu      sync.RWMutex
	matches map[string]models.Match
}

func NewInMemoryMatchRepository() *InMemoryMatchRepository {
	return &InMemoryMatchRepository{matches: make(map[string]models.Match)}
}

func (r *InMemoryMatchRepository) Create(ctx context.Context, m *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches[m.ID] = cloneMatch(m)
	return nil
}

func (r *InMemoryMatchRepository) Get(ctx context.Context, id string) (*models.Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneMatch(&m)
	return &c, nil
}

func (r *InMemoryMatchRepository) UpdateWithStatus(ctx context.Context, m *models.Match, expectStatus string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.matches[m.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expectStatus || cur.Revision != m.Revision {
		return ErrStaleMatch
	}
	m.Revision++
	r.matches[m.ID] = cloneMatch(m)
	return nil
}

func (r *InMemoryMatchRepository) ActiveForUser(ctx context.Context, userID, mode string) (*models.Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *models.Match
	for id := range r.matches {
		m := r.matches[id]
		if m.Terminal() {
			continue
		}
		if mode != "" && m.Mode != mode {
			continue
		}
		if !m.HasPlayer(userID) {
			continue
		}
		if best == nil || m.CreatedAt.After(best.CreatedAt) {
			c := cloneMatch(&m)
			best = &c
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (r *InMemoryMatchRepository) ListByStatus(ctx context.Context, status string, limit int) ([]models.Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Match
	for id := range r.matches {
		m := r.matches[id]
		if m.Status == status {
			out = append(out, cloneMatch(&m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryMatchRepository) HistoryForUser(ctx context.Context, userID, mode string, limit int) ([]models.Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Match
	for id := range r.matches {
		m := r.matches[id]
		if m.Status != models.StatusCompleted || !m.HasPlayer(userID) {
			continue
		}
		if mode != "" && m.Mode != mode {
			continue
		}
		out = append(out, cloneMatch(&m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryMatchRepository) MarkSettled(ctx context.Context, id string, grants []models.RewardGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return ErrNotFound
	}
	if m.SettledAt != nil {
		return ErrAlreadySettled
	}
	now := time.Now().UTC()
	m.SettledAt = &now
	byUser := make(map[string]models.RewardGrant, len(grants))
	for _, g := range grants {
		byUser[g.UserID] = g
	}
	for i := range m.Players {
		if g, ok := byUser[m.Players[i].UserID]; ok {
			grant := g
			m.Players[i].Rewards = &grant
		}
	}
	r.matches[id] = m
	return nil
}

func cloneMatch(m *models.Match) models.Match {
	c := *m
	c.Players = append([]models.MatchPlayer(nil), m.Players...)
	c.Chat = append([]models.ChatMessage(nil), m.Chat...)
	if m.Result != nil {
		res := *m.Result
		if m.Result.Team1Report != nil {
			rep := *m.Result.Team1Report
			res.Team1Report = &rep
		}
		if m.Result.Team2Report != nil {
			rep := *m.Result.Team2Report
			res.Team2Report = &rep
		}
		c.Result = &res
	}
	if m.Dispute != nil {
		d := *m.Dispute
		c.Dispute = &d
	}
	return c
}
