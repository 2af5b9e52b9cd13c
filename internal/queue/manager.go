package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/LiiXo/nomercy-sub000/internal/models"
)

const waitSampleWindow = 50

// Manager owns queue state in Redis: a sorted set per (mode, gameMode)
// scored by enqueue time, plus a per-entry hash whose TTL is the heartbeat
// lease. An entry whose hash expired is dead weight in the sorted set and is
// pruned on read or by the sweeper. Queue state deliberately does not
// survive a Redis flush; matches and rankings are the durable records.
type Manager struct {
	rdb    *redis.Client
	logger *zap.Logger
	grace  time.Duration
}

func NewManager(rdb *redis.Client, logger *zap.Logger, grace time.Duration) *Manager {
	return &Manager{rdb: rdb, logger: logger, grace: grace}
}

func queueKey(gameMode, mode string) string {
	return fmt.Sprintf("rq:%s:%s", mode, gameMode)
}

func entryKey(gameMode, mode, userID string) string {
	return fmt.Sprintf("rqe:%s:%s:%s", mode, gameMode, userID)
}

func waitKey(gameMode, mode string) string {
	return fmt.Sprintf("rqwait:%s:%s", mode, gameMode)
}

// Add enqueues the entry and starts its heartbeat lease.
func (m *Manager) Add(ctx context.Context, e models.QueueEntry) error {
	score := float64(e.JoinedAt.UnixMilli())
	if err := m.rdb.ZAdd(ctx, queueKey(e.GameMode, e.Mode), redis.Z{Score: score, Member: e.UserID}).Err(); err != nil {
		return fmt.Errorf("queue add: %w", err)
	}
	key := entryKey(e.GameMode, e.Mode, e.UserID)
	if err := m.rdb.HSet(ctx, key, map[string]interface{}{
		"points":   e.Points,
		"squadId":  e.SquadID,
		"joinedAt": e.JoinedAt.UnixMilli(),
	}).Err(); err != nil {
		return fmt.Errorf("queue add entry: %w", err)
	}
	return m.rdb.Expire(ctx, key, m.grace).Err()
}

// Contains reports whether the user holds a live entry in the queue.
func (m *Manager) Contains(ctx context.Context, gameMode, mode, userID string) (bool, error) {
	err := m.rdb.ZScore(ctx, queueKey(gameMode, mode), userID).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	n, err := m.rdb.Exists(ctx, entryKey(gameMode, mode, userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Remove drops the user's entry. Removing a non-existent entry is not an
// error; the bool says whether anything was there.
func (m *Manager) Remove(ctx context.Context, gameMode, mode, userID string) (bool, error) {
	removed, err := m.rdb.ZRem(ctx, queueKey(gameMode, mode), userID).Result()
	if err != nil {
		return false, err
	}
	m.rdb.Del(ctx, entryKey(gameMode, mode, userID))
	return removed > 0, nil
}

// RemoveGroup drops all the given users at once. Used when a match is formed
// so no other pairing pass can pick the same players.
func (m *Manager) RemoveGroup(ctx context.Context, gameMode, mode string, userIDs []string) error {
	members := make([]interface{}, len(userIDs))
	for i, id := range userIDs {
		members[i] = id
	}
	if err := m.rdb.ZRem(ctx, queueKey(gameMode, mode), members...).Err(); err != nil {
		return err
	}
	for _, id := range userIDs {
		m.rdb.Del(ctx, entryKey(gameMode, mode, id))
	}
	return nil
}

// Entries returns live entries in enqueue order, pruning any whose lease
// expired along the way.
func (m *Manager) Entries(ctx context.Context, gameMode, mode string) ([]models.QueueEntry, error) {
	zs, err := m.rdb.ZRangeWithScores(ctx, queueKey(gameMode, mode), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var out []models.QueueEntry
	for _, z := range zs {
		userID, _ := z.Member.(string)
		data, err := m.rdb.HGetAll(ctx, entryKey(gameMode, mode, userID)).Result()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			// Lease expired: heartbeat stopped, evict.
			m.rdb.ZRem(ctx, queueKey(gameMode, mode), userID)
			m.logger.Info("evicted stale queue entry",
				zap.String("userId", userID), zap.String("gameMode", gameMode), zap.String("mode", mode))
			continue
		}
		points, _ := strconv.Atoi(data["points"])
		joinedMs, _ := strconv.ParseInt(data["joinedAt"], 10, 64)
		out = append(out, models.QueueEntry{
			UserID:   userID,
			GameMode: gameMode,
			Mode:     mode,
			Points:   points,
			SquadID:  data["squadId"],
			JoinedAt: time.UnixMilli(joinedMs),
		})
	}
	return out, nil
}

// EvictStale prunes entries whose lease expired and returns their user ids
// so the caller can notify them.
func (m *Manager) EvictStale(ctx context.Context, gameMode, mode string) ([]string, error) {
	members, err := m.rdb.ZRange(ctx, queueKey(gameMode, mode), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var evicted []string
	for _, userID := range members {
		n, err := m.rdb.Exists(ctx, entryKey(gameMode, mode, userID)).Result()
		if err != nil {
			return evicted, err
		}
		if n == 0 {
			m.rdb.ZRem(ctx, queueKey(gameMode, mode), userID)
			evicted = append(evicted, userID)
		}
	}
	return evicted, nil
}

// Heartbeat refreshes the user's lease. Returns false if the user is not
// (or no longer) queued.
func (m *Manager) Heartbeat(ctx context.Context, gameMode, mode, userID string) (bool, error) {
	ok, err := m.rdb.Expire(ctx, entryKey(gameMode, mode, userID), m.grace).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// RecordWaitSample feeds the time-to-match history behind estimated waits.
func (m *Manager) RecordWaitSample(ctx context.Context, gameMode, mode string, waited time.Duration) {
	key := waitKey(gameMode, mode)
	m.rdb.LPush(ctx, key, int64(waited.Seconds()))
	m.rdb.LTrim(ctx, key, 0, waitSampleWindow-1)
}

// EstimatedWait derives a wait estimate (seconds) from recent time-to-match
// samples, falling back to a queue-pressure heuristic when there is no
// history. It is an estimate, never a guarantee.
func (m *Manager) EstimatedWait(ctx context.Context, gameMode, mode string, queueSize int) int {
	samples, err := m.rdb.LRange(ctx, waitKey(gameMode, mode), 0, -1).Result()
	if err == nil && len(samples) > 0 {
		sum := 0
		for _, s := range samples {
			v, _ := strconv.Atoi(s)
			sum += v
		}
		return sum / len(samples)
	}
	required := models.RequiredPlayers(gameMode)
	if queueSize == 0 {
		return 0
	}
	return ((queueSize + required - 1) / required) * 60
}
