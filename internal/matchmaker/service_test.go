package matchmaker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LiiXo/nomercy-sub000/internal/config"
	"github.com/LiiXo/nomercy-sub000/internal/models"
	"github.com/LiiXo/nomercy-sub000/internal/queue"
	"github.com/LiiXo/nomercy-sub000/internal/repositories"
)

type recordedEvent struct {
	UserID string
	Event  string
	Data   interface{}
}

// recordingNotifier captures published events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) PublishToUser(userID, event string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{UserID: userID, Event: event, Data: data})
}

func (n *recordingNotifier) PublishToMatch(matchID, event string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{UserID: matchID, Event: event, Data: data})
}

func (n *recordingNotifier) eventsFor(userID, event string) []recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []recordedEvent
	for _, e := range n.events {
		if e.UserID == userID && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		SkillTolerance:  300,
		SkillWidenStep:  100,
		SkillWidenEvery: 30 * time.Second,
		HeartbeatGrace:  30 * time.Second,
	}
}

type fixture struct {
	mr       *miniredis.Miniredis
	queues   *queue.Manager
	matches  *repositories.InMemoryMatchRepository
	rankings *repositories.InMemoryRankingRepository
	notifier *recordingNotifier
	svc      *Service
}

func setup(t *testing.T) *fixture {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	f := &fixture{
		mr:       mr,
		matches:  repositories.NewInMemoryMatchRepository(),
		rankings: repositories.NewInMemoryRankingRepository(),
		notifier: &recordingNotifier{},
	}
	f.queues = queue.NewManager(rdb, zap.NewNop(), 30*time.Second)
	f.svc = NewService(testConfig(), f.queues, f.matches, f.rankings, f.notifier, zap.NewNop())
	return f
}

func TestJoinQueueValidatesInput(t *testing.T) {
	f := setup(t)
	_, err := f.svc.JoinQueue(context.Background(), "u1", models.QueueRequest{GameMode: "Chess", Mode: models.ModeHardcore})
	assert.IsType(t, &models.ValidationError{}, err)

	_, err = f.svc.JoinQueue(context.Background(), "u1", models.QueueRequest{GameMode: models.GameModeDuel, Mode: "casual"})
	assert.IsType(t, &models.ValidationError{}, err)
}

func TestDuelPairsTwoCompatiblePlayers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := models.QueueRequest{GameMode: models.GameModeDuel, Mode: models.ModeHardcore}

	resp, err := f.svc.JoinQueue(ctx, "u1", req)
	require.NoError(t, err)
	assert.True(t, resp.Queued)
	assert.False(t, resp.MatchFound)
	assert.Equal(t, 1, resp.Position)

	resp, err = f.svc.JoinQueue(ctx, "u2", req)
	require.NoError(t, err)
	assert.True(t, resp.MatchFound)
	require.NotEmpty(t, resp.MatchID)

	m, err := f.matches.Get(ctx, resp.MatchID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, m.Status)
	assert.Equal(t, "u1", m.HostID, "longest-waiting player hosts")
	assert.Len(t, m.Players, 2)
	assert.NotEqual(t, m.Players[0].Team, m.Players[1].Team)
	require.NotEmpty(t, m.Chat)
	assert.True(t, m.Chat[0].System)

	entries, err := f.queues.Entries(ctx, req.GameMode, req.Mode)
	require.NoError(t, err)
	assert.Empty(t, entries, "matched players leave the queue atomically")

	assert.Len(t, f.notifier.eventsFor("u1", models.EventMatchFound), 1)
	assert.Len(t, f.notifier.eventsFor("u2", models.EventMatchFound), 1)
}

func TestJoinRefusedWhileSkillGapTooWide(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := models.QueueRequest{GameMode: models.GameModeDuel, Mode: models.ModeHardcore}

	_, err := f.rankings.ApplyResult(ctx, "pro", models.ModeHardcore, 2000, true)
	require.NoError(t, err)

	resp, err := f.svc.JoinQueue(ctx, "newbie", req)
	require.NoError(t, err)
	assert.True(t, resp.Queued)

	resp, err = f.svc.JoinQueue(ctx, "pro", req)
	require.NoError(t, err)
	assert.True(t, resp.Queued, "2000 vs 0 points cannot pair inside the base window")
	assert.Equal(t, 2, resp.QueueSize)
}

func TestJoinConflictsWithActiveMatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := models.QueueRequest{GameMode: models.GameModeDuel, Mode: models.ModeHardcore}

	resp, err := f.svc.JoinQueue(ctx, "u1", req)
	require.NoError(t, err)
	require.True(t, resp.Queued)
	resp, err = f.svc.JoinQueue(ctx, "u2", req)
	require.NoError(t, err)
	require.True(t, resp.MatchFound)

	_, err = f.svc.JoinQueue(ctx, "u1", req)
	var conflict *models.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, resp.MatchID, conflict.MatchID, "conflict carries the active match id")
}

func TestJoinTwiceConflicts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := models.QueueRequest{GameMode: models.GameModeTDM, Mode: models.ModeCDL}

	_, err := f.svc.JoinQueue(ctx, "u1", req)
	require.NoError(t, err)

	_, err = f.svc.JoinQueue(ctx, "u1", req)
	var conflict *models.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestJoinSameGameModeOnOtherLadderConflicts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.JoinQueue(ctx, "u1", models.QueueRequest{GameMode: models.GameModeDuel, Mode: models.ModeHardcore})
	require.NoError(t, err)

	_, err = f.svc.JoinQueue(ctx, "u1", models.QueueRequest{GameMode: models.GameModeDuel, Mode: models.ModeCDL})
	var conflict *models.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestConcurrentCrossLadderJoinsStayExclusive(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	modes := []string{models.ModeHardcore, models.ModeCDL}

	for i := 0; i < 10; i++ {
		userID := fmt.Sprintf("x%d", i)
		// points far apart so the queues only accumulate, never pair
		for _, mode := range modes {
			_, err := f.rankings.ApplyResult(ctx, userID, mode, i*1000, true)
			require.NoError(t, err)
		}

		results := make([]error, len(modes))
		var wg sync.WaitGroup
		for j, mode := range modes {
			wg.Add(1)
			go func(j int, mode string) {
				defer wg.Done()
				_, results[j] = f.svc.JoinQueue(ctx, userID, models.QueueRequest{GameMode: models.GameModeTDM, Mode: mode})
			}(j, mode)
		}
		wg.Wait()

		conflicts := 0
		for _, err := range results {
			if err != nil {
				assert.IsType(t, &models.ConflictError{}, err)
				conflicts++
			}
		}
		assert.Equal(t, 1, conflicts, "exactly one ladder accepts the join")

		queued := 0
		for _, mode := range modes {
			in, err := f.queues.Contains(ctx, models.GameModeTDM, mode, userID)
			require.NoError(t, err)
			if in {
				queued++
			}
		}
		assert.Equal(t, 1, queued, "a player never waits on both ladders at once")
	}
}

func TestConcurrentJoinsNeverDoubleMatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := models.QueueRequest{GameMode: models.GameModeDuel, Mode: models.ModeHardcore}

	users := []string{"u1", "u2", "u3", "u4", "u5", "u6"}
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_, err := f.svc.JoinQueue(ctx, u, req)
			assert.NoError(t, err)
		}(u)
	}
	wg.Wait()

	matched, err := f.matches.ListByStatus(ctx, models.StatusInProgress, 0)
	require.NoError(t, err)
	assert.Len(t, matched, 3)

	seen := map[string]int{}
	for _, m := range matched {
		for _, p := range m.Players {
			seen[p.UserID]++
		}
	}
	for _, u := range users {
		assert.Equal(t, 1, seen[u], "every player lands in exactly one match")
	}
}

func TestLeaveQueueIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := models.QueueRequest{GameMode: models.GameModeDuel, Mode: models.ModeHardcore}

	_, err := f.svc.JoinQueue(ctx, "u1", req)
	require.NoError(t, err)

	resp, err := f.svc.LeaveQueue(ctx, "u1", req.GameMode, req.Mode)
	require.NoError(t, err)
	assert.True(t, resp.Left)

	resp, err = f.svc.LeaveQueue(ctx, "u1", req.GameMode, req.Mode)
	require.NoError(t, err)
	assert.False(t, resp.Left)
}

func TestTeamModeWaitsForEightPlayers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := models.QueueRequest{GameMode: models.GameModeSND, Mode: models.ModeHardcore}

	users := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7"}
	for _, u := range users {
		resp, err := f.svc.JoinQueue(ctx, u, req)
		require.NoError(t, err)
		assert.True(t, resp.Queued)
	}

	resp, err := f.svc.JoinQueue(ctx, "u8", req)
	require.NoError(t, err)
	require.True(t, resp.MatchFound)

	m, err := f.matches.Get(ctx, resp.MatchID)
	require.NoError(t, err)
	assert.Len(t, m.Players, 8)
	assert.Equal(t, 4, m.TeamSize)
	assert.Len(t, m.TeamMembers(1), 4)
	assert.Len(t, m.TeamMembers(2), 4)
}

func TestSweepEvictsSilentPlayerAndNotifies(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := models.QueueRequest{GameMode: models.GameModeDuel, Mode: models.ModeHardcore}

	_, err := f.svc.JoinQueue(ctx, "ghost", req)
	require.NoError(t, err)

	f.mr.FastForward(31 * time.Second)
	f.svc.SweepQueues(ctx)

	assert.Len(t, f.notifier.eventsFor("ghost", models.EventQueueEvicted), 1)

	status, err := f.svc.MyStatus(ctx, "ghost", req.GameMode, req.Mode)
	require.NoError(t, err)
	assert.False(t, status.InQueue)
}

func TestSweepPairsAfterWindowWidens(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// 600 points apart: outside the base window, inside it after ~90s waited.
	_, err := f.rankings.ApplyResult(ctx, "high", models.ModeHardcore, 600, true)
	require.NoError(t, err)

	require.NoError(t, f.queues.Add(ctx, models.QueueEntry{
		UserID: "low", GameMode: models.GameModeDuel, Mode: models.ModeHardcore,
		Points: 0, JoinedAt: time.Now().UTC().Add(-2 * time.Minute),
	}))
	require.NoError(t, f.queues.Add(ctx, models.QueueEntry{
		UserID: "high", GameMode: models.GameModeDuel, Mode: models.ModeHardcore,
		Points: 600, JoinedAt: time.Now().UTC(),
	}))

	f.svc.SweepQueues(ctx)

	assert.Len(t, f.notifier.eventsFor("low", models.EventMatchFound), 1)
	assert.Len(t, f.notifier.eventsFor("high", models.EventMatchFound), 1)
}

func TestMyStatusReportsPosition(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := models.QueueRequest{GameMode: models.GameModeDomination, Mode: models.ModeHardcore}

	_, err := f.svc.JoinQueue(ctx, "u1", req)
	require.NoError(t, err)
	_, err = f.svc.JoinQueue(ctx, "u2", req)
	require.NoError(t, err)

	status, err := f.svc.MyStatus(ctx, "u2", req.GameMode, req.Mode)
	require.NoError(t, err)
	assert.True(t, status.InQueue)
	assert.Equal(t, 2, status.Position)
	assert.Equal(t, 2, status.QueueSize)
}

func TestQueueStatusesCoversAllGameModes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.JoinQueue(ctx, "u1", models.QueueRequest{GameMode: models.GameModeTDM, Mode: models.ModeHardcore})
	require.NoError(t, err)

	statuses, err := f.svc.QueueStatuses(ctx, models.ModeHardcore)
	require.NoError(t, err)
	require.Len(t, statuses, 4)
	for _, s := range statuses {
		if s.GameMode == models.GameModeTDM {
			assert.Equal(t, 1, s.PlayersInQueue)
			assert.Equal(t, 8, s.RequiredPlayers)
		} else {
			assert.Equal(t, 0, s.PlayersInQueue)
		}
	}
}
