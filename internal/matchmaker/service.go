package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LiiXo/nomercy-sub000/internal/config"
	"github.com/LiiXo/nomercy-sub000/internal/metrics"
	"github.com/LiiXo/nomercy-sub000/internal/models"
	"github.com/LiiXo/nomercy-sub000/internal/queue"
	"github.com/LiiXo/nomercy-sub000/internal/realtime"
	"github.com/LiiXo/nomercy-sub000/internal/repositories"
)

var allGameModes = []string{
	models.GameModeDuel,
	models.GameModeTDM,
	models.GameModeDomination,
	models.GameModeSND,
}

var allModes = []string{models.ModeHardcore, models.ModeCDL}

// Service runs the ranked queues. All queue mutations for one (mode,
// gameMode) pair go through a single mutex so a pairing pass never races a
// concurrent join or leave on the same queue.
type Service struct {
	cfg      *config.Config
	queues   *queue.Manager
	matches  repositories.MatchRepository
	rankings repositories.RankingRepository
	notifier realtime.Notifier
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(cfg *config.Config, q *queue.Manager, matches repositories.MatchRepository, rankings repositories.RankingRepository, notifier realtime.Notifier, logger *zap.Logger) *Service {
	return &Service{
		cfg:      cfg,
		queues:   q,
		matches:  matches,
		rankings: rankings,
		notifier: notifier,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockFor(gameMode, mode string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := mode + ":" + gameMode
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func validateQueue(gameMode, mode string) error {
	if !models.ValidGameMode(gameMode) {
		return &models.ValidationError{Msg: fmt.Sprintf("unknown game mode %q", gameMode)}
	}
	if !models.ValidMode(mode) {
		return &models.ValidationError{Msg: fmt.Sprintf("unknown mode %q", mode)}
	}
	return nil
}

// JoinQueue enqueues the player and immediately attempts to form a match.
// A player with a live match anywhere is refused with a conflict carrying
// the match id so the client can redirect.
func (s *Service) JoinQueue(ctx context.Context, userID string, req models.QueueRequest) (*models.JoinQueueResponse, error) {
	if err := validateQueue(req.GameMode, req.Mode); err != nil {
		return nil, err
	}

	if active, err := s.matches.ActiveForUser(ctx, userID, ""); err == nil {
		return nil, &models.ConflictError{Msg: "you already have an active ranked match", MatchID: active.ID}
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	// Every ladder's lock for this game mode is held, in allModes order, so
	// two simultaneous joins on different ladders cannot both pass the
	// exclusivity check below.
	for _, mode := range allModes {
		l := s.lockFor(req.GameMode, mode)
		l.Lock()
		defer l.Unlock()
	}

	for _, mode := range allModes {
		queued, err := s.queues.Contains(ctx, req.GameMode, mode, userID)
		if err != nil {
			return nil, err
		}
		if queued {
			if mode == req.Mode {
				return nil, &models.ConflictError{Msg: "already in this queue"}
			}
			return nil, &models.ConflictError{Msg: "already queued for this game mode on another ladder"}
		}
	}

	points := 0
	if r, err := s.rankings.Get(ctx, userID, req.Mode); err == nil {
		points = r.Points
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	entry := models.QueueEntry{
		UserID:   userID,
		GameMode: req.GameMode,
		Mode:     req.Mode,
		Points:   points,
		SquadID:  req.SquadID,
		JoinedAt: time.Now().UTC(),
	}
	if err := s.queues.Add(ctx, entry); err != nil {
		return nil, err
	}
	metrics.QueueJoins.WithLabelValues(req.Mode, req.GameMode).Inc()
	s.logger.Info("queue join",
		zap.String("userId", userID), zap.String("gameMode", req.GameMode),
		zap.String("mode", req.Mode), zap.Int("points", points))

	match, err := s.tryFormLocked(ctx, req.GameMode, req.Mode)
	if err != nil {
		return nil, err
	}
	if match != nil {
		return &models.JoinQueueResponse{MatchFound: true, MatchID: match.ID}, nil
	}

	entries, err := s.queues.Entries(ctx, req.GameMode, req.Mode)
	if err != nil {
		return nil, err
	}
	position := len(entries)
	for i, e := range entries {
		if e.UserID == userID {
			position = i + 1
			break
		}
	}
	wait := s.queues.EstimatedWait(ctx, req.GameMode, req.Mode, len(entries))
	s.broadcastQueueUpdate(req.GameMode, req.Mode, entries, wait)
	return &models.JoinQueueResponse{
		Queued:        true,
		Position:      position,
		QueueSize:     len(entries),
		EstimatedWait: wait,
	}, nil
}

// LeaveQueue is idempotent: leaving a queue you are not in succeeds with
// Left=false.
func (s *Service) LeaveQueue(ctx context.Context, userID, gameMode, mode string) (*models.LeaveQueueResponse, error) {
	if err := validateQueue(gameMode, mode); err != nil {
		return nil, err
	}
	l := s.lockFor(gameMode, mode)
	l.Lock()
	defer l.Unlock()

	removed, err := s.queues.Remove(ctx, gameMode, mode, userID)
	if err != nil {
		return nil, err
	}
	if removed {
		s.logger.Info("queue leave", zap.String("userId", userID),
			zap.String("gameMode", gameMode), zap.String("mode", mode))
	}
	return &models.LeaveQueueResponse{Left: removed}, nil
}

// Heartbeat refreshes the caller's queue lease.
func (s *Service) Heartbeat(ctx context.Context, userID, gameMode, mode string) error {
	if err := validateQueue(gameMode, mode); err != nil {
		return err
	}
	ok, err := s.queues.Heartbeat(ctx, gameMode, mode, userID)
	if err != nil {
		return err
	}
	if !ok {
		return &models.NotFoundError{Msg: "not in queue"}
	}
	return nil
}

// HeartbeatAll refreshes the caller's lease in every queue. Backs the
// websocket ping, where the client does not say which queue it sits in.
func (s *Service) HeartbeatAll(ctx context.Context, userID string) {
	for _, mode := range allModes {
		for _, gm := range allGameModes {
			_, _ = s.queues.Heartbeat(ctx, gm, mode, userID)
		}
	}
}

// MyStatus reports the caller's position in one queue.
func (s *Service) MyStatus(ctx context.Context, userID, gameMode, mode string) (*models.MyQueueStatusResponse, error) {
	if err := validateQueue(gameMode, mode); err != nil {
		return nil, err
	}
	entries, err := s.queues.Entries(ctx, gameMode, mode)
	if err != nil {
		return nil, err
	}
	resp := &models.MyQueueStatusResponse{
		QueueSize:     len(entries),
		EstimatedWait: s.queues.EstimatedWait(ctx, gameMode, mode, len(entries)),
	}
	for i, e := range entries {
		if e.UserID == userID {
			resp.InQueue = true
			resp.Position = i + 1
			break
		}
	}
	return resp, nil
}

// QueueStatuses reports public queue pressure for every game mode of one
// ladder.
func (s *Service) QueueStatuses(ctx context.Context, mode string) ([]models.QueueStatus, error) {
	if !models.ValidMode(mode) {
		return nil, &models.ValidationError{Msg: fmt.Sprintf("unknown mode %q", mode)}
	}
	out := make([]models.QueueStatus, 0, len(allGameModes))
	for _, gm := range allGameModes {
		entries, err := s.queues.Entries(ctx, gm, mode)
		if err != nil {
			return nil, err
		}
		out = append(out, models.QueueStatus{
			GameMode:        gm,
			PlayersInQueue:  len(entries),
			RequiredPlayers: models.RequiredPlayers(gm),
			EstimatedWait:   s.queues.EstimatedWait(ctx, gm, mode, len(entries)),
		})
	}
	return out, nil
}

// SweepQueues evicts entries whose heartbeat lease expired, then retries
// pairing on every queue. The retry is what makes the widening window
// effective when nobody new joins.
func (s *Service) SweepQueues(ctx context.Context) {
	for _, mode := range allModes {
		for _, gm := range allGameModes {
			l := s.lockFor(gm, mode)
			l.Lock()
			evicted, err := s.queues.EvictStale(ctx, gm, mode)
			if err != nil {
				s.logger.Warn("queue sweep failed", zap.String("gameMode", gm),
					zap.String("mode", mode), zap.Error(err))
				l.Unlock()
				continue
			}
			for _, userID := range evicted {
				metrics.QueueEvictions.WithLabelValues(mode, gm).Inc()
				s.notifier.PublishToUser(userID, models.EventQueueEvicted, models.QueueUpdatePayload{
					GameMode: gm, Mode: mode,
				})
				s.logger.Info("queue eviction", zap.String("userId", userID),
					zap.String("gameMode", gm), zap.String("mode", mode))
			}
			for {
				match, err := s.tryFormLocked(ctx, gm, mode)
				if err != nil {
					s.logger.Warn("pairing pass failed", zap.String("gameMode", gm),
						zap.String("mode", mode), zap.Error(err))
					break
				}
				if match == nil {
					break
				}
			}
			if entries, err := s.queues.Entries(ctx, gm, mode); err == nil {
				metrics.QueueDepth.WithLabelValues(mode, gm).Set(float64(len(entries)))
			}
			l.Unlock()
		}
	}
}

// tryFormLocked runs one pairing attempt. Caller must hold the queue lock.
func (s *Service) tryFormLocked(ctx context.Context, gameMode, mode string) (*models.Match, error) {
	entries, err := s.queues.Entries(ctx, gameMode, mode)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	group := FormGroup(entries, models.RequiredPlayers(gameMode),
		s.cfg.SkillTolerance, s.cfg.SkillWidenStep, s.cfg.SkillWidenEvery, now)
	if group == nil {
		return nil, nil
	}
	return s.createMatch(ctx, gameMode, mode, group, now)
}

func (s *Service) createMatch(ctx context.Context, gameMode, mode string, group []models.QueueEntry, now time.Time) (*models.Match, error) {
	ids := make([]string, len(group))
	for i, e := range group {
		ids[i] = e.UserID
	}
	if err := s.queues.RemoveGroup(ctx, gameMode, mode, ids); err != nil {
		return nil, err
	}

	team1, team2 := SplitTeams(group)
	host := group[0].UserID // longest-waiting player hosts
	players := make([]models.MatchPlayer, 0, len(group))
	appendTeam := func(team int, members []models.QueueEntry) {
		for _, e := range members {
			players = append(players, models.MatchPlayer{
				UserID:        e.UserID,
				Team:          team,
				Points:        e.Points,
				Division:      models.DivisionFor(e.Points),
				SquadID:       e.SquadID,
				QueueJoinedAt: e.JoinedAt,
			})
		}
	}
	appendTeam(1, team1)
	appendTeam(2, team2)

	match := &models.Match{
		ID:       uuid.NewString(),
		GameMode: gameMode,
		Mode:     mode,
		TeamSize: len(group) / 2,
		Players:  players,
		HostID:   host,
		Status:   models.StatusPending,
		Chat: []models.ChatMessage{{
			System: true,
			Text:   "Match created. Waiting for the host to share the game code.",
			SentAt: now,
		}},
		CreatedAt:      now,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if err := s.matches.Create(ctx, match); err != nil {
		return nil, err
	}
	match.Status = models.StatusInProgress
	if err := s.matches.UpdateWithStatus(ctx, match, models.StatusPending); err != nil {
		return nil, err
	}

	metrics.MatchesFormed.WithLabelValues(mode, gameMode).Inc()
	for _, e := range group {
		waited := now.Sub(e.JoinedAt)
		s.queues.RecordWaitSample(ctx, gameMode, mode, waited)
		metrics.TimeToMatch.WithLabelValues(mode, gameMode).Observe(waited.Seconds())
	}
	for _, p := range match.Players {
		s.notifier.PublishToUser(p.UserID, models.EventMatchFound, models.MatchFoundPayload{
			MatchID:  match.ID,
			GameMode: gameMode,
			Mode:     mode,
			YourTeam: p.Team,
			IsHost:   p.UserID == host,
		})
	}
	s.logger.Info("match formed", zap.String("matchId", match.ID),
		zap.String("gameMode", gameMode), zap.String("mode", mode),
		zap.Int("players", len(group)), zap.String("hostId", host))
	return match, nil
}

func (s *Service) broadcastQueueUpdate(gameMode, mode string, entries []models.QueueEntry, wait int) {
	metrics.QueueDepth.WithLabelValues(mode, gameMode).Set(float64(len(entries)))
	for i, e := range entries {
		s.notifier.PublishToUser(e.UserID, models.EventQueueUpdate, models.QueueUpdatePayload{
			GameMode:      gameMode,
			Mode:          mode,
			Position:      i + 1,
			QueueSize:     len(entries),
			EstimatedWait: wait,
		})
	}
}
