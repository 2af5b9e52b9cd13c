package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LiiXo/nomercy-sub000/internal/metrics"
	"github.com/LiiXo/nomercy-sub000/internal/models"
	"github.com/LiiXo/nomercy-sub000/internal/realtime"
	"github.com/LiiXo/nomercy-sub000/internal/repositories"
	"github.com/LiiXo/nomercy-sub000/internal/settlement"
)

const (
	maxGameCodeLen = 32
	maxChatLen     = 500
)

// Service owns the match state machine. Mutations of one match are
// serialized through a per-match mutex, and every write is a
// compare-and-swap on the stored status and revision, so two racing writers
// (including ones on another instance) cannot erase each other's changes.
type Service struct {
	matches     repositories.MatchRepository
	settler     *settlement.Settler
	notifier    realtime.Notifier
	logger      *zap.Logger
	idleTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(matches repositories.MatchRepository, settler *settlement.Settler, notifier realtime.Notifier, logger *zap.Logger, idleTimeout time.Duration) *Service {
	return &Service{
		matches:     matches,
		settler:     settler,
		notifier:    notifier,
		logger:      logger,
		idleTimeout: idleTimeout,
		locks:       make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockFor(matchID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[matchID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[matchID] = l
	}
	return l
}

func (s *Service) load(ctx context.Context, id string) (*models.Match, error) {
	m, err := s.matches.Get(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, &models.NotFoundError{Msg: "match not found"}
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// save persists m expecting it still holds expectStatus in the store.
func (s *Service) save(ctx context.Context, m *models.Match, expectStatus string) error {
	err := s.matches.UpdateWithStatus(ctx, m, expectStatus)
	if errors.Is(err, repositories.ErrStaleMatch) {
		return &models.ConflictError{Msg: "match was updated concurrently, reload and retry", MatchID: m.ID}
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return &models.NotFoundError{Msg: "match not found"}
	}
	return err
}

func systemMessage(m *models.Match, text string, at time.Time) {
	m.Chat = append(m.Chat, models.ChatMessage{System: true, Text: text, SentAt: at})
}

// SubmitGameCode records the lobby code. Only the host may set it, only
// while the match runs, and only once.
func (s *Service) SubmitGameCode(ctx context.Context, userID, matchID, code string) (*models.Match, error) {
	code = strings.TrimSpace(code)
	if code == "" || len(code) > maxGameCodeLen {
		return nil, &models.ValidationError{Msg: "game code must be 1-32 characters"}
	}
	l := s.lockFor(matchID)
	l.Lock()
	defer l.Unlock()

	m, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.HostID != userID {
		return nil, &models.AuthorizationError{Msg: "only the host can set the game code"}
	}
	if m.Status != models.StatusInProgress {
		return nil, &models.StateError{Msg: "game code can only be set while the match is running", Status: m.Status}
	}
	if m.GameCode != "" {
		return nil, &models.ConflictError{Msg: "game code already set", MatchID: m.ID}
	}

	now := time.Now().UTC()
	m.GameCode = code
	m.LastActivityAt = now
	systemMessage(m, "Host shared the game code.", now)
	if err := s.save(ctx, m, models.StatusInProgress); err != nil {
		return nil, err
	}
	s.notifier.PublishToMatch(m.ID, models.EventMatchUpdate, m)
	s.logger.Info("game code set", zap.String("matchId", m.ID), zap.String("hostId", userID))
	return m, nil
}

// PostChat appends a participant message to the match chat.
func (s *Service) PostChat(ctx context.Context, userID, matchID, text string) (*models.Match, error) {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxChatLen {
		return nil, &models.ValidationError{Msg: "message must be 1-500 characters"}
	}
	l := s.lockFor(matchID)
	l.Lock()
	defer l.Unlock()

	m, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.HasPlayer(userID) {
		return nil, &models.AuthorizationError{Msg: "only participants can chat"}
	}
	if m.Status != models.StatusInProgress && m.Status != models.StatusDisputed {
		return nil, &models.StateError{Msg: "chat is closed for this match", Status: m.Status}
	}

	now := time.Now().UTC()
	msg := models.ChatMessage{SenderID: userID, Text: text, SentAt: now}
	m.Chat = append(m.Chat, msg)
	m.LastActivityAt = now
	if err := s.save(ctx, m, m.Status); err != nil {
		return nil, err
	}
	s.notifier.PublishToMatch(m.ID, models.EventNewMessage, msg)
	return m, nil
}

// ReportResult records one side's declared winner and advances the match.
//
// In a Duel, naming the opponent as winner is a concession and settles on
// the spot; claiming your own win waits for the opponent. In team modes each
// team files one report and both must agree. Disagreement moves the match to
// disputed for staff.
func (s *Service) ReportResult(ctx context.Context, userID, matchID string, winner int) (*models.Match, *models.BattleReport, error) {
	if winner != 1 && winner != 2 {
		return nil, nil, &models.ValidationError{Msg: "winner must be team 1 or 2"}
	}
	l := s.lockFor(matchID)
	l.Lock()
	defer l.Unlock()

	m, err := s.load(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}
	player := m.Player(userID)
	if player == nil {
		return nil, nil, &models.AuthorizationError{Msg: "only participants can report results"}
	}
	if m.Status != models.StatusInProgress {
		return nil, nil, &models.StateError{Msg: "results can only be reported while the match is running", Status: m.Status}
	}

	if m.Result == nil {
		m.Result = &models.MatchResult{}
	}
	if teamReport(m.Result, player.Team) != nil {
		return nil, nil, &models.ConflictError{Msg: "your team already reported a result", MatchID: m.ID}
	}

	now := time.Now().UTC()
	report := &models.ResultReport{Winner: winner, ReportedBy: userID, ReportedAt: now}
	setTeamReport(m.Result, player.Team, report)
	m.LastActivityAt = now

	concession := m.GameMode == models.GameModeDuel && winner != player.Team
	other := teamReport(m.Result, otherTeam(player.Team))

	switch {
	case concession, other != nil && other.Winner == winner:
		return s.confirmResult(ctx, m, winner, now)
	case other != nil: // both teams reported, different winners
		m.Status = models.StatusDisputed
		m.Dispute = &models.Dispute{
			Reason:     "conflicting result reports",
			ReportedBy: userID,
			ReportedAt: now,
		}
		systemMessage(m, "Teams reported conflicting results. The match is now under staff review.", now)
		if err := s.save(ctx, m, models.StatusInProgress); err != nil {
			return nil, nil, err
		}
		metrics.DisputesOpened.WithLabelValues(m.Mode).Inc()
		s.notifier.PublishToMatch(m.ID, models.EventMatchUpdate, m)
		s.logger.Warn("conflicting result reports", zap.String("matchId", m.ID))
		return m, nil, nil
	default:
		systemMessage(m, fmt.Sprintf("Team %d reported team %d as winner. Waiting for the other side.", player.Team, winner), now)
		if err := s.save(ctx, m, models.StatusInProgress); err != nil {
			return nil, nil, err
		}
		s.notifier.PublishToMatch(m.ID, models.EventMatchUpdate, m)
		return m, nil, nil
	}
}

func (s *Service) confirmResult(ctx context.Context, m *models.Match, winner int, now time.Time) (*models.Match, *models.BattleReport, error) {
	fromStatus := m.Status
	m.Result.Winner = winner
	m.Result.ConfirmedAt = &now
	m.Status = models.StatusCompleted
	m.CompletedAt = &now
	m.LastActivityAt = now
	systemMessage(m, fmt.Sprintf("Result confirmed: team %d wins.", winner), now)
	if err := s.save(ctx, m, fromStatus); err != nil {
		return nil, nil, err
	}

	report, err := s.settler.Settle(ctx, m, winner)
	if errors.Is(err, repositories.ErrAlreadySettled) {
		s.logger.Info("match already settled", zap.String("matchId", m.ID))
		return m, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	s.notifier.PublishToMatch(m.ID, models.EventMatchUpdate, m)
	s.notifier.PublishToMatch(m.ID, models.EventBattleReport, report)
	return m, report, nil
}

func teamReport(r *models.MatchResult, team int) *models.ResultReport {
	if team == 1 {
		return r.Team1Report
	}
	return r.Team2Report
}

func setTeamReport(r *models.MatchResult, team int, report *models.ResultReport) {
	if team == 1 {
		r.Team1Report = report
		return
	}
	r.Team2Report = report
}

func otherTeam(team int) int {
	if team == 1 {
		return 2
	}
	return 1
}

// ReportDispute lets a participant contest a running match.
func (s *Service) ReportDispute(ctx context.Context, userID, matchID, reason string) (*models.Match, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &models.ValidationError{Msg: "a dispute needs a reason"}
	}
	l := s.lockFor(matchID)
	l.Lock()
	defer l.Unlock()

	m, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.HasPlayer(userID) {
		return nil, &models.AuthorizationError{Msg: "only participants can open a dispute"}
	}
	if m.Status == models.StatusDisputed {
		return nil, &models.ConflictError{Msg: "match is already disputed", MatchID: m.ID}
	}
	if m.Status != models.StatusInProgress {
		return nil, &models.StateError{Msg: "only running matches can be disputed", Status: m.Status}
	}

	now := time.Now().UTC()
	m.Status = models.StatusDisputed
	m.Dispute = &models.Dispute{Reason: reason, ReportedBy: userID, ReportedAt: now}
	m.LastActivityAt = now
	systemMessage(m, "A dispute was opened. The match is now under staff review.", now)
	if err := s.save(ctx, m, models.StatusInProgress); err != nil {
		return nil, err
	}
	metrics.DisputesOpened.WithLabelValues(m.Mode).Inc()
	s.notifier.PublishToMatch(m.ID, models.EventMatchUpdate, m)
	s.logger.Warn("dispute opened", zap.String("matchId", m.ID),
		zap.String("reportedBy", userID), zap.String("reason", reason))
	return m, nil
}

// ResolveDispute is the staff verdict: pick a winner and settle.
func (s *Service) ResolveDispute(ctx context.Context, staffID, matchID string, winner int, resolution string) (*models.Match, *models.BattleReport, error) {
	if winner != 1 && winner != 2 {
		return nil, nil, &models.ValidationError{Msg: "winner must be team 1 or 2"}
	}
	l := s.lockFor(matchID)
	l.Lock()
	defer l.Unlock()

	m, err := s.load(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}
	if m.Status != models.StatusDisputed {
		return nil, nil, &models.StateError{Msg: "match is not disputed", Status: m.Status}
	}

	now := time.Now().UTC()
	if m.Dispute == nil {
		m.Dispute = &models.Dispute{ReportedAt: now}
	}
	m.Dispute.ResolvedBy = staffID
	m.Dispute.Resolution = resolution
	m.Dispute.ResolvedAt = &now
	if m.Result == nil {
		m.Result = &models.MatchResult{}
	}
	systemMessage(m, fmt.Sprintf("Staff resolved the dispute: team %d wins.", winner), now)
	s.logger.Info("dispute resolved", zap.String("matchId", m.ID),
		zap.String("resolvedBy", staffID), zap.Int("winner", winner))
	return s.confirmResult(ctx, m, winner, now)
}

// CancelDispute sends a disputed match back to play.
func (s *Service) CancelDispute(ctx context.Context, staffID, matchID, resolution string) (*models.Match, error) {
	l := s.lockFor(matchID)
	l.Lock()
	defer l.Unlock()

	m, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.StatusDisputed {
		return nil, &models.StateError{Msg: "match is not disputed", Status: m.Status}
	}

	now := time.Now().UTC()
	if m.Dispute != nil {
		m.Dispute.ResolvedBy = staffID
		m.Dispute.Resolution = resolution
		m.Dispute.ResolvedAt = &now
	}
	m.Status = models.StatusInProgress
	m.Result = nil // reports that led here are void, both sides re-report
	m.LastActivityAt = now
	systemMessage(m, "Staff dismissed the dispute. The match resumes.", now)
	if err := s.save(ctx, m, models.StatusDisputed); err != nil {
		return nil, err
	}
	s.notifier.PublishToMatch(m.ID, models.EventMatchUpdate, m)
	s.logger.Info("dispute dismissed", zap.String("matchId", m.ID), zap.String("resolvedBy", staffID))
	return m, nil
}

// AdminCancel voids a non-terminal match without settlement.
func (s *Service) AdminCancel(ctx context.Context, staffID, matchID, reason string) (*models.Match, error) {
	l := s.lockFor(matchID)
	l.Lock()
	defer l.Unlock()

	m, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Terminal() {
		return nil, &models.StateError{Msg: "match already ended", Status: m.Status}
	}
	return s.cancel(ctx, m, fmt.Sprintf("Match cancelled by staff: %s", reason))
}

func (s *Service) cancel(ctx context.Context, m *models.Match, note string) (*models.Match, error) {
	now := time.Now().UTC()
	fromStatus := m.Status
	m.Status = models.StatusCancelled
	m.CompletedAt = &now
	m.LastActivityAt = now
	systemMessage(m, note, now)
	if err := s.save(ctx, m, fromStatus); err != nil {
		return nil, err
	}
	s.notifier.PublishToMatch(m.ID, models.EventMatchUpdate, m)
	s.logger.Info("match cancelled", zap.String("matchId", m.ID), zap.String("note", note))
	return m, nil
}

// Get returns the match, redacted when the viewer is neither a participant
// nor staff: outsiders see who plays whom, never the chat or the lobby code.
func (s *Service) Get(ctx context.Context, viewerID string, staff bool, matchID string) (*models.MatchResponse, error) {
	m, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !staff && !m.HasPlayer(viewerID) {
		redacted := *m
		redacted.Chat = nil
		redacted.GameCode = ""
		redacted.Dispute = nil
		return &models.MatchResponse{Match: &redacted}, nil
	}
	resp := &models.MatchResponse{Match: m}
	if m.Status == models.StatusCompleted && m.SettledAt != nil {
		resp.BattleReport = buildReport(m)
	}
	return resp, nil
}

func buildReport(m *models.Match) *models.BattleReport {
	if m.Result == nil || m.Result.Winner == 0 {
		return nil
	}
	report := &models.BattleReport{MatchID: m.ID, WinnerTeam: m.Result.Winner}
	for _, p := range m.Players {
		if p.Team == m.Result.Winner {
			report.WinnerIDs = append(report.WinnerIDs, p.UserID)
		} else {
			report.LoserIDs = append(report.LoserIDs, p.UserID)
		}
		if p.Rewards != nil {
			report.Grants = append(report.Grants, *p.Rewards)
		}
	}
	return report
}

// Active returns the caller's current non-terminal match, if any.
func (s *Service) Active(ctx context.Context, userID, mode string) (*models.ActiveMatchResponse, error) {
	if mode != "" && !models.ValidMode(mode) {
		return nil, &models.ValidationError{Msg: fmt.Sprintf("unknown mode %q", mode)}
	}
	m, err := s.matches.ActiveForUser(ctx, userID, mode)
	if errors.Is(err, repositories.ErrNotFound) {
		return &models.ActiveMatchResponse{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.ActiveMatchResponse{HasActiveMatch: true, Match: m}, nil
}

// History returns a player's completed matches annotated with their result.
func (s *Service) History(ctx context.Context, userID, mode string, limit int) (*models.HistoryResponse, error) {
	if mode != "" && !models.ValidMode(mode) {
		return nil, &models.ValidationError{Msg: fmt.Sprintf("unknown mode %q", mode)}
	}
	matches, err := s.matches.HistoryForUser(ctx, userID, mode, limit)
	if err != nil {
		return nil, err
	}
	resp := &models.HistoryResponse{Matches: make([]models.HistoryMatch, 0, len(matches))}
	for _, m := range matches {
		result := "loss"
		if p := m.Player(userID); p != nil && m.Result != nil && m.Result.Winner == p.Team {
			result = "win"
		}
		if result == "win" {
			resp.Wins++
		} else {
			resp.Losses++
		}
		resp.Matches = append(resp.Matches, models.HistoryMatch{Match: m, PlayerResult: result})
	}
	return resp, nil
}

// Disputes lists matches waiting on staff.
func (s *Service) Disputes(ctx context.Context, limit int) ([]models.Match, error) {
	return s.matches.ListByStatus(ctx, models.StatusDisputed, limit)
}

// SweepIdle cancels running matches with no activity for the idle window.
// Abandoned lobbies would otherwise pin their players out of the queue
// forever.
func (s *Service) SweepIdle(ctx context.Context) {
	running, err := s.matches.ListByStatus(ctx, models.StatusInProgress, 0)
	if err != nil {
		s.logger.Warn("idle sweep failed", zap.Error(err))
		return
	}
	cutoff := time.Now().UTC().Add(-s.idleTimeout)
	for i := range running {
		m := running[i]
		if m.LastActivityAt.After(cutoff) {
			continue
		}
		l := s.lockFor(m.ID)
		l.Lock()
		_, err := s.cancel(ctx, &m, "Match cancelled automatically after prolonged inactivity.")
		l.Unlock()
		if err != nil {
			s.logger.Warn("idle cancel failed", zap.String("matchId", m.ID), zap.Error(err))
		}
	}
}
