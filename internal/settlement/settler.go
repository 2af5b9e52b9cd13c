package settlement

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/LiiXo/nomercy-sub000/internal/metrics"
	"github.com/LiiXo/nomercy-sub000/internal/models"
	"github.com/LiiXo/nomercy-sub000/internal/repositories"
)

const (
	kFactor  = 50
	minDelta = 10
	maxDelta = 45

	winGold  = 50
	winXPMin = 350
	winXPMax = 550
	loseXP   = 100

	applyAttempts = 3
	applyBackoff  = 100 * time.Millisecond
)

// ComputeDelta returns the zero-sum points swing for a match between teams
// whose snapshot averages are winnerAvg and loserAvg. An expected win moves
// few points, an upset moves many, and the swing is always inside
// [minDelta, maxDelta].
func ComputeDelta(winnerAvg, loserAvg float64) int {
	expectedLoser := 1.0 / (1.0 + math.Pow(10, (winnerAvg-loserAvg)/400))
	delta := int(math.Round(kFactor * expectedLoser))
	if delta < minDelta {
		return minDelta
	}
	if delta > maxDelta {
		return maxDelta
	}
	return delta
}

// Settler applies a confirmed result to the ladder exactly once per match.
type Settler struct {
	rankings repositories.RankingRepository
	matches  repositories.MatchRepository
	logger   *zap.Logger
	winXP    func() int
}

func NewSettler(rankings repositories.RankingRepository, matches repositories.MatchRepository, logger *zap.Logger) *Settler {
	return &Settler{
		rankings: rankings,
		matches:  matches,
		logger:   logger,
		winXP:    func() int { return winXPMin + rand.Intn(winXPMax-winXPMin+1) },
	}
}

// SetWinXP replaces the winner XP roll (used in tests).
func (s *Settler) SetWinXP(fn func() int) { s.winXP = fn }

// Settle grants rewards and ladder movement for winnerTeam. The match's
// settledAt stamp is claimed first; if another call got there already the
// whole operation is a no-op returning ErrAlreadySettled, so double reports
// and crash-retries can never pay out twice.
func (s *Settler) Settle(ctx context.Context, m *models.Match, winnerTeam int) (*models.BattleReport, error) {
	var winnerSum, loserSum float64
	var winners, losers []models.MatchPlayer
	for _, p := range m.Players {
		if p.Team == winnerTeam {
			winners = append(winners, p)
			winnerSum += float64(p.Points)
		} else {
			losers = append(losers, p)
			loserSum += float64(p.Points)
		}
	}
	delta := ComputeDelta(winnerSum/float64(len(winners)), loserSum/float64(len(losers)))

	grants := make([]models.RewardGrant, 0, len(m.Players))
	report := &models.BattleReport{MatchID: m.ID, WinnerTeam: winnerTeam}
	for _, p := range winners {
		report.WinnerIDs = append(report.WinnerIDs, p.UserID)
		grants = append(grants, models.RewardGrant{
			UserID:      p.UserID,
			PointsDelta: delta,
			Gold:        winGold,
			XP:          s.winXP(),
		})
	}
	for _, p := range losers {
		report.LoserIDs = append(report.LoserIDs, p.UserID)
		grants = append(grants, models.RewardGrant{
			UserID:      p.UserID,
			PointsDelta: -delta,
			XP:          loseXP,
		})
	}
	report.Grants = grants

	if err := s.matches.MarkSettled(ctx, m.ID, grants); err != nil {
		return nil, err
	}

	for _, g := range grants {
		won := g.PointsDelta > 0
		if err := s.applyGrant(ctx, g.UserID, m.Mode, g.PointsDelta, won); err != nil {
			// The settledAt claim is already in; log and keep applying so one
			// bad ladder row does not strand the rest.
			metrics.SettlementErrors.WithLabelValues(m.Mode).Inc()
			s.logger.Error("ladder update failed after retries",
				zap.String("matchId", m.ID), zap.String("userId", g.UserID), zap.Error(err))
		}
	}

	metrics.MatchesSettled.WithLabelValues(m.Mode, "confirmed").Inc()
	s.logger.Info("match settled", zap.String("matchId", m.ID),
		zap.Int("winnerTeam", winnerTeam), zap.Int("delta", delta))
	return report, nil
}

// applyGrant retries transient store failures so a hiccup after the
// settledAt claim does not strand one player's ladder row.
func (s *Settler) applyGrant(ctx context.Context, userID, mode string, delta int, won bool) error {
	var err error
	for attempt := 0; attempt < applyAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(applyBackoff)
		}
		if _, err = s.rankings.ApplyResult(ctx, userID, mode, delta, won); err == nil {
			return nil
		}
	}
	return err
}
