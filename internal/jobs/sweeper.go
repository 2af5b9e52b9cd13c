package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/LiiXo/nomercy-sub000/internal/match"
	"github.com/LiiXo/nomercy-sub000/internal/matchmaker"
)

// Sweeper runs the background housekeeping: evicting queue entries whose
// heartbeat lease expired (and retrying pairing with the widened window),
// and cancelling matches abandoned mid-game.
type Sweeper struct {
	matchmaking *matchmaker.Service
	matches     *match.Service
	logger      *zap.Logger
	cron        *cron.Cron
}

func NewSweeper(matchmaking *matchmaker.Service, matches *match.Service, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		matchmaking: matchmaking,
		matches:     matches,
		logger:      logger,
		cron:        cron.New(cron.WithSeconds()),
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("*/15 * * * * *", func() {
		s.matchmaking.SweepQueues(ctx)
	}); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 * * * * *", func() {
		s.matches.SweepIdle(ctx)
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sweeper started")
	return nil
}

func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("sweeper stopped")
}
