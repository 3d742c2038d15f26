package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/circadiand/internal/config"
	"github.com/dokzlo13/circadiand/internal/engine"
	"github.com/dokzlo13/circadiand/internal/ledger"
	"github.com/dokzlo13/circadiand/internal/scheduler"
	"github.com/dokzlo13/circadiand/internal/solar"
	"github.com/dokzlo13/circadiand/internal/state"
)

// SchedulerService runs the tick loop and the periodic housekeeping:
// state saves and ledger cleanup.
type SchedulerService struct {
	cfg       *config.Config
	Scheduler *scheduler.Scheduler
	store     *state.Store
	ledger    *ledger.Ledger

	wg sync.WaitGroup
}

// NewSchedulerService creates the scheduler
func NewSchedulerService(
	cfg *config.Config,
	eng *engine.Engine,
	store *state.Store,
	l *ledger.Ledger,
	clock solar.Clock,
	sun solar.Provider,
	onTick func(),
) *SchedulerService {
	return &SchedulerService{
		cfg: cfg,
		Scheduler: scheduler.New(scheduler.Options{
			Engine:   eng,
			Clock:    clock,
			Sun:      sun,
			Interval: cfg.Scheduler.Interval.Duration(),
			Policy:   engine.PhaseResetPolicy(cfg.Scheduler.PhaseResetPolicy),
			OnTick:   onTick,
		}),
		store:  store,
		ledger: l,
	}
}

// Start begins the scheduler and the periodic tasks
func (s *SchedulerService) Start(ctx context.Context) {
	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		if err := s.Scheduler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduler error")
		}
	}()
	go func() {
		defer s.wg.Done()
		s.store.RunSaver(ctx, s.cfg.Scheduler.SaveInterval.Duration())
	}()
	go func() {
		defer s.wg.Done()
		retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
		s.ledger.RunCleanup(ctx, retention, s.cfg.Ledger.CleanupInterval.Duration())
	}()
}

// Wait blocks until every loop has returned, including the final state
// save, or until ctx expires.
func (s *SchedulerService) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("Scheduler shutdown timed out, last state save may be lost")
	}
}
