package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/circadiand/internal/api"
	"github.com/dokzlo13/circadiand/internal/config"
	"github.com/dokzlo13/circadiand/internal/engine"
	"github.com/dokzlo13/circadiand/internal/ledger"
	"github.com/dokzlo13/circadiand/internal/scheduler"
)

// APIService runs the HTTP API when enabled
type APIService struct {
	cfg    *config.Config
	server *api.Server
}

// NewAPIService creates the API server
func NewAPIService(cfg *config.Config, eng *engine.Engine, l *ledger.Ledger, sched *scheduler.Scheduler) *APIService {
	return &APIService{
		cfg:    cfg,
		server: api.NewServer(cfg.API.Host, cfg.API.Port, eng, l, sched),
	}
}

// Start serves in the background. A listener failure is fatal.
func (s *APIService) Start(ctx context.Context, onFatalError func(error)) {
	if !s.cfg.API.Enabled {
		log.Info().Msg("HTTP API is disabled")
		return
	}

	go func() {
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			onFatalError(err)
		}
	}()
}
