package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/circadiand/internal/config"
)

// App runs the daemon: the state engine, its tick loop, device ingress and
// the optional HTTP API. A fatal error in any background service ends the
// run and is returned from Wait.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelCauseFunc
}

// New opens the database, loads persisted state and builds the engine.
// Nothing runs until Start.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

// Start connects to the broker, then starts Lua mappers, device handlers,
// the tick loop and the API in that order. Cancelling ctx stops the run.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancelCause(ctx)

	if err := a.services.Start(a.ctx, a.fail); err != nil {
		return err
	}

	log.Info().
		Str("backend", a.cfg.Actuator.Backend).
		Int("zones", len(a.cfg.Zones)).
		Int("areas", len(a.cfg.AreaIDs())).
		Int("switches", len(a.cfg.Switches)).
		Bool("mqtt", a.services.MQTT != nil).
		Bool("redis", a.services.Mirror != nil).
		Bool("api", a.cfg.API.Enabled).
		Msg("circadiand started")
	return nil
}

func (a *App) fail(err error) {
	log.Error().Err(err).Msg("Fatal error, initiating shutdown")
	a.cancel(err)
}

// Stop flushes state and releases every connection
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel(nil)
	}

	if a.services != nil {
		return a.services.Stop()
	}
	return nil
}

// Wait blocks until the run ends. It returns the fatal error that ended it,
// or nil after a signal or a cancelled parent context.
func (a *App) Wait() error {
	if a.ctx == nil {
		return nil
	}
	<-a.ctx.Done()
	if err := context.Cause(a.ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// ResetState discards all stored area and zone state. Used by --reset-state.
func (a *App) ResetState() {
	if a.services != nil {
		a.services.ResetState()
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
