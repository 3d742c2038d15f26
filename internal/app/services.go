package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/circadiand/internal/actuator"
	"github.com/dokzlo13/circadiand/internal/config"
	"github.com/dokzlo13/circadiand/internal/db"
	"github.com/dokzlo13/circadiand/internal/engine"
	"github.com/dokzlo13/circadiand/internal/ledger"
	"github.com/dokzlo13/circadiand/internal/mqtt"
	"github.com/dokzlo13/circadiand/internal/solar"
	"github.com/dokzlo13/circadiand/internal/state"
	"github.com/dokzlo13/circadiand/internal/statusmirror"
)

const mqttConnectTimeout = 10 * time.Second

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Store  *state.Store
	Clock  solar.SystemClock
	Sun    solar.Provider

	// Delivery
	MQTT       *mqtt.Client // nil unless mqtt.enabled
	Dispatcher *actuator.Dispatcher

	Engine *engine.Engine
	Mirror *statusmirror.Mirror // nil unless redis.enabled

	// High-level services
	Lua       *LuaService
	Events    *EventService
	Scheduler *SchedulerService
	API       *APIService
}

// NewServices creates all services with proper dependency injection
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Ledger = ledger.New(database.DB)

	s.Store = state.NewStore(state.NewSQLite(database.DB))
	if err := s.Store.Load(); err != nil {
		// saves stay blocked until --reset-state or a clean load
		log.Error().Err(err).Msg("Starting with empty state, persisted state left untouched")
	}

	s.Clock = solar.NewSystemClock(cfg.Solar.Timezone)
	s.Sun = solar.NewProvider(cfg.Solar.Provider, solar.Location{
		Latitude:  cfg.Solar.Lat,
		Longitude: cfg.Solar.Lon,
		TZ:        s.Clock.Location(),
	})

	if cfg.MQTT.Enabled {
		s.MQTT = mqtt.NewClient(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      cfg.MQTT.QoS,
		})
	}

	backend, err := newActuator(cfg, s.MQTT)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Dispatcher = actuator.NewDispatcher(backend, actuator.DispatcherConfig{
		Workers:   cfg.Actuator.Workers,
		QueueSize: cfg.Actuator.QueueSize,
		Timeout:   cfg.Actuator.Timeout.Duration(),
		RateLimit: cfg.Actuator.RateLimitRPS,
	})

	s.Engine = engine.New(engine.Options{
		Store:            s.Store,
		Clock:            s.Clock,
		Sun:              s.Sun,
		Rhythms:          cfg,
		Sink:             s.Dispatcher,
		Ledger:           s.Ledger,
		Transition:       cfg.Actuator.Transition.Duration(),
		ActionTransition: cfg.Actuator.ActionTransition.Duration(),
	})
	s.Engine.SyncTopology(zoneDefs(cfg), areaDefs(cfg))

	if cfg.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		w, err := statusmirror.NewRedisWriter(ctx, statusmirror.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("Redis status mirror disabled")
		} else {
			s.Mirror = statusmirror.New(w, s.Engine, cfg.Redis.KeyPrefix, 0)
		}
	}

	s.Lua, err = NewLuaService(cfg, s.Engine)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Scheduler = NewSchedulerService(cfg, s.Engine, s.Store, s.Ledger, s.Clock, s.Sun, s.onTick)
	s.Events = NewEventService(cfg, s.Engine, s.Lua, s.MQTT, s.Scheduler.Scheduler.Wake)
	s.API = NewAPIService(cfg, s.Engine, s.Ledger, s.Scheduler.Scheduler)

	return s, nil
}

func (s *Services) onTick() {
	if s.Mirror != nil {
		s.Mirror.Refresh()
	}
}

// Start starts all services in the correct order.
// onFatalError is called when a background service cannot continue.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if s.MQTT != nil {
		connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
		err := s.MQTT.Connect(connectCtx)
		cancel()
		if err != nil {
			// paho keeps retrying in the background
			log.Warn().Err(err).Msg("MQTT broker not reachable yet")
		}
	}

	s.Lua.Start(ctx)
	if err := s.Events.Start(ctx); err != nil {
		return err
	}
	s.Scheduler.Start(ctx)
	s.API.Start(ctx, onFatalError)

	return nil
}

// ResetState discards all stored state and re-applies the configured topology
func (s *Services) ResetState() {
	s.Store.Reset()
	s.Engine.SyncTopology(zoneDefs(s.cfg), areaDefs(s.cfg))
}

// Stop gracefully stops all services
func (s *Services) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()

	var errs []error
	if s.Scheduler != nil {
		s.Scheduler.Wait(shutdownCtx)
	}
	if s.Events != nil {
		s.Events.Stop(shutdownCtx)
	}
	if s.Dispatcher != nil {
		s.Dispatcher.Close(shutdownCtx)
	}
	if s.Mirror != nil {
		if err := s.Mirror.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}
	s.Close()
	return errors.Join(errs...)
}

// Close releases connections
func (s *Services) Close() {
	if s.Lua != nil {
		s.Lua.Close()
	}
	if s.MQTT != nil {
		s.MQTT.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

func zoneDefs(cfg *config.Config) []engine.ZoneDef {
	defs := make([]engine.ZoneDef, 0, len(cfg.Zones))
	for _, z := range cfg.Zones {
		defs = append(defs, engine.ZoneDef{Name: z.Name, Rhythm: z.Rhythm, Areas: z.Areas})
	}
	return defs
}

func areaDefs(cfg *config.Config) []engine.AreaDef {
	var defs []engine.AreaDef
	for _, id := range cfg.AreaIDs() {
		defs = append(defs, engine.AreaDef{ID: id, Group: cfg.Area(id).Role == config.RoleGroup})
	}
	return defs
}
