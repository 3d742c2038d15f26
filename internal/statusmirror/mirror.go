// Package statusmirror copies area status into Redis hashes so dashboards
// can read it without talking to the daemon.
package statusmirror

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/circadiand/internal/debounce"
	"github.com/dokzlo13/circadiand/internal/engine"
)

// DefaultQuiet is how long refresh requests are coalesced
const DefaultQuiet = 500 * time.Millisecond

const writeTimeout = 5 * time.Second

// Writer stores one hash
type Writer interface {
	HSet(ctx context.Context, key string, fields map[string]any) error
	Close() error
}

// Source lists areas and evaluates their status
type Source interface {
	AreaIDs() []string
	AreaStatus(id string) engine.AreaStatus
}

// Mirror writes area statuses to a Writer, coalescing bursts of refreshes
type Mirror struct {
	writer Writer
	source Source
	prefix string
	quiet  *debounce.Quiet
}

// New creates a mirror. A zero quiet period uses DefaultQuiet.
func New(w Writer, src Source, prefix string, quiet time.Duration) *Mirror {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	return &Mirror{
		writer: w,
		source: src,
		prefix: prefix,
		quiet:  debounce.NewQuiet(quiet),
	}
}

// Refresh schedules a write of every area
func (m *Mirror) Refresh() {
	m.quiet.Do("all", func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := m.WriteAll(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to mirror status to Redis")
		}
	})
}

// WriteAll writes every area now
func (m *Mirror) WriteAll(ctx context.Context) error {
	ids := m.source.AreaIDs()
	for _, id := range ids {
		st := m.source.AreaStatus(id)
		if err := m.writer.HSet(ctx, m.prefix+"area:"+id, fields(st)); err != nil {
			return fmt.Errorf("failed to mirror area %s: %w", id, err)
		}
	}
	log.Debug().Int("areas", len(ids)).Msg("Mirrored area status")
	return nil
}

// Close drops pending writes and closes the writer
func (m *Mirror) Close() error {
	m.quiet.Close()
	return m.writer.Close()
}

func fields(st engine.AreaStatus) map[string]any {
	f := map[string]any{
		"zone":         st.Zone,
		"is_circadian": strconv.FormatBool(st.IsCircadian),
		"is_on":        strconv.FormatBool(st.IsOn),
		"brightness":   st.Brightness,
		"kelvin":       st.Kelvin,
		"x":            strconv.FormatFloat(st.XY.X, 'f', 4, 64),
		"y":            strconv.FormatFloat(st.XY.Y, 'f', 4, 64),
		"phase":        string(st.Phase),
		"frozen":       strconv.FormatBool(st.Frozen),
		"boosted":      strconv.FormatBool(st.Boosted),
		"in_sync":      strconv.FormatBool(st.InSyncWithZone),
	}
	if st.FrozenAt != nil {
		f["frozen_at"] = strconv.FormatFloat(*st.FrozenAt, 'f', 2, 64)
	}
	return f
}

// RedisOptions configures the Redis writer
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

type redisWriter struct {
	client *redis.Client
}

// NewRedisWriter connects to Redis and checks the connection
func NewRedisWriter(ctx context.Context, opts RedisOptions) (Writer, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return &redisWriter{client: client}, nil
}

func (r *redisWriter) HSet(ctx context.Context, key string, fields map[string]any) error {
	if err := r.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("failed to set hash %s: %w", key, err)
	}
	return nil
}

func (r *redisWriter) Close() error {
	return r.client.Close()
}
