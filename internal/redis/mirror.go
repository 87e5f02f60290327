package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mossy-p/livestream-signaling/internal/logging"
	"github.com/mossy-p/livestream-signaling/internal/metrics"
	"github.com/mossy-p/livestream-signaling/internal/models"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 2 * time.Second
)

// MirrorConfig tunes a Mirror.
type MirrorConfig struct {
	KeyPrefix string
	TTL       time.Duration
	QueueSize int
}

// write is one pending Redis mutation.
type write struct {
	name  string
	apply func(ctx context.Context, pipe redis.Pipeliner)
}

// Mirror copies the live broadcast directory into Redis so other processes
// can read it. Writes are queued by the coordinator loop and applied by
// Serve; a full queue or an open breaker drops them. Nothing is read back.
type Mirror struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	writes chan write
	cb     *gobreaker.CircuitBreaker[interface{}]
}

// NewMirror builds a mirror writing through client.
func NewMirror(client redis.Cmdable, cfg MirrorConfig) *Mirror {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "redis-mirror",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str(logging.FieldComponent, name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Mirror{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		writes: make(chan write, cfg.QueueSize),
		cb:     cb,
	}
}

func (m *Mirror) broadcastsKey() string { return m.prefix + "broadcasts" }
func (m *Mirror) viewersKey() string    { return m.prefix + "viewers" }

// PublishBroadcasts replaces the mirrored broadcast list.
func (m *Mirror) PublishBroadcasts(list []models.Broadcast) {
	data, err := json.Marshal(list)
	if err != nil {
		logging.Error().Err(err).Msg("failed to encode broadcast list for mirror")
		return
	}
	m.enqueue(write{name: "broadcasts", apply: func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Set(ctx, m.broadcastsKey(), data, m.ttl)
	}})
}

// PublishViewerCount records one broadcast's current audience size.
func (m *Mirror) PublishViewerCount(broadcastID string, count int) {
	m.enqueue(write{name: "viewer-count", apply: func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HSet(ctx, m.viewersKey(), broadcastID, strconv.Itoa(count))
		pipe.Expire(ctx, m.viewersKey(), m.ttl)
	}})
}

// RemoveBroadcast forgets a broadcast's viewer count.
func (m *Mirror) RemoveBroadcast(broadcastID string) {
	m.enqueue(write{name: "remove", apply: func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HDel(ctx, m.viewersKey(), broadcastID)
	}})
}

func (m *Mirror) enqueue(w write) {
	select {
	case m.writes <- w:
	default:
		metrics.DroppedTotal.WithLabelValues(metrics.ReasonMirrorQueue).Inc()
		logging.Warn().Str(logging.FieldEvent, w.name).Msg("mirror queue full, dropping write")
	}
}

// Serve clears mirrored keys left by a previous run, then applies queued
// writes until ctx is canceled.
func (m *Mirror) Serve(ctx context.Context) error {
	if err := m.apply(ctx, write{name: "reset", apply: func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Del(ctx, m.broadcastsKey(), m.viewersKey())
	}}); err != nil {
		logging.Warn().Err(err).Msg("failed to clear mirrored keys")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case w := <-m.writes:
			if err := m.apply(ctx, w); err != nil {
				logging.Debug().Err(err).Str(logging.FieldEvent, w.name).Msg("mirror write failed")
			}
		}
	}
}

func (m *Mirror) String() string {
	return "redis-mirror"
}

// State reports the breaker state: closed, half-open or open.
func (m *Mirror) State() string {
	return m.cb.State().String()
}

func (m *Mirror) apply(ctx context.Context, w write) error {
	_, err := m.cb.Execute(func() (interface{}, error) {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		_, err := m.client.TxPipelined(wctx, func(pipe redis.Pipeliner) error {
			w.apply(wctx, pipe)
			return nil
		})
		return nil, err
	})

	switch {
	case err == nil:
		metrics.MirrorWrites.WithLabelValues("ok").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.MirrorWrites.WithLabelValues("rejected").Inc()
	default:
		metrics.MirrorWrites.WithLabelValues("failed").Inc()
	}
	return err
}
