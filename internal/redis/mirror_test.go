package redis

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mossy-p/livestream-signaling/internal/logging"
	"github.com/mossy-p/livestream-signaling/internal/metrics"
	"github.com/mossy-p/livestream-signaling/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// unreachable returns a client pointed at a port nothing listens on.
func unreachable(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestMirror_Keys(t *testing.T) {
	m := NewMirror(unreachable(t), MirrorConfig{KeyPrefix: "livestream:"})

	if got := m.broadcastsKey(); got != "livestream:broadcasts" {
		t.Errorf("broadcastsKey() = %q", got)
	}
	if got := m.viewersKey(); got != "livestream:viewers" {
		t.Errorf("viewersKey() = %q", got)
	}
}

func TestMirror_FullQueueDrops(t *testing.T) {
	m := NewMirror(unreachable(t), MirrorConfig{QueueSize: 2})
	dropped := metrics.DroppedTotal.WithLabelValues(metrics.ReasonMirrorQueue)
	before := testutil.ToFloat64(dropped)

	m.PublishBroadcasts([]models.Broadcast{{ID: "b1", Title: "Demo"}})
	m.PublishViewerCount("b1", 3)
	m.RemoveBroadcast("b1")

	if got := testutil.ToFloat64(dropped) - before; got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
	if len(m.writes) != 2 {
		t.Errorf("queued = %d, want 2", len(m.writes))
	}
}

func TestMirror_BreakerOpensOnFailures(t *testing.T) {
	m := NewMirror(unreachable(t), MirrorConfig{})
	ctx := context.Background()
	noop := write{name: "test", apply: func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Ping(ctx)
	}}

	if m.State() != "closed" {
		t.Fatalf("initial state = %q", m.State())
	}
	for i := 0; i < 3; i++ {
		if err := m.apply(ctx, noop); err == nil {
			t.Fatalf("write %d against unreachable redis succeeded", i)
		}
	}
	if m.State() != "open" {
		t.Fatalf("state after failures = %q, want open", m.State())
	}

	rejected := metrics.MirrorWrites.WithLabelValues("rejected")
	before := testutil.ToFloat64(rejected)
	if err := m.apply(ctx, noop); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("apply() with open breaker = %v, want ErrOpenState", err)
	}
	if got := testutil.ToFloat64(rejected) - before; got != 1 {
		t.Errorf("rejected writes = %v, want 1", got)
	}
}

func TestMirror_ServeStopsOnCancel(t *testing.T) {
	m := NewMirror(unreachable(t), MirrorConfig{})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- m.Serve(ctx) }()

	m.PublishViewerCount("b1", 1)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
