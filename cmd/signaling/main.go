package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thejerf/suture/v4"

	"github.com/mossy-p/livestream-signaling/config"
	"github.com/mossy-p/livestream-signaling/internal/handlers"
	"github.com/mossy-p/livestream-signaling/internal/logging"
	"github.com/mossy-p/livestream-signaling/internal/redis"
	"github.com/mossy-p/livestream-signaling/internal/server"
	"github.com/mossy-p/livestream-signaling/internal/signaling"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:          "signaling",
		Short:        "Livestream signaling and session registry server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "path to a YAML config file")
	flags.String("port", "", "HTTP listen port")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	sup := suture.New("livestream-signaling", suture.Spec{
		EventHook: supervisorEvent,
		Timeout:   shutdownTimeout,
	})

	var (
		mirror  signaling.Mirror
		breaker handlers.BreakerState
	)
	if cfg.Redis.Enabled {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			logging.Warn().Err(err).Str("addr", cfg.Redis.Addr()).Msg("redis unavailable, running without live mirror")
		} else {
			defer client.Close()
			m := redis.NewMirror(client, redis.MirrorConfig{
				KeyPrefix: cfg.Redis.KeyPrefix,
				TTL:       cfg.Redis.TTL,
			})
			sup.Add(m)
			mirror, breaker = m, m
			logging.Info().Str("addr", cfg.Redis.Addr()).Msg("redis connection established")
		}
	}

	coord := signaling.New(signaling.Config{QueueSize: cfg.Signaling.QueueSize}, mirror)
	sup.Add(coord)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(cfg, coord, breaker),
		ReadHeaderTimeout: 10 * time.Second,
	}
	sup.Add(server.NewHTTPService(httpServer, shutdownTimeout))

	logging.Info().
		Str("port", cfg.Port).
		Str("environment", cfg.Environment).
		Bool("mirror", mirror != nil).
		Msg("starting livestream signaling server")

	err := sup.Serve(ctx)
	coord.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor stopped: %w", err)
	}

	logging.Info().Msg("server stopped")
	return nil
}

// supervisorEvent logs suture lifecycle events through zerolog.
func supervisorEvent(e suture.Event) {
	evt := logging.Warn()
	if e.Type() == suture.EventTypeResume {
		evt = logging.Info()
	}
	evt.Str(logging.FieldComponent, "supervisor").
		Fields(e.Map()).
		Msg(e.String())
}
