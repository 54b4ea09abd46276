package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roomloop/roomloop/internal/config"
	"github.com/roomloop/roomloop/internal/httpapi"
	"github.com/roomloop/roomloop/internal/metrics"
	"github.com/roomloop/roomloop/internal/origin"
	"github.com/roomloop/roomloop/internal/presence"
	"github.com/roomloop/roomloop/internal/room"
	"github.com/roomloop/roomloop/internal/signaling"
)

var flagListenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling relay server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagListenAddr, "listen", "", "listen address (overrides ROOMLOOP_LISTEN_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flagListenAddr != "" {
		cfg.ListenAddr = flagListenAddr
	}
	cfg.SetupLogger()

	m := metrics.New()
	opts := []room.Option{room.WithMetrics(m)}
	if cfg.MaxRoomSize > 0 {
		opts = append(opts, room.WithJoinPolicy(room.CapacityPolicy(cfg.MaxRoomSize)))
	}
	if cfg.RedisAddr != "" {
		rdb, err := presence.Dial(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			// Presence is best-effort introspection, not a dependency of
			// signaling, so a dead Redis downgrades instead of aborting.
			slog.Warn("presence mirror disabled", "addr", cfg.RedisAddr, "err", err)
		} else {
			opts = append(opts, room.WithPresence(presence.NewMirror(rdb, cfg.PresenceTTL)))
			defer rdb.Close()
		}
	}
	registry := room.NewRegistry(opts...)

	allow := origin.NewAllowlist(cfg.AllowedOrigins)
	relay := signaling.NewServer(registry, m, allow, signaling.Config{
		IdleTimeout:       cfg.IdleTimeout,
		PingInterval:      cfg.PingInterval,
		MaxMessageBytes:   cfg.MaxMessageBytes,
		MessagesPerSecond: cfg.MessagesPerSecond,
	}.WithDefaults())

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpapi.Router(registry, relay, m, allow),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("signaling relay listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		slog.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	slog.Info("shutdown complete")
	return nil
}
