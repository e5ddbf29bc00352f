package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/hostmesh/hostmesh/internal/api"
	"github.com/hostmesh/hostmesh/internal/monitor"
	"github.com/hostmesh/hostmesh/internal/ratelimit"
	"github.com/hostmesh/hostmesh/internal/registry"
	"github.com/hostmesh/hostmesh/internal/session"
	"github.com/hostmesh/hostmesh/internal/signaling"
	"github.com/hostmesh/hostmesh/internal/storage"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the coordinator",
	Long:  `Start the coordinator API server, signaling feed and background maintenance loops`,
	RunE:  runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	log := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	// Durable store
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Postgres.ConnectTimeout)
	defer cancel()
	store, err := storage.NewPostgres(connectCtx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	// Shared rate limit counters
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = redisClient.Close() }()

	limiter := ratelimit.NewLimiter(
		ratelimit.NewRedisCounter(redisClient),
		quotasFromConfig(),
		log,
	)

	// Signaling hub
	hub := signaling.NewHub(log)
	go hub.Run()

	// Core services
	sessions := session.NewManager(store, hub, log)
	hosts := registry.NewHostRegistry(store, sessions, log)
	zones := registry.NewZoneRegistry(store, log)

	// Seed the zone catalog
	if cfg.Zones.CatalogPath != "" {
		if _, err := zones.LoadCatalog(ctx, cfg.Zones.CatalogPath); err != nil {
			return fmt.Errorf("failed to load zone catalog: %w", err)
		}
	}

	// Background maintenance loops
	mon := monitor.New(store, sessions, monitor.Config{
		HeartbeatTimeout:    cfg.Coordinator.HeartbeatTimeout,
		SessionStaleTimeout: cfg.Coordinator.SessionStaleTimeout,
		HealthInterval:      cfg.Coordinator.HealthInterval,
		CleanupInterval:     cfg.Coordinator.CleanupInterval,
		HeartbeatInterval:   cfg.Coordinator.HeartbeatInterval,
	}, log)
	mon.Start()
	defer mon.Stop()

	// API server
	server := api.New(cfg, api.Deps{
		Store:    store,
		Hosts:    hosts,
		Zones:    zones,
		Sessions: sessions,
		Hub:      hub,
		Limiter:  limiter,
	}, log)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			cfg.Server.ShutdownTimeout,
		)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return nil

	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// quotasFromConfig builds the per-class rate limit quotas from the security
// configuration, falling back to the defaults for unset values.
func quotasFromConfig() map[ratelimit.Class]ratelimit.Quota {
	quotas := ratelimit.DefaultQuotas()
	window := cfg.Security.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	if cfg.Security.RateLimitDefault > 0 {
		quotas[ratelimit.ClassDefault] = ratelimit.Quota{Limit: cfg.Security.RateLimitDefault, Window: window}
	}
	if cfg.Security.RateLimitSignaling > 0 {
		quotas[ratelimit.ClassSignaling] = ratelimit.Quota{Limit: cfg.Security.RateLimitSignaling, Window: window}
	}
	if cfg.Security.RateLimitAuth > 0 {
		quotas[ratelimit.ClassAuth] = ratelimit.Quota{Limit: cfg.Security.RateLimitAuth, Window: window}
	}
	return quotas
}
