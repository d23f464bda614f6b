package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ojp-io/ojp/internal/backend/pgxprovider"
	"github.com/ojp-io/ojp/internal/cache"
	"github.com/ojp-io/ojp/internal/circuitbreaker"
	"github.com/ojp-io/ojp/internal/cluster"
	"github.com/ojp-io/ojp/internal/config"
	"github.com/ojp-io/ojp/internal/connpool"
	"github.com/ojp-io/ojp/internal/dispatch"
	"github.com/ojp-io/ojp/internal/dsconfig"
	"github.com/ojp-io/ojp/internal/grpc"
	"github.com/ojp-io/ojp/internal/logging"
	"github.com/ojp-io/ojp/internal/metrics"
	"github.com/ojp-io/ojp/internal/providerreg"
	"github.com/ojp-io/ojp/internal/session"
	"github.com/ojp-io/ojp/internal/tracing"
	"github.com/ojp-io/ojp/internal/xapool"
	"github.com/ojp-io/ojp/internal/xaregistry"
)

var (
	logFormat string
	logLevel  string
)

// serveCmd runs the server in the foreground until SIGINT/SIGTERM, the
// daemon command a deployed ojp-server process actually runs.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the OJP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runServer(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&logFormat, "log-format", "console", "operational log format: console or json")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "operational log level: debug, info, warn, error")
	return cmd
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logging.Init(logFormat, logLevel)

	if err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
	}); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	metrics.InitPrometheus("ojp", nil)

	registry := providerreg.New(cfg.LibsPath)
	registry.SetBreakerConfig(circuitbreaker.Config{
		FailureCount:   cfg.CircuitBreakerThreshold,
		WindowDuration: cfg.CircuitBreakerTimeout(),
		OpenDuration:   cfg.CircuitBreakerTimeout(),
		HalfOpenProbes: 1,
	})
	if err := registry.Discover(ctx); err != nil {
		return fmt.Errorf("discover pool providers: %w", err)
	}

	pool := connpool.NewManager(registry, map[string]connpool.Dialer{
		pgxprovider.DriverFamily: pgxprovider.Open,
	})
	xaPool := xapool.NewManager(registry)
	defer xaPool.Close()

	xaRegistries := xaregistry.NewRegistries()

	resolver := dsconfig.New(dsconfig.Defaults{
		PoolEnabled:       cfg.DataSourceDefaults.PoolEnabled,
		MaximumPoolSize:   cfg.DataSourceDefaults.MaximumPoolSize,
		MinimumIdle:       cfg.DataSourceDefaults.MinimumIdle,
		IdleTimeoutMS:     cfg.DataSourceDefaults.IdleTimeoutMS,
		MaxLifetimeMS:     cfg.DataSourceDefaults.MaxLifetimeMS,
		ConnectionTimeout: cfg.DataSourceDefaults.ConnectionTimeout,
	})

	sessions := session.NewManager(pool, resolver, cfg.ConnectionIdleTimeout(), session.DefaultCleanupInterval)
	defer sessions.Shutdown(ctx)

	var clusterHealth *cluster.Health
	if cfg.Cluster.Enabled {
		var peerCache cache.Cache
		if cfg.Cluster.RedisAddr != "" {
			redisCache := cache.NewRedisCache(cache.RedisCacheConfig{Addr: cfg.Cluster.RedisAddr})
			l1 := cache.NewInMemoryCache()
			peerCache = cache.NewTieredCache(l1, redisCache, 5*time.Second)

			invalidator := cache.NewCacheInvalidator(l1, redisCache.Client())
			go invalidator.Start(ctx)
			defer invalidator.Close()

			localID := cfg.Cluster.LocalID
			if localID == "" {
				localID = cfg.Cluster.LocalAddress
			}
			clusterHealth = cluster.NewHealth(localID, cfg.Cluster.LocalAddress, peerCache, xaRegistries,
				time.Duration(cfg.Cluster.HeartbeatTimeoutMS)*time.Millisecond)
			clusterHealth.SetInvalidator(invalidator)
		} else {
			peerCache = cache.NewInMemoryCache()
			localID := cfg.Cluster.LocalID
			if localID == "" {
				localID = cfg.Cluster.LocalAddress
			}
			clusterHealth = cluster.NewHealth(localID, cfg.Cluster.LocalAddress, peerCache, xaRegistries,
				time.Duration(cfg.Cluster.HeartbeatTimeoutMS)*time.Millisecond)
		}
		go clusterHealth.StartHeartbeatLoop(ctx, time.Duration(cfg.Cluster.HeartbeatIntervalMS)*time.Millisecond)
	}

	ac := &dispatch.ActionContext{
		Providers:  registry,
		DSConfig:   resolver,
		ConnPool:   pool,
		XAPool:     xaPool,
		XARegistry: xaRegistries,
		Sessions:   sessions,
		Cluster:    clusterHealth,
	}

	dispatcher, err := dispatch.New(ac, dispatch.WorkerPoolConfig{
		WorkerCount: cfg.ThreadPoolSize,
		QueueSize:   cfg.ThreadPoolSize * 4,
		TaskTimeout: 30 * time.Second,
	},
		dispatch.ConnectAction{},
		dispatch.CloseAction{},
		dispatch.PrepareAction{},
		dispatch.ExecuteAction{},
		dispatch.ExecuteQueryAction{},
		dispatch.ExecuteUpdateAction{},
		dispatch.FetchAction{},
		dispatch.CreateLobAction{},
		dispatch.ReadLobAction{},
		dispatch.CommitAction{},
		dispatch.RollbackAction{},
		dispatch.SetSavepointAction{},
		dispatch.ReleaseSavepointAction{},
		dispatch.XAStartAction{},
		dispatch.XAEndAction{},
		dispatch.XAPrepareAction{},
		dispatch.XACommitAction{},
		dispatch.XARollbackAction{},
		dispatch.XAForgetAction{},
		dispatch.XARecoverAction{},
	)
	if err != nil {
		return fmt.Errorf("build dispatcher: %w", err)
	}
	if err := dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}

	grpcServer := grpc.NewServer(dispatcher)
	if err := grpcServer.Start(fmt.Sprintf(":%d", cfg.ServerPort)); err != nil {
		return fmt.Errorf("start grpc server: %w", err)
	}

	promMux := http.NewServeMux()
	promMux.Handle("/metrics", metrics.PrometheusHandler())
	promMux.Handle("/stats", metrics.Global().JSONHandler())
	promServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.PrometheusPort), Handler: promMux}
	go func() {
		if err := promServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error().Err(err).Msg("prometheus http server stopped")
		}
	}()

	collectorCtx, stopCollector := context.WithCancel(ctx)
	go runMetricsCollector(collectorCtx, pool, xaRegistries, registry, sessions)
	defer stopCollector()

	logging.Op().Info().Str("grpcPort", strconv.Itoa(cfg.ServerPort)).Str("prometheusPort", strconv.Itoa(cfg.PrometheusPort)).
		Msg("ojp server ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Op().Info().Msg("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if clusterHealth != nil {
		_ = clusterHealth.Drain(shutdownCtx)
	}
	grpcServer.Stop()
	_ = promServer.Shutdown(shutdownCtx)
	_ = dispatcher.Stop(shutdownCtx)

	return nil
}

// runMetricsCollector periodically snapshots pool, XA branch, and circuit
// breaker state into the Prometheus gauges, since those are owned by their
// respective components rather than emitted inline per call like
// dispatch_total and dispatch_duration_milliseconds are. The sessions
// argument is not read, so the active_sessions gauge is not set here.
func runMetricsCollector(ctx context.Context, pool *connpool.Manager, xaRegistries *xaregistry.Registries, registry *providerreg.Registry, sessions *session.Manager) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for connHash, stats := range pool.AllStats() {
				metrics.SetPoolConnections(connHash, stats.Active, stats.Idle)
			}
			metrics.SetXAActiveBranches(xaRegistries.TotalLen())
			metrics.SetProviderBreakerStates(registry.BreakerStates())
		}
	}
}
