package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"borerelay/internal/core/domain"
	"borerelay/internal/core/ports"
	"borerelay/internal/core/services"
	httphandlers "borerelay/internal/handlers/http"
	"borerelay/internal/infrastructure/discord"
	"borerelay/internal/infrastructure/monitoring"
	"borerelay/internal/infrastructure/relay"
	"borerelay/internal/infrastructure/repositories"
	"borerelay/pkg/cache"
	"borerelay/pkg/circuitbreaker"
	"borerelay/pkg/config"
	"borerelay/pkg/logger"
	"borerelay/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if err := run(cfg, log); err != nil {
		log.Fatalw("server exited with error", "error", err)
	}
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "bore-relay",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("tracer shutdown failed", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := monitoring.NewPrometheusCollector(registry)

	repoFactory, err := repositories.NewRepositoryFactory(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("create repository factory: %w", err)
	}
	defer repoFactory.Close()

	resolver, permCache, err := buildResolver(cfg, collector, log)
	if err != nil {
		return err
	}
	defer permCache.Stop()

	relayCfg := relay.DefaultConfig()
	relayCfg.Path = cfg.Relay.Path
	relayCfg.AllowedOrigins = cfg.Relay.AllowedOrigins
	relayCfg.HandshakeTimeout = cfg.Relay.HandshakeTimeout
	relayCfg.PingInterval = cfg.Relay.PingInterval
	relayCfg.PongTimeout = cfg.Relay.PongTimeout
	relayCfg.WriteTimeout = cfg.Relay.WriteTimeout
	relayCfg.SendBufferSize = cfg.Relay.SendBufferSize
	if cfg.RateLimiting.WebSocket.MaxMessageSizeBytes > 0 {
		relayCfg.MaxMessageSize = cfg.RateLimiting.WebSocket.MaxMessageSizeBytes
	}
	if cfg.RateLimiting.Enabled {
		relayCfg.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		relayCfg.Burst = cfg.RateLimiting.WebSocket.Burst
	}
	relayServer := relay.NewServer(relayCfg, resolver, collector, log)

	stats := services.NewCommandStats()
	admin := services.NewAdminService(
		repoFactory.Players(),
		repoFactory.Bans(),
		repoFactory.Mutes(),
		relayServer,
		stats,
		log,
	)

	health := monitoring.NewHealthChecker()
	health.AddRepositoryCheck(repoFactory, cfg.Monitoring.HealthCheckInterval, 3*time.Second)
	health.AddRelayCheck(relayServer, cfg.Monitoring.HealthCheckInterval)
	health.StartBackgroundChecks(ctx)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	deps := httphandlers.RouterDeps{
		Config:    cfg,
		Logger:    log,
		Resolver:  resolver,
		Relay:     relayServer,
		RelayPath: relayServer.Path(),
		Handlers: []ports.RouteRegistrar{
			httphandlers.NewPlayerHandler(admin),
			httphandlers.NewModerationHandler(admin),
			httphandlers.NewConfigHandler(admin),
			httphandlers.NewSocketHandler(relayServer, stats),
		},
		Metrics: collector,
		Health:  health,
	}
	if cfg.Monitoring.PrometheusEnabled {
		deps.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           httphandlers.NewRouter(deps),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		IdleTimeout:       2 * cfg.Server.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("Starting Bore relay",
			"address", cfg.Server.Address,
			"relay_path", relayServer.Path(),
			"storage", repoFactory.Driver(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// peers first, so hijacked connections do not hold up the HTTP server
		if err := relayServer.Shutdown(shutdownCtx); err != nil {
			log.Warnw("relay shutdown incomplete", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildResolver(
	cfg *config.Config,
	collector *monitoring.PrometheusCollector,
	log *zap.SugaredLogger,
) (ports.PermissionResolver, *cache.Cache[domain.PermissionResult], error) {
	breakerCfg := circuitbreaker.DefaultConfig()
	breakerCfg.FailureThreshold = cfg.Discord.CircuitBreaker.FailureThreshold
	breakerCfg.Timeout = cfg.Discord.CircuitBreaker.OpenTimeout

	client, err := discord.NewClient(discord.Config{
		BaseURL:    cfg.Discord.APIBaseURL,
		GuildID:    cfg.Discord.GuildID,
		HTTPClient: &http.Client{Timeout: cfg.Discord.Timeout},
		Breaker:    circuitbreaker.New(breakerCfg),
		Observer:   collector,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create discord client: %w", err)
	}

	permCache := cache.New[domain.PermissionResult](cfg.CacheTTL(),
		cache.WithStaleWindow[domain.PermissionResult](cfg.Discord.StaleWindow))

	roles := domain.RoleSets{
		Owner:     cfg.Discord.OwnerRoleIDs,
		Director:  cfg.Discord.DirectorRoleIDs,
		Manager:   cfg.Discord.ManagerRoleIDs,
		Moderator: cfg.Discord.ModeratorRoleIDs,
		Staff:     cfg.Discord.StaffRoleIDs,
	}
	resolver := services.NewPermissionResolver(client, permCache, roles, cfg.Discord.Timeout, collector, log)

	var issuer *services.ServiceTokenIssuer
	if cfg.ServiceAuth.JWTSecret != "" {
		issuer = services.NewServiceTokenIssuer(cfg.ServiceAuth.JWTSecret, cfg.ServiceAuth.Issuer, cfg.ServiceAuth.TokenTTL)
	} else {
		log.Warn("service_auth.jwt_secret not set, service tokens disabled")
	}
	return services.NewChainResolver(issuer, resolver), permCache, nil
}
