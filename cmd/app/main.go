package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ekh_mining/internal/config"
	"ekh_mining/internal/db"
	httpServer "ekh_mining/internal/http"
	"ekh_mining/internal/http/handlers"
	"ekh_mining/internal/http/middleware"
	"ekh_mining/internal/identity"
	"ekh_mining/internal/logger"
	"ekh_mining/internal/repository"
	"ekh_mining/internal/retry"
	"ekh_mining/internal/service"
	"ekh_mining/internal/session"
	"ekh_mining/internal/store"
	"ekh_mining/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	backend, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("store init failed", "driver", cfg.StoreDriver, "error", err)
	}
	defer closeStore()

	rdb := db.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if rdb != nil {
		defer rdb.Close()
	}

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		logger.Fatal("auth init failed", "provider", cfg.AuthProvider, "error", err)
	}

	exec, err := retry.New(retry.Config{
		MaxRetries: cfg.RetryMaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
		MaxDelay:   cfg.RetryMaxDelay,
		Jitter:     true,
	})
	if err != nil {
		logger.Fatal("retry config", "error", err)
	}
	loc, _ := cfg.StreakLocation()

	var journal service.ClaimJournal = service.NewMemoryClaimJournal()
	if rdb != nil {
		journal = service.NewRedisClaimJournal(rdb)
	} else {
		logger.Warn("referral claim journal kept in memory")
	}

	profiles := repository.NewProfileRepository(backend, exec)
	registry := session.NewRegistry(session.Deps{
		Profiles:  profiles,
		Purchases: repository.NewPurchaseRepository(backend, exec),
		Streaks:   service.NewStreakService(profiles, loc),
		Rates:     service.NewRateService(profiles),
		Referrals: service.NewReferralService(profiles, journal, exec),
		Mining:    service.NewMiningService(profiles),
	}, session.Options{
		MinInterval: cfg.RefreshMinInterval,
		IdleTimeout: cfg.SessionIdleTimeout,
		Location:    loc,
	})
	defer registry.Close()

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go registry.RunJanitor(janitorCtx, 0)

	checks := []handlers.Check{{Name: "store", Required: true, Ping: profiles.Ping}}
	if rdb != nil {
		checks = append(checks, handlers.Check{Name: "redis", Ping: redisPing(rdb)})
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handlers.NewHandler(registry, verifier, ws.NewUpgrader(cfg.AllowedOrigin))
	httpServer.RegisterRoutes(r, h, handlers.NewHealthHandler(version, checks...), middleware.NewRateLimiter(rdb), cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "store", cfg.StoreDriver, "auth", cfg.AuthProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}

func newVerifier(ctx context.Context, cfg *config.Config) (identity.TokenVerifier, error) {
	switch cfg.AuthProvider {
	case config.AuthFirebase:
		return identity.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID)
	case config.AuthTelegram:
		return identity.NewTelegramVerifier(cfg.TelegramBotToken)
	}
	return identity.NewJWTVerifier(cfg.JWTSecret)
}

func redisPing(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
