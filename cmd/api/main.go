package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"dropsync-api/internal/cache"
	"dropsync-api/internal/config"
	"dropsync-api/internal/domain"
	"dropsync-api/internal/feed"
	"dropsync-api/internal/marketplace"
	"dropsync-api/internal/repository"
	"dropsync-api/internal/service"
	httpTransport "dropsync-api/internal/transport/http"
	"dropsync-api/internal/transport/http/handler"
	"dropsync-api/internal/transport/http/middleware"
)

func main() {
	cfg := config.MustLoad()

	log := newLogger(cfg)
	middleware.SetLogger(log)

	log.Infof("Starting %s (%s)", cfg.App.Name, cfg.App.Environment)

	// MySQL holds accounts, feeds and the job ledger.
	db, err := connectDB(cfg.Database)
	if err != nil {
		log.Fatalf("FATAL: failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Info("✓ MySQL connected")

	accountRepo := repository.NewMySQLAccountRepository(db)
	feedRepo := repository.NewMySQLFeedRepository(db)
	jobRepo := repository.NewMySQLJobRepository(db)

	ctx := context.Background()
	if err := jobRepo.EnsureSchema(ctx); err != nil {
		log.Fatalf("FATAL: failed to ensure job ledger schema: %v", err)
	}

	// Redis backs the listing index and the cross-replica sync locks.
	// Both fall back to in-process implementations when it is down, so
	// a single-instance deployment still works without Redis.
	var listingIndex cache.ListingIndex
	var locker service.AccountLocker
	var redisPing handler.Pinger

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warnf("⚠ Redis unavailable: %v (using in-memory index and locks)", err)
		listingIndex = cache.NewMemoryListingIndex()
		locker = service.NewMemoryAccountLocker()
	} else {
		defer redisClient.Close()
		listingIndex = cache.NewRedisListingIndex(redisClient, "dropsync:listings")
		locker = service.NewRedisAccountLocker(redislock.New(redisClient), "dropsync:synclock")
		redisPing = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
		log.Info("✓ Redis connected (listing index, sync locks)")
	}

	// One limiter for every account. The marketplace enforces its call
	// quota globally, not per credential bundle.
	limiter := rate.NewLimiter(rate.Limit(cfg.Marketplace.RatePerSecond), cfg.Marketplace.RateBurst)

	sessionCfg := marketplace.SessionConfig{
		Client: marketplace.Config{
			APIURL:      cfg.Marketplace.APIURL,
			SiteID:      cfg.Marketplace.SiteID,
			CallTimeout: cfg.Marketplace.CallTimeout,
			PageCap:     cfg.Marketplace.ListingPageCap,
		},
		BatchSize:    cfg.Marketplace.BatchSize,
		MaxRetries:   cfg.Marketplace.UpdateRetries,
		RetryBackoff: cfg.Marketplace.RetryBackoff,
	}
	sessions := func(creds domain.Credentials) service.MarketplaceSession {
		return marketplace.NewSession(sessionCfg, creds, limiter, log)
	}

	resolver := service.NewResolver(listingIndex, log)
	fetcher := feed.NewFetcher(cfg.Sync.FetchTimeout)

	orchestrator := service.NewOrchestrator(accountRepo, feedRepo, jobRepo, fetcher, resolver, sessions, locker, cfg.Sync, log)

	// Background loops share one cancellable context. The watchdog runs
	// an immediate sweep on start to reap jobs orphaned by a crash.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	watchdog := service.NewWatchdog(jobRepo, cfg.Sync.MaxRunDuration, cfg.Sync.WatchdogInterval, log)
	go watchdog.Start(bgCtx)

	scheduler := service.NewScheduler(accountRepo, orchestrator, cfg.Sync.SchedulerTick, log)
	go scheduler.Start(bgCtx)

	// HTTP surface
	probeHandler := handler.New(handler.PingFunc(db.PingContext), redisPing)
	syncHandler := handler.NewSyncHandler(orchestrator, jobRepo)
	dashHandler := handler.NewDashboardHandler(service.NewStatsService(accountRepo, feedRepo, jobRepo))

	router := httpTransport.NewRouter(probeHandler, syncHandler, dashHandler)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Infof("HTTP server listening on %s", cfg.Server.Address())
		log.Info("Available endpoints:")
		log.Info("  GET  /api/v1/health")
		log.Info("  GET  /api/v1/ready")
		log.Info("  POST /api/v1/sync/trigger")
		log.Info("  GET  /api/v1/sync/jobs")
		log.Info("  GET  /api/v1/sync/jobs/{job_id}")
		log.Info("  GET  /api/v1/dashboard/stats")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	bgCancel()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Let in-flight sync runs finish their ledger writes.
	orchestrator.Wait()

	log.Info("Server stopped gracefully")
}

// newLogger builds the application logger: JSON in production, colored
// text everywhere else.
func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if cfg.App.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.App.Debug {
		log.SetLevel(logrus.DebugLevel)
	}

	return log
}

// connectDB establishes a connection to the MySQL database.
func connectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	// DSN with timeout settings to prevent hanging connections
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci&timeout=5s&readTimeout=10s&writeTimeout=10s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Pool sized for a small always-on worker, not burst web traffic.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
