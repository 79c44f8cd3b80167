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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rapidoc/docsync/handlers"
	"github.com/rapidoc/docsync/internal/config"
	"github.com/rapidoc/docsync/internal/database"
	"github.com/rapidoc/docsync/internal/engine"
	"github.com/rapidoc/docsync/internal/oidc"
	"github.com/rapidoc/docsync/internal/remote"
	"github.com/rapidoc/docsync/internal/sessions"
	"github.com/rapidoc/docsync/internal/tokens"
	"github.com/rapidoc/docsync/internal/users"
	"github.com/rapidoc/docsync/pkg/logger"
	"github.com/rapidoc/docsync/pkg/metrics"
	"github.com/rapidoc/docsync/pkg/middleware"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal, LOG_FORMAT: text|json
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.SetFormat(os.Getenv("LOG_FORMAT"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: store=%s keycloak=%v mongo=%v redis=%v", cfg.Store.Backend, cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, releaseStore, err := remote.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to open remote store: %v", err)
	}
	defer releaseStore()

	// Redis backs rate limiting, token revocation and leases when configured.
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", cfg.Redis.Addr(), err)
			_ = rdb.Close()
			rdb = nil
		} else {
			defer func() { _ = rdb.Close() }()
			sessions.SetRevocationClient(rdb)
			logger.Infof("connected to Redis: %s", cfg.Redis.Addr())
		}
	}

	var mdb *mongo.Database
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			logger.Warnf("could not connect to MongoDB: %v", err)
		} else {
			defer func() { _ = client.Disconnect(context.Background()) }()
			mdb = client.Database(cfg.MongoDB.Database)
		}
	}

	// Leases: Redis first, then Mongo, then process memory.
	var leaseRepo sessions.Repository
	switch {
	case rdb != nil:
		leaseRepo = sessions.NewRedisRepository(rdb, "")
		logger.Infof("using Redis for session leases")
	case mdb != nil:
		repo, err := sessions.NewMongoRepository(ctx, mdb.Collection("sessions"))
		if err != nil {
			logger.Fatalf("failed to prepare lease collection: %v", err)
		}
		leaseRepo = repo
		logger.Infof("using MongoDB for session leases")
	default:
		leaseRepo = sessions.NewMemoryRepository()
		logger.Warnf("no Redis or MongoDB configured; session leases are kept in memory")
	}
	leases := sessions.NewService(leaseRepo)

	var userRepo users.Repository = users.NewMemoryRepository()
	if mdb != nil {
		userRepo = users.NewMongoRepository(mdb.Collection("users"))
	}
	userSvc := users.NewService(userRepo, store)

	var verifiers []middleware.Verifier
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" && cfg.Keycloak.Realm != "" {
		ver, err := oidc.NewVerifier(ctx, cfg.Keycloak)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			verifiers = append(verifiers, ver)
		}
	}
	if cfg.JWT.Secret != "" {
		verifiers = append(verifiers, tokens.NewVerifier(cfg.JWT.Secret))
	}
	if len(verifiers) == 0 {
		logger.Warnf("no token verifier configured; every /api/v1 request will be rejected")
	}
	verifier := middleware.Chain(verifiers...)

	eng := engine.New(store, engine.Options{
		StoreTimeout: cfg.Sync.StoreTimeout,
		QueueSize:    cfg.Sync.QueueSize,
		SignalBuffer: cfg.Sync.SignalBuffer,
	})
	syncHandler := handlers.NewSyncHandler(eng, leases, userSvc, cfg.Sync.SessionTTL)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Lightweight CORS for browser editors.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// ready only when the remote store answers
	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{"redis": cfg.Redis.Host == "" || rdb != nil, "verifier": len(verifiers) > 0}
		pctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		_, err := store.QueryByOwner(pctx, "readiness-probe")
		deps["store"] = err == nil
		uptime := time.Since(startTime).String()
		for _, ok := range deps {
			if !ok {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": uptime})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": uptime})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	api := r.Group("/api/v1", middleware.AuthMiddleware(verifier))
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			api.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			api.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	handlers.NewAuthHandler(userSvc).Register(api.Group("/auth"))
	syncHandler.Register(api)

	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				if n := syncHandler.Sweep(now); n > 0 {
					logger.Infof("closed %d expired sync sessions", n)
				}
			}
		}
	}()

	// WriteTimeout stays 0: event streams are long-lived.
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}
	go func() {
		logger.Infof("starting sync gateway on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	syncHandler.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("graceful shutdown: %v", err)
	}
}
