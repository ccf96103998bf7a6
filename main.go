package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/viewtube/viewtube-backend/handlers"
	"github.com/viewtube/viewtube-backend/internal/config"
	"github.com/viewtube/viewtube-backend/internal/database"
	"github.com/viewtube/viewtube-backend/internal/events"
	"github.com/viewtube/viewtube-backend/internal/sessions"
	"github.com/viewtube/viewtube-backend/internal/storage"
	"github.com/viewtube/viewtube-backend/internal/tokens"
	"github.com/viewtube/viewtube-backend/internal/users"
	"github.com/viewtube/viewtube-backend/pkg/logger"
	"github.com/viewtube/viewtube-backend/pkg/metrics"
	"github.com/viewtube/viewtube-backend/pkg/middleware"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(corsMiddleware())

	ctx := context.Background()

	// Redis is optional: without it logout cannot blacklist the last access
	// token, everything else keeps working.
	var blacklist *sessions.Blacklist
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("redis unavailable, access-token blacklist disabled: %v", err)
			rdb = nil
		} else {
			blacklist = sessions.NewBlacklist(rdb)
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	client := connectMongoWithRetry(ctx, cfg)
	defer func() { _ = client.Disconnect(ctx) }()
	repo := users.NewMongoRepository(client.Database(cfg.MongoDB.Database).Collection("users"))

	issuer := tokens.NewIssuer(cfg)
	sessionSvc := sessions.NewService(repo, issuer)

	var media *storage.MediaStorage
	if mcfg := storage.LoadMinIOConfig(); mcfg.Endpoint != "" {
		media, err = storage.NewMediaStorage(mcfg)
		if err != nil {
			logger.Warnf("media storage unavailable, uploads disabled: %v", err)
			media = nil
		}
	}

	var producer *events.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = producer.Close() }()
		logger.Infof("publishing user events to %q", cfg.Kafka.Topic)
	}

	authGuard := middleware.RequireAuth(issuer, repo, blacklist)
	h := handlers.NewAuthHandler(cfg, sessionSvc, repo, media, producer, blacklist)
	h.Register(r.Group("/api/v1"), authGuard)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{"mongodb": true, "redis": rdb != nil || cfg.Redis.Host == ""}
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			deps["mongodb"] = false
		}
		if !deps["mongodb"] {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting auth service on %s", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server failed: %v", err)
	}
}

// connectMongoWithRetry tolerates startup races against the database
// container by retrying with exponential backoff.
func connectMongoWithRetry(ctx context.Context, cfg *config.Config) *mongo.Client {
	const maxAttempts = 5
	backoff := time.Second
	var client *mongo.Client
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		client, err = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
		if err == nil {
			return client
		}
		logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, err)
		if attempt < maxAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	logger.Fatalf("could not connect to MongoDB after %d attempts: %v", maxAttempts, err)
	return nil
}

// corsMiddleware is a permissive dev/test policy; production deployments
// front this service with a stricter gateway.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
