package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Skufu/RenalRisk/internal/api"
	"github.com/Skufu/RenalRisk/internal/assessment"
	"github.com/Skufu/RenalRisk/internal/clinical"
	"github.com/Skufu/RenalRisk/internal/config"
	"github.com/Skufu/RenalRisk/internal/predictor"
	"github.com/Skufu/RenalRisk/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}
	gin.SetMode(cfg.GinMode)
	logger := config.NewLogger(cfg)

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Assessment store unavailable")
	}
	if st != nil {
		defer st.Close()
	}

	p, closePredictor, err := buildPredictor(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build stage predictor")
	}
	defer closePredictor()

	var opts []assessment.Option
	if st != nil {
		opts = append(opts, assessment.WithRecorder(st))
	}
	svc := assessment.NewService(clinical.NewDeriver(cfg.Features), p, logger, opts...)

	router := api.NewRouter(api.Config{
		Service:   svc,
		Store:     st,
		Logger:    logger,
		RateLimit: rate.Limit(cfg.RateLimitRPS),
		RateBurst: cfg.RateLimitBurst,
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server error")
		}
	}()

	logger.WithFields(logrus.Fields{
		"port":      cfg.Port,
		"predictor": svc.PredictorName(),
		"store":     cfg.StoreDriver,
	}).Info("Server listening")
	waitForShutdown(server, logger)
}

// openStore returns a nil Store when STORE_DRIVER=none.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s, err := store.NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	case config.StoreSQLite:
		s, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, nil
	}
}

// buildPredictor layers the caches over the remote classifier, or over the
// eGFR band fallback when no classifier URL is configured.
func buildPredictor(cfg *config.Config, logger *logrus.Logger) (predictor.StagePredictor, func(), error) {
	closer := func() {}

	var p predictor.StagePredictor = predictor.EGFRBandPredictor{}
	if cfg.ClassifierURL != "" {
		p = predictor.NewRemoteClient(predictor.RemoteConfig{
			BaseURL:    cfg.ClassifierURL,
			Timeout:    cfg.ClassifierTimeout,
			RetryCount: 2,
		}, logger)
	}

	if cfg.ClassifierCacheSize > 0 {
		cached, err := predictor.NewCached(p, cfg.ClassifierCacheSize)
		if err != nil {
			return nil, closer, err
		}
		p = cached
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, closer, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		closer = func() { client.Close() }
		p = predictor.NewRedisCached(p, client, cfg.RedisTTL, logger)
	}

	return p, closer, nil
}

func waitForShutdown(server *http.Server, logger *logrus.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
}
