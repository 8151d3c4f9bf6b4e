package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"asklegal/internal/config"
	"asklegal/internal/database"
	"asklegal/internal/router"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	setupLogging(cfg)

	gin.SetMode(gin.ReleaseMode)

	if err := database.Init(cfg.DatabaseDriver, cfg.DatabaseDSN); err != nil {
		log.Fatalf("database init failed: %v", err)
	}
	defer database.Close()

	stripe.Key = cfg.StripeSecretKey
	if cfg.StripeSecretKey == "" {
		log.Warn("STRIPE_SECRET_KEY not set, checkout is disabled")
	}

	svc, err := router.NewServices()
	if err != nil {
		log.Fatalf("service init failed: %v", err)
	}

	ctx := context.Background()
	if err := svc.Users.EnsureAdmin(ctx); err != nil {
		log.Warnf("failed to create admin account: %v", err)
	}
	if err := svc.SystemConfig.LoadRetryConfig(ctx); err != nil {
		log.Warnf("failed to load retry config: %v", err)
	}

	r := router.Setup(svc, database.GetDB())

	port := cfg.ServerPort
	if envPort := os.Getenv("PORT"); envPort != "" {
		port = envPort
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("server listening on http://0.0.0.0:%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}

func setupLogging(cfg *config.Config) {
	if strings.EqualFold(cfg.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
