// cmd/server/main.go
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
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/digistore-backend/internal/config"
	"github.com/javajoker/digistore-backend/internal/database"
	"github.com/javajoker/digistore-backend/internal/gateway"
	"github.com/javajoker/digistore-backend/internal/i18n"
	"github.com/javajoker/digistore-backend/internal/lock"
	"github.com/javajoker/digistore-backend/internal/logging"
	"github.com/javajoker/digistore-backend/internal/metrics"
	"github.com/javajoker/digistore-backend/internal/router"
	"github.com/javajoker/digistore-backend/internal/worker"
	"github.com/javajoker/digistore-backend/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal("Failed to load configuration: ", err)
	}
	logging.Setup(cfg.Log, cfg.Environment)

	// Initialize i18n
	if err := i18n.Initialize(); err != nil {
		logrus.Fatal("Failed to initialize i18n: ", err)
	}

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		logrus.Fatal("Failed to initialize database: ", err)
	}
	defer database.Close(db)

	// Run database migrations
	if err := database.RunMigrations(db); err != nil {
		logrus.Fatal("Failed to run migrations: ", err)
	}
	if err := database.SeedInitialData(db, cfg.AdminPassword); err != nil {
		logrus.Fatal("Failed to seed initial data: ", err)
	}

	gw, err := gateway.New(cfg.Payment)
	if err != nil {
		logrus.Fatal("Failed to configure payment gateway: ", err)
	}

	locker, closeLocker := newLocker(cfg.Redis)
	defer closeLocker()

	hub := ws.NewHub()
	svc, err := router.NewServices(db, cfg, gw, locker, hub)
	if err != nil {
		logrus.Fatal("Failed to initialize services: ", err)
	}

	metrics.MustRegister()

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := router.Initialize(db, cfg, svc)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.Reconciler.Enabled {
		reconciler := worker.NewReconciler(svc.Settlement, cfg.Reconciler, cfg.Payment.PaymentExpiry)
		go reconciler.Start(ctx)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logrus.WithFields(logrus.Fields{
			"port":     cfg.Server.Port,
			"provider": gw.Name(),
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal("Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")
	stop()

	// Create a deadline for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Error("Server forced to shutdown: ", err)
	}

	logrus.Info("Server exited")
}

// newLocker uses Redis when enabled and reachable, otherwise an in-process
// lock that is only safe for a single instance.
func newLocker(cfg config.RedisConfig) (lock.Locker, func()) {
	if !cfg.Enabled {
		logrus.Warn("Redis disabled, using in-process settlement locks")
		return lock.NewLocalLocker(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).Warn("Redis unreachable, using in-process settlement locks")
		client.Close()
		return lock.NewLocalLocker(), func() {}
	}

	return lock.NewRedisLocker(client), func() {
		if err := client.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close Redis client")
		}
	}
}
