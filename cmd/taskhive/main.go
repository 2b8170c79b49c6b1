package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/taskhive-dev/taskhive/db"
	"github.com/taskhive-dev/taskhive/internal/auth"
	"github.com/taskhive-dev/taskhive/internal/config"
	"github.com/taskhive-dev/taskhive/internal/dispatch"
	"github.com/taskhive-dev/taskhive/internal/handlers"
	"github.com/taskhive-dev/taskhive/internal/realtime"
	"github.com/taskhive-dev/taskhive/internal/router"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Error loading .env file: %v", err)
	}

	cfg, err := config.Load()

	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err = auth.InitJWTSecret(cfg.JWTSecret); err != nil {
		log.Fatalf("Failed to initialize JWT: %v", err)
	}

	database, err := db.ConnectDatabase(cfg.Database.Driver, cfg.Database.URL)

	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err = db.MigrateDatabase(database); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := realtime.NewRegistry(cfg.Realtime.SendBuffer)

	var out dispatch.Broadcaster = registry

	if cfg.Realtime.RedisURL != "" {
		bus, err := realtime.NewRedisBus(cfg.Realtime.RedisURL, cfg.Realtime.RedisChannel, registry)

		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer bus.Close()

		go func() {
			err := bus.Run(ctx)
			if err != nil {
				log.Printf("Redis relay stopped, delivering events locally only: %v", err)
				return
			}
			log.Println("Redis relay stopped")
		}()

		out = bus
	} else {
		log.Println("REDIS_URL not set, realtime events stay on this instance")
	}

	h := handlers.New(database, dispatch.New(out), registry, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router.NewRouter(h, cfg.Server.AllowedOrigins),
	}

	go func() {
		log.Printf("Taskhive listening on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("Shutting down server...")

	// Hijacked websocket connections are not tracked by http.Server.
	registry.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}

	log.Println("Server shutdown complete")
}
