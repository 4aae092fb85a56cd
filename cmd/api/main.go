package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/stello/stello-api/internal/config"
	"github.com/stello/stello-api/internal/events"
	jwtinfra "github.com/stello/stello-api/internal/infrastructure/jwt"
	"github.com/stello/stello-api/internal/infrastructure/postgres"
	"github.com/stello/stello-api/internal/infrastructure/smtp"
	transporthttp "github.com/stello/stello-api/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	// Creates the tables if they don't exist.
	postgres.Bootstrap(ctx, pool)

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("JWT provider: %v", err)
	}

	mailer := smtp.NewMailer(cfg)

	// Post-commit notification consumer. Dispatch is fire-and-forget; a
	// failed send never fails the request that triggered it.
	dispatcher := events.NewDispatcher(mailer)
	dispatcher.Start()

	deps := &transporthttp.Deps{
		UserRepo:         postgres.NewUserRepo(pool),
		VerificationRepo: postgres.NewEmailVerificationRepo(pool),
		ResetRepo:        postgres.NewPasswordResetRepo(pool),
		Transactor:       postgres.NewTransactor(pool),
		JWTProvider:      jwtProvider,
		Events:           dispatcher,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	dispatcher.Close()
	log.Println("Server stopped")
}
