// cmd/bot/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"truehabits/config"
	"truehabits/internal/bot"
	"truehabits/internal/db"
	"truehabits/internal/gpt"
	"truehabits/internal/payment"
	"truehabits/internal/report"
	"truehabits/internal/server"
	"truehabits/pkg/logger"
)

func main() {
	l := logger.New()
	l.Info("starting TrueHabits bot...")

	cfg, err := config.Load()
	if err != nil {
		l.Fatalw("failed to load config", "error", err)
	}

	if cfg.Telegram.Token == "" {
		l.Fatal("Telegram token is not configured")
	}
	if cfg.Stripe.SecretKey == "" || cfg.Stripe.WebhookKey == "" || cfg.Stripe.PriceID == "" {
		l.Fatal("Stripe configuration is incomplete")
	}
	if cfg.GPT.APIKey == "" {
		l.Fatal("GPT API key is not configured")
	}

	// Connect with retry; the database container may still be starting.
	var database *db.PostgresDB
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		database, err = db.NewPostgresDB(cfg.DB)
		if err == nil {
			break
		}
		l.Errorw("failed to connect to database, retrying...", "error", err)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	if database == nil {
		l.Fatalw("failed to connect to database after multiple attempts", "error", err)
	}
	defer database.Close()

	if err := database.Migrate(context.Background()); err != nil {
		l.Fatalw("failed to run migrations", "error", err)
	}

	stripeClient := payment.NewStripeClient(cfg.Stripe)

	gptClient := gpt.NewClient(cfg.GPT.APIKey).WithModel(cfg.GPT.Model)

	reporter := report.NewReporter(database, l.Named("report"))

	telegramBot, err := bot.NewTelegramBot(cfg.Telegram.Token, database, reporter, stripeClient, gptClient, l.Named("bot"))
	if err != nil {
		l.Fatalw("failed to create Telegram bot", "error", err)
	}

	if err := telegramBot.Start(context.Background()); err != nil {
		l.Fatalw("failed to start Telegram bot", "error", err)
	}
	l.Info("Telegram bot started")

	httpServer := server.NewServer(cfg.Server.Port, telegramBot, l.Named("server"))
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatalw("failed to start HTTP server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down bot...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		l.Errorw("error during HTTP server shutdown", "error", err)
	}

	if err := telegramBot.Stop(ctx); err != nil {
		l.Errorw("error during bot shutdown", "error", err)
	}

	l.Info("bot stopped")
}
