package main

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/redive-tools/newswatch/pkg/config"
	"github.com/redive-tools/newswatch/pkg/fetchutil"
	"github.com/redive-tools/newswatch/pkg/pipeline"
	"github.com/redive-tools/newswatch/pkg/scheduler"
	"github.com/redive-tools/newswatch/pkg/source"
	"github.com/redive-tools/newswatch/pkg/store"
	"github.com/redive-tools/newswatch/pkg/tagging"
	"github.com/redive-tools/newswatch/pkg/telegram"
	"github.com/redive-tools/newswatch/pkg/telegraph"
	"github.com/redive-tools/newswatch/pkg/version"
)

func newServeCmd(configPath, envPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the Telegram command listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath, *envPath)
		},
	}
}

func runServe(baseCtx context.Context, configPath, envPath string) error {
	loadEnvFile(envPath)

	slog.Info("Starting newswatch", "version", version.Full(), "config", configPath)

	// 1. Configuration
	cfg, err := config.Initialize(configPath)
	if err != nil {
		return fmt.Errorf("initialize configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Store
	db, err := store.Connect(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Close(closeCtx); err != nil {
			slog.Error("Error closing store", "error", err)
		}
	}()

	// 3. Shared clients
	httpClient := fetchutil.NewHTTPClient(cfg.Client)
	archive := telegraph.NewClient(httpClient, cfg.Telegraph)

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return fmt.Errorf("connect to telegram: %w", err)
	}
	sender := telegram.NewBotSender(bot)
	slog.Info("Telegram bot connected", "username", bot.Self.UserName)

	tagger, err := tagging.New(cfg.Tags)
	if err != nil {
		return fmt.Errorf("compile tag patterns: %w", err)
	}

	// 4. Sources
	sources, err := buildSources(httpClient, cfg)
	if err != nil {
		return err
	}

	// 5. Scheduler: pipeline failures go to the debug recipient
	sched := scheduler.New(debugSink(sender, cfg.Telegram.Recipient.Debug))
	for _, src := range sources {
		strategy, err := cfg.Fetch.Strategy.For(src.Name())
		if err != nil {
			return err
		}

		recipient := cfg.Telegram.Recipient.Post
		if src.Name() == config.SourceNameCartoon {
			recipient = cfg.Telegram.Recipient.Cartoon
		}

		p := pipeline.New(src, strategy, pipeline.Options{
			Posts:     db.Posts(),
			Meta:      db.Meta(),
			Audits:    db.Audits(),
			Archive:   archive,
			Sender:    sender,
			Tagger:    tagger,
			Recipient: recipient,
			Silent:    cfg.Fetch.Silent,
		})
		if err := sched.Register(src.Name(), cfg.Fetch.Schedule[src.Name()], p.Run); err != nil {
			return err
		}
	}
	sched.Start(ctx)

	// 6. Command listener (blocking side runs in a goroutine)
	listener := telegram.NewCommandListener(bot, cfg.Telegram, sched, db.Ping)
	errCh := make(chan error, 1)
	go func() {
		if err := listener.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	slog.Info("newswatch started", "sources", sched.Sources())

	// 7. Wait for shutdown signal or listener failure
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errCh:
		slog.Error("Command listener failed, shutting down", "error", err)
		stop()
	}

	// 8. Graceful shutdown: decline new firings, let running ticks finish
	sched.Stop()
	slog.Info("Shutdown complete")
	return nil
}

func loadEnvFile(envPath string) {
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}
}

// buildSources instantiates every configured upstream surface. The cartoon
// listing lives on the first announce API server.
func buildSources(httpClient *http.Client, cfg *config.Config) ([]source.Source, error) {
	var sources []source.Source
	for _, server := range cfg.Fetch.Server.API {
		sources = append(sources, source.NewAnnounce(httpClient, server))
	}
	if cfg.Fetch.Server.News != "" {
		sources = append(sources, source.NewNews(httpClient, cfg.Fetch.Server.News))
	}
	if len(cfg.Fetch.Server.API) > 0 {
		sources = append(sources, source.NewCartoon(httpClient, cfg.Fetch.Server.API[0].URL))
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources configured")
	}
	return sources, nil
}

// debugSink forwards a source failure to the debug recipient. Delivery is
// best effort; the failure is already logged.
func debugSink(sender telegram.Sender, recipient string) scheduler.ErrorSink {
	return func(src string, err error) {
		if recipient == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		text := fmt.Sprintf("<b>%s failed</b>\n<code>%s</code>", src, html.EscapeString(err.Error()))
		if _, sendErr := sender.Send(ctx, recipient, text, true, ""); sendErr != nil {
			slog.Error("Failed to forward error to debug recipient", "error", sendErr)
		}
	}
}
