package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/redive-tools/newswatch/pkg/config"
)

// Triggerer is the scheduler surface the command listener drives: a manual
// run goes through the same handler and the same per-source mutex as a cron
// firing.
type Triggerer interface {
	Trigger(source string) error
	Sources() []string
}

// CommandListener serves the operator command interface, either by
// long-polling or, when webhook_url is configured, over an HTTP listener.
type CommandListener struct {
	bot     *tgbotapi.BotAPI
	cfg     config.TelegramConfig
	trig    Triggerer
	health  func(context.Context) error
	logger  *slog.Logger
	httpSrv *http.Server
}

// NewCommandListener builds the listener. health backs the /healthz endpoint
// in webhook mode and may be nil.
func NewCommandListener(bot *tgbotapi.BotAPI, cfg config.TelegramConfig, trig Triggerer, health func(context.Context) error) *CommandListener {
	return &CommandListener{
		bot:    bot,
		cfg:    cfg,
		trig:   trig,
		health: health,
		logger: slog.With("component", "telegram-commands"),
	}
}

// Run blocks until ctx is cancelled.
func (l *CommandListener) Run(ctx context.Context) error {
	if l.cfg.WebhookURL != "" {
		return l.runWebhook(ctx)
	}
	return l.runPolling(ctx)
}

func (l *CommandListener) runPolling(ctx context.Context) error {
	timeout := l.cfg.PollTimeoutSec
	if timeout <= 0 {
		timeout = 30
	}
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = timeout

	updates := l.bot.GetUpdatesChan(updateCfg)
	l.logger.Info("Command listener polling for updates", "timeout_sec", timeout)

	for {
		select {
		case <-ctx.Done():
			l.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			l.handleUpdate(update)
		}
	}
}

func (l *CommandListener) runWebhook(ctx context.Context) error {
	webhook, err := tgbotapi.NewWebhook(l.cfg.WebhookURL)
	if err != nil {
		return fmt.Errorf("build webhook config: %w", err)
	}
	if _, err := l.bot.Request(webhook); err != nil {
		return fmt.Errorf("register webhook: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/telegram/"+l.bot.Token, func(c *gin.Context) {
		var update tgbotapi.Update
		if err := c.ShouldBindJSON(&update); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		l.handleUpdate(update)
		c.Status(http.StatusOK)
	})
	router.GET("/healthz", func(c *gin.Context) {
		if l.health != nil {
			if err := l.health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	l.httpSrv = &http.Server{Addr: l.cfg.ListenAddr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		l.logger.Info("Webhook listener started", "addr", l.cfg.ListenAddr)
		if err := l.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("webhook listener: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return l.httpSrv.Shutdown(shutdownCtx)
	}
}

func (l *CommandListener) handleUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}

	switch msg.Command() {
	case "update":
		l.handleTrigger(msg)
	case "sources":
		l.reply(msg, strings.Join(l.trig.Sources(), "\n"))
	case "ping":
		l.reply(msg, "pong")
	default:
		l.logger.Debug("Ignoring unknown command", "command", msg.Command())
	}
}

func (l *CommandListener) handleTrigger(msg *tgbotapi.Message) {
	name := strings.TrimSpace(msg.CommandArguments())
	if name == "" {
		l.reply(msg, "usage: /update <source>\navailable:\n"+strings.Join(l.trig.Sources(), "\n"))
		return
	}

	l.logger.Info("Manual trigger requested", "source", name, "from", msg.From.ID)
	if err := l.trig.Trigger(name); err != nil {
		l.reply(msg, fmt.Sprintf("trigger %s failed: %v", name, err))
		return
	}
	l.reply(msg, fmt.Sprintf("triggered %s", name))
}

func (l *CommandListener) reply(to *tgbotapi.Message, text string) {
	reply := tgbotapi.NewMessage(to.Chat.ID, text)
	reply.ReplyToMessageID = to.MessageID
	if _, err := l.bot.Send(reply); err != nil {
		l.logger.Warn("Failed to send command reply", "error", err)
	}
}
