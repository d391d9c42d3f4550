package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"

	"discord-issue-bot/internal/config"
	"discord-issue-bot/internal/handlers"
	"discord-issue-bot/internal/log"
	"discord-issue-bot/internal/middleware"
	"discord-issue-bot/internal/services"
)

// restartExitCode tells the supervisor to restart the bot after an update.
const restartExitCode = 3

const gatewayIntents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsMessageContent

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if err := cfg.RequireDiscord(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	slog.SetDefault(log.New(os.Stdout, cfg.LogLevel, cfg.GinMode == gin.ReleaseMode))
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	log.Info(ctx, "Loading bot state", "backend", cfg.StateBackend)
	store, closeStore, err := services.NewStateStore(ctx, cfg)
	if err != nil {
		log.Error(ctx, "Failed to create state store", "component", "startup", "error", err)
		return 1
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error(ctx, "Error closing state store", "component", "shutdown", "error", err)
		}
	}()

	doc, err := services.LoadOrInit(ctx, store)
	if err != nil {
		log.Error(ctx, "Failed to load bot state", "component", "startup", "error", err)
		return 1
	}
	registry := services.NewRegistry(store, doc)

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.Error(ctx, "Failed to create Discord session", "component", "startup", "error", err)
		return 1
	}
	session.Identify.Intents = gatewayIntents

	restart := handlers.NewRestartSignal()
	bot := handlers.NewBotHandler(
		services.NewDiscordService(session),
		registry,
		newIssueCreator(ctx, cfg, registry),
		restart,
		handlers.BotOptions{
			EventTimeout:         cfg.EventTimeout,
			ThreadArchiveMinutes: cfg.ThreadArchiveMinutes,
		},
	)
	session.AddHandler(bot.HandleReady)
	session.AddHandler(bot.HandleMessageCreate)
	session.AddHandler(bot.HandleReactionAdd)

	if err := session.Open(); err != nil {
		log.Error(ctx, "Failed to open Discord gateway", "component", "startup", "error", err)
		return 1
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Error(ctx, "Error closing Discord gateway", "component", "shutdown", "error", err)
		}
	}()

	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware())
	handlers.NewHealthHandler(registry, restart).RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
	}

	log.Info(ctx, "Starting health server", "component", "server", "port", cfg.Port)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "Health server failed", "component", "server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		log.Info(ctx, "Shutting down", "component", "server", "signal", sig.String())
	case <-restart.Done():
		log.Info(ctx, "Restarting for update", "component", "server")
		exitCode = restartExitCode
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "Health server forced to shutdown", "component", "server", "error", err)
	}

	log.Info(ctx, "Bot exited", "component", "server", "exit_code", exitCode)
	return exitCode
}

// newIssueCreator builds the GitHub client from the App identity in the state
// document. Issue commands fail through the error sink when it is incomplete.
func newIssueCreator(ctx context.Context, cfg *config.Config, registry *services.Registry) handlers.IssueCreator {
	key, err := os.ReadFile(cfg.GitHubPrivateKeyPath)
	if err != nil {
		log.Warn(ctx, "GitHub App private key unavailable, issue filing disabled",
			"path", cfg.GitHubPrivateKeyPath,
			"error", err,
		)
		return nil
	}

	issueCfg, err := services.NewIssueConfig(registry.Settings(), cfg, key)
	if err != nil {
		log.Warn(ctx, "GitHub App not configured, issue filing disabled", "error", err)
		return nil
	}

	github, err := services.NewGitHubService(issueCfg, nil)
	if err != nil {
		log.Warn(ctx, "Failed to create GitHub client, issue filing disabled", "error", err)
		return nil
	}
	log.Info(ctx, "Issue filing enabled",
		"repo_owner", issueCfg.Owner,
		"repo_name", issueCfg.Repo,
	)
	return github
}
