package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"discord-issue-bot/internal/config"
	"discord-issue-bot/internal/log"
	"discord-issue-bot/internal/models"
	"discord-issue-bot/internal/services"
)

const (
	minArgsRequired   = 2
	filePermReadWrite = 0600
)

var (
	ErrOperationCancelled = errors.New("operation cancelled by user")
	ErrSameBackend        = errors.New("source and destination backends are the same")
)

func main() {
	if len(os.Args) < minArgsRequired {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "dump-state":
		handleDumpState()
	case "copy-state":
		handleCopyState()
	case "configure":
		handleConfigure()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Toolbox - Utility commands for discord-issue-bot")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  toolbox <command> [flags]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  dump-state         Export the bot state document as JSON")
	fmt.Println("  copy-state         Copy the bot state document to another backend")
	fmt.Println("  configure          Set process-wide fields of the bot state document")
	fmt.Println("  help               Show this help message")
	fmt.Println("")
	fmt.Println("The source backend is selected by STATE_BACKEND (file or firestore).")
	fmt.Println("")
	fmt.Println("Flags for dump-state:")
	fmt.Println("  --output FILE      Write output to file instead of stdout")
	fmt.Println("")
	fmt.Println("Flags for copy-state:")
	fmt.Println("  --to BACKEND       Destination backend (file or firestore)")
	fmt.Println("  --force            Skip confirmation prompt")
	fmt.Println("")
	fmt.Println("Flags for configure:")
	fmt.Println("  --root ID          Discord user allowed to administer the bot")
	fmt.Println("  --error-channel ID Channel receiving error reports")
	fmt.Println("  --repo-owner NAME  GitHub repository owner")
	fmt.Println("  --repo-name NAME   GitHub repository name")
	fmt.Println("  --app-id ID        GitHub App ID")
	fmt.Println("  --install-id ID    GitHub App installation ID")
	fmt.Println("")
}

// setup loads configuration and installs the process logger.
func setup() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(log.New(os.Stderr, cfg.LogLevel, cfg.GinMode == gin.ReleaseMode))
	return cfg
}

func openStore(ctx context.Context, cfg *config.Config) (services.StateStore, func()) {
	log.Info(ctx, "Opening state store", "backend", cfg.StateBackend)
	store, closeStore, err := services.NewStateStore(ctx, cfg)
	if err != nil {
		log.Error(ctx, "Failed to open state store", "error", err)
		os.Exit(1)
	}
	return store, func() {
		if err := closeStore(); err != nil {
			log.Error(context.Background(), "Error closing state store", "error", err)
		}
	}
}

func handleDumpState() {
	var outputFile string

	fs := flag.NewFlagSet("dump-state", flag.ExitOnError)
	fs.StringVar(&outputFile, "output", "", "Write output to file instead of stdout")
	_ = fs.Parse(os.Args[2:])

	cfg := setup()
	ctx := context.Background()
	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	doc, err := store.Load(ctx)
	if err != nil {
		log.Error(ctx, "Failed to load state", "error", err)
		os.Exit(1)
	}

	jsonData, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		log.Error(ctx, "Failed to marshal JSON", "error", err)
		os.Exit(1)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, jsonData, filePermReadWrite); err != nil {
			log.Error(ctx, "Failed to write output file", "file", outputFile, "error", err)
			os.Exit(1)
		}
		log.Info(ctx, "Successfully exported state", "file", outputFile, "size_bytes", len(jsonData))
		return
	}
	fmt.Println(string(jsonData))
}

func handleCopyState() {
	var target string
	var force bool

	fs := flag.NewFlagSet("copy-state", flag.ExitOnError)
	fs.StringVar(&target, "to", "", "Destination backend (file or firestore)")
	fs.BoolVar(&force, "force", false, "Skip confirmation prompt")
	_ = fs.Parse(os.Args[2:])

	cfg := setup()
	ctx := context.Background()

	if target == cfg.StateBackend {
		log.Error(ctx, "Invalid destination", "error", ErrSameBackend, "backend", target)
		os.Exit(1)
	}
	targetCfg := *cfg
	targetCfg.StateBackend = target

	source, closeSource := openStore(ctx, cfg)
	defer closeSource()
	destination, closeDestination := openStore(ctx, &targetCfg)
	defer closeDestination()

	doc, err := source.Load(ctx)
	if err != nil {
		log.Error(ctx, "Failed to load state", "error", err)
		os.Exit(1)
	}

	if !force {
		if err := confirm(fmt.Sprintf("Overwrite the %s state with %d servers from %s? [y/N]: ",
			target, len(doc.Servers), cfg.StateBackend)); err != nil {
			log.Info(ctx, "Copy cancelled", "reason", err)
			return
		}
	}

	if err := destination.Save(ctx, doc); err != nil {
		log.Error(ctx, "Failed to save state", "backend", target, "error", err)
		os.Exit(1)
	}
	log.Info(ctx, "State copied", "from", cfg.StateBackend, "to", target, "servers", len(doc.Servers))
}

func handleConfigure() {
	var root, errorChannel, repoOwner, repoName, appID, installID string

	fs := flag.NewFlagSet("configure", flag.ExitOnError)
	fs.StringVar(&root, "root", "", "Discord user allowed to administer the bot")
	fs.StringVar(&errorChannel, "error-channel", "", "Channel receiving error reports")
	fs.StringVar(&repoOwner, "repo-owner", "", "GitHub repository owner")
	fs.StringVar(&repoName, "repo-name", "", "GitHub repository name")
	fs.StringVar(&appID, "app-id", "", "GitHub App ID")
	fs.StringVar(&installID, "install-id", "", "GitHub App installation ID")
	_ = fs.Parse(os.Args[2:])

	cfg := setup()
	ctx := context.Background()
	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	doc, err := services.LoadOrInit(ctx, store)
	if err != nil {
		log.Error(ctx, "Failed to load state", "error", err)
		os.Exit(1)
	}

	if err := applySettings(doc, root, errorChannel, repoOwner, repoName, appID, installID); err != nil {
		log.Error(ctx, "Invalid setting", "error", err)
		os.Exit(1)
	}

	if err := store.Save(ctx, doc); err != nil {
		log.Error(ctx, "Failed to save state", "error", err)
		os.Exit(1)
	}
	log.Info(ctx, "State updated",
		"root", doc.Root.String(),
		"repo", doc.RepoOwner+"/"+doc.RepoName,
		"github_app_configured", doc.GitHubAppConfigured(),
	)
}

// applySettings overwrites the fields given as non-empty values.
func applySettings(doc *models.BotConfig, root, errorChannel, repoOwner, repoName, appID, installID string) error {
	if root != "" {
		id, err := models.ParseSnowflake(root)
		if err != nil {
			return err
		}
		doc.Root = id
	}
	if errorChannel != "" {
		id, err := models.ParseSnowflake(errorChannel)
		if err != nil {
			return err
		}
		doc.ErrorChannel = id
	}
	if repoOwner != "" {
		doc.RepoOwner = repoOwner
	}
	if repoName != "" {
		doc.RepoName = repoName
	}
	if appID != "" {
		doc.AppID = appID
	}
	if installID != "" {
		doc.InstallID = installID
	}
	return doc.Validate()
}

func confirm(prompt string) error {
	fmt.Print(prompt)

	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read user input: %w", err)
	}

	response = strings.TrimSpace(strings.ToLower(response))
	if response != "y" && response != "yes" {
		return ErrOperationCancelled
	}
	return nil
}
