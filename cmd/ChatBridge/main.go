package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/BTreeMap/ChatBridge/internal/conversation"
	"github.com/BTreeMap/ChatBridge/internal/dialog"
	"github.com/BTreeMap/ChatBridge/internal/gateway"
	"github.com/BTreeMap/ChatBridge/internal/livechat"
	"github.com/BTreeMap/ChatBridge/internal/models"
	"github.com/BTreeMap/ChatBridge/internal/scheduler"
	"github.com/BTreeMap/ChatBridge/internal/store"
	"github.com/BTreeMap/ChatBridge/internal/transcript"
	"github.com/BTreeMap/ChatBridge/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ChatBridge state data
	DefaultStateDir = "/var/lib/chatbridge"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "chatbridge.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping ChatBridge with configured modules")
	slog.Debug("Final configuration",
		"state_dir", *flags.stateDir,
		"dsn_set", *flags.dbDSN != "",
		"dialog_endpoint", *flags.dialogEndpoint,
		"livechat_endpoint_set", *flags.liveChatEndpoint != "")

	if err := run(flags); err != nil {
		slog.Error("ChatBridge failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ChatBridge exited successfully")
}

// Config holds environment configuration
type Config struct {
	DbDriver         string
	DatabaseURL      string
	StateDir         string
	DialogEndpoint   string
	LiveChatEndpoint string
	LocaleID         string
}

// Flags holds command line flag values
type Flags struct {
	stateDir         *string
	dbDriver         *string
	dbDSN            *string
	dialogEndpoint   *string
	liveChatEndpoint *string
	localeID         *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DbDriver:         os.Getenv("CHATBRIDGE_DB_DRIVER"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StateDir:         os.Getenv("CHATBRIDGE_STATE_DIR"),
		DialogEndpoint:   os.Getenv("DIALOG_ENDPOINT"),
		LiveChatEndpoint: os.Getenv("LIVECHAT_ENDPOINT"),
		LocaleID:         os.Getenv("LOCALE_ID"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CHATBRIDGE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"CHATBRIDGE_DB_DRIVER", config.DbDriver,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CHATBRIDGE_STATE_DIR", config.StateDir,
		"DIALOG_ENDPOINT_SET", config.DialogEndpoint != "",
		"LIVECHAT_ENDPOINT_SET", config.LiveChatEndpoint != "",
		"LOCALE_ID", config.LocaleID)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:         flag.String("state-dir", config.StateDir, "state directory for ChatBridge data (overrides $CHATBRIDGE_STATE_DIR)"),
		dbDriver:         flag.String("db-driver", config.DbDriver, "transcript store driver: sqlite3 or postgres (overrides $CHATBRIDGE_DB_DRIVER)"),
		dbDSN:            flag.String("db-dsn", config.DatabaseURL, "transcript store DSN (overrides $DATABASE_URL)"),
		dialogEndpoint:   flag.String("dialog-endpoint", config.DialogEndpoint, "dialog service endpoint (overrides $DIALOG_ENDPOINT)"),
		liveChatEndpoint: flag.String("livechat-endpoint", config.LiveChatEndpoint, "live-agent gateway endpoint (overrides $LIVECHAT_ENDPOINT)"),
		localeID:         flag.String("locale", config.LocaleID, "dialog locale (overrides $LOCALE_ID)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDriver", *flags.dbDriver,
		"dbDSN_set", *flags.dbDSN != "",
		"dialogEndpoint", *flags.dialogEndpoint,
		"liveChatEndpoint_set", *flags.liveChatEndpoint != "",
		"locale", *flags.localeID)

	return flags
}

// ensureDirectoriesExist creates required directories
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, store.DefaultDirPermissions); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", *flags.stateDir, err)
	}
	return nil
}

// buildTranscriptStore selects the persistence backend from flags.
func buildTranscriptStore(flags Flags) (store.Store, error) {
	switch *flags.dbDriver {
	case "postgres":
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	case "", "sqlite3":
		return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", *flags.dbDriver)
	}
}

// buildLiveChatConfig assembles live-chat settings from the environment.
func buildLiveChatConfig(flags Flags) livechat.Config {
	cfg := livechat.DefaultConfig()
	cfg.Enabled = util.ParseBoolEnv("LIVECHAT_ENABLED", false)
	cfg.Endpoint = *flags.liveChatEndpoint
	cfg.CollectProfile = util.ParseBoolEnv("LIVECHAT_COLLECT_PROFILE", true)
	cfg.PollingInterval = util.ParseDurationEnv("LIVECHAT_POLL_INTERVAL", cfg.PollingInterval)
	cfg.WaitingReminderInterval = util.ParseDurationEnv("LIVECHAT_REMINDER_INTERVAL", cfg.WaitingReminderInterval)
	if lang := os.Getenv("LIVECHAT_SOURCE_LANGUAGE"); lang != "" {
		cfg.SourceLanguage = lang
	}
	if lang := os.Getenv("LIVECHAT_TARGET_LANGUAGE"); lang != "" {
		cfg.TargetLanguage = lang
	}
	return cfg
}

// buildOrchestratorConfig assembles routing settings from the environment.
func buildOrchestratorConfig(flags Flags) conversation.Config {
	cfg := conversation.DefaultConfig()
	if *flags.localeID != "" {
		cfg.LocaleID = *flags.localeID
	}
	cfg.IdleTimeout = util.ParseDurationEnv("IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.ConnectivityBudget = util.ParseDurationEnv("CONNECTIVITY_BUDGET", cfg.ConnectivityBudget)
	cfg.RetryOnTimeout = util.ParseBoolEnv("RETRY_ON_TIMEOUT", cfg.RetryOnTimeout)
	cfg.RetryCeiling = util.ParseIntEnv("RETRY_CEILING", cfg.RetryCeiling)
	if msg := os.Getenv("WELCOME_MESSAGE"); msg != "" {
		cfg.WelcomeMessage = msg
	}
	return cfg
}

// run wires the components together and drives an interactive chat loop on
// stdin until EOF or a termination signal.
func run(flags Flags) error {
	if *flags.dialogEndpoint == "" {
		return fmt.Errorf("dialog endpoint is required (set DIALOG_ENDPOINT or --dialog-endpoint)")
	}

	st, err := buildTranscriptStore(flags)
	if err != nil {
		return fmt.Errorf("failed to open transcript store: %w", err)
	}
	defer st.Close()

	printMessages := func(event string, msg models.Message) {
		switch msg.Type {
		case models.MessageTypeHuman, models.MessageTypeButton:
			// The user typed it; no need to echo.
		default:
			fmt.Printf("[%s] %s\n", msg.Type, msg.Text)
			if msg.ResponseCard != nil {
				for _, b := range msg.ResponseCard.Buttons {
					fmt.Printf("  (%s)\n", b.Text)
				}
			}
		}
	}

	tr := transcript.New(
		transcript.WithStore(st),
		transcript.WithNotifier(printMessages),
	)

	liveChatCfg := buildLiveChatConfig(flags)
	gw := gateway.NewClient(liveChatCfg.Endpoint)
	sched := scheduler.NewScheduler()
	defer sched.Stop()

	manager := livechat.NewManager(liveChatCfg, gw, tr, tr,
		livechat.WithScheduler(sched),
		livechat.WithBusySink(tr),
	)

	dc := dialog.NewHTTPClient(*flags.dialogEndpoint)
	orch := conversation.NewOrchestrator(buildOrchestratorConfig(flags), dc, manager, tr,
		conversation.WithTranslator(gw),
	)
	defer orch.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("Received termination signal, shutting down", "signal", sig)
		orch.ForceEndChat(context.Background(), "")
		cancel()
	}()

	orch.ResetHistory()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			orch.ForceEndChat(ctx, "")
			break
		}
		msg := models.Message{Type: models.MessageTypeHuman, Text: line}
		if err := orch.PostTextMessage(ctx, msg); err != nil {
			slog.Error("Failed to process message", "error", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}
