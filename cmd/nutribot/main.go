package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nutriday/nutribot/internal/api"
	"github.com/nutriday/nutribot/internal/flow"
	"github.com/nutriday/nutribot/internal/genai"
	"github.com/nutriday/nutribot/internal/lockfile"
	"github.com/nutriday/nutribot/internal/messaging"
	"github.com/nutriday/nutribot/internal/models"
	"github.com/nutriday/nutribot/internal/plan"
	"github.com/nutriday/nutribot/internal/scheduler"
	"github.com/nutriday/nutribot/internal/sheets"
	"github.com/nutriday/nutribot/internal/store"
	"github.com/nutriday/nutribot/internal/survey"
	"github.com/nutriday/nutribot/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for NutriBot state data
	DefaultStateDir = "/var/lib/nutribot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "nutribot.db"
	// DefaultTimezone fixes the quota calendar and the survey sweep window
	DefaultTimezone = "Europe/Kyiv"
	// DefaultSweepCron runs the survey eligibility sweep every 5 minutes;
	// the manager itself skips sweeps outside the messaging window
	DefaultSweepCron = "*/5 * * * *"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	if err := run(flags); err != nil {
		slog.Error("NutriBot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("NutriBot exited successfully")
}

// Config holds environment configuration
type Config struct {
	TelegramToken string
	DbDSN         string
	StateDir      string
	OpenAIKey     string
	APIAddr       string
	SweepCron     string
	Timezone      string
	SheetsCreds   string
	SpreadsheetID string
}

// Flags holds command line flag values
type Flags struct {
	telegramToken *string
	stateDir      *string
	dbDSN         *string
	openaiKey     *string
	apiAddr       *string
	sweepCron     *string
	timezone      *string
	sheetsCreds   *string
	spreadsheetID *string
}

// initializeLogger sets up structured logging. Debug level is enabled with
// NUTRIBOT_DEBUG.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("NUTRIBOT_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DbDSN:         os.Getenv("DATABASE_URL"),
		StateDir:      util.GetenvDefault("NUTRIBOT_STATE_DIR", DefaultStateDir),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		APIAddr:       os.Getenv("API_ADDR"),
		SweepCron:     util.GetenvDefault("SURVEY_SWEEP_SCHEDULE", DefaultSweepCron),
		Timezone:      util.GetenvDefault("NUTRIBOT_TZ", DefaultTimezone),
		SheetsCreds:   os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		SpreadsheetID: os.Getenv("SURVEY_SPREADSHEET_ID"),
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DbDSN == "" {
		config.DbDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DbDSN)
	}

	slog.Debug("environment variables loaded",
		"TELEGRAM_BOT_TOKEN_SET", config.TelegramToken != "",
		"DATABASE_URL_SET", os.Getenv("DATABASE_URL") != "",
		"NUTRIBOT_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"SURVEY_SWEEP_SCHEDULE", config.SweepCron,
		"NUTRIBOT_TZ", config.Timezone,
		"SURVEY_SPREADSHEET_ID_SET", config.SpreadsheetID != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		telegramToken: flag.String("telegram-token", config.TelegramToken, "Telegram bot token (overrides $TELEGRAM_BOT_TOKEN)"),
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for NutriBot data (overrides $NUTRIBOT_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DbDSN, "database DSN: PostgreSQL URL or SQLite file path (overrides $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "admin API server address, empty disables the API (overrides $API_ADDR)"),
		sweepCron:     flag.String("sweep-cron", config.SweepCron, "cron schedule of the survey eligibility sweep (overrides $SURVEY_SWEEP_SCHEDULE)"),
		timezone:      flag.String("timezone", config.Timezone, "IANA timezone for quotas and survey windows (overrides $NUTRIBOT_TZ)"),
		sheetsCreds:   flag.String("sheets-credentials", config.SheetsCreds, "path to Google service account credentials JSON (overrides $GOOGLE_CREDENTIALS_FILE)"),
		spreadsheetID: flag.String("spreadsheet-id", config.SpreadsheetID, "Google spreadsheet id for survey export (overrides $SURVEY_SPREADSHEET_ID)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"telegramTokenSet", *flags.telegramToken != "",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"sweepCron", *flags.sweepCron,
		"timezone", *flags.timezone)

	return flags
}

// ensureDirectoriesExist creates the state directory for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func run(flags Flags) error {
	if *flags.telegramToken == "" {
		slog.Error("Telegram bot token is required")
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	loc, err := time.LoadLocation(*flags.timezone)
	if err != nil {
		slog.Warn("Failed to load timezone, falling back to UTC", "error", err, "timezone", *flags.timezone)
		loc = time.UTC
	}

	profiles, err := openStore(flags)
	if err != nil {
		return err
	}
	defer profiles.Close()

	msg, err := messaging.NewTelegramService(*flags.telegramToken)
	if err != nil {
		return err
	}

	generator, err := genai.NewClient(*flags.openaiKey)
	if err != nil {
		return err
	}

	sink, err := openSink(flags)
	if err != nil {
		return err
	}

	timer := flow.NewSimpleTimer()
	states := flow.NewInMemoryStateStore()

	surveyMgr := survey.NewManager(profiles, msg, sink, timer, loc)
	plans := plan.NewService(profiles, msg, generator, loc)
	onboarding := flow.NewOnboarding(states, profiles, msg)
	food := flow.NewFood(states, profiles, msg)
	dispatcher := flow.NewDispatcher(states, profiles, msg, onboarding, food, surveyMgr, plans)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := msg.Start(ctx); err != nil {
		return err
	}
	go dispatcher.Run(ctx)

	sched := scheduler.NewScheduler(loc)
	if err := sched.AddJob(*flags.sweepCron, func() {
		surveyMgr.Sweep(context.Background())
	}); err != nil {
		return err
	}

	var adminAPI *api.Server
	if *flags.apiAddr != "" {
		adminAPI = api.NewServer(*flags.apiAddr, profiles)
		adminAPI.Start()
	}

	slog.Info("NutriBot started", "timezone", loc.String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("Shutdown signal received", "signal", sig.String())

	sched.Stop()
	if err := msg.Stop(); err != nil {
		slog.Error("Messaging service stop failed", "error", err)
	}
	cancel()
	dispatcher.Wait()
	surveyMgr.Stop()
	timer.Stop()
	if adminAPI != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := adminAPI.Shutdown(shutdownCtx); err != nil {
			slog.Error("Admin API shutdown failed", "error", err)
		}
	}
	return nil
}

// openStore selects the storage backend from the DSN.
func openStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}

// openSink builds the survey export sink. Without spreadsheet configuration
// the answers are only logged.
func openSink(flags Flags) (survey.Sink, error) {
	if *flags.spreadsheetID == "" || *flags.sheetsCreds == "" {
		slog.Warn("Survey spreadsheet not configured, survey answers will only be logged")
		return logSink{}, nil
	}
	creds, err := os.ReadFile(*flags.sheetsCreds)
	if err != nil {
		return nil, err
	}
	return sheets.NewSink(context.Background(), creds, *flags.spreadsheetID)
}

// logSink records survey answers in the log when no spreadsheet is configured.
type logSink struct{}

func (logSink) AppendSurveyRow(_ context.Context, profile *models.UserProfile, answers []string) error {
	slog.Info("Survey answers", "chatID", profile.ChatID, "answers", strings.Join(answers, " | "))
	return nil
}
