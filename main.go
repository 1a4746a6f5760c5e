package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/spf13/cobra"

	"profile-messenger/auth"
	"profile-messenger/batch"
	"profile-messenger/browser"
	"profile-messenger/challenge"
	"profile-messenger/config"
	"profile-messenger/logger"
	"profile-messenger/message"
	"profile-messenger/nav"
	"profile-messenger/ratelimit"
	"profile-messenger/session"
	"profile-messenger/stealth"
	"profile-messenger/storage"
)

var (
	configFile string
	verbose    bool
	headless   bool
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "profile-messenger",
		Short: "Automated profile messaging tool",
		Long:  `Drives a browser through an authenticated messaging workflow and records one structured outcome per target profile.`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./config/config.yaml", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "Run browser in headless mode")

	rootCmd.AddCommand(createRunCmd())
	rootCmd.AddCommand(createStatusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func createRunCmd() *cobra.Command {
	var (
		messageText string
		interactive bool
		output      string
	)

	var cmd = &cobra.Command{
		Use:   "run",
		Short: "Run a batch messaging pass over the configured profiles",
		Long:  `Process every configured profile in order: navigate, authenticate if required, resolve any anti-bot challenge, and deliver the message.`,
		RunE:  runBatch,
	}

	cmd.Flags().StringVar(&messageText, "message", "", "Message text (overrides config)")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "Allow a bounded manual challenge-solve window")
	cmd.Flags().StringVar(&output, "output", "", "Write the run's outcomes to this JSON file")

	return cmd
}

func createStatusCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "status",
		Short: "Show status and statistics",
		Long:  `Display configuration and today's attempt statistics.`,
		RunE:  runStatus,
	}

	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}

	if err := setupLogger(cfg.Logging); err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	log := logger.GetLogger()

	if v, _ := cmd.Flags().GetString("message"); v != "" {
		cfg.Run.Message = v
	}
	if v, _ := cmd.Flags().GetBool("interactive"); v {
		cfg.Run.Interactive = true
	}
	output, _ := cmd.Flags().GetString("output")
	cfg.Browser.Headless = headless && !cfg.Run.Interactive

	if err := config.Validate(cfg); err != nil {
		return err
	}

	db, err := storage.NewDatabase(cfg.Storage.Path, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// Browser launch failure is fatal to the whole run.
	browserManager := browser.NewManager(cfg.Browser, log)
	if err := browserManager.Launch(); err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer browserManager.Close()

	page, err := browserManager.NewPage()
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	sim := stealth.NewSimulator(cfg.Timing, log)
	sessions := session.NewAdapter(db, log)

	var transcriber challenge.Transcriber = challenge.NoTranscriber{}
	if cfg.Challenge.TranscriberKey != "" {
		transcriber = challenge.NewWhisperTranscriber(cfg.Challenge.TranscriberKey)
	}
	chain := challenge.NewChain(page, sim, transcriber, cfg.Timing, cfg.Run.Interactive, log)

	authManager := auth.NewManager(page, sim, sessions, chain,
		cfg.Account.Identity, cfg.Account.Secret, cfg.Timing.LoginGrace, log)
	pipeline := message.NewPipeline(page, sim,
		cfg.Timing.ComposerWait, cfg.Timing.PostSendSettle, cfg.Run.SkipUnavailable, log)

	pacer := ratelimit.NewPacer(ratelimit.Config{
		PauseMin:      cfg.Timing.ProfilePauseMin,
		PauseMax:      cfg.Timing.ProfilePauseMax,
		DailyMessages: cfg.Limits.DailyMessages,
	}, log)
	if sent, err := db.CountSentOn(time.Now()); err == nil {
		pacer.Seed(sent)
	}

	orchestrator := batch.NewOrchestrator(
		&pageNavigator{ctrl: nav.NewController(cfg.Nav, log), page: page},
		authManager,
		pipeline,
		&sessionRestorer{adapter: sessions, page: page, identity: cfg.Account.Identity},
		pacer,
		db,
		log,
	)

	summary, err := orchestrator.Run(context.Background(), cfg.Run.Profiles, cfg.Run.Message)
	if err != nil {
		return fmt.Errorf("batch run failed: %w", err)
	}

	fmt.Printf("Run completed!\n")
	fmt.Printf("Total profiles: %d\n", summary.Total)
	fmt.Printf("Successful: %d\n", summary.Succeeded)
	fmt.Printf("Failed: %d\n", summary.Failed)

	if output != "" {
		if err := exportOutcomes(db, summary.RunID, output); err != nil {
			log.WithError(err).Error("Failed to export outcomes")
		} else {
			fmt.Printf("Outcomes saved to: %s\n", output)
		}
	}

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}

	if err := setupLogger(cfg.Logging); err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}

	db, err := storage.NewDatabase(cfg.Storage.Path, logger.GetLogger())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	stats, err := db.GetDailyStats(time.Now())
	if err != nil {
		return fmt.Errorf("failed to get daily stats: %w", err)
	}

	fmt.Printf("Profile Messenger Status\n")
	fmt.Printf("========================\n\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Config file: %s\n", configFile)
	fmt.Printf("  Identity: %s\n", maskIdentity(cfg.Account.Identity))
	fmt.Printf("  Profiles: %d\n", len(cfg.Run.Profiles))
	fmt.Printf("\n")
	fmt.Printf("Today:\n")
	fmt.Printf("  Attempts: %d\n", stats["attempts_total"])
	fmt.Printf("  Succeeded: %d\n", stats["attempts_succeeded"])
	fmt.Printf("  Messages sent: %d/%d\n", stats["messages_sent"], cfg.Limits.DailyMessages)

	return nil
}

// Adapters binding the orchestrator's collaborators to the shared page.

type pageNavigator struct {
	ctrl *nav.Controller
	page *rod.Page
}

func (n *pageNavigator) Navigate(ctx context.Context, url string) error {
	return n.ctrl.Navigate(ctx, n.page, url)
}

type sessionRestorer struct {
	adapter  *session.Adapter
	page     *rod.Page
	identity string
}

func (r *sessionRestorer) Restore() error {
	cookies, found, err := r.adapter.Load(r.identity)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return r.adapter.Apply(r.page, r.identity, cookies)
}

// Helper functions

func setupLogger(cfg config.LoggingConfig) error {
	level := cfg.Level
	if verbose {
		level = "debug"
	}
	return logger.InitLogger(level, cfg.Format, cfg.Output)
}

func exportOutcomes(db *storage.Database, runID, outputPath string) error {
	attempts, err := db.GetAttemptsByRun(runID)
	if err != nil {
		return fmt.Errorf("failed to load outcomes: %w", err)
	}

	jsonData, err := json.MarshalIndent(attempts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	return os.WriteFile(outputPath, jsonData, 0644)
}

func maskIdentity(identity string) string {
	if identity == "" {
		return ""
	}

	parts := strings.Split(identity, "@")
	if len(parts) != 2 {
		return identity
	}

	username := parts[0]
	if len(username) <= 2 {
		return identity
	}

	return username[:2] + strings.Repeat("*", len(username)-2) + "@" + parts[1]
}
