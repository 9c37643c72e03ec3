package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mimiza/smm/internal/activity"
	"github.com/mimiza/smm/internal/app"
	"github.com/mimiza/smm/internal/config"
	"github.com/mimiza/smm/internal/logger"
)

var (
	walkConfigPath string
	walkPlan       string
)

// walkCmd represents the walk command
var walkCmd = &cobra.Command{
	Use:   "walk",
	Short: "Run one scheduling walk and exit",
	Long: `Walk the enabled activity plans once, creating pending activities for
every free slot, then exit. With --plan only that plan is walked. Useful for
inspecting what the walk trigger would do.`,
	Run: walkHandler,
}

func walkHandler(cmd *cobra.Command, args []string) {
	if err := config.LoadEnvOptional("./.env"); err != nil {
		fmt.Printf("Failed to load .env file: %v\n", err)
		os.Exit(1)
	}

	configPath := walkConfigPath
	if configPath == "" {
		configPath = "./config.toml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if errors := cfg.Validate(); len(errors) > 0 {
		fmt.Printf("Configuration validation failed:\n")
		for _, e := range errors {
			fmt.Printf("  - %v\n", e)
		}
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("Failed to assemble application", err)
		os.Exit(1)
	}

	ctx := context.Background()
	summary, walkErr := walkOnce(ctx, application)
	fmt.Printf("created: %d, skipped: %d, no slot: %d\n", summary.Created, summary.Skipped, summary.NoSlot)

	if err := application.Shutdown(ctx); err != nil {
		log.Error("Shutdown finished with errors", err)
	}
	if walkErr != nil {
		log.Error("Walk failed", walkErr)
		os.Exit(1)
	}
}

func walkOnce(ctx context.Context, application *app.App) (activity.Summary, error) {
	if walkPlan != "" {
		return application.Engine.WalkPlan(ctx, walkPlan)
	}
	return application.Engine.WalkEnabledPlans(ctx)
}

func init() {
	walkCmd.Flags().StringVarP(&walkConfigPath, "config", "c", "", "Path to configuration file (default: ./config.toml)")
	walkCmd.Flags().StringVarP(&walkPlan, "plan", "p", "", "Walk only this plan")
}
