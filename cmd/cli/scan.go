package cli

import (
	"context"
	"fmt"

	"autoflow/internal/collab"
	"autoflow/internal/config"
	"autoflow/internal/engine"
	"autoflow/internal/services"
	"autoflow/pkg/webhook"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one time-based scanner sweep and exit",
	Long: `Runs a single sweep of the time-based triggers (inactivity, overdue
tasks, approaching close dates, created-N-days-ago) against the configured
database. Useful for cron-style deployments and for debugging rules.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	store := collab.NewStore(db, appLogger)
	hub := services.NewNotificationHub(appLogger)
	webhookClient := webhook.NewClient(&webhook.Config{
		URL:        cfg.Webhook.URL,
		Secret:     cfg.Webhook.Secret,
		Timeout:    cfg.Webhook.Timeout,
		MaxRetries: cfg.Webhook.MaxRetries,
		RetryDelay: cfg.Webhook.RetryDelay,
	}, appLogger)

	executor := engine.NewExecutor(engine.Collaborators{
		Tasks:      store,
		Fields:     store,
		Stages:     store,
		Owners:     store,
		Notifier:   hub,
		Mailer:     store,
		Sequences:  store,
		Tags:       store,
		Research:   store,
		Activities: store,
		Webhooks:   webhookClient,
	}, appLogger)

	eng := engine.New(engine.Config{},
		engine.NewMatcher(db, appLogger),
		engine.NewOrchestrator(executor, appLogger),
		engine.NewRecorder(db, appLogger),
		appLogger)

	scanner := engine.NewScanner(db, eng, engine.ScannerConfig{
		FireCooldown: cfg.Scanner.FireCooldown,
	}, appLogger)
	return scanner.Scan(context.Background())
}
