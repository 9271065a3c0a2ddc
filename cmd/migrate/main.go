package main

import (
	"fmt"
	"log"
	"os"

	"autoflow/internal/config"
	"autoflow/internal/models"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Starting database migration...")

	err = db.AutoMigrate(
		&models.User{},
		&models.Organization{},
		&models.Person{},
		&models.Opportunity{},
		&models.Task{},
		&models.Activity{},
		&models.OutboundEmail{},
		&models.SequenceEnrollment{},
		&models.ResearchJob{},
		&models.Automation{},
		&models.AutomationExecution{},
		&models.AutomationFireMark{},
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database migration completed successfully!")

	// 复合索引
	log.Println("Creating additional indexes...")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_executions_automation_executed ON automation_executions(automation_id, executed_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_executions_status_executed ON automation_executions(status, executed_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_tasks_project_due ON tasks(project_id, due_date)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_opportunities_project_close ON opportunities(project_id, close_date)")
	log.Println("Done.")
}
