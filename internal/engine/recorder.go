package engine

import (
	"context"
	"time"

	"autoflow/internal/metrics"
	"autoflow/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Recorder persists execution records and bumps automation statistics.
// Writes are append-only; an execution outlives its automation.
type Recorder struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewRecorder(db *gorm.DB, logger *logrus.Logger) *Recorder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Recorder{db: db, logger: logger}
}

// Record stores the execution and, unless the run was skipped, increments
// the automation's execution_count and last_executed_at. A record write
// failure is logged, never propagated to the event path.
func (r *Recorder) Record(ctx context.Context, exec *models.AutomationExecution) {
	if err := r.db.WithContext(ctx).Create(exec).Error; err != nil {
		r.logger.Errorf("automation %d: record execution failed: %v", exec.AutomationID, err)
		return
	}
	metrics.IncExecution(exec.Status)
	if exec.Status != StatusSkipped {
		r.BumpStats(ctx, exec.AutomationID)
	}
}

// BumpStats updates the only rule fields the engine is allowed to touch.
func (r *Recorder) BumpStats(ctx context.Context, automationID uint) {
	now := time.Now()
	if err := r.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ?", automationID).
		Updates(map[string]interface{}{
			"execution_count":  gorm.Expr("execution_count + 1"),
			"last_executed_at": now,
		}).Error; err != nil {
		r.logger.Warnf("automation %d: bump stats failed: %v", automationID, err)
	}
}
