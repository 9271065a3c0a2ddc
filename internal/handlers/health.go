package handlers

import (
	"net/http"
	"time"

	"autoflow/internal/metrics"
	"autoflow/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler reports process liveness and engine counters.
type HealthHandler struct {
	db  *gorm.DB
	hub *services.NotificationHub
}

func NewHealthHandler(db *gorm.DB, hub *services.NotificationHub) *HealthHandler {
	return &HealthHandler{db: db, hub: hub}
}

// Health 健康检查
func (h *HealthHandler) Health(c *gin.Context) {
	status := "ok"
	dbStatus := "ok"
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err != nil || sqlDB.Ping() != nil {
			status = "degraded"
			dbStatus = "unreachable"
		}
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"database":  dbStatus,
		"timestamp": time.Now().UTC(),
	})
}

// Stats 引擎运行指标
func (h *HealthHandler) Stats(c *gin.Context) {
	total, byStatus := metrics.ExecutionSnapshot()
	stats := gin.H{
		"executions_total":     total,
		"executions_by_status": byStatus,
		"queue_drops":          metrics.QueueDrops(),
		"scanner_sweeps":       metrics.ScanSweeps(),
	}
	if h.hub != nil {
		stats["notification_clients"] = h.hub.ClientCount()
	}
	c.JSON(http.StatusOK, stats)
}
