package handlers

import (
	"net/http"
	"strconv"

	"autoflow/internal/engine"
	"autoflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// AutomationHandler exposes rule CRUD, the execution history query surface,
// dry runs, and the event ingestion endpoint the surrounding CRM calls.
type AutomationHandler struct {
	service *services.AutomationService
	engine  *engine.Engine
}

func NewAutomationHandler(service *services.AutomationService, eng *engine.Engine) *AutomationHandler {
	return &AutomationHandler{service: service, engine: eng}
}

// ListAutomations 获取规则列表
func (h *AutomationHandler) ListAutomations(c *gin.Context) {
	projectID := cast.ToUint(c.Query("project_id"))
	rules, err := h.service.List(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list automations", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

// GetAutomation 获取单条规则
func (h *AutomationHandler) GetAutomation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rule, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Automation not found", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// CreateAutomation 创建规则
func (h *AutomationHandler) CreateAutomation(c *gin.Context) {
	var req services.AutomationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	rule, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to create automation", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// UpdateAutomation 更新规则
func (h *AutomationHandler) UpdateAutomation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req services.AutomationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	rule, err := h.service.Update(c.Request.Context(), id, &req)
	if err != nil {
		status := http.StatusBadRequest
		if err.Error() == "automation not found" {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to update automation", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteAutomation 删除规则（执行历史保留）
func (h *AutomationHandler) DeleteAutomation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if err.Error() == "automation not found" {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to delete automation", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// SetActive 启用/停用规则
func (h *AutomationHandler) SetActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		if err := h.service.SetActive(c.Request.Context(), id, active); err != nil {
			status := http.StatusInternalServerError
			if err.Error() == "automation not found" {
				status = http.StatusNotFound
			}
			c.JSON(status, ErrorResponse{Error: "Failed to update automation", Message: err.Error()})
			return
		}
		msg := "deactivated"
		if active {
			msg = "activated"
		}
		c.JSON(http.StatusOK, SuccessResponse{Message: msg})
	}
}

// ListExecutions 查询执行历史
func (h *AutomationHandler) ListExecutions(c *gin.Context) {
	filter := services.ExecutionFilter{
		AutomationID: cast.ToUint(c.Query("automation_id")),
		EntityType:   c.Query("entity_type"),
		EntityID:     c.Query("entity_id"),
		Status:       c.Query("status"),
		Page:         cast.ToInt(c.DefaultQuery("page", "1")),
		PageSize:     cast.ToInt(c.DefaultQuery("page_size", "50")),
	}
	page, err := h.service.ListExecutions(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list executions", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, page)
}

// EventRequest is the ingestion shape for domain events.
type EventRequest struct {
	ProjectID    uint                   `json:"project_id" binding:"required"`
	TriggerType  string                 `json:"trigger_type" binding:"required"`
	EntityType   string                 `json:"entity_type"`
	EntityID     string                 `json:"entity_id"`
	Data         map[string]interface{} `json:"data"`
	PreviousData map[string]interface{} `json:"previous_data"`
	Metadata     map[string]interface{} `json:"metadata"`
}

func (r *EventRequest) toEvent() *engine.Event {
	ev := engine.NewEvent(r.ProjectID, r.TriggerType, r.EntityType, r.EntityID, r.Data)
	ev.PreviousData = r.PreviousData
	ev.Metadata = r.Metadata
	return ev
}

// EmitEvent 接收领域事件，异步进入引擎（fire-and-forget）
func (h *AutomationHandler) EmitEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	if !engine.KnownTriggerType(req.TriggerType) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: "unknown trigger type: " + req.TriggerType})
		return
	}
	ev := req.toEvent()
	h.engine.Emit(ev)
	// The response carries only the correlation id; automation outcomes are
	// visible through the execution history, never on this path.
	c.JSON(http.StatusAccepted, gin.H{"event_id": ev.ID})
}

// DryRun 试运行：返回事件会命中的规则，不执行动作
func (h *AutomationHandler) DryRun(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	resp, err := h.service.DryRun(c.Request.Context(), req.toEvent())
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Dry run failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return 0, false
	}
	return uint(id), true
}

// RegisterAutomationRoutes 注册路由
func RegisterAutomationRoutes(r *gin.RouterGroup, handler *AutomationHandler) {
	auto := r.Group("/automations")
	{
		auto.GET("", handler.ListAutomations)
		auto.POST("", handler.CreateAutomation)
		auto.GET(":id", handler.GetAutomation)
		auto.PUT(":id", handler.UpdateAutomation)
		auto.DELETE(":id", handler.DeleteAutomation)
		auto.POST(":id/activate", handler.SetActive(true))
		auto.POST(":id/deactivate", handler.SetActive(false))
		auto.POST("dry-run", handler.DryRun)
	}
	r.GET("/executions", handler.ListExecutions)
	r.POST("/events", handler.EmitEvent)
}
