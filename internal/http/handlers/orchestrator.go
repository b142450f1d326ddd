package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/conductor-backend/internal/domain"
	"github.com/yungbote/conductor-backend/internal/http/response"
	"github.com/yungbote/conductor-backend/internal/orchestrator"
)

type OrchestratorHandler struct {
	orch *orchestrator.Service
}

func NewOrchestratorHandler(orch *orchestrator.Service) *OrchestratorHandler {
	return &OrchestratorHandler{orch: orch}
}

// GET /api/orchestrator/status
func (h *OrchestratorHandler) GetStatus(c *gin.Context) {
	status, err := h.orch.Status(c.Request.Context())
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "status_failed", err)
		return
	}
	response.RespondOK(c, status)
}

// GET /api/orchestrator/tasks
func (h *OrchestratorHandler) GetTasks(c *gin.Context) {
	tasks, err := h.orch.ListTasksWithOutputs(c.Request.Context(), 50)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_tasks_failed", err)
		return
	}
	response.RespondOK(c, tasks)
}

type retryRequest struct {
	FromStage *string `json:"from_stage"`
}

// POST /api/orchestrator/retry/:task_id
func (h *OrchestratorHandler) RetryTask(c *gin.Context) {
	taskID, err := uuid.Parse(c.Param("task_id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_task_id", err)
		return
	}

	var req retryRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
			return
		}
	}

	var fromStage *types.Stage
	if req.FromStage != nil {
		stage, err := types.ParseStage(*req.FromStage)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_stage", err)
			return
		}
		fromStage = &stage
	}

	switch err := h.orch.Retry(c.Request.Context(), taskID, fromStage); {
	case err == nil:
		response.RespondOK(c, gin.H{"retried": taskID})
	case errors.Is(err, orchestrator.ErrTaskNotFound):
		response.RespondError(c, http.StatusNotFound, "task_not_found", err)
	case errors.Is(err, orchestrator.ErrTaskBusy):
		response.RespondError(c, http.StatusConflict, "task_busy", err)
	default:
		response.RespondError(c, http.StatusInternalServerError, "retry_failed", err)
	}
}
