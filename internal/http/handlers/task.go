package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/conductor-backend/internal/http/response"
	"github.com/yungbote/conductor-backend/internal/services"
)

type TaskHandler struct {
	tasks services.TaskService
}

func NewTaskHandler(tasks services.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

type createTaskRequest struct {
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// POST /api/tasks
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	projectID := uuid.Nil
	if req.ProjectID != "" {
		parsed, err := uuid.Parse(req.ProjectID)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
			return
		}
		projectID = parsed
	}

	task, err := h.tasks.Create(c.Request.Context(), projectID, req.Title, req.Description)
	if err != nil {
		if errors.Is(err, services.ErrTitleRequired) {
			response.RespondError(c, http.StatusBadRequest, "title_required", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "create_task_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"task": task})
}

// GET /api/tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_task_id", err)
		return
	}
	task, err := h.tasks.GetByID(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "get_task_failed", err)
		return
	}
	if task == nil {
		response.RespondError(c, http.StatusNotFound, "task_not_found", errors.New("task not found"))
		return
	}
	response.RespondOK(c, gin.H{"task": task})
}
