// Package handlers exposes the task HTTP endpoints.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/auth"
	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/common/logger"
	"github.com/taskloop/taskloop/internal/task/models"
	"github.com/taskloop/taskloop/internal/task/repository"
	"github.com/taskloop/taskloop/internal/task/service"
	v1 "github.com/taskloop/taskloop/pkg/api/v1"
)

// Handler handles task HTTP requests.
type Handler struct {
	service *service.Service
	logger  *logger.Logger
}

// RegisterRoutes registers the task and tag endpoints. Every route requires
// a valid token; service tokens act on behalf of the user named in the
// acting-user header.
func RegisterRoutes(router *gin.Engine, svc *service.Service, tokens *auth.TokenManager, log *logger.Logger) {
	h := &Handler{
		service: svc,
		logger:  log.WithFields(zap.String("component", "task-handlers")),
	}

	api := router.Group("/api/v1", auth.RequireAuth(tokens))
	{
		api.POST("/tasks", h.createTask)
		api.GET("/tasks", h.listTasks)
		api.GET("/tasks/search", h.searchTasks)
		api.GET("/tasks/:id", h.getTask)
		api.PATCH("/tasks/:id", h.updateTask)
		api.DELETE("/tasks/:id", h.deleteTask)
		api.POST("/tasks/:id/toggle", h.toggleComplete)
		api.PUT("/tasks/:id/reminder", h.setReminder)
		api.POST("/tasks/:id/tags", h.addTag)
		api.DELETE("/tasks/:id/tags/:name", h.removeTag)
		api.GET("/tags", h.listTags)
		api.DELETE("/tags/:id", h.deleteTag)
	}
}

func (h *Handler) createTask(c *gin.Context) {
	userID, err := auth.UserIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req v1.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	task, err := h.service.CreateTask(c.Request.Context(), userID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, task.ToAPI(time.Now().UTC()))
}

func (h *Handler) listTasks(c *gin.Context) {
	userID, err := auth.UserIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	filter, err := parseFilter(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	tasks, err := h.service.ListTasks(c.Request.Context(), userID, filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listResponse(tasks))
}

func (h *Handler) searchTasks(c *gin.Context) {
	userID, err := auth.UserIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	tasks, err := h.service.SearchTasks(c.Request.Context(), userID, c.Query("q"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listResponse(tasks))
}

func (h *Handler) getTask(c *gin.Context) {
	userID, err := auth.UserIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	task, err := h.service.GetTask(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, task.ToAPI(time.Now().UTC()))
}

func (h *Handler) updateTask(c *gin.Context) {
	userID, err := auth.UserIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req v1.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	task, err := h.service.UpdateTask(c.Request.Context(), userID, c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, task.ToAPI(time.Now().UTC()))
}

func (h *Handler) deleteTask(c *gin.Context) {
	userID, err := auth.UserIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.service.DeleteTask(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) toggleComplete(c *gin.Context) {
	userID, err := auth.UserIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	task, err := h.service.ToggleComplete(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, task.ToAPI(time.Now().UTC()))
}

func (h *Handler) setReminder(c *gin.Context) {
	userID, err := auth.UserIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req v1.SetReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	task, err := h.service.SetReminder(c.Request.Context(), userID, c.Param("id"), req.RemindAt)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, task.ToAPI(time.Now().UTC()))
}

func (h *Handler) addTag(c *gin.Context) {
	userID, err := auth.UserIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req v1.TagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	task, err := h.service.AddTag(c.Request.Context(), userID, c.Param("id"), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, task.ToAPI(time.Now().UTC()))
}

func (h *Handler) removeTag(c *gin.Context) {
	userID, err := auth.UserIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	task, err := h.service.RemoveTag(c.Request.Context(), userID, c.Param("id"), c.Param("name"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, task.ToAPI(time.Now().UTC()))
}

func (h *Handler) listTags(c *gin.Context) {
	userID, err := auth.UserIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	tags, err := h.service.ListTags(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := v1.ListTagsResponse{Tags: make([]*v1.Tag, len(tags))}
	for i, tag := range tags {
		resp.Tags[i] = tag.ToAPI()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) deleteTag(c *gin.Context) {
	userID, err := auth.UserIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.service.DeleteTag(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// parseFilter builds a repository filter from the listing query parameters.
func parseFilter(c *gin.Context) (*repository.Filter, error) {
	filter := &repository.Filter{
		Priority:  v1.Priority(c.Query("priority")),
		Tag:       c.Query("tag"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
		Now:       time.Now().UTC(),
	}

	if raw := c.Query("completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, apperr.Validationf("invalid completed value: %s", raw)
		}
		filter.Completed = &completed
	}
	if raw := c.Query("overdue"); raw != "" {
		overdue, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, apperr.Validationf("invalid overdue value: %s", raw)
		}
		filter.Overdue = overdue
	}
	if raw := c.Query("due_before"); raw != "" {
		dueBefore, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, apperr.Validationf("invalid due_before value: %s", raw)
		}
		utc := dueBefore.UTC()
		filter.DueBefore = &utc
	}
	return filter, nil
}

func listResponse(tasks []*models.Task) v1.ListTasksResponse {
	now := time.Now().UTC()
	resp := v1.ListTasksResponse{
		Tasks: make([]*v1.Task, len(tasks)),
		Count: len(tasks),
	}
	for i, task := range tasks {
		resp.Tasks[i] = task.ToAPI(now)
	}
	return resp
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.Validation:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperr.Unauthorized:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case apperr.NotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperr.Conflict:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.WithContext(c.Request.Context()).Error("internal error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
