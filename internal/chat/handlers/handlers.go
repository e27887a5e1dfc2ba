// Package handlers exposes the assistant chat HTTP endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/auth"
	"github.com/taskloop/taskloop/internal/chat/models"
	"github.com/taskloop/taskloop/internal/chat/service"
	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/common/logger"
	userservice "github.com/taskloop/taskloop/internal/user/service"
	v1 "github.com/taskloop/taskloop/pkg/api/v1"
)

// Handler handles chat HTTP requests.
type Handler struct {
	chat   *service.Service
	users  *userservice.Service
	logger *logger.Logger
}

// RegisterRoutes registers the chat endpoints.
func RegisterRoutes(router *gin.Engine, chat *service.Service, users *userservice.Service, tokens *auth.TokenManager, log *logger.Logger) {
	h := &Handler{
		chat:   chat,
		users:  users,
		logger: log.WithFields(zap.String("component", "chat-handlers")),
	}

	api := router.Group("/api/v1", auth.RequireAuth(tokens))
	{
		api.POST("/chat", h.chatTurn)
		api.GET("/conversations", h.listConversations)
		api.GET("/conversations/:id", h.getConversation)
		api.DELETE("/conversations/:id", h.deleteConversation)
	}
}

func (h *Handler) chatTurn(c *gin.Context) {
	userID, err := auth.UserIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req v1.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	displayName := ""
	if user, err := h.users.Get(c.Request.Context(), userID); err == nil {
		displayName = user.DisplayName
	}

	conversationID, reply, err := h.chat.Turn(c.Request.Context(), userID, displayName, req.ConversationID, req.Message)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, v1.ChatResponse{ConversationID: conversationID, Reply: reply})
}

func (h *Handler) listConversations(c *gin.Context) {
	userID, err := auth.UserIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	convs, err := h.chat.ListConversations(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := v1.ListConversationsResponse{Conversations: make([]v1.Conversation, len(convs))}
	for i, conv := range convs {
		resp.Conversations[i] = toAPIConversation(conv)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getConversation(c *gin.Context) {
	userID, err := auth.UserIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	conv, messages, err := h.chat.GetConversation(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	detail := v1.ConversationDetail{
		Conversation: toAPIConversation(conv),
		Messages:     make([]v1.ChatMessage, len(messages)),
	}
	for i, msg := range messages {
		detail.Messages[i] = v1.ChatMessage{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) deleteConversation(c *gin.Context) {
	userID, err := auth.UserIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.chat.DeleteConversation(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func toAPIConversation(conv *models.Conversation) v1.Conversation {
	return v1.Conversation{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
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
