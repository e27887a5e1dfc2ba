// Package handlers exposes the auth HTTP endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/auth"
	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/common/logger"
	"github.com/taskloop/taskloop/internal/user/service"
	v1 "github.com/taskloop/taskloop/pkg/api/v1"
)

// Handler handles auth HTTP requests.
type Handler struct {
	service *service.Service
	logger  *logger.Logger
}

// RegisterRoutes registers the auth endpoints. Register and login are
// public; the rest require a valid token.
func RegisterRoutes(router *gin.Engine, svc *service.Service, tokens *auth.TokenManager, log *logger.Logger) {
	h := &Handler{
		service: svc,
		logger:  log.WithFields(zap.String("component", "auth-handlers")),
	}

	public := router.Group("/api/v1/auth")
	{
		public.POST("/register", h.register)
		public.POST("/login", h.login)
	}

	authed := router.Group("/api/v1/auth", auth.RequireAuth(tokens))
	{
		authed.GET("/me", h.me)
		authed.PATCH("/me", h.updateProfile)
		// Tokens are stateless; logout is a client-side discard.
		authed.POST("/logout", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	}
}

func (h *Handler) register(c *gin.Context) {
	var req v1.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	user, token, err := h.service.Register(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, v1.AuthResponse{Token: token, User: user.ToAPI()})
}

func (h *Handler) login(c *gin.Context) {
	var req v1.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	user, token, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, v1.AuthResponse{Token: token, User: user.ToAPI()})
}

func (h *Handler) me(c *gin.Context) {
	principal, err := auth.PrincipalFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	user, err := h.service.Get(c.Request.Context(), principal.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user.ToAPI())
}

type updateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

func (h *Handler) updateProfile(c *gin.Context) {
	principal, err := auth.PrincipalFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	user, err := h.service.UpdateProfile(c.Request.Context(), principal.UserID, req.DisplayName, req.AvatarURL)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user.ToAPI())
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
