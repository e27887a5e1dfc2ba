package agent

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskloop/taskloop/internal/auth"
	"github.com/taskloop/taskloop/internal/common/logger"
)

// RegisterRoutes exposes the tool surface over HTTP. The MCP server calls
// this endpoint with a service token and an acting-user header; regular
// user tokens work too.
func RegisterRoutes(router *gin.Engine, registry *Registry, tokens *auth.TokenManager, log *logger.Logger) {
	api := router.Group("/api/v1", auth.RequireAuth(tokens))
	api.POST("/tools/:name", func(c *gin.Context) {
		userID, err := auth.UserIDFrom(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		if len(body) == 0 {
			body = []byte("{}")
		}
		if !json.Valid(body) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
			return
		}

		result := registry.Execute(c.Request.Context(), userID, c.Param("name"), body)
		c.JSON(http.StatusOK, result)
	})
}
