package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ActingUserHeader names the user a service token acts on behalf of.
const ActingUserHeader = "X-Acting-User-ID"

// RequireAuth verifies the bearer token and stores the resolved principal on
// the context. Tokens are read from the Authorization header or, for
// websocket upgrades, from the token query parameter. Requests with a
// service token must name an acting user via X-Acting-User-ID.
func RequireAuth(tokens *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		claims, err := tokens.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		principal := &Principal{
			UserID: claims.UserID,
			Email:  claims.Email,
			Role:   claims.Role,
		}
		if claims.Role == RoleService {
			acting := strings.TrimSpace(c.GetHeader(ActingUserHeader))
			if acting == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
				return
			}
			principal.Service = claims.UserID
			principal.UserID = acting
			principal.Email = ""
		}

		SetPrincipal(c, principal)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	// Browsers cannot set headers on websocket upgrades.
	return strings.TrimSpace(c.Query("token"))
}
