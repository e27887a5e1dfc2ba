package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/taskloop/taskloop/internal/common/apperr"
)

// principalKey is the gin context key set by RequireAuth.
const principalKey = "auth.principal"

// Principal is the resolved identity of a request. For service tokens,
// UserID is the acting user named in the X-Acting-User-ID header and
// Service holds the worker identity from the token.
type Principal struct {
	UserID  string
	Email   string
	Role    Role
	Service string
}

// SetPrincipal stores the principal on the request context.
func SetPrincipal(c *gin.Context, p *Principal) {
	c.Set(principalKey, p)
}

// PrincipalFrom returns the principal set by RequireAuth.
func PrincipalFrom(c *gin.Context) (*Principal, error) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, apperr.Unauthorizedf("invalid credentials")
	}
	p, ok := v.(*Principal)
	if !ok || p.UserID == "" {
		return nil, apperr.Unauthorizedf("invalid credentials")
	}
	return p, nil
}

// UserIDFrom returns the acting user id, or an error when unauthenticated.
func UserIDFrom(c *gin.Context) (string, error) {
	p, err := PrincipalFrom(c)
	if err != nil {
		return "", err
	}
	return p.UserID, nil
}
