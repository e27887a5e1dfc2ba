package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskloop/taskloop/internal/common/apperr"
)

func TestTokenManager_MintAndParse(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	token, err := tm.Mint("user-1", "alice@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, RoleUser, claims.Role)
}

func TestTokenManager_Expired(t *testing.T) {
	tm := NewTokenManager("test-secret", -time.Minute)

	token, err := tm.Mint("user-1", "alice@example.com")
	require.NoError(t, err)

	_, err = tm.Parse(token)
	require.Error(t, err)
	assert.True(t, apperr.IsUnauthorized(err))
}

func TestTokenManager_WrongSecret(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	other := NewTokenManager("other-secret", time.Hour)

	token, err := tm.Mint("user-1", "alice@example.com")
	require.NoError(t, err)

	_, err = other.Parse(token)
	require.Error(t, err)
	assert.True(t, apperr.IsUnauthorized(err))
}

func TestTokenManager_Garbage(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	_, err := tm.Parse("not-a-token")
	require.Error(t, err)
	assert.True(t, apperr.IsUnauthorized(err))
}

func newAuthRouter(tm *TokenManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/whoami", RequireAuth(tm), func(c *gin.Context) {
		p, err := PrincipalFrom(c)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": p.UserID, "role": string(p.Role), "service": p.Service})
	})
	return router
}

func TestRequireAuth_UserToken(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	router := newAuthRouter(tm)

	token, err := tm.Mint("user-1", "alice@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-1")
}

func TestRequireAuth_QueryToken(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	router := newAuthRouter(tm)

	token, err := tm.Mint("user-1", "alice@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami?token="+token, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_MissingToken(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	router := newAuthRouter(tm)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid credentials")
}

func TestRequireAuth_ServiceToken(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	router := newAuthRouter(tm)

	token, err := tm.MintService("recurrence-worker")
	require.NoError(t, err)

	// Without the acting-user header the request is rejected.
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// With the header, the principal acts as the named user.
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(ActingUserHeader, "user-7")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-7")
	assert.Contains(t, w.Body.String(), "recurrence-worker")
}
