package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"autorbi/internal/common"
	"autorbi/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	svc := NewJWTService("secret", "autorbi", time.Hour)

	token, err := svc.Issue(42, models.UserRoleAdmin)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, models.UserRoleAdmin, claims.Role)
}

func TestValidateRejectsForeignTokens(t *testing.T) {
	svc := NewJWTService("secret", "autorbi", time.Hour)

	other, err := NewJWTService("other-secret", "autorbi", time.Hour).Issue(1, models.UserRoleEngineer)
	require.NoError(t, err)
	_, err = svc.ValidateToken(other)
	assert.Error(t, err)

	wrongIssuer, err := NewJWTService("secret", "someone-else", time.Hour).Issue(1, models.UserRoleEngineer)
	require.NoError(t, err)
	_, err = svc.ValidateToken(wrongIssuer)
	assert.Error(t, err)

	past := time.Now().Add(-2 * time.Hour)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &TokenClaims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "autorbi",
			ExpiresAt: jwt.NewNumericDate(past),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.Error(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "autorbi",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(noUser)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestEmptySecretRejectsEverything(t *testing.T) {
	svc := NewJWTService("", "autorbi", time.Hour)

	_, err := svc.Issue(1, models.UserRoleAdmin)
	assert.ErrorIs(t, err, ErrEmptySecret)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &TokenClaims{
		UserID: 1,
		Role:   models.UserRoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "autorbi",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(""))
	require.NoError(t, err)

	claims, err := svc.ValidateToken(forged)
	assert.ErrorIs(t, err, ErrEmptySecret)
	assert.Nil(t, claims)
}

func TestValidateRequiresExpiry(t *testing.T) {
	svc := NewJWTService("secret", "autorbi", time.Hour)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &TokenClaims{
		UserID:           1,
		Role:             models.UserRoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "autorbi"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(noExp)
	assert.ErrorIs(t, err, jwt.ErrTokenRequiredClaimMissing)
}

func TestExtractTokenFromBearer(t *testing.T) {
	assert.Equal(t, "abc", ExtractTokenFromBearer("Bearer abc"))
	assert.Equal(t, "abc", ExtractTokenFromBearer("bearer abc"))
	assert.Empty(t, ExtractTokenFromBearer("Basic abc"))
	assert.Empty(t, ExtractTokenFromBearer("Bearer "))
	assert.Empty(t, ExtractTokenFromBearer(""))
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewJWTService("secret", "autorbi", time.Hour)
	token, err := svc.Issue(7, models.UserRoleEngineer)
	require.NoError(t, err)

	r := gin.New()
	r.Use(AuthMiddleware(svc, nil))
	r.GET("/me", func(c *gin.Context) {
		actor, ok := GetActor(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user_id": actor.UserID, "admin": actor.IsAdmin()})
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"缺少令牌", "", http.StatusUnauthorized},
		{"格式错误", "Token " + token, http.StatusUnauthorized},
		{"无效令牌", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"有效令牌", "Bearer " + token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthMiddlewareWebsocketQueryToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewJWTService("secret", "autorbi", time.Hour)
	token, err := svc.Issue(3, models.UserRoleEngineer)
	require.NoError(t, err)

	r := gin.New()
	r.Use(AuthMiddleware(svc, nil))
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	req.Header.Set("Connection", "upgrade")
	req.Header.Set("Upgrade", "websocket")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	plain := httptest.NewRecorder()
	r.ServeHTTP(plain, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	assert.Equal(t, http.StatusUnauthorized, plain.Code)
}

type userTable map[uint]*models.User

func (t userTable) Lookup(_ context.Context, id uint) (*models.User, error) {
	u, ok := t[id]
	if !ok {
		return nil, common.ErrUserNotFound.Withf("ID %d", id)
	}
	return u, nil
}

func TestAuthMiddlewareChecksAccount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewJWTService("secret", "autorbi", time.Hour)
	users := userTable{
		1: {ID: 1, Role: models.UserRoleEngineer, IsActive: true},
		2: {ID: 2, Role: models.UserRoleEngineer, IsActive: false},
		3: {ID: 3, Role: models.UserRoleEngineer, IsActive: true},
	}

	r := gin.New()
	r.Use(AuthMiddleware(svc, users))
	r.GET("/me", func(c *gin.Context) {
		actor, _ := GetActor(c)
		c.JSON(http.StatusOK, gin.H{"admin": actor.IsAdmin()})
	})

	call := func(userID uint, role models.UserRole) *httptest.ResponseRecorder {
		token, err := svc.Issue(userID, role)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, call(1, models.UserRoleEngineer).Code)
	assert.Equal(t, http.StatusUnauthorized, call(2, models.UserRoleEngineer).Code, "停用账号")
	assert.Equal(t, http.StatusUnauthorized, call(99, models.UserRoleEngineer).Code, "已删除账号")

	w := call(3, models.UserRoleAdmin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"admin":false}`, w.Body.String(), "角色以数据库为准")
}
