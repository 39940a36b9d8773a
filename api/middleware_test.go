package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"autorbi/internal/auth"
	"autorbi/internal/config"
	"autorbi/internal/logger"
	"autorbi/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLoggerFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	logger.Set(zap.New(core))
	t.Cleanup(func() { logger.Set(zap.NewNop()) })

	r := gin.New()
	r.Use(RequestLogger(), func(c *gin.Context) {
		auth.SetActor(c, auth.Actor{UserID: 42, Role: models.UserRoleEngineer})
	})
	r.GET("/api/works/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/api/equipments/work/:work_id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/api/works/7", "/api/equipments/work/9", "/api/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)

	first := entries[0].ContextMap()
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "/api/works/:id", first["route"])
	assert.EqualValues(t, 42, first["user_id"])
	assert.EqualValues(t, 7, first["work_id"])

	second := entries[1].ContextMap()
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.EqualValues(t, 9, second["work_id"])

	third := entries[2].ContextMap()
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.NotContains(t, third, "work_id")
}

func TestCORSUsesConfiguredOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	newRouter := func(cfg config.CORSConfig) *gin.Engine {
		r := gin.New()
		r.Use(CORS(cfg))
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}
	request := func(r *gin.Engine, method, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/x", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	open := newRouter(config.CORSConfig{})
	w := request(open, http.MethodGet, "https://any.example.com")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"), "通配来源不携带凭证")
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	restricted := newRouter(config.CORSConfig{
		AllowOrigins: []string{" https://app.example.com ", ""},
		AllowMethods: []string{"GET"},
		MaxAge:       60,
	})
	w = request(restricted, http.MethodGet, "https://app.example.com")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
	assert.Equal(t, "GET", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "60", w.Header().Get("Access-Control-Max-Age"))

	w = request(restricted, http.MethodGet, "https://evil.example.com")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = request(restricted, http.MethodOptions, "https://app.example.com")
	assert.Equal(t, http.StatusNoContent, w.Code)
}
