package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"autorbi/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())

	var fromCtx, fromGin string
	r.GET("/ping", func(c *gin.Context) {
		fromCtx = logger.GetRequestID(c.Request.Context())
		fromGin = GetRequestIDFromGin(c)
		c.Status(http.StatusNoContent)
	})

	t.Run("生成新 ID", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		id := w.Header().Get(HeaderRequestID)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, fromCtx)
		assert.Equal(t, id, fromGin)
	})

	t.Run("沿用上游 ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(HeaderRequestID, "upstream-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "upstream-1", w.Header().Get(HeaderRequestID))
		assert.Equal(t, "upstream-1", fromCtx)
	})
}
