package api

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"autorbi/internal/auth"
	"autorbi/internal/config"
	"autorbi/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	defaultCORSHeaders = []string{
		"Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization",
		"Accept", "Origin", "Cache-Control", "X-Requested-With", "X-Request-ID",
	}
	defaultCORSMethods = []string{"POST", "OPTIONS", "GET", "PUT", "DELETE", "PATCH"}
)

// RequestLogger 请求日志中间件，附带路由模板、操作人与项目 ID；4xx 记 Warn，5xx 记 Error
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if actor, ok := auth.GetActor(c); ok {
			fields = append(fields, zap.Uint("user_id", actor.UserID))
		}
		if workID, ok := requestWorkID(c); ok {
			fields = append(fields, zap.Uint64("work_id", workID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		log := logger.WithContext(c.Request.Context())
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("HTTP Request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("HTTP Request", fields...)
		default:
			log.Info("HTTP Request", fields...)
		}
	}
}

// requestWorkID 从 /api/works/:id 或 :work_id 路径参数中取项目 ID
func requestWorkID(c *gin.Context) (uint64, bool) {
	raw := c.Param("work_id")
	if raw == "" && strings.HasPrefix(c.FullPath(), "/api/works/:id") {
		raw = c.Param("id")
	}
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// CORS 跨域中间件，配置取自 server.cors；来源白名单为空时允许任意来源但不携带凭证
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	origins := cleanList(cfg.AllowOrigins)
	headers := strings.Join(defaultIfEmpty(cleanList(cfg.AllowHeaders), defaultCORSHeaders), ", ")
	methods := strings.Join(defaultIfEmpty(cleanList(cfg.AllowMethods), defaultCORSMethods), ", ")
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 600
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		origin := c.GetHeader("Origin")

		switch {
		case len(origins) == 0:
			h.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(origins, origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}

		h.Set("Access-Control-Allow-Headers", headers)
		h.Set("Access-Control-Allow-Methods", methods)
		h.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
