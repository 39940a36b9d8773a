package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"autorbi/internal/common"
	"autorbi/internal/models"

	"github.com/gin-gonic/gin"
)

const actorContextKey = "actor"

// Actor 当前请求的操作人
type Actor struct {
	UserID uint
	Role   models.UserRole
}

// IsAdmin 是否管理员
func (a Actor) IsAdmin() bool {
	return a.Role == models.UserRoleAdmin
}

// UserLookup 按 ID 读取用户，未找到时返回 common.ErrUserNotFound
type UserLookup interface {
	Lookup(ctx context.Context, id uint) (*models.User, error)
}

// AuthMiddleware JWT 认证中间件。
// users 非空时拒绝已删除或停用的账号，角色以数据库为准；
// WebSocket 握手无法自定义请求头，允许通过 ?token= 传递
func AuthMiddleware(jwtService *JWTService, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractTokenFromBearer(c.GetHeader("Authorization"))
		if token == "" && c.IsWebsocket() {
			token = c.Query("token")
		}
		if token == "" {
			abortUnauthorized(c, "缺少认证令牌")
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			abortUnauthorized(c, "令牌验证失败: "+err.Error())
			return
		}

		actor := Actor{UserID: claims.UserID, Role: claims.Role}
		if users != nil {
			u, err := users.Lookup(c.Request.Context(), claims.UserID)
			switch {
			case errors.Is(err, common.ErrUserNotFound):
				abortUnauthorized(c, "用户不存在")
				return
			case err != nil:
				c.AbortWithStatusJSON(http.StatusInternalServerError, common.ErrorResponse(common.CodeInternalError, "读取用户失败"))
				return
			case !u.IsActive:
				abortUnauthorized(c, "账号已停用")
				return
			}
			actor.Role = u.Role
		}

		SetActor(c, actor)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, common.ErrorResponse(common.CodeUnauthorized, msg))
}

// SetActor 写入操作人
func SetActor(c *gin.Context, actor Actor) {
	c.Set(actorContextKey, actor)
}

// GetActor 读取操作人
func GetActor(c *gin.Context) (Actor, bool) {
	v, ok := c.Get(actorContextKey)
	if !ok {
		return Actor{}, false
	}
	actor, ok := v.(Actor)
	return actor, ok
}

// ExtractTokenFromBearer 从 Bearer 头中提取令牌
func ExtractTokenFromBearer(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
