// Package common 处理器共用的请求解析
package common

import (
	"strconv"
	"strings"

	"autorbi/internal/auth"
	"autorbi/internal/common"

	"github.com/gin-gonic/gin"
)

// PathID 解析路径中的正整数 ID，失败时写入 400 响应
func PathID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		common.ResponseBadRequest(c, "无效的 "+name+": "+raw)
		return 0, false
	}
	return uint(id), true
}

// QueryInt 解析可选的整数查询参数，缺省返回 0
func QueryInt(c *gin.Context, name string) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		common.ResponseBadRequest(c, "无效的 "+name+": "+raw)
		return 0, false
	}
	return v, true
}

// QueryIDs 解析逗号分隔的 ID 列表，如 ids=1,2,3
func QueryIDs(c *gin.Context, name string) ([]uint, bool) {
	var ids []uint
	for _, raw := range c.QueryArray(name) {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseUint(part, 10, 64)
			if err != nil || id == 0 {
				common.ResponseBadRequest(c, "无效的 "+name+": "+part)
				return nil, false
			}
			ids = append(ids, uint(id))
		}
	}
	return ids, true
}

// Actor 读取当前操作人，未认证时写入 401 响应
func Actor(c *gin.Context) (auth.Actor, bool) {
	actor, ok := auth.GetActor(c)
	if !ok || actor.UserID == 0 {
		common.ResponseUnauthorized(c)
		return auth.Actor{}, false
	}
	return actor, true
}

// BindJSON 绑定请求体，失败时写入 400 响应
func BindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return false
	}
	return true
}
