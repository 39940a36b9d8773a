package users

import (
	hc "autorbi/api/handlers/common"
	"autorbi/internal/auth"
	"autorbi/internal/common"
	"autorbi/internal/models"
	"autorbi/internal/user"

	"github.com/gin-gonic/gin"
)

// Handler 用户处理器
type Handler struct {
	svc *user.Service
}

// NewHandler 创建用户处理器
func NewHandler(svc *user.Service) *Handler {
	return &Handler{svc: svc}
}

// Me 当前用户资料
// @Summary 当前用户资料
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse
// @Router /api/users/me [get]
func (h *Handler) Me(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	u, err := h.svc.Me(c.Request.Context(), actor)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, u)
}

// UpdateMe 修改当前用户资料
// @Summary 修改当前用户资料
// @Description 仅可修改姓名；用户名、邮箱与角色由管理员维护
// @Tags Users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body user.ProfileInput true "资料"
// @Success 200 {object} common.APIResponse
// @Router /api/users/me [put]
func (h *Handler) UpdateMe(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	var in user.ProfileInput
	if !hc.BindJSON(c, &in) {
		return
	}
	u, err := h.svc.UpdateMe(c.Request.Context(), actor, in)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, u)
}

// List 用户列表
// @Summary 用户列表
// @Description 仅管理员
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Param role query string false "角色 Engineer/Admin"
// @Param is_active query bool false "是否启用"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} common.APIResponse
// @Failure 403 {object} common.APIResponse
// @Router /api/users [get]
func (h *Handler) List(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	var q user.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}
	items, total, err := h.svc.List(c.Request.Context(), actor, q)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseList(c, items, total, q.PaginationRequest)
}

// Get 用户详情
// @Summary 用户详情
// @Description 管理员或本人
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Param id path int true "用户 ID"
// @Success 200 {object} common.APIResponse
// @Failure 403 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/users/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	h.withID(c, func(actor auth.Actor, id uint) (*models.User, error) {
		return h.svc.Get(c.Request.Context(), actor, id)
	})
}

// Update 修改用户
// @Summary 修改用户
// @Description 仅管理员；不能修改自己的角色
// @Tags Users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "用户 ID"
// @Param request body user.UpdateInput true "修改内容"
// @Success 200 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse
// @Router /api/users/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	var in user.UpdateInput
	if !hc.BindJSON(c, &in) {
		return
	}
	u, err := h.svc.Update(c.Request.Context(), actor, id, in)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, u)
}

// Delete 删除用户
// @Summary 删除用户
// @Description 仅管理员；用户仍是某项目唯一所有者时返回 409
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Param id path int true "用户 ID"
// @Success 200 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse
// @Router /api/users/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), actor, id); err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "用户已删除", nil)
}

// Deactivate 停用用户
// @Summary 停用用户
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Param id path int true "用户 ID"
// @Success 200 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse
// @Router /api/users/{id}/deactivate [put]
func (h *Handler) Deactivate(c *gin.Context) {
	h.withID(c, func(actor auth.Actor, id uint) (*models.User, error) {
		return h.svc.Deactivate(c.Request.Context(), actor, id)
	})
}

// Reactivate 启用用户
// @Summary 启用用户
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Param id path int true "用户 ID"
// @Success 200 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse
// @Router /api/users/{id}/reactivate [put]
func (h *Handler) Reactivate(c *gin.Context) {
	h.withID(c, func(actor auth.Actor, id uint) (*models.User, error) {
		return h.svc.Reactivate(c.Request.Context(), actor, id)
	})
}

// withID 解析路径 ID 后执行返回用户的操作
func (h *Handler) withID(c *gin.Context, fn func(actor auth.Actor, id uint) (*models.User, error)) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	u, err := fn(actor, id)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, u)
}
