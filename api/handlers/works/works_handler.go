package works

import (
	hc "autorbi/api/handlers/common"
	"autorbi/internal/common"
	"autorbi/internal/work"

	"github.com/gin-gonic/gin"
)

// Handler 项目处理器
type Handler struct {
	svc *work.Service
}

// NewHandler 创建项目处理器
func NewHandler(svc *work.Service) *Handler {
	return &Handler{svc: svc}
}

// List 项目列表
// @Summary 项目列表
// @Description 返回当前用户参与的项目，管理员可见全部
// @Tags Works
// @Security BearerAuth
// @Produce json
// @Param status query string false "项目状态"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} common.APIResponse
// @Router /api/works [get]
func (h *Handler) List(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	var q work.ListQuery
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

// Create 创建项目
// @Summary 创建项目
// @Tags Works
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body work.CreateInput true "项目信息"
// @Success 201 {object} common.APIResponse
// @Failure 400 {object} common.APIResponse
// @Router /api/works [post]
func (h *Handler) Create(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	var in work.CreateInput
	if !hc.BindJSON(c, &in) {
		return
	}
	w, err := h.svc.Create(c.Request.Context(), actor, in)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseCreated(c, w)
}

// Get 项目详情
// @Summary 项目详情
// @Tags Works
// @Security BearerAuth
// @Produce json
// @Param id path int true "项目 ID"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/works/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	w, err := h.svc.Get(c.Request.Context(), actor, id)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, w)
}

// Update 更新项目
// @Summary 更新项目
// @Description 仅修改请求中出现的字段；只改状态时记录 status_changed
// @Tags Works
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "项目 ID"
// @Param request body work.UpdateInput true "修改内容"
// @Success 200 {object} common.APIResponse
// @Router /api/works/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	var in work.UpdateInput
	if !hc.BindJSON(c, &in) {
		return
	}
	w, err := h.svc.Update(c.Request.Context(), actor, id, in)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, w)
}

// Delete 删除项目
// @Summary 删除项目
// @Description 级联删除协作者、设备、部件、提取任务与文件，活动记录保留
// @Tags Works
// @Security BearerAuth
// @Produce json
// @Param id path int true "项目 ID"
// @Success 200 {object} common.APIResponse
// @Router /api/works/{id} [delete]
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
	common.ResponseSuccessMessage(c, "项目已删除", nil)
}

// Summary 项目概览
// @Summary 项目概览统计
// @Tags Works
// @Security BearerAuth
// @Produce json
// @Param id path int true "项目 ID"
// @Success 200 {object} common.APIResponse
// @Router /api/works/{id}/summary [get]
func (h *Handler) Summary(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	sum, err := h.svc.Summarize(c.Request.Context(), actor, id)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, sum)
}

// ListCollaborators 协作者列表
// @Summary 协作者列表
// @Tags Works
// @Security BearerAuth
// @Produce json
// @Param id path int true "项目 ID"
// @Success 200 {object} common.APIResponse
// @Router /api/works/{id}/collaborators [get]
func (h *Handler) ListCollaborators(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.ListCollaborators(c.Request.Context(), actor, id)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, list)
}

// AddCollaborator 添加协作者
// @Summary 添加协作者
// @Tags Works
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "项目 ID"
// @Param request body work.CollaboratorInput true "协作者"
// @Success 201 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse
// @Router /api/works/{id}/collaborators [post]
func (h *Handler) AddCollaborator(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	var in work.CollaboratorInput
	if !hc.BindJSON(c, &in) {
		return
	}
	collab, err := h.svc.AddCollaborator(c.Request.Context(), actor, id, in)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseCreated(c, collab)
}

// UpdateCollaborator 修改协作者角色
// @Summary 修改协作者角色
// @Tags Works
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "项目 ID"
// @Param user_id path int true "用户 ID"
// @Param request body work.CollaboratorInput true "新角色"
// @Success 200 {object} common.APIResponse
// @Router /api/works/{id}/collaborators/{user_id} [put]
func (h *Handler) UpdateCollaborator(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	userID, ok := hc.PathID(c, "user_id")
	if !ok {
		return
	}
	var in work.CollaboratorInput
	in.UserID = userID
	if !hc.BindJSON(c, &in) {
		return
	}
	in.UserID = userID
	collab, err := h.svc.UpdateCollaborator(c.Request.Context(), actor, id, in)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, collab)
}

// RemoveCollaborator 移除协作者
// @Summary 移除协作者
// @Tags Works
// @Security BearerAuth
// @Produce json
// @Param id path int true "项目 ID"
// @Param user_id path int true "用户 ID"
// @Success 200 {object} common.APIResponse
// @Router /api/works/{id}/collaborators/{user_id} [delete]
func (h *Handler) RemoveCollaborator(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	userID, ok := hc.PathID(c, "user_id")
	if !ok {
		return
	}
	if err := h.svc.RemoveCollaborator(c.Request.Context(), actor, id, userID); err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "协作者已移除", nil)
}

// AdminList 全部项目
// @Summary 全部项目（管理员）
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param status query string false "项目状态"
// @Param user_id query int false "参与用户"
// @Param sort_by query string false "created_at/name/status"
// @Param sort_order query string false "asc/desc"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} common.APIResponse
// @Failure 403 {object} common.APIResponse
// @Router /api/admin/works [get]
func (h *Handler) AdminList(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	var q work.AdminListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}
	items, total, err := h.svc.AdminList(c.Request.Context(), actor, q)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseList(c, items, total, q.PaginationRequest)
}

// ListForUser 某用户参与的项目
// @Summary 用户参与的项目（管理员）
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param id path int true "用户 ID"
// @Param status query string false "项目状态"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/admin/users/{id}/works [get]
func (h *Handler) ListForUser(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	userID, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	var q work.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}
	items, total, err := h.svc.ListForUser(c.Request.Context(), actor, userID, q)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseList(c, items, total, q.PaginationRequest)
}

// Assign 转移项目所有权
// @Summary 转移项目所有权（管理员）
// @Description 目标用户成为所有者，原所有者降为 editor
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body work.AssignInput true "项目与目标用户"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/admin/works/assign [post]
func (h *Handler) Assign(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	var in work.AssignInput
	if !hc.BindJSON(c, &in) {
		return
	}
	res, err := h.svc.Assign(c.Request.Context(), actor, in)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, res)
}
