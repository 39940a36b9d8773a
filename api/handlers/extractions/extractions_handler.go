package extractions

import (
	"context"
	"io"

	hc "autorbi/api/handlers/common"
	"autorbi/internal/auth"
	"autorbi/internal/common"
	"autorbi/internal/extraction"
	"autorbi/internal/infra/queue"
	"autorbi/internal/models"

	"github.com/gin-gonic/gin"
)

// Service 提取服务接口
type Service interface {
	Start(ctx context.Context, actor auth.Actor, workID uint, filename string, r io.Reader) (*models.Extraction, error)
	Status(ctx context.Context, actor auth.Actor, extractionID uint) (*extraction.StatusView, error)
	Latest(ctx context.Context, actor auth.Actor, workID uint) (*extraction.StatusView, error)
	ListByWork(ctx context.Context, actor auth.Actor, workID uint) ([]extraction.StatusView, error)
	Progress(ctx context.Context, actor auth.Actor, ids []uint) (*extraction.Progress, []extraction.StatusView, error)
}

// QueueInspector 队列状态查询
type QueueInspector interface {
	Stats() (*queue.Stats, error)
}

// Handler 提取任务处理器
type Handler struct {
	svc   Service
	queue QueueInspector
}

// NewHandler 创建提取任务处理器，queue 可为 nil
func NewHandler(svc Service, queue QueueInspector) *Handler {
	return &Handler{svc: svc, queue: queue}
}

// ProgressResponse 多任务汇总进度
type ProgressResponse struct {
	extraction.Progress
	Extractions []extraction.StatusView `json:"extractions"`
}

// Start 上传 PDF 并启动提取
// @Summary 上传 PDF 启动提取
// @Description 保存文件并创建待处理任务，立即返回 202；文件名需形如 "MLK PMT 10103 - V-003.pdf"
// @Tags Extractions
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "项目 ID"
// @Param file formData file true "PDF 文件"
// @Success 202 {object} common.APIResponse
// @Failure 413 {object} common.APIResponse
// @Failure 422 {object} common.APIResponse
// @Router /api/works/{id}/extraction/start [post]
func (h *Handler) Start(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	workID, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		common.ResponseBadRequest(c, "缺少上传文件: "+err.Error())
		return
	}
	f, err := fh.Open()
	if err != nil {
		common.ResponseBadRequest(c, "读取上传文件失败: "+err.Error())
		return
	}
	defer f.Close()

	e, err := h.svc.Start(c.Request.Context(), actor, workID, fh.Filename, f)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseAccepted(c, "提取任务已创建", extraction.NewStatusView(e))
}

// Latest 项目最近一次提取
// @Summary 最近一次提取任务
// @Tags Extractions
// @Security BearerAuth
// @Produce json
// @Param id path int true "项目 ID"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/works/{id}/extraction/latest [get]
func (h *Handler) Latest(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	workID, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	v, err := h.svc.Latest(c.Request.Context(), actor, workID)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, v)
}

// List 项目提取任务列表
// @Summary 项目提取任务列表
// @Tags Extractions
// @Security BearerAuth
// @Produce json
// @Param id path int true "项目 ID"
// @Success 200 {object} common.APIResponse
// @Router /api/works/{id}/extractions [get]
func (h *Handler) List(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	workID, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.ListByWork(c.Request.Context(), actor, workID)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, list)
}

// Status 提取任务进度
// @Summary 提取任务进度
// @Tags Extractions
// @Security BearerAuth
// @Produce json
// @Param id path int true "提取任务 ID"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/extractions/{id}/status [get]
func (h *Handler) Status(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	v, err := h.svc.Status(c.Request.Context(), actor, id)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, v)
}

// Progress 多任务汇总进度
// @Summary 多个提取任务的汇总进度
// @Description 页数求和，所有任务进入终态时 done 为 true
// @Tags Extractions
// @Security BearerAuth
// @Produce json
// @Param ids query string true "逗号分隔的任务 ID"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} common.APIResponse
// @Router /api/extractions/progress [get]
func (h *Handler) Progress(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	ids, ok := hc.QueryIDs(c, "ids")
	if !ok {
		return
	}
	p, views, err := h.svc.Progress(c.Request.Context(), actor, ids)
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, ProgressResponse{Progress: *p, Extractions: views})
}

// QueueStats 提取队列状态，仅管理员
// @Summary 提取队列状态
// @Tags Extractions
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse
// @Failure 403 {object} common.APIResponse
// @Router /api/admin/extraction-queue [get]
func (h *Handler) QueueStats(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		common.WriteError(c, common.ErrForbidden)
		return
	}
	if h.queue == nil {
		common.ResponseError(c, common.CodeServiceUnavailable, "任务队列未启用")
		return
	}
	stats, err := h.queue.Stats()
	if err != nil {
		common.WriteError(c, err)
		return
	}
	common.ResponseSuccess(c, stats)
}
