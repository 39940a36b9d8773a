package extractions

import (
	"context"
	"net/http"
	"time"

	hc "autorbi/api/handlers/common"
	"autorbi/internal/common"
	"autorbi/internal/extraction"
	"autorbi/internal/logger"
	"autorbi/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	MessageProgress  = "progress"
	MessageCompleted = "completed"
	MessageError     = "error"

	writeWait = 5 * time.Second
)

// ProgressMessage WebSocket 推送的进度消息
type ProgressMessage struct {
	Type         string                  `json:"type"`
	ExtractionID uint                    `json:"extraction_id"`
	Status       models.ExtractionStatus `json:"status,omitempty"`
	Page         int                     `json:"page"`
	Total        int                     `json:"total"`
	Percent      float64                 `json:"percent"`
	Message      string                  `json:"message,omitempty"`
}

func newProgressMessage(v *extraction.StatusView) ProgressMessage {
	msg := ProgressMessage{
		Type:         MessageProgress,
		ExtractionID: v.ID,
		Status:       v.Status,
		Page:         v.ProcessedPages,
		Total:        v.TotalPages,
		Percent:      v.ProgressPercent,
	}
	switch v.Status {
	case models.ExtractionCompleted:
		msg.Type = MessageCompleted
	case models.ExtractionFailed:
		msg.Type = MessageError
		msg.Message = v.ErrorMessage
	}
	return msg
}

// WebSocketHandler 按固定间隔推送单个提取任务的进度，任务结束后关闭连接
type WebSocketHandler struct {
	svc      Service
	interval time.Duration
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建处理器
func NewWebSocketHandler(svc Service, interval time.Duration) *WebSocketHandler {
	if interval <= 0 {
		interval = time.Second
	}
	return &WebSocketHandler{
		svc:      svc,
		interval: interval,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 5 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Connect 升级连接并推送进度
// @Summary 提取进度 WebSocket
// @Description 每个间隔推送 {type: progress|completed|error, page, total, percent}；令牌可通过 ?token= 传递
// @Tags Extractions
// @Param id path int true "提取任务 ID"
// @Param token query string false "访问令牌"
// @Router /api/ws/extractions/{id} [get]
func (h *WebSocketHandler) Connect(c *gin.Context) {
	actor, ok := hc.Actor(c)
	if !ok {
		return
	}
	id, ok := hc.PathID(c, "id")
	if !ok {
		return
	}
	// 握手前校验任务与权限，错误以普通 HTTP 响应返回
	first, err := h.svc.Status(c.Request.Context(), actor, id)
	if err != nil {
		common.WriteError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()
	go readLoop(conn, cancel)

	log := logger.WithContext(ctx).With(zap.Uint("extraction_id", id))
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	v := first
	for {
		msg := newProgressMessage(v)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.Debug("进度推送中断", zap.Error(err))
			return
		}
		if msg.Type != MessageProgress {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, msg.Type),
				time.Now().Add(writeWait))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		next, err := h.svc.Status(ctx, actor, id)
		if err != nil {
			log.Warn("查询提取进度失败", zap.Error(err))
			_ = conn.WriteJSON(ProgressMessage{Type: MessageError, ExtractionID: id, Message: err.Error()})
			return
		}
		v = next
	}
}

// readLoop 丢弃客户端消息，连接断开时取消推送
func readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(1024)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
