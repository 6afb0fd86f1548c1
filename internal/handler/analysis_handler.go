package handler

import (
	"net/http"
	"strconv"
	"time"

	"cv-smart-go/internal/service"
	"cv-smart-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

const wsWriteTimeout = 10 * time.Second

// AnalysisHandler 负责触发分析以及推送分析进度。
type AnalysisHandler struct {
	analysisService service.AnalysisService
}

// NewAnalysisHandler 创建一个新的 AnalysisHandler。
func NewAnalysisHandler(analysisService service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{analysisService: analysisService}
}

// Analyze 默认异步投递任务并返回 202；?sync=true 时在请求内完成分析并返回画像。
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	id := c.Param("id")
	sync, _ := strconv.ParseBool(c.Query("sync"))

	if !sync {
		if err := h.analysisService.Enqueue(c.Request.Context(), id); err != nil {
			respondError(c, "AnalysisHandler.Enqueue", err, "提交分析任务失败")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"code":    http.StatusAccepted,
			"message": "分析任务已提交",
			"data":    gin.H{"documentId": id},
		})
		return
	}

	result, err := h.analysisService.Analyze(c.Request.Context(), id, nil)
	if err != nil {
		respondError(c, "AnalysisHandler.Analyze", err, "简历分析失败")
		return
	}
	respondOK(c, "简历分析完成", result)
}

// Progress 返回最近一次保存的进度快照。
func (h *AnalysisHandler) Progress(c *gin.Context) {
	p, err := h.analysisService.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "AnalysisHandler.Progress", err, "获取分析进度失败")
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "没有进行中的分析", "data": nil})
		return
	}
	respondOK(c, "获取分析进度成功", p)
}

// ProgressWS 通过 WebSocket 推送进度快照，先发送最新快照，分析结束后关闭连接。
func (h *AnalysisHandler) ProgressWS(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	// 先订阅再读最新快照，避免两者之间的更新丢失
	updates, err := h.analysisService.Watch(ctx, id)
	if err != nil {
		respondError(c, "AnalysisHandler.Watch", err, "订阅分析进度失败")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("进度 WebSocket 连接已建立, DocumentID: %s", id)

	// 读循环只用于感知客户端关闭
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if latest, err := h.analysisService.Progress(ctx, id); err == nil && latest != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(latest); err != nil {
			return
		}
		if latest.Done() {
			h.closeNormal(conn)
			return
		}
	}

	for {
		select {
		case <-closed:
			return
		case p, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(p); err != nil {
				log.Warnf("进度推送失败, DocumentID: %s, Error: %v", id, err)
				return
			}
			if p.Done() {
				h.closeNormal(conn)
				return
			}
		}
	}
}

func (h *AnalysisHandler) closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "analysis finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
