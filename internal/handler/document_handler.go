package handler

import (
	"net/http"

	"cv-smart-go/internal/service"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与简历文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// List 返回全部文档，最新的在前。
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docService.List(c.Request.Context())
	if err != nil {
		respondError(c, "DocumentHandler.List", err, "获取文档列表失败")
		return
	}
	respondOK(c, "获取文档列表成功", docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.docService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "DocumentHandler.Get", err, "获取文档失败")
		return
	}
	respondOK(c, "获取文档成功", doc)
}

// Status 供客户端轮询分析状态。
func (h *DocumentHandler) Status(c *gin.Context) {
	st, err := h.docService.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "DocumentHandler.Status", err, "获取文档状态失败")
		return
	}
	respondOK(c, "获取文档状态成功", st)
}

// Update 处理手动编辑候选人信息的请求。
func (h *DocumentHandler) Update(c *gin.Context) {
	var req service.DocumentDetails
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "error": err.Error()})
		return
	}
	doc, err := h.docService.UpdateDetails(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, "DocumentHandler.Update", err, "更新文档失败")
		return
	}
	respondOK(c, "文档更新成功", doc)
}

// Delete 处理删除文档的请求。
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.docService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, "DocumentHandler.Delete", err, "删除文档失败")
		return
	}
	respondOK(c, "文档删除成功", nil)
}
