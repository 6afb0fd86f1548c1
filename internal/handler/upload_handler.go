package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"cv-smart-go/internal/service"
	"cv-smart-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责处理简历文件上传与入库的请求。
type UploadHandler struct {
	docService service.DocumentService
	maxBytes   int64
}

// NewUploadHandler 创建一个新的 UploadHandler 实例，maxUploadMB 为 0 时不限制大小。
func NewUploadHandler(docService service.DocumentService, maxUploadMB int64) *UploadHandler {
	return &UploadHandler{docService: docService, maxBytes: maxUploadMB << 20}
}

// ProcessPDF 处理 multipart 上传：字段 pdf 为文件，filename 为原始文件名。
// 单页失败不会导致请求失败，只会体现在返回的页面数组中。
func (h *UploadHandler) ProcessPDF(c *gin.Context) {
	filename := strings.TrimSpace(c.PostForm("filename"))
	fileHeader, err := c.FormFile("pdf")
	if err != nil || filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "PDF file and filename are required"})
		return
	}
	if h.maxBytes > 0 && fileHeader.Size > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d MB", h.maxBytes>>20)})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Error("ProcessPDF: failed to open uploaded file", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process PDF"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Error("ProcessPDF: failed to read uploaded file", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process PDF"})
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "PDF file and filename are required"})
		return
	}

	result, err := h.docService.Ingest(c.Request.Context(), data, filename)
	if err != nil {
		log.Errorf("ProcessPDF: ingestion failed, filename: %s, err: %v", filename, err)
		c.JSON(statusFor(err), gin.H{"error": "Failed to process PDF", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"documentId": result.DocumentID,
		"pages":      result.Pages,
	})
}
