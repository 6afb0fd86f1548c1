// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"cv-smart-go/internal/apperr"
	"cv-smart-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// statusFor 把应用错误分类映射为 HTTP 状态码。
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError 记录错误并返回统一的错误响应。5xx 不向客户端暴露内部细节。
func respondError(c *gin.Context, op string, err error, message string) {
	status := statusFor(err)
	body := gin.H{"code": status, "message": message, "error": message}
	if status < http.StatusInternalServerError {
		body["error"] = err.Error()
		log.Warnf("%s: %v", op, err)
	} else {
		log.Error(op, err)
	}
	c.JSON(status, body)
}

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}
