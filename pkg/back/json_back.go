package back

import (
	"errors"
	"net/http"

	"KnowledgeHub/pkg/xerr"
	"KnowledgeHub/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Result 统一返回入口
func Result(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	var ce *xerr.CodeError
	if errors.As(err, &ce) {
		if ce.Kind.Infrastructure() {
			// 底层原因只进日志，响应里只有 Message
			zlog.Error("request failed", zap.String("path", c.FullPath()), zap.String("kind", ce.Kind.String()), zap.Error(err))
		}
		Error(c, ce.Code, ce.Message)
		return
	}

	zlog.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	Error(c, xerr.ErrServerError.Code, xerr.ErrServerError.Message)
}

// Success 成功返回
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    xerr.OK,
		Message: "Success",
		Data:    data,
	})
}

// Error 错误返回
func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}
