package ssl

import (
	"strconv"

	"KnowledgeHub/pkg/zlog"

	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

// TlsHandler 把 http 请求重定向到 host:port 的 https 地址
func TlsHandler(host string, port int) gin.HandlerFunc {
	secureMiddleware := secure.New(secure.Options{
		SSLRedirect: true,
		SSLHost:     host + ":" + strconv.Itoa(port),
	})
	return func(c *gin.Context) {
		// Process 出错时已写入重定向响应，只需中止处理链
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			zlog.Debug("tls redirect", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.Abort()
			return
		}
		c.Next()
	}
}
