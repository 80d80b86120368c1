package http

import (
	"io"
	"mime/multipart"
	"strconv"

	"KnowledgeHub/pkg/back"
	"KnowledgeHub/pkg/xerr"

	"github.com/gin-gonic/gin"
)

// pathID 解析路径中的正整数 id，失败时直接写回参数错误
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return 0, false
	}
	return id, true
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
