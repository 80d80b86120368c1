package http

import (
	"errors"

	"KnowledgeHub/internal/middleware/jwt"
	"KnowledgeHub/internal/modules/knowledge/application/dto/respond"
	"KnowledgeHub/internal/modules/knowledge/application/service"
	"KnowledgeHub/internal/modules/knowledge/domain/entity"
	"KnowledgeHub/pkg/back"
	"KnowledgeHub/pkg/xerr"
	"KnowledgeHub/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FileHandler 知识库文件上传、查询与删除
type FileHandler struct {
	ingestSvc service.IngestService
	kbSvc     service.KnowledgeBaseService
}

func NewFileHandler(ingestSvc service.IngestService, kbSvc service.KnowledgeBaseService) *FileHandler {
	return &FileHandler{ingestSvc: ingestSvc, kbSvc: kbSvc}
}

// Upload POST /knowledge-base/:id/files，表单字段 file
func (h *FileHandler) Upload(c *gin.Context) {
	kbID, ok := pathID(c, "id")
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		back.Error(c, xerr.BadRequest, "请选择要上传的文件")
		return
	}
	content, err := readFormFile(fh)
	if err != nil {
		zlog.Error("read upload failed", zap.String("file_name", fh.Filename), zap.Error(err))
		back.Error(c, xerr.BadRequest, "读取上传文件失败")
		return
	}
	data, err := h.ingestSvc.Ingest(c.Request.Context(), service.IngestInput{
		KnowledgeBaseId: kbID,
		Content:         content,
		OriginalName:    fh.Filename,
		UploaderId:      jwt.UserID(c),
	})
	back.Result(c, data, err)
}

// UploadBatch POST /knowledge-base/:id/files/batch，表单字段 files；单个文件失败不影响其他文件
func (h *FileHandler) UploadBatch(c *gin.Context) {
	kbID, ok := pathID(c, "id")
	if !ok {
		return
	}
	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		back.Error(c, xerr.BadRequest, "请选择要上传的文件")
		return
	}

	uploads := make([]service.FileUpload, 0, len(form.File["files"]))
	for _, fh := range form.File["files"] {
		content, err := readFormFile(fh)
		if err != nil {
			zlog.Warn("read upload failed", zap.String("file_name", fh.Filename), zap.Error(err))
		}
		uploads = append(uploads, service.FileUpload{OriginalName: fh.Filename, Content: content})
	}

	outcomes := h.ingestSvc.IngestBatch(c.Request.Context(), kbID, uploads, jwt.UserID(c))
	resp := respond.BatchUploadRespond{Items: make([]respond.UploadItem, 0, len(outcomes))}
	for _, o := range outcomes {
		item := respond.UploadItem{OriginalName: o.OriginalName, File: o.File}
		if o.Err != nil {
			resp.Failed++
			item.Error = errorMessage(o.Err)
		} else {
			resp.Succeeded++
		}
		resp.Items = append(resp.Items, item)
	}
	back.Success(c, resp)
}

func (h *FileHandler) List(c *gin.Context) {
	kbID, ok := pathID(c, "id")
	if !ok {
		return
	}
	data, err := h.kbSvc.ListFiles(c.Request.Context(), kbID, jwt.UserID(c))
	back.Result(c, data, err)
}

func (h *FileHandler) Count(c *gin.Context) {
	kbID, ok := pathID(c, "id")
	if !ok {
		return
	}
	n, err := h.kbSvc.CountFiles(c.Request.Context(), kbID, jwt.UserID(c))
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	back.Success(c, respond.FileCountRespond{KnowledgeBaseId: kbID, Count: n})
}

func (h *FileHandler) Get(c *gin.Context) {
	file, ok := h.fileInPath(c)
	if !ok {
		return
	}
	back.Success(c, file)
}

func (h *FileHandler) Delete(c *gin.Context) {
	file, ok := h.fileInPath(c)
	if !ok {
		return
	}
	err := h.ingestSvc.DeleteFile(c.Request.Context(), file.Id, jwt.UserID(c))
	back.Result(c, nil, err)
}

// fileInPath 加载 :fileId 对应的文件，且必须属于路径中的 :id 知识库
func (h *FileHandler) fileInPath(c *gin.Context) (*entity.KnowledgeBaseFile, bool) {
	kbID, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}
	fileID, ok := pathID(c, "fileId")
	if !ok {
		return nil, false
	}
	file, err := h.kbSvc.GetFile(c.Request.Context(), fileID, jwt.UserID(c))
	if err != nil {
		back.Result(c, nil, err)
		return nil, false
	}
	if file.KnowledgeBaseId != kbID {
		back.Result(c, nil, xerr.NotFoundf("文件不存在: %d", fileID))
		return nil, false
	}
	return file, true
}

// DeleteAll DELETE /knowledge-base/:id/files/all
func (h *FileHandler) DeleteAll(c *gin.Context) {
	kbID, ok := pathID(c, "id")
	if !ok {
		return
	}
	deleted, err := h.ingestSvc.DeleteAllFilesForKnowledgeBase(c.Request.Context(), kbID, jwt.UserID(c))
	if err != nil {
		zlog.Warn("delete all files failed", zap.Int64("kb_id", kbID), zap.Int("deleted", deleted), zap.Error(err))
		back.Result(c, nil, err)
		return
	}
	back.Success(c, respond.DeleteAllFilesRespond{Deleted: deleted})
}

// errorMessage 只暴露 CodeError 的 Message，底层原因不返回给调用方
func errorMessage(err error) string {
	var ce *xerr.CodeError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return xerr.ErrServerError.Message
}
