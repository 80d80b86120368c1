package http

import (
	"KnowledgeHub/internal/middleware/jwt"
	kbRequest "KnowledgeHub/internal/modules/knowledge/application/dto/request"
	"KnowledgeHub/internal/modules/knowledge/application/dto/respond"
	"KnowledgeHub/internal/modules/knowledge/application/service"
	"KnowledgeHub/pkg/back"
	"KnowledgeHub/pkg/xerr"
	"KnowledgeHub/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// KnowledgeBaseHandler 知识库 CRUD 与检索
type KnowledgeBaseHandler struct {
	kbSvc       service.KnowledgeBaseService
	retrieveSvc service.RetrieveService
}

func NewKnowledgeBaseHandler(kbSvc service.KnowledgeBaseService, retrieveSvc service.RetrieveService) *KnowledgeBaseHandler {
	return &KnowledgeBaseHandler{kbSvc: kbSvc, retrieveSvc: retrieveSvc}
}

// Create POST /knowledge-base
func (h *KnowledgeBaseHandler) Create(c *gin.Context) {
	var req kbRequest.CreateKnowledgeBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.kbSvc.Create(c.Request.Context(), jwt.UserID(c), req)
	back.Result(c, data, err)
}

// List GET /knowledge-base，自己的和公开的
func (h *KnowledgeBaseHandler) List(c *gin.Context) {
	data, err := h.kbSvc.ListAccessible(c.Request.Context(), jwt.UserID(c))
	back.Result(c, data, err)
}

// Search GET /knowledge-base/search?keyword=
func (h *KnowledgeBaseHandler) Search(c *gin.Context) {
	var req kbRequest.SearchKnowledgeBaseRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.kbSvc.Search(c.Request.Context(), jwt.UserID(c), req.Keyword)
	back.Result(c, data, err)
}

func (h *KnowledgeBaseHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	data, err := h.kbSvc.Get(c.Request.Context(), id, jwt.UserID(c))
	back.Result(c, data, err)
}

func (h *KnowledgeBaseHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req kbRequest.UpdateKnowledgeBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.kbSvc.Update(c.Request.Context(), id, jwt.UserID(c), req)
	back.Result(c, data, err)
}

func (h *KnowledgeBaseHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	err := h.kbSvc.Delete(c.Request.Context(), id, jwt.UserID(c))
	back.Result(c, nil, err)
}

// Query POST /knowledge-base/query
func (h *KnowledgeBaseHandler) Query(c *gin.Context) {
	var req kbRequest.RetrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.retrieveSvc.Search(c.Request.Context(), jwt.UserID(c), req)
	if err == nil {
		zlog.Debug("knowledge query", zap.Int64s("kb_ids", req.KnowledgeBaseIds), zap.Int("hits", data.Total), zap.Int64("cost_ms", data.DurationMs))
	}
	back.Result(c, data, err)
}

// FixFileCount POST /admin/fix-knowledge-base-file-count
func (h *KnowledgeBaseHandler) FixFileCount(c *gin.Context) {
	fixed, err := h.kbSvc.FixFileCount(c.Request.Context())
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	back.Success(c, respond.FixFileCountRespond{Fixed: fixed})
}
