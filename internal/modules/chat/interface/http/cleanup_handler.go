package handler

import (
	"KnowledgeHub/internal/modules/chat/application/service"
	"KnowledgeHub/pkg/back"

	"github.com/gin-gonic/gin"
)

type CleanupHandler struct {
	svc service.CleanupService
}

func NewCleanupHandler(svc service.CleanupService) *CleanupHandler {
	return &CleanupHandler{svc: svc}
}

// Stats GET /admin/chat/cleanup/stats
func (h *CleanupHandler) Stats(c *gin.Context) {
	data, err := h.svc.Stats(c.Request.Context())
	back.Result(c, data, err)
}

// Run POST /admin/chat/cleanup，部分失败时仍返回错误
func (h *CleanupHandler) Run(c *gin.Context) {
	data, err := h.svc.FullCleanup(c.Request.Context())
	if err != nil {
		back.Result(c, nil, err)
		return
	}
	back.Success(c, data)
}
