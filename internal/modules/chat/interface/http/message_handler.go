package handler

import (
	"KnowledgeHub/internal/middleware/jwt"
	chatRequest "KnowledgeHub/internal/modules/chat/application/dto/request"
	"KnowledgeHub/internal/modules/chat/application/service"
	"KnowledgeHub/pkg/back"
	"KnowledgeHub/pkg/xerr"
	"KnowledgeHub/pkg/zlog"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	svc service.MessageService
}

func NewMessageHandler(svc service.MessageService) *MessageHandler {
	return &MessageHandler{svc: svc}
}

// SaveUser POST /chat/session/:sessionId/messages/user
func (h *MessageHandler) SaveUser(c *gin.Context) {
	var req chatRequest.SaveMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.svc.SaveUserMessage(c.Request.Context(), c.Param("sessionId"), jwt.UserID(c), req.Content)
	back.Result(c, data, err)
}

// SaveAssistant POST /chat/session/:sessionId/messages/assistant，metadata 原样保存
func (h *MessageHandler) SaveAssistant(c *gin.Context) {
	var req chatRequest.SaveMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.svc.SaveAssistantMessage(c.Request.Context(), c.Param("sessionId"), jwt.UserID(c), req.Content, string(req.Metadata))
	back.Result(c, data, err)
}

// List GET /chat/session/:sessionId/messages?cursor=&size=
func (h *MessageHandler) List(c *gin.Context) {
	var req chatRequest.CursorQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.svc.GetMessages(c.Request.Context(), c.Param("sessionId"), jwt.UserID(c), req.Cursor, req.Size)
	back.Result(c, data, err)
}

// Recent GET /chat/session/:sessionId/messages/recent?limit=
func (h *MessageHandler) Recent(c *gin.Context) {
	var req chatRequest.RecentMessagesQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.svc.GetRecentMessages(c.Request.Context(), c.Param("sessionId"), jwt.UserID(c), req.Limit)
	back.Result(c, data, err)
}
