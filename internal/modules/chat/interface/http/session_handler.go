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

type SessionHandler struct {
	svc service.SessionService
}

func NewSessionHandler(svc service.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// Create POST /chat/session
func (h *SessionHandler) Create(c *gin.Context) {
	data, err := h.svc.CreateSession(c.Request.Context(), jwt.UserID(c))
	back.Result(c, data, err)
}

// Current GET /chat/session/current，没有活跃会话时 data 为空
func (h *SessionHandler) Current(c *gin.Context) {
	data, err := h.svc.GetCurrentSession(c.Request.Context(), jwt.UserID(c))
	back.Result(c, data, err)
}

// List GET /chat/sessions?cursor=&size=
func (h *SessionHandler) List(c *gin.Context) {
	var req chatRequest.CursorQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.svc.GetSessions(c.Request.Context(), jwt.UserID(c), req.Cursor, req.Size)
	back.Result(c, data, err)
}

func (h *SessionHandler) Get(c *gin.Context) {
	data, err := h.svc.GetSession(c.Request.Context(), c.Param("sessionId"), jwt.UserID(c))
	back.Result(c, data, err)
}

func (h *SessionHandler) Activate(c *gin.Context) {
	data, err := h.svc.ActivateSession(c.Request.Context(), c.Param("sessionId"), jwt.UserID(c))
	back.Result(c, data, err)
}

func (h *SessionHandler) UpdateTitle(c *gin.Context) {
	var req chatRequest.UpdateSessionTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.svc.UpdateSessionTitle(c.Request.Context(), c.Param("sessionId"), jwt.UserID(c), req.Title)
	back.Result(c, data, err)
}

func (h *SessionHandler) End(c *gin.Context) {
	data, err := h.svc.EndSession(c.Request.Context(), c.Param("sessionId"), jwt.UserID(c))
	back.Result(c, data, err)
}

func (h *SessionHandler) Delete(c *gin.Context) {
	err := h.svc.DeleteSession(c.Request.Context(), c.Param("sessionId"), jwt.UserID(c))
	back.Result(c, nil, err)
}
