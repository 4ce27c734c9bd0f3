package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ZiyodullaSodiqov/anyChat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	roomSvc *service.RoomService
	msgSvc  *service.MessageService
}

func NewHandler(roomSvc *service.RoomService, msgSvc *service.MessageService) *Handler {
	return &Handler{roomSvc: roomSvc, msgSvc: msgSvc}
}

func detail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"detail": msg})
}

// CreateChat 处理创建房间请求，不需要请求体。
func (h *Handler) CreateChat(c *gin.Context) {
	code, err := h.roomSvc.Create(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrDuplicateCode) {
			detail(c, http.StatusBadRequest, "Chat ID already exists")
			return
		}
		log.Error().Err(err).Msg("create chat")
		detail(c, http.StatusInternalServerError, "failed to create chat")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": code})
}

// JoinChat 处理 HTTP 加入请求。
func (h *Handler) JoinChat(c *gin.Context) {
	var req struct {
		ChatID string `json:"chat_id"`
		Name   string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, "invalid payload")
		return
	}
	req.ChatID = strings.TrimSpace(req.ChatID)
	if req.ChatID == "" {
		detail(c, http.StatusBadRequest, "chat_id is required")
		return
	}
	err := h.roomSvc.Join(c.Request.Context(), req.ChatID, req.Name)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Welcome to chat " + req.ChatID})
	case errors.Is(err, service.ErrInvalidName):
		detail(c, http.StatusBadRequest, "name is required")
	case errors.Is(err, service.ErrRoomNotFound):
		detail(c, http.StatusNotFound, "Chat not found")
	default:
		log.Error().Err(err).Str("chat_id", req.ChatID).Msg("join chat")
		detail(c, http.StatusInternalServerError, "failed to join chat")
	}
}

// GetChat 返回房间信息以及当前在线会话数。
func (h *Handler) GetChat(c *gin.Context) {
	code := c.Param("chat_id")
	room, err := h.roomSvc.Get(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			detail(c, http.StatusNotFound, "Chat not found")
			return
		}
		log.Error().Err(err).Str("chat_id", code).Msg("get chat")
		detail(c, http.StatusInternalServerError, "failed to load chat")
		return
	}
	c.JSON(http.StatusOK, room)
}

// ListMessages 处理获取房间消息历史请求，结果按时间升序。
func (h *Handler) ListMessages(c *gin.Context) {
	code := c.Param("chat_id")
	limit := service.DefaultHistoryLimit
	if s := c.Query("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			detail(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}
	msgs, err := h.msgSvc.History(c.Request.Context(), code, limit)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, msgs)
	case errors.Is(err, service.ErrInvalidLimit):
		detail(c, http.StatusBadRequest, "invalid limit")
	case errors.Is(err, service.ErrRoomNotFound):
		detail(c, http.StatusNotFound, "Chat not found")
	default:
		log.Error().Err(err).Str("chat_id", code).Msg("list messages")
		detail(c, http.StatusInternalServerError, "failed to list messages")
	}
}
