package server

import (
	"net/http"

	"github.com/ZiyodullaSodiqov/anyChat/internal/config"
	"github.com/ZiyodullaSodiqov/anyChat/internal/metrics"
	"github.com/ZiyodullaSodiqov/anyChat/internal/mw"
	"github.com/ZiyodullaSodiqov/anyChat/internal/service"
	"github.com/ZiyodullaSodiqov/anyChat/internal/store"
	"github.com/ZiyodullaSodiqov/anyChat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, st store.Store, hub *ws.Hub) *gin.Engine {
	roomSvc := service.NewRoomService(st, hub, cfg.RoomCodeAttempts)
	msgSvc := service.NewMessageService(st, cfg.HistoryMaxLimit)
	h := NewHandler(roomSvc, msgSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw.RequestLog())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.CORSOrigins))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/create-chat", h.CreateChat)
	r.POST("/join-chat", h.JoinChat)
	r.GET("/chat/:chat_id", h.GetChat)
	r.GET("/chat/:chat_id/messages", h.ListMessages)

	r.GET("/ws/:chat_id", ws.Serve(hub, st, cfg))
	return r
}
