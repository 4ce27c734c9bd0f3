package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/ZiyodullaSodiqov/anyChat/internal/config"
	"github.com/ZiyodullaSodiqov/anyChat/internal/db"
	clog "github.com/ZiyodullaSodiqov/anyChat/internal/log"
	"github.com/ZiyodullaSodiqov/anyChat/internal/mongostore"
	"github.com/ZiyodullaSodiqov/anyChat/internal/server"
	"github.com/ZiyodullaSodiqov/anyChat/internal/store"
	"github.com/ZiyodullaSodiqov/anyChat/internal/ws"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func openStore(cfg config.Config) (store.Store, error) {
	if cfg.StoreDriver == "mongo" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		ms, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return ms, nil
	}
	ds, err := db.Open(cfg.StoreDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func main() {
	// main 函数负责加载配置、初始化日志、连接存储并启动 HTTP 服务。
	cfg := config.Load()
	clog.Init(cfg.Env, cfg.LogLevel)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("store connect")
	}

	hub := ws.NewHub()
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.SetupRouter(cfg, st, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("driver", cfg.StoreDriver).Str("fanout", cfg.Fanout).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		time.Duration(cfg.ShutdownSeconds)*time.Second,
		map[string]gfshutdown.Operation{
			"anychat": func(ctx context.Context) error {
				log.Info().Msg("shutting down")
				// 先停止接收请求，再断开 WebSocket 会话等待离开流程落库，最后关闭存储
				httpErr := srv.Shutdown(ctx)
				hubErr := hub.Shutdown(ctx)
				return errors.Join(httpErr, hubErr, st.Close(ctx))
			},
		},
	)
	os.Exit(<-wait)
}
