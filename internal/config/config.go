package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	FanoutEcho = "echo"
	FanoutRoom = "room"

	defaultDSN = "host=localhost user=postgres password=postgres dbname=anychat port=5432 sslmode=disable TimeZone=UTC"
)

type Config struct {
	Port             string
	Env              string
	LogLevel         string
	StoreDriver      string
	DatabaseDSN      string
	MongoURI         string
	MongoDatabase    string
	CORSOrigins      []string
	Fanout           string
	RoomCodeAttempts int
	HistoryMaxLimit  int
	KeepAliveSeconds int
	ShutdownSeconds  int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// getenvInt 解析失败或非正数时回退到默认值。
func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, ""))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load 读取环境变量，存在 .env 文件时先加载。
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Port:             getenv("APP_PORT", "8000"),
		Env:              getenv("APP_ENV", "dev"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		StoreDriver:      getenv("STORE_DRIVER", "postgres"),
		DatabaseDSN:      getenv("DATABASE_DSN", defaultDSN),
		MongoURI:         getenv("MONGODB_URI", ""),
		MongoDatabase:    getenv("MONGODB_DATABASE", "chat_app"),
		CORSOrigins:      splitList(getenv("CORS_ORIGINS", "*")),
		Fanout:           strings.ToLower(getenv("CHAT_FANOUT", FanoutEcho)),
		RoomCodeAttempts: getenvInt("ROOM_CODE_ATTEMPTS", 1),
		HistoryMaxLimit:  getenvInt("HISTORY_MAX_LIMIT", 1000),
		KeepAliveSeconds: getenvInt("WS_KEEPALIVE_SECONDS", 60),
		ShutdownSeconds:  getenvInt("SHUTDOWN_TIMEOUT_SECONDS", 30),
	}
}

// Validate 拒绝不完整的配置；非 dev 环境不允许使用内置的数据库凭据。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("APP_PORT is required")
	}
	switch cfg.StoreDriver {
	case "postgres", "sqlite":
		if cfg.DatabaseDSN == "" {
			return errors.New("DATABASE_DSN is required")
		}
		if cfg.StoreDriver == "postgres" && cfg.Env != "dev" && cfg.DatabaseDSN == defaultDSN {
			return errors.New("DATABASE_DSN must be set outside dev")
		}
	case "mongo":
		if cfg.MongoURI == "" {
			return errors.New("MONGODB_URI is required for the mongo driver")
		}
		if cfg.MongoDatabase == "" {
			return errors.New("MONGODB_DATABASE is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.Fanout != FanoutEcho && cfg.Fanout != FanoutRoom {
		return fmt.Errorf("unsupported CHAT_FANOUT %q", cfg.Fanout)
	}
	if cfg.RoomCodeAttempts < 1 {
		return errors.New("ROOM_CODE_ATTEMPTS must be at least 1")
	}
	return nil
}
