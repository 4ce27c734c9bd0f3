package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ZiyodullaSodiqov/anyChat/internal/metrics"
	"github.com/ZiyodullaSodiqov/anyChat/internal/store"
	"github.com/ZiyodullaSodiqov/anyChat/internal/ws"

	"github.com/rs/zerolog/log"
)

// RoomService 封装房间相关的业务逻辑。
type RoomService struct {
	store    store.Store
	hub      *ws.Hub
	attempts int
	newCode  func() (string, error)
}

func NewRoomService(st store.Store, hub *ws.Hub, attempts int) *RoomService {
	if attempts < 1 {
		attempts = 1
	}
	return &RoomService{store: st, hub: hub, attempts: attempts, newCode: store.GenerateCode}
}

// RoomDTO 是对外输出的房间数据，Online 取自当前进程的在线会话。
type RoomDTO struct {
	ChatID       string    `json:"chat_id"`
	CreatedAt    time.Time `json:"created_at"`
	ActiveUsers  int       `json:"active_users"`
	Participants []string  `json:"participants"`
	Online       int       `json:"online"`
}

// Create 生成房间号并创建房间，冲突时最多尝试 attempts 个候选号。
func (s *RoomService) Create(ctx context.Context) (string, error) {
	var lastErr error
	for i := 0; i < s.attempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		room, err := s.store.CreateRoom(ctx, code)
		if err == nil {
			metrics.RoomsCreatedTotal.Inc()
			return room.Code, nil
		}
		if !errors.Is(err, store.ErrDuplicateCode) {
			return "", err
		}
		log.Warn().Str("chat_id", code).Int("attempt", i+1).Msg("room code collision")
		lastErr = err
	}
	return "", lastErr
}

// Join 通过 HTTP 加入房间：记录参与者并增加活跃计数，与 WebSocket 连接互不依赖。
func (s *RoomService) Join(ctx context.Context, code, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	return s.store.AddParticipant(ctx, code, name)
}

func (s *RoomService) Get(ctx context.Context, code string) (*RoomDTO, error) {
	room, err := s.store.FindRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	participants := room.Participants
	if participants == nil {
		participants = []string{}
	}
	return &RoomDTO{
		ChatID:       room.Code,
		CreatedAt:    room.CreatedAt,
		ActiveUsers:  room.ActiveConnections,
		Participants: participants,
		Online:       s.hub.Online(room.Code),
	}, nil
}
