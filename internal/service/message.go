package service

import (
	"context"

	"github.com/ZiyodullaSodiqov/anyChat/internal/models"
	"github.com/ZiyodullaSodiqov/anyChat/internal/store"
)

const DefaultHistoryLimit = 100

// MessageService 封装消息历史查询。
type MessageService struct {
	store    store.Store
	maxLimit int
}

func NewMessageService(st store.Store, maxLimit int) *MessageService {
	if maxLimit <= 0 {
		maxLimit = 1000
	}
	return &MessageService{store: st, maxLimit: maxLimit}
}

// History 返回房间最近 limit 条消息，按时间升序；超过上限时截断到上限。
func (s *MessageService) History(ctx context.Context, code string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	if _, err := s.store.FindRoom(ctx, code); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, code, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}
