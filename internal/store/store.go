package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/ZiyodullaSodiqov/anyChat/internal/models"
)

// 存储层通用错误，service 与 handler 通过 errors.Is 判断。
var (
	ErrNotFound      = errors.New("chat not found")
	ErrDuplicateCode = errors.New("chat id already exists")
	ErrUnavailable   = errors.New("store unavailable")
)

// Store 持久化房间与消息，所有写操作返回前已落盘，没有缓存层。
type Store interface {
	CreateRoom(ctx context.Context, code string) (*models.Room, error)
	FindRoom(ctx context.Context, code string) (*models.Room, error)
	AddParticipant(ctx context.Context, code, name string) error
	AdjustActiveConnections(ctx context.Context, code string, delta int) error
	AppendMessage(ctx context.Context, msg models.Message) (models.Message, error)
	ListMessages(ctx context.Context, code string, limit int) ([]models.Message, error)
	Close(ctx context.Context) error
}

// Unavailable 把底层错误包装为 ErrUnavailable，原始错误保留在链上。
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

const (
	CodeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateCode 生成形如 A12V4A 的房间号，唯一性由 CreateRoom 检查。
func GenerateCode() (string, error) {
	b := make([]byte, CodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}
