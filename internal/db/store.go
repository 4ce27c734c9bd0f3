package db

import (
	"context"
	"errors"
	"time"

	"github.com/ZiyodullaSodiqov/anyChat/internal/models"
	"github.com/ZiyodullaSodiqov/anyChat/internal/store"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 是基于 GORM 的关系型存储实现，支持 Postgres 与 SQLite。
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

func New(gdb *gorm.DB) *Store { return &Store{db: gdb} }

// Open 连接数据库并完成迁移。
func Open(driver, dsn string) (*Store, error) {
	gdb, err := Connect(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return New(gdb), nil
}

func (s *Store) CreateRoom(ctx context.Context, code string) (*models.Room, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&chatRecord{}).Where("chat_id = ?", code).Count(&count).Error; err != nil {
		return nil, store.Unavailable("create room", err)
	}
	if count > 0 {
		return nil, store.ErrDuplicateCode
	}
	rec := chatRecord{Code: code, CreatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, store.ErrDuplicateCode
		}
		return nil, store.Unavailable("create room", err)
	}
	return &models.Room{Code: rec.Code, CreatedAt: rec.CreatedAt, Participants: []string{}}, nil
}

func (s *Store) FindRoom(ctx context.Context, code string) (*models.Room, error) {
	var rec chatRecord
	if err := s.db.WithContext(ctx).Where("chat_id = ?", code).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, store.Unavailable("find room", err)
	}
	names := make([]string, 0)
	if err := s.db.WithContext(ctx).Model(&participantRecord{}).
		Where("chat_id = ?", code).
		Order("created_at, name").
		Pluck("name", &names).Error; err != nil {
		return nil, store.Unavailable("find room participants", err)
	}
	return &models.Room{
		Code:              rec.Code,
		CreatedAt:         rec.CreatedAt.UTC(),
		ActiveConnections: rec.ActiveConnections,
		Participants:      names,
	}, nil
}

// AddParticipant 幂等地记录参与者并把在线计数加一，二者在同一事务内完成。
func (s *Store) AddParticipant(ctx context.Context, code, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&chatRecord{}).Where("chat_id = ?", code).
			UpdateColumn("active_users", gorm.Expr("active_users + ?", 1))
		if res.Error != nil {
			return store.Unavailable("add participant", res.Error)
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		p := participantRecord{RoomCode: code, Name: name, CreatedAt: time.Now().UTC()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
			return store.Unavailable("add participant", err)
		}
		return nil
	})
}

// AdjustActiveConnections 在数据库内完成加减与下限截断，重复的断开信号不会让计数为负。
func (s *Store) AdjustActiveConnections(ctx context.Context, code string, delta int) error {
	res := s.db.WithContext(ctx).Model(&chatRecord{}).Where("chat_id = ?", code).
		UpdateColumn("active_users", gorm.Expr("CASE WHEN active_users + ? < 0 THEN 0 ELSE active_users + ? END", delta, delta))
	if res.Error != nil {
		return store.Unavailable("adjust active connections", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&chatRecord{}).Where("chat_id = ?", msg.RoomCode).Count(&count).Error; err != nil {
		return models.Message{}, store.Unavailable("append message", err)
	}
	if count == 0 {
		return models.Message{}, store.ErrNotFound
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	rec := messageRecord{
		ID:        uuid.NewString(),
		RoomCode:  msg.RoomCode,
		Sender:    msg.Sender,
		Content:   msg.Content,
		Timestamp: msg.Timestamp.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return models.Message{}, store.Unavailable("append message", err)
	}
	return rec.toModel(), nil
}

// ListMessages 先按时间倒序取最近 limit 条，再反转为升序返回。
func (s *Store) ListMessages(ctx context.Context, code string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return []models.Message{}, nil
	}
	var recs []messageRecord
	if err := s.db.WithContext(ctx).
		Where("chat_id = ?", code).
		Order("timestamp desc").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, store.Unavailable("list messages", err)
	}
	out := make([]models.Message, len(recs))
	for i, r := range recs {
		out[len(recs)-1-i] = r.toModel()
	}
	return out, nil
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
