package db

import (
	"time"

	"github.com/ZiyodullaSodiqov/anyChat/internal/models"
)

type chatRecord struct {
	Code              string `gorm:"primaryKey;column:chat_id;size:16"`
	ActiveConnections int    `gorm:"column:active_users;not null;default:0"`
	CreatedAt         time.Time
}

func (chatRecord) TableName() string { return "chats" }

type participantRecord struct {
	RoomCode  string `gorm:"primaryKey;column:chat_id;size:16"`
	Name      string `gorm:"primaryKey;size:255"`
	CreatedAt time.Time
}

func (participantRecord) TableName() string { return "chat_participants" }

type messageRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	RoomCode  string    `gorm:"column:chat_id;index;size:16;not null"`
	Sender    string    `gorm:"size:255;not null"`
	Content   string    `gorm:"type:text;not null"`
	Timestamp time.Time `gorm:"index;not null"`
}

func (messageRecord) TableName() string { return "messages" }

func (r messageRecord) toModel() models.Message {
	return models.Message{
		ID:        r.ID,
		Sender:    r.Sender,
		Content:   r.Content,
		Timestamp: r.Timestamp.UTC(),
		RoomCode:  r.RoomCode,
	}
}
