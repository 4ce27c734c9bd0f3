package models

import (
	"fmt"
	"time"
)

// SystemSender 是加入/离开通知使用的保留发送者。
const SystemSender = "System"

// Room 是房间元数据，ActiveConnections 永不为负，Participants 只增不减。
type Room struct {
	Code              string    `json:"chat_id"`
	CreatedAt         time.Time `json:"created_at"`
	ActiveConnections int       `json:"active_users"`
	Participants      []string  `json:"participants"`
}

// Message 一经写入不可修改，Timestamp 由中继设置。
type Message struct {
	ID        string    `json:"_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	RoomCode  string    `json:"chat_id"`
}

func NewMessage(roomCode, sender, content string) Message {
	return Message{
		Sender:    sender,
		Content:   content,
		Timestamp: time.Now().UTC(),
		RoomCode:  roomCode,
	}
}

func JoinNotice(roomCode, name string) Message {
	return NewMessage(roomCode, SystemSender, fmt.Sprintf("%s joined the chat", name))
}

func LeaveNotice(roomCode, name string) Message {
	return NewMessage(roomCode, SystemSender, fmt.Sprintf("%s left the chat", name))
}

// IsSystem 客户端据此区分系统通知与普通消息。
func (m Message) IsSystem() bool { return m.Sender == SystemSender }
