package ws

import (
	"context"
	"sync"
)

// Session 是一个可以接收下行消息的连接。Send 不得阻塞，无法投递时返回 false。
// Close 断开底层连接，会话随后自行执行离开流程。
type Session interface {
	Send(payload []byte) bool
	Close() error
}

// Hub 维护房间号到在线会话集合的映射，仅用于消息扇出，参与者历史以存储为准。
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*roomSet

	// live 统计尚未结束的会话处理流程，closing 后不再接受新会话。
	live    int
	closing bool
	drained chan struct{}
}

type roomSet struct {
	sessions map[Session]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*roomSet), drained: make(chan struct{})}
}

// Acquire 在处理新连接前调用，Hub 已关闭时返回 false。成功时必须配对调用 Release。
func (h *Hub) Acquire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.live++
	return true
}

// Release 标记一个会话流程结束（离开通知与计数已处理完毕）。
func (h *Hub) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live--
	if h.live == 0 && h.closing {
		close(h.drained)
	}
}

// Register 将会话加入房间，集合不存在时懒创建。关闭过程中注册的会话会被立即断开。
func (h *Hub) Register(code string, s Session) {
	h.mu.Lock()
	room := h.rooms[code]
	if room == nil {
		room = &roomSet{sessions: make(map[Session]struct{})}
		h.rooms[code] = room
	}
	room.sessions[s] = struct{}{}
	closing := h.closing
	h.mu.Unlock()

	if closing {
		_ = s.Close()
	}
}

// Unregister 移除会话，房间为空时一并删除。重复调用无副作用。
func (h *Hub) Unregister(code string, s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[code]
	if room == nil {
		return
	}
	delete(room.sessions, s)
	if len(room.sessions) == 0 {
		delete(h.rooms, code)
	}
}

// Broadcast 向房间内所有会话投递 payload，返回成功与失败的数量。
// 在读锁内取快照，锁外投递；单个会话失败不影响其他会话。
func (h *Hub) Broadcast(code string, payload []byte) (delivered, dropped int) {
	for _, s := range h.snapshot(code) {
		if s.Send(payload) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

func (h *Hub) snapshot(code string) []Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[code]
	if room == nil {
		return nil
	}
	out := make([]Session, 0, len(room.sessions))
	for s := range room.sessions {
		out = append(out, s)
	}
	return out
}

// Shutdown 拒绝新会话，断开所有在线会话，并等待它们的离开流程结束或 ctx 超时。
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if !h.closing {
		h.closing = true
		if h.live == 0 {
			close(h.drained)
		}
	}
	var all []Session
	for _, room := range h.rooms {
		for s := range room.sessions {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		_ = s.Close()
	}
	select {
	case <-h.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Online 返回房间当前在线会话数，供 REST 接口复用。
func (h *Hub) Online(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room := h.rooms[code]; room != nil {
		return len(room.sessions)
	}
	return 0
}

// Rooms 返回当前有在线会话的房间数。
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
