package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ZiyodullaSodiqov/anyChat/internal/config"
	"github.com/ZiyodullaSodiqov/anyChat/internal/db"
	"github.com/ZiyodullaSodiqov/anyChat/internal/models"
	"github.com/ZiyodullaSodiqov/anyChat/internal/store"
	"github.com/ZiyodullaSodiqov/anyChat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Port:             "0",
		Env:              "dev",
		StoreDriver:      db.DriverSQLite,
		DatabaseDSN:      ":memory:",
		CORSOrigins:      []string{"*"},
		Fanout:           config.FanoutEcho,
		RoomCodeAttempts: 1,
		HistoryMaxLimit:  1000,
		KeepAliveSeconds: 60,
	}
}

func openTestStore(t *testing.T) *db.Store {
	t.Helper()
	cfg := testConfig()
	st, err := db.Open(cfg.StoreDriver, cfg.DatabaseDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	return st
}

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return SetupRouter(testConfig(), openTestStore(t), ws.NewHub())
}

// downStore 模拟数据库不可用：所有读写都返回 ErrUnavailable。
type downStore struct{ *db.Store }

var errDown = errors.New("connection refused")

func (downStore) CreateRoom(context.Context, string) (*models.Room, error) {
	return nil, store.Unavailable("create room", errDown)
}

func (downStore) FindRoom(context.Context, string) (*models.Room, error) {
	return nil, store.Unavailable("find room", errDown)
}

func (downStore) AddParticipant(context.Context, string, string) error {
	return store.Unavailable("add participant", errDown)
}

func (downStore) ListMessages(context.Context, string, int) ([]models.Message, error) {
	return nil, store.Unavailable("list messages", errDown)
}

func do(engine http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func createChat(t *testing.T, engine http.Handler) string {
	t.Helper()
	w := do(engine, http.MethodPost, "/create-chat", nil)
	require.Equal(t, http.StatusOK, w.Code)
	return decode[map[string]string](t, w)["chat_id"]
}

func TestHealthz(t *testing.T) {
	engine := newTestEngine(t)
	w := do(engine, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	engine := newTestEngine(t)
	w := do(engine, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chat_ws_connections")
}

func TestCreateChat(t *testing.T) {
	engine := newTestEngine(t)
	code := createChat(t, engine)
	assert.Len(t, code, 6)

	w := do(engine, http.MethodGet, "/chat/"+code, nil)
	require.Equal(t, http.StatusOK, w.Code)
	room := decode[map[string]any](t, w)
	assert.Equal(t, code, room["chat_id"])
	assert.EqualValues(t, 0, room["active_users"])
	assert.EqualValues(t, 0, room["online"])
	assert.Empty(t, room["participants"])
}

func TestJoinChat(t *testing.T) {
	engine := newTestEngine(t)
	code := createChat(t, engine)

	w := do(engine, http.MethodPost, "/join-chat", gin.H{"chat_id": code, "name": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[map[string]string](t, w)
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, "Welcome to chat "+code, resp["message"])

	room := decode[map[string]any](t, do(engine, http.MethodGet, "/chat/"+code, nil))
	assert.Equal(t, []any{"alice"}, room["participants"])
	assert.EqualValues(t, 1, room["active_users"])
}

func TestJoinChat_Errors(t *testing.T) {
	engine := newTestEngine(t)
	code := createChat(t, engine)

	tests := []struct {
		name   string
		body   any
		status int
		detail string
	}{
		{name: "unknown chat", body: gin.H{"chat_id": "NOPE00", "name": "alice"}, status: http.StatusNotFound, detail: "Chat not found"},
		{name: "missing name", body: gin.H{"chat_id": code}, status: http.StatusBadRequest, detail: "name is required"},
		{name: "missing chat id", body: gin.H{"name": "alice"}, status: http.StatusBadRequest, detail: "chat_id is required"},
		{name: "not json", body: "plain", status: http.StatusBadRequest, detail: "invalid payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(engine, http.MethodPost, "/join-chat", tt.body)
			require.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.detail, decode[map[string]string](t, w)["detail"])
		})
	}
}

func TestGetChat_NotFound(t *testing.T) {
	engine := newTestEngine(t)
	w := do(engine, http.MethodGet, "/chat/NOPE00", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Chat not found", decode[map[string]string](t, w)["detail"])
}

func TestListMessages(t *testing.T) {
	engine := newTestEngine(t)
	code := createChat(t, engine)

	w := do(engine, http.MethodGet, "/chat/"+code+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "unknown chat", path: "/chat/NOPE00/messages", status: http.StatusNotFound},
		{name: "non numeric limit", path: "/chat/" + code + "/messages?limit=abc", status: http.StatusBadRequest},
		{name: "zero limit", path: "/chat/" + code + "/messages?limit=0", status: http.StatusBadRequest},
		{name: "above max is capped", path: "/chat/" + code + "/messages?limit=5000", status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(engine, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestChatOverWebSocket(t *testing.T) {
	engine := newTestEngine(t)
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	code := createChat(t, engine)

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + code + "?name=alice"
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()

	var frame struct {
		Sender  string `json:"sender"`
		Content string `json:"content"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, models.SystemSender, frame.Sender)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "alice", frame.Sender)
	assert.Equal(t, "hello", frame.Content)

	online := decode[map[string]any](t, do(engine, http.MethodGet, "/chat/"+code, nil))
	assert.EqualValues(t, 1, online["online"])
	assert.EqualValues(t, 1, online["active_users"])

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))

	var history []models.Message
	require.Eventually(t, func() bool {
		w := do(engine, http.MethodGet, "/chat/"+code+"/messages?limit=100", nil)
		history = nil
		if w.Code != http.StatusOK || json.Unmarshal(w.Body.Bytes(), &history) != nil || len(history) != 3 {
			return false
		}
		var room map[string]any
		if json.Unmarshal(do(engine, http.MethodGet, "/chat/"+code, nil).Body.Bytes(), &room) != nil {
			return false
		}
		return room["active_users"] == float64(0) && room["online"] == float64(0)
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "alice joined the chat", history[0].Content)
	assert.Equal(t, "hello", history[1].Content)
	assert.Equal(t, "alice left the chat", history[2].Content)
	for _, m := range history {
		assert.Equal(t, code, m.RoomCode)
		assert.NotEmpty(t, m.ID)
	}
}

func TestStoreUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := SetupRouter(testConfig(), downStore{openTestStore(t)}, ws.NewHub())

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		detail string
	}{
		{name: "create chat", method: http.MethodPost, path: "/create-chat", detail: "failed to create chat"},
		{name: "join chat", method: http.MethodPost, path: "/join-chat", body: gin.H{"chat_id": "A12V4A", "name": "alice"}, detail: "failed to join chat"},
		{name: "get chat", method: http.MethodGet, path: "/chat/A12V4A", detail: "failed to load chat"},
		{name: "list messages", method: http.MethodGet, path: "/chat/A12V4A/messages", detail: "failed to list messages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(engine, tt.method, tt.path, tt.body)
			require.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, tt.detail, decode[map[string]string](t, w)["detail"])
		})
	}
}
