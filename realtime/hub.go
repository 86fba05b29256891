package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event 推播給前端的事件框架
type Event struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 前端走跨域開發伺服器，這裡不擋 origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub 管理每個使用者的 websocket 連線。一個使用者可以有多個連線（多分頁），
// 推播時全部送一遍。沒有連線的使用者推播直接略過，前端之後輪詢也拿得到通知。
type Hub struct {
	mu    sync.RWMutex
	conns map[int][]*connection
}

type connection struct {
	ws *websocket.Conn
	mu sync.Mutex // websocket 寫入不允許併發
}

func NewHub() *Hub {
	return &Hub{conns: make(map[int][]*connection)}
}

// HandleConnection 升級 HTTP 連線並註冊到 hub，阻塞到連線關閉為止
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request, userID int) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}

	conn := &connection{ws: ws}
	h.register(userID, conn)
	log.Printf("User %d connected to notification stream", userID)

	defer func() {
		h.unregister(userID, conn)
		ws.Close()
		log.Printf("User %d disconnected from notification stream", userID)
	}()

	// 只收 ping/close，客戶端不往這個方向送資料
	ws.SetReadLimit(512)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return nil
		}
	}
}

func (h *Hub) register(userID int, conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[userID] = append(h.conns[userID], conn)
}

func (h *Hub) unregister(userID int, conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.conns[userID]
	for i, c := range conns {
		if c == conn {
			h.conns[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
}

// Push 對使用者的所有連線推播事件。推播是盡力而為：寫入失敗只記錄，
// 壞掉的連線交給讀取迴圈收掉。
func (h *Hub) Push(userID int, event string, payload interface{}) error {
	h.mu.RLock()
	conns := make([]*connection, len(h.conns[userID]))
	copy(conns, h.conns[userID])
	h.mu.RUnlock()

	if len(conns) == 0 {
		return nil
	}

	msg, err := json.Marshal(Event{Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event, err)
	}

	for _, conn := range conns {
		conn.mu.Lock()
		conn.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Printf("Failed to push %s to user %d: %v", event, userID, err)
		}
		conn.mu.Unlock()
	}
	return nil
}
