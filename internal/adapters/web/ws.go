package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bebra552/TgGroopSoft/internal/domain/parsejob"
	"github.com/bebra552/TgGroopSoft/internal/infra/apptime"
	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsSendBuffer   = 64
	wsQueueSize    = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// wsMessage — событие задачи в том виде, в каком его получает браузер.
type wsMessage struct {
	Type      string    `json:"type"`
	JobID     int64     `json:"job"`
	Seq       int64     `json:"seq"`
	Time      string    `json:"time"`
	Message   string    `json:"message,omitempty"`
	Collected int       `json:"collected,omitempty"`
	Target    int       `json:"target,omitempty"`
	Chat      string    `json:"chat,omitempty"`
	Records   int       `json:"records,omitempty"`
	Prompt    *wsPrompt `json:"prompt,omitempty"`
	Terminal  bool      `json:"terminal,omitempty"`
}

type wsPrompt struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Secret  bool   `json:"secret"`
}

func newWSMessage(ev parsejob.Event) wsMessage {
	msg := wsMessage{
		Type:      string(ev.Kind),
		JobID:     ev.JobID,
		Seq:       ev.Seq,
		Time:      apptime.Clock(ev.Time),
		Message:   ev.Message,
		Collected: ev.Collected,
		Target:    ev.Target,
		Chat:      ev.Chat,
		Records:   len(ev.Records),
		Terminal:  ev.Terminal(),
	}
	if ev.Prompt != nil {
		msg.Prompt = &wsPrompt{
			Kind:    string(ev.Prompt.Kind),
			Message: ev.Prompt.Message,
			Secret:  ev.Prompt.Kind.Secret(),
		}
	}
	return msg
}

// wsClient — одно подключение браузера.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub раздаёт события задач всем подключённым браузерам.
type Hub struct {
	clients    map[*wsClient]struct{}
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte

	mu sync.RWMutex
}

// NewHub создаёт хаб; цикл запускается через Run.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]struct{}),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, wsQueueSize),
	}
}

// Run обслуживает регистрацию и рассылку до отмены ctx.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// медленный клиент: отключаем, он перезагрузит журнал через /api/events
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish — слушатель событий менеджера. Не блокирует воркер: при
// переполненной очереди событие отбрасывается.
func (h *Hub) Publish(ev parsejob.Event) {
	data, err := json.Marshal(newWSMessage(ev))
	if err != nil {
		logger.Error("ws: marshal event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		logger.Warn("ws: broadcast queue is full, event dropped", zap.Int64("seq", ev.Seq))
	}
}

// Clients — число подключённых браузеров.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// serveWS апгрейдит соединение и запускает насосы чтения и записи.
func (h *Hub) serveWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("ws: upgrade failed", zap.Error(err))
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	select {
	case h.register <- c:
	case <-ctx.Done():
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(ctx, c)
}

// readPump читает только служебные кадры: клиент ничего не присылает.
func (h *Hub) readPump(ctx context.Context, c *wsClient) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-ctx.Done():
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
