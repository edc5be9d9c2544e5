// Package ws 把日志总线桥到 WebSocket：新连接先回放环形缓冲里的存量消息，
// 再持续推送新消息，前端刷新也不丢上下文。
package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"signup_engine/internal/logbus"
)

const (
	writeWait    = 5 * time.Second
	pingInterval = 30 * time.Second
)

type Handler struct {
	bus          *logbus.Bus
	allowOrigins []string
	upgrader     websocket.Upgrader
}

func NewHandler(bus *logbus.Bus, allowOrigins []string) *Handler {
	h := &Handler{
		bus:          bus,
		allowOrigins: allowOrigins,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: h.checkOrigin,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if !h.replay(conn) {
		return
	}

	ch, cancel := h.bus.Subscribe(256)
	defer cancel()

	// 读协程只为感知对端断开，收到的内容直接丢弃。
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !h.write(conn, msg) {
				return
			}
		}
	}
}

func (h *Handler) replay(conn *websocket.Conn) bool {
	for _, msg := range h.bus.Snapshot() {
		if !h.write(conn, msg) {
			return false
		}
	}
	return true
}

func (h *Handler) write(conn *websocket.Conn, msg logbus.Message) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg) == nil
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
