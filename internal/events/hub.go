package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout       = 2 * time.Second
	defaultHistorySize = 50
)

// Hub fans JSON events out to TCP and websocket subscribers. Slow or dead
// subscribers are dropped on the first failed write. The last events are
// kept and replayed to every new subscriber.
type Hub struct {
	mu          sync.Mutex
	clients     map[net.Conn]struct{}
	wsClients   map[*websocket.Conn]struct{}
	history     [][]byte
	historySize int
	logger      *zap.Logger
}

type Stats struct {
	TCPClients int `json:"tcp_clients"`
	WSClients  int `json:"ws_clients"`
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:     make(map[net.Conn]struct{}),
		wsClients:   make(map[*websocket.Conn]struct{}),
		historySize: defaultHistorySize,
		logger:      logger,
	}
}

// Add replays the retained events to conn and subscribes it. Both happen
// under the hub lock so no event is missed or delivered twice.
func (h *Hub) Add(conn net.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, b := range h.history {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := conn.Write(b); err != nil {
			h.logger.Debug("replay to tcp subscriber failed", zap.Error(err))
			_ = conn.Close()
			return
		}
	}
	h.clients[conn] = struct{}{}
}

func (h *Hub) Remove(conn net.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *Hub) AddWS(ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, b := range h.history {
		_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			h.logger.Debug("replay to websocket subscriber failed", zap.Error(err))
			_ = ws.Close()
			return
		}
	}
	h.wsClients[ws] = struct{}{}
}

func (h *Hub) RemoveWS(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.wsClients, ws)
	h.mu.Unlock()
	_ = ws.Close()
}

// BroadcastJSON sends v as one newline-terminated JSON line to every subscriber.
func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("drop unencodable event", zap.Error(err))
		return
	}
	b = append(b, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	h.history = append(h.history, b)
	if over := len(h.history) - h.historySize; over > 0 {
		h.history = append(h.history[:0:0], h.history[over:]...)
	}

	for c := range h.clients {
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		w := bufio.NewWriter(c)
		if _, err := w.Write(b); err != nil {
			h.dropTCP(c, err)
			continue
		}
		if err := w.Flush(); err != nil {
			h.dropTCP(c, err)
		}
	}

	for ws := range h.wsClients {
		_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			h.logger.Debug("dropping websocket subscriber", zap.Error(err))
			_ = ws.Close()
			delete(h.wsClients, ws)
		}
	}
}

// dropTCP must be called with h.mu held.
func (h *Hub) dropTCP(c net.Conn, err error) {
	h.logger.Debug("dropping tcp subscriber", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
	_ = c.Close()
	delete(h.clients, c)
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		TCPClients: len(h.clients),
		WSClients:  len(h.wsClients),
	}
}

// Recent returns copies of the retained events, oldest first.
func (h *Hub) Recent() []json.RawMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]json.RawMessage, len(h.history))
	for i, b := range h.history {
		out[i] = append(json.RawMessage(nil), bytes.TrimSuffix(b, []byte("\n"))...)
	}
	return out
}

// Welcome must be sent before Add so it precedes any replayed event.
func (h *Hub) Welcome(conn net.Conn) {
	stats := h.Stats()
	msg := fmt.Sprintf("{\"type\":\"welcome\",\"transport\":\"tcp\",\"clients\":%d}\n", stats.TCPClients+1)
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, _ = conn.Write([]byte(msg))
}
