// Package livefeed is a local operator-facing WebSocket broadcast hub:
// it fans every emitted signal out to whatever dashboards or CLIs are
// currently connected. It is not the alerting front-end named in the
// specification's scope boundary — that stays an external consumer of
// signal.Sink over Redis; this is purely an in-process ops convenience.
package livefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/epic1st/mexcscanner/logging"
	"github.com/epic1st/mexcscanner/signal"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of connected operator clients and broadcasts
// every published Signal to all of them.
type Hub struct {
	log *logging.Logger

	mu      sync.Mutex
	clients map[*client]bool

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
}

// NewHub creates an empty Hub. Call Run in its own goroutine before
// serving HTTPHandler.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
	}
}

// Run services registration and broadcast events until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*client]bool)
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
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
					// slow client: drop rather than block the hub
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish implements signal.Sink by broadcasting the signal as JSON to
// every connected operator client. It never blocks on a slow client: a
// full broadcast buffer drops the signal without an error. It returns an
// error only when the signal cannot be JSON-encoded.
func (h *Hub) Publish(_ context.Context, s signal.Signal) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("livefeed broadcast buffer full, dropping signal", logging.Component("livefeed"), logging.Symbol(s.Symbol))
	}
	return nil
}

// HTTPHandler upgrades incoming connections and registers them with the hub.
func (h *Hub) HTTPHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", err, logging.Component("livefeed"))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 32)}
	h.register <- c
	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
