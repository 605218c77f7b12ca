// Package notify pushes live reload messages to connected browsers over
// WebSocket.
package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maxkimambo/assetpipe/internal/logger"
)

const writeTimeout = 5 * time.Second

// Message is the reload instruction sent to every client
type Message struct {
	Command  string   `json:"command"`
	Category Category `json:"category"`
	Mode     Mode     `json:"mode"`
	Paths    []string `json:"paths"`
}

type client struct {
	conn *websocket.Conn
	// gorilla connections allow one concurrent writer
	writeMu sync.Mutex
}

func (c *client) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Notifier is an http.Handler that upgrades requests to WebSocket and keeps
// the set of connected clients
type Notifier struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// New creates a notifier with no clients
func New() *Notifier {
	return &Notifier{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dev server is local; pages may be opened from any host name
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the connection and registers the client until it
// disconnects
func (n *Notifier) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()
	if closed {
		http.Error(w, "live reload is shut down", http.StatusServiceUnavailable)
		return
	}

	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if logger.Op != nil {
			logger.Op.Debugf("Live reload upgrade failed: %v", err)
		}
		return
	}

	c := &client{conn: conn}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		conn.Close()
		return
	}
	n.clients[c] = struct{}{}
	count := len(n.clients)
	n.mu.Unlock()

	if logger.Op != nil {
		logger.Op.WithFields(map[string]interface{}{
			"remote":  r.RemoteAddr,
			"clients": count,
		}).Debug("Live reload client connected")
	}

	// Reading is only used to notice disconnects
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				n.drop(c)
				return
			}
		}
	}()
}

// NotifyReload sends a reload message for paths to every client and returns
// the number of clients reached. Clients that fail the write are dropped.
func (n *Notifier) NotifyReload(paths []string) int {
	category := classifyBatch(paths)
	msg := Message{
		Command:  "reload",
		Category: category,
		Mode:     category.Mode(),
		Paths:    append([]string{}, paths...),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return 0
	}

	n.mu.Lock()
	clients := make([]*client, 0, len(n.clients))
	for c := range n.clients {
		clients = append(clients, c)
	}
	n.mu.Unlock()

	delivered := 0
	for _, c := range clients {
		if err := c.send(data); err != nil {
			if logger.Op != nil {
				logger.Op.Debugf("Dropping live reload client: %v", err)
			}
			n.drop(c)
			continue
		}
		delivered++
	}

	if logger.User != nil && delivered > 0 {
		logger.User.Reloadf("Reloaded %d browser(s): %s (%s)", delivered, msg.Category, msg.Mode)
	}
	return delivered
}

// Clients returns the number of connected clients
func (n *Notifier) Clients() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.clients)
}

// Close disconnects every client and refuses new ones
func (n *Notifier) Close() error {
	n.mu.Lock()
	n.closed = true
	clients := n.clients
	n.clients = make(map[*client]struct{})
	n.mu.Unlock()

	for c := range clients {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
	}
	return nil
}

func (n *Notifier) drop(c *client) {
	n.mu.Lock()
	_, ok := n.clients[c]
	delete(n.clients, c)
	n.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}
