package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/assetpipe/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 16
)

// Message types understood by the reload client.
const (
	MessageReload     = "reload"
	MessageBuildError = "build_error"
	MessageConnected  = "connected"
)

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks the connected reload sessions and fans messages out to them.
// It implements watcher.Notifier.
//
// A single goroutine owns registration and broadcasting; the clients map is
// guarded by clientsMutex so Clients can be read from handlers.
type Hub struct {
	clients      map[*websocket.Conn]*client
	clientsMutex sync.RWMutex

	broadcast  chan []byte
	register   chan *client
	unregister chan *websocket.Conn

	allowedOrigins []string
	logger         logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	done         chan struct{}
}

// NewHub starts a hub. allowedOrigins are host[:port] patterns (path.Match
// syntax) accepted in addition to the server's own host.
func NewHub(allowedOrigins []string, logger logging.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		clients:        make(map[*websocket.Conn]*client),
		broadcast:      make(chan []byte, 64),
		register:       make(chan *client, 16),
		unregister:     make(chan *websocket.Conn, 16),
		allowedOrigins: allowedOrigins,
		logger:         logger.WithComponent("hub"),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}

	go h.run()

	return h
}

// ServeHTTP upgrades the request to a reload session.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	if !h.isAllowedOrigin(r) {
		h.logger.Warn(r.Context(), nil, "Rejected websocket connection",
			"origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	// Origins were checked above against our own list
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "Websocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	select {
	case h.register <- c:
	case <-h.ctx.Done():
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go h.handleClient(c)
}

// isAllowedOrigin accepts requests without an Origin header (non-browser
// clients), same-origin requests and origins matching allowedOrigins.
func (h *Hub) isAllowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == r.Host {
		return true
	}

	for _, pattern := range h.allowedOrigins {
		if ok, _ := path.Match(pattern, u.Host); ok {
			return true
		}
	}

	return false
}

func (h *Hub) run() {
	defer close(h.done)

	for {
		select {
		case c := <-h.register:
			h.clientsMutex.Lock()
			h.clients[c.conn] = c
			total := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Debug(h.ctx, "Client connected", "clients", total)

		case conn := <-h.unregister:
			h.removeClient(conn)

		case message := <-h.broadcast:
			h.clientsMutex.RLock()
			for _, c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Slow client, drop it rather than block everyone else
					go func(conn *websocket.Conn) {
						select {
						case h.unregister <- conn:
						case <-h.ctx.Done():
						}
					}(c.conn)
				}
			}
			h.clientsMutex.RUnlock()

		case <-h.ctx.Done():
			h.clientsMutex.Lock()
			for conn, c := range h.clients {
				close(c.send)
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			}
			h.clients = make(map[*websocket.Conn]*client)
			h.clientsMutex.Unlock()
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMutex.Lock()
	c, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(c.send)
	}
	total := len(h.clients)
	h.clientsMutex.Unlock()

	if ok {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Debug(h.ctx, "Client disconnected", "clients", total)
	}
}

func (h *Hub) handleClient(c *client) {
	defer func() {
		select {
		case h.unregister <- c.conn:
		case <-h.ctx.Done():
		}
	}()

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages; it exists to notice disconnects.
func (h *Hub) readPump(c *client) {
	for {
		ctx, cancel := context.WithTimeout(h.ctx, pongWait)
		_, _, err := c.conn.Read(ctx)
		cancel()

		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway && h.ctx.Err() == nil {
				h.logger.Debug(h.ctx, "Websocket read ended", "error", err.Error())
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}

			ctx, cancel := context.WithTimeout(h.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(h.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-h.ctx.Done():
			return
		}
	}
}

// Broadcast queues message for every connected client. Messages are dropped
// once the hub is shut down.
func (h *Hub) Broadcast(message UpdateMessage) {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error(h.ctx, err, "Failed to marshal broadcast message")
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.ctx.Done():
	}
}

// Reload tells every browser to reload.
func (h *Hub) Reload(ctx context.Context) {
	h.logger.Info(ctx, "Reloading browsers", "clients", h.Clients())
	h.Broadcast(UpdateMessage{Type: MessageReload})
}

// BuildFailed sends the rebuild error to every browser. Browsers keep their
// current page.
func (h *Hub) BuildFailed(ctx context.Context, err error) {
	msg := UpdateMessage{Type: MessageBuildError}
	if err != nil {
		msg.Content = err.Error()
	}
	h.Broadcast(msg)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()

	return len(h.clients)
}

// Shutdown closes every session and stops the hub. It waits for the hub
// goroutine or ctx, whichever comes first.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(h.cancel)

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
