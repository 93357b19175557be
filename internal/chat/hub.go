package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"endlessdrive/server/internal/logging"
)

const (
	// DefaultBacklog is how many messages a new client receives.
	DefaultBacklog = 50
	// DefaultPingInterval is the keepalive cadence.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayload bounds inbound frames.
	DefaultMaxPayload int64 = 4 << 10

	writeWait        = 10 * time.Second
	clientSendBuffer = 64
)

// Envelope types sent to clients.
const (
	TypeBacklog = "backlog"
	TypeMessage = "message"
	TypeError   = "error"
)

// Envelope is the outbound frame.
type Envelope struct {
	Type     string    `json:"type"`
	Message  *Message  `json:"message,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Inbound is the frame clients send.
type Inbound struct {
	User string `json:"user"`
	Body string `json:"body"`
}

// Authenticator resolves the chat identity of an upgrade request. An empty
// name with a nil error means anonymous.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

type anonymous struct{}

func (anonymous) Authenticate(*http.Request) (string, error) { return "", nil }

type client struct {
	conn     *websocket.Conn
	send     chan []byte
	identity string
	key      string
}

// Hub relays chat messages between websocket clients.
type Hub struct {
	feed          *Feed
	logger        *logging.Logger
	authenticator Authenticator
	upgrader      websocket.Upgrader
	backlog       int
	pingInterval  time.Duration
	maxPayload    int64
	throttle      *Throttle

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	nextKey uint64
}

// Option customises a hub.
type Option func(*Hub)

// WithBacklog sets how many messages new clients receive.
func WithBacklog(n int) Option {
	return func(h *Hub) {
		if n >= 0 {
			h.backlog = n
		}
	}
}

// WithPingInterval sets the keepalive cadence.
func WithPingInterval(interval time.Duration) Option {
	return func(h *Hub) {
		if interval > 0 {
			h.pingInterval = interval
		}
	}
}

// WithMaxPayload bounds inbound frame size.
func WithMaxPayload(limit int64) Option {
	return func(h *Hub) {
		if limit > 0 {
			h.maxPayload = limit
		}
	}
}

// WithAuthenticator requires every connection to authenticate.
func WithAuthenticator(authenticator Authenticator) Option {
	return func(h *Hub) {
		if authenticator != nil {
			h.authenticator = authenticator
		}
	}
}

// WithThrottle enables per-connection flood control.
func WithThrottle(throttle *Throttle) Option {
	return func(h *Hub) {
		h.throttle = throttle
	}
}

// WithAllowedOrigins restricts browser origins. Empty allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		allowed := slices.Clone(origins)
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowed, origin)
		}
	}
}

// WithLogger overrides the hub logger.
func WithLogger(logger *logging.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub constructs a relay over feed.
func NewHub(feed *Feed, opts ...Option) *Hub {
	if feed == nil {
		feed = NewFeed(DefaultRetain)
	}
	h := &Hub{
		feed:          feed,
		logger:        logging.L(),
		authenticator: anonymous{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		backlog:      DefaultBacklog,
		pingInterval: DefaultPingInterval,
		maxPayload:   DefaultMaxPayload,
		clients:      make(map[*client]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Feed exposes the backing history.
func (h *Hub) Feed() *Feed { return h.feed }

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Throttled reports how many inbound frames flood control refused.
func (h *Hub) Throttled() uint64 { return h.throttle.Denied() }

// Post appends a message and broadcasts it to every client.
func (h *Hub) Post(user, body string) (Message, error) {
	message, err := h.feed.Append(user, body)
	if err != nil {
		return Message{}, err
	}
	payload, err := json.Marshal(Envelope{Type: TypeMessage, Message: &message})
	if err != nil {
		return Message{}, err
	}
	h.broadcast(payload)
	return message, nil
}

// ServeHTTP upgrades the request and runs the client pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.logger
	if traceID := logging.TraceIDFromContext(r.Context()); traceID != "" {
		logger = logger.With(logging.String("trace_id", traceID))
	}
	//1.- Authenticate before the upgrade so failures are plain HTTP errors.
	identity, err := h.authenticator.Authenticate(r)
	if err != nil {
		logger.Warn("chat authentication failed", logging.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("chat upgrade failed", logging.Error(err))
		return
	}

	//2.- Queue the backlog ahead of live traffic.
	c := &client{conn: conn, send: make(chan []byte, clientSendBuffer+h.backlog), identity: identity}
	if backlog := h.feed.Backlog(h.backlog); len(backlog) > 0 {
		if payload, err := json.Marshal(Envelope{Type: TypeBacklog, Messages: backlog}); err == nil {
			c.send <- payload
		}
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	logger.Info("chat client connected", logging.String("remote_addr", r.RemoteAddr), logging.String("identity", identity))

	go h.writePump(c)
	go h.readPump(c, logger)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.nextKey++
	c.key = "conn-" + strconv.FormatUint(h.nextKey, 10)
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			//1.- Slow clients are dropped instead of stalling the relay.
			delete(h.clients, c)
			close(c.send)
			h.logger.Warn("chat client dropped", logging.String("identity", c.identity))
		}
	}
}

func (h *Hub) readPump(c *client, logger *logging.Logger) {
	defer func() {
		h.remove(c)
		h.throttle.Forget(c.key)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(h.maxPayload)
	pongWait := 2 * h.pingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("chat read error", logging.Error(err))
			}
			return
		}
		if !h.throttle.Allow(c.key, len(raw)) {
			h.reply(c, "slow down")
			continue
		}
		var inbound Inbound
		if err := json.Unmarshal(raw, &inbound); err != nil {
			h.reply(c, "malformed message")
			continue
		}
		//1.- Authenticated identities override whatever name the client claims.
		user := inbound.User
		if c.identity != "" {
			user = c.identity
		}
		if _, err := h.Post(user, inbound.Body); err != nil {
			if errors.Is(err, ErrEmptyMessage) {
				h.reply(c, err.Error())
				continue
			}
			logger.Error("chat post failed", logging.Error(err))
		}
	}
}

func (h *Hub) reply(c *client, text string) {
	payload, err := json.Marshal(Envelope{Type: TypeError, Error: text})
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
