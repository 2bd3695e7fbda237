package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	VerifyToken(token string) (uuid.UUID, string, error)
}

// client serialises writes to one socket; gorilla allows a single writer.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// room holds one user's sockets and the redis subscription feeding them.
type room struct {
	clients map[*client]struct{}
	stop    context.CancelFunc
}

// Hub fans verdict updates published on redis out to the user's open sockets.
type Hub struct {
	redis  *redis.Client
	tokens TokenVerifier

	mu    sync.RWMutex
	rooms map[uuid.UUID]*room
}

func NewHub(redisClient *redis.Client, tokens TokenVerifier) *Hub {
	return &Hub{
		redis:  redisClient,
		tokens: tokens,
		rooms:  make(map[uuid.UUID]*room),
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Browsers cannot set headers on the upgrade request; the token rides in the query.
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	userID, _, err := h.tokens.VerifyToken(token)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn}
	h.join(userID, c)
	go h.keepAlive(userID, c)
}

// keepAlive drains inbound frames and pings until the peer goes away.
func (h *Hub) keepAlive(userID uuid.UUID, c *client) {
	defer h.leave(userID, c)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
	defer close(done)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) join(userID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rm, ok := h.rooms[userID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		rm = &room{clients: make(map[*client]struct{}), stop: cancel}
		h.rooms[userID] = rm
		go h.subscribe(ctx, userID)
	}
	rm.clients[c] = struct{}{}

	log.Debug().Str("user_id", userID.String()).Int("connections", len(rm.clients)).Msg("websocket connected")
}

func (h *Hub) leave(userID uuid.UUID, c *client) {
	c.conn.Close()

	h.mu.Lock()
	defer h.mu.Unlock()

	rm, ok := h.rooms[userID]
	if !ok {
		return
	}
	delete(rm.clients, c)
	if len(rm.clients) == 0 {
		rm.stop()
		delete(h.rooms, userID)
	}

	log.Debug().Str("user_id", userID.String()).Msg("websocket disconnected")
}

func (h *Hub) subscribe(ctx context.Context, userID uuid.UUID) {
	sub := h.redis.Subscribe(ctx, userChannel(userID))
	defer sub.Close()

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			h.deliver(userID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) deliver(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	var targets []*client
	if rm, ok := h.rooms[userID]; ok {
		targets = make([]*client, 0, len(rm.clients))
		for c := range rm.clients {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Str("user_id", userID.String()).Msg("websocket write failed")
		}
	}
}

// Close stops every subscription and closes open sockets.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, rm := range h.rooms {
		rm.stop()
		for c := range rm.clients {
			c.conn.Close()
		}
		delete(h.rooms, id)
	}
}
