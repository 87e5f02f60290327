package handlers

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/mossy-p/livestream-signaling/config"
	"github.com/mossy-p/livestream-signaling/internal/logging"
	"github.com/mossy-p/livestream-signaling/internal/metrics"
	"github.com/mossy-p/livestream-signaling/internal/models"
	"github.com/mossy-p/livestream-signaling/internal/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Signaler accepts connections and their inbound events.
type Signaler interface {
	Connect(peer signaling.Peer, displayName string) bool
	Dispatch(id string, msg *models.Inbound) bool
	Disconnect(id string) bool
}

// Client is one websocket connection. It implements signaling.Peer.
type Client struct {
	id      string
	conn    *websocket.Conn
	cfg     config.WebSocketConfig
	limiter *rate.Limiter

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	c := &Client{
		id:   uuid.New().String(),
		conn: conn,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBuffer),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
	}
	return c
}

func (c *Client) ID() string { return c.id }

// Deliver queues frame without blocking. It reports false when the buffer is
// full or the client has been closed.
func (c *Client) Deliver(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// HandleSignaling upgrades the request and attaches the connection to the
// signaling core.
func HandleSignaling(sig Signaler, cfg config.WebSocketConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		displayName := c.Query("displayName")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logging.Warn().Err(err).Msg("failed to upgrade connection")
			return
		}

		client := newClient(conn, cfg)
		if !sig.Connect(client, displayName) {
			logging.Warn().Str(logging.FieldPeerID, client.id).Msg("signaling core unavailable, refusing connection")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"),
				time.Now().Add(cfg.WriteWait))
			_ = conn.Close()
			return
		}

		go client.writePump()
		go client.readPump(sig)
	}
}

func (c *Client) readPump(sig Signaler) {
	defer func() {
		if !sig.Disconnect(c.id) {
			c.Close()
		}
		_ = c.conn.Close()
	}()

	if c.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		logging.Error().Err(err).Str(logging.FieldPeerID, c.id).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug().Err(err).Str(logging.FieldPeerID, c.id).Msg("websocket closed unexpectedly")
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			metrics.DroppedTotal.WithLabelValues(metrics.ReasonRateLimited).Inc()
			logging.Warn().Str(logging.FieldPeerID, c.id).Msg("inbound rate limit exceeded, dropping event")
			c.reject(models.ErrCodeRateLimited, "too many messages")
			continue
		}

		msg, err := models.DecodeInbound(data)
		if err != nil {
			metrics.DroppedTotal.WithLabelValues(metrics.ReasonInvalid).Inc()
			text := "malformed message"
			if errors.Is(err, models.ErrMissingType) {
				text = err.Error()
			}
			c.reject(models.ErrCodeBadRequest, text)
			continue
		}

		if !sig.Dispatch(c.id, msg) {
			return
		}
	}
}

// reject sends an error frame straight to this client.
func (c *Client) reject(code, text string) {
	frame, err := models.Encode(models.NewErrorMessage(code, text))
	if err != nil {
		return
	}
	c.Deliver(frame)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logging.Debug().Err(err).Str(logging.FieldPeerID, c.id).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
