package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/manpreetbhatti/codesync/backend/internal/protocol"
	"github.com/manpreetbhatti/codesync/backend/internal/ratelimit"
	"github.com/manpreetbhatti/codesync/backend/internal/room"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1024 * 1024
	sendBufferSize    = 512
	messagesPerSecond = 100
	messageBurst      = 200
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler applies decoded client events. session.Manager implements it.
type Handler interface {
	Join(ctx context.Context, connID, roomID, username string) error
	ChangeCode(ctx context.Context, connID, roomID, code string) error
	ChangeLanguage(ctx context.Context, connID, roomID, language string) error
	MoveCursor(ctx context.Context, connID, roomID string, pos room.Position)
	Leave(ctx context.Context, connID string) error
}

type Client struct {
	id          string
	hub         *Hub
	handler     Handler
	conn        *websocket.Conn
	send        chan []byte
	rateLimiter *ratelimit.Limiter

	// Set once send is closed; guarded by hub.mu
	closed bool
}

func (c *Client) ID() string {
	return c.id
}

// ServeWs upgrades the request and runs the connection until it closes
func ServeWs(hub *Hub, handler Handler, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		id:          uuid.NewString(),
		hub:         hub,
		handler:     handler,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		rateLimiter: ratelimit.NewLimiter(messagesPerSecond, messageBurst),
	}

	hub.Register(client)
	log.Info().Str("conn", client.id).Str("remote", conn.RemoteAddr().String()).Msg("user connected")

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	ctx := context.Background()

	defer func() {
		if err := c.handler.Leave(ctx, c.id); err != nil {
			log.Error().Err(err).Str("conn", c.id).Msg("disconnect cleanup failed")
		}
		c.hub.Unregister(c)
		c.conn.Close()
		log.Info().Str("conn", c.id).Msg("user disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("conn", c.id).Msg("websocket error")
			}
			break
		}

		if !c.rateLimiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				log.Warn().Str("conn", c.id).Int("warning", rateLimitWarnings).Msg("rate limit exceeded")
			}
			if rateLimitWarnings > 1000 {
				log.Warn().Str("conn", c.id).Msg("disconnecting client for excessive rate limit violations")
				return
			}
			continue
		}

		env, err := protocol.Decode(message)
		if err != nil {
			log.Warn().Err(err).Str("conn", c.id).Msg("invalid message")
			continue
		}

		if err := c.dispatch(ctx, env); err != nil {
			log.Error().Err(err).Str("conn", c.id).Str("event", env.Event).Msg("event failed")
		}
	}
}

func (c *Client) dispatch(ctx context.Context, env *protocol.Envelope) error {
	switch env.Event {
	case protocol.EventJoinRoom:
		var p protocol.JoinRoom
		if err := env.Bind(&p); err != nil {
			return err
		}
		return c.handler.Join(ctx, c.id, p.RoomID, p.Username)

	case protocol.EventCodeChange:
		var p protocol.CodeChange
		if err := env.Bind(&p); err != nil {
			return err
		}
		return c.handler.ChangeCode(ctx, c.id, p.RoomID, p.Code)

	case protocol.EventLanguageChange:
		var p protocol.LanguageChange
		if err := env.Bind(&p); err != nil {
			return err
		}
		return c.handler.ChangeLanguage(ctx, c.id, p.RoomID, p.Language)

	case protocol.EventCursorChange:
		var p protocol.CursorChange
		if err := env.Bind(&p); err != nil {
			return err
		}
		c.handler.MoveCursor(ctx, c.id, p.RoomID, p.Position)
		return nil

	case protocol.EventLeaveRoom:
		return c.handler.Leave(ctx, c.id)
	}
	return nil
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
