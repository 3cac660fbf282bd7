package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/mellowplay/hub/internal/app/notification"
)

const (
	writeWait      = 10 * time.Second
	clientSendSize = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP connections to websocket signal channels.
type Handler struct {
	dispatcher *Dispatcher
	broadcast  *notification.Manager
}

// NewHandler creates a websocket handler bound to the dispatcher.
func NewHandler(dispatcher *Dispatcher, broadcast *notification.Manager) *Handler {
	return &Handler{dispatcher: dispatcher, broadcast: broadcast}
}

// ServeWS handles one client connection until it closes.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Err(err).Msg("gateway: websocket upgrade failed")
		return
	}

	client := newWSClient(conn)
	id := h.broadcast.Subscribe(client)
	zlog.Info().Str("client", id).Str("remote", r.RemoteAddr).Msg("gateway: client connected")

	defer func() {
		h.broadcast.Unsubscribe(id)
		client.close()
		zlog.Info().Str("client", id).Msg("gateway: client disconnected")
	}()

	go client.writePump()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				zlog.Warn().Err(err).Str("client", id).Msg("gateway: read failed")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.dispatcher.respond(id, SignalError, ErrorPayload{
				Code:    CodeMalformedRequest,
				Message: "invalid signal envelope",
			})
			continue
		}
		h.dispatcher.Dispatch(id, env)
	}
}

// wsClient adapts one websocket connection to the broadcast stream
// interface. Sends are buffered; a full buffer drops the message rather
// than stalling the broadcaster.
type wsClient struct {
	conn *websocket.Conn
	send chan notification.Message

	once sync.Once
	done chan struct{}
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan notification.Message, clientSendSize),
		done: make(chan struct{}),
	}
}

func (c *wsClient) Send(msg notification.Message) error {
	select {
	case <-c.done:
		return errors.New("client closed")
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return errors.New("client send buffer full")
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsClient) writePump() {
	defer c.close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			payload, err := json.Marshal(msg.Payload)
			if err != nil {
				zlog.Warn().Err(err).Str("type", msg.Type).Msg("gateway: payload marshal failed")
				continue
			}
			env := Envelope{
				Type:      msg.Type,
				Payload:   payload,
				Seq:       msg.SequenceNo,
				Timestamp: time.Now().UnixMilli(),
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		}
	}
}
