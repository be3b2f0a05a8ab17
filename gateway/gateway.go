package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chat-relay/auth"
	"chat-relay/broker"
	"chat-relay/domain"
	"chat-relay/handlers"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second

	maxFrameSize = 16 * 1024
)

// Client → gateway event vocabulary.
const (
	clientMessageSend = "message:send"
	clientMessageRead = "message:read"
	clientTypingStart = "typing:start"
	clientTypingStop  = "typing:stop"
)

// clientFrame is what a connected client sends: an event name plus its
// raw payload, decoded per event.
type clientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Gateway terminates websocket connections and forwards authenticated
// client events to the bus. The relay's own handlers consume them from
// there, exactly like events published by any other service.
type Gateway struct {
	log      *slog.Logger
	hub      *Hub
	nc       *nats.Conn
	tokens   *auth.TokenManager
	addr     string
	upgrader websocket.Upgrader
}

func New(log *slog.Logger, hub *Hub, nc *nats.Conn, tokens *auth.TokenManager, addr string) *Gateway {
	return &Gateway{
		log:    log,
		hub:    hub,
		nc:     nc,
		tokens: tokens,
		addr:   addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Run serves the websocket endpoint until the context is canceled.
func (g *Gateway) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.serveWS)

	server := &http.Server{Addr: g.addr, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		g.log.Info("Gateway listening", "addr", g.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("gateway server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// serveWS authenticates the upgrade, attaches the connection to the hub
// and announces it on the bus. The registry itself is only mutated by the
// presence handlers; the gateway just mirrors lifecycle onto bus topics.
func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	claims, err := g.authenticate(r)
	if err != nil {
		g.log.Warn("Rejected websocket upgrade", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Error("Websocket upgrade failed", "error", err)
		return
	}

	conn := &connection{
		id:     uuid.NewString(),
		userID: claims.UserID,
		ws:     ws,
		send:   make(chan outbound, g.hub.bufferSize),
	}
	g.hub.attach(conn)
	g.log.Info("Socket connected", "connectionId", conn.id, "userId", claims.UserID, "username", claims.Username)

	if err := broker.Publish(g.log, g.nc, handlers.TopicPresenceConnect, domain.PresenceConnectPayload{
		UserID:       claims.UserID,
		ConnectionID: conn.id,
		Username:     claims.Username,
		Name:         claims.Name,
	}); err != nil {
		g.log.Error("Publish presence.connect failed", "connectionId", conn.id, "error", err)
	}

	go g.writePump(conn)
	g.readPump(conn, claims)
}

// authenticate accepts the token from the Authorization header or, for
// browser clients that cannot set headers on upgrade, a query parameter.
func (g *Gateway) authenticate(r *http.Request) (*auth.Claims, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil, fmt.Errorf("no token provided")
	}
	return g.tokens.Validate(token)
}

// readPump decodes client frames and forwards them to the bus with the
// authenticated identity stamped server-side; a client can never speak
// for another user. Returns when the connection dies, which triggers the
// disconnect announcement.
func (g *Gateway) readPump(conn *connection, claims *auth.Claims) {
	defer func() {
		if err := broker.Publish(g.log, g.nc, handlers.TopicPresenceDisconnect, domain.PresenceDisconnectPayload{
			UserID:       claims.UserID,
			ConnectionID: conn.id,
			Username:     claims.Username,
		}); err != nil {
			g.log.Error("Publish presence.disconnect failed", "connectionId", conn.id, "error", err)
		}
		g.hub.detach(conn.id)
		_ = conn.ws.Close()
		g.log.Info("Socket disconnected", "connectionId", conn.id, "userId", claims.UserID)
	}()

	conn.ws.SetReadLimit(maxFrameSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame clientFrame
		if err := conn.ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Warn("Websocket read error", "connectionId", conn.id, "error", err)
			}
			return
		}
		g.forward(conn, claims, frame)
	}
}

// forward maps a client frame to its bus topic.
func (g *Gateway) forward(conn *connection, claims *auth.Claims, frame clientFrame) {
	switch frame.Event {
	case clientMessageSend:
		var data struct {
			To      string `json:"to"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			g.log.Debug("Malformed message:send frame", "connectionId", conn.id, "error", err)
			return
		}
		g.publish(handlers.TopicMessageSend, domain.MessageSendPayload{
			FromUserID: claims.UserID,
			ToUserID:   data.To,
			Content:    data.Content,
		})
	case clientMessageRead:
		var data struct {
			MessageIDs []string `json:"messageIds"`
		}
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			g.log.Debug("Malformed message:read frame", "connectionId", conn.id, "error", err)
			return
		}
		g.publish(handlers.TopicMessageRead, domain.MessageReadPayload{
			UserID:     claims.UserID,
			MessageIDs: data.MessageIDs,
		})
	case clientTypingStart, clientTypingStop:
		var data struct {
			To string `json:"to"`
		}
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			g.log.Debug("Malformed typing frame", "connectionId", conn.id, "error", err)
			return
		}
		payload := domain.TypingPayload{FromUserID: claims.UserID, ToUserID: data.To}
		topic := handlers.TopicTypingStop
		if frame.Event == clientTypingStart {
			payload.Username = claims.Username
			topic = handlers.TopicTypingStart
		}
		g.publish(topic, payload)
	default:
		g.log.Debug("Unknown client event", "connectionId", conn.id, "event", frame.Event)
	}
}

func (g *Gateway) publish(topic string, payload any) {
	if err := broker.Publish(g.log, g.nc, topic, payload); err != nil {
		g.log.Error("Forward to broker failed", "topic", topic, "error", err)
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings. Exits when the channel closes (detach) or
// a write fails.
func (g *Gateway) writePump(conn *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.ws.Close()
	}()

	for {
		select {
		case out, ok := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.ws.WriteJSON(out); err != nil {
				g.log.Debug("Websocket write failed", "connectionId", conn.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
