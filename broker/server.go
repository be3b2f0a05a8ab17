package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	apperrors "chat-relay/errors"

	"github.com/nats-io/nats.go"
)

// HandlerFunc is the contract a topic handler fulfils: it receives the raw
// payload of one bus message and returns a response value for the reply
// path, or an error the dispatch layer turns into an error envelope.
// Validation failures are not errors; handlers recover them into a
// structured response themselves.
type HandlerFunc func(ctx context.Context, payload []byte) (any, error)

// ReplyFunc publishes a response to the reply address of the message being
// dispatched. Nil when the publisher does not expect a reply.
type ReplyFunc func(payload any)

// errorReply is the dispatch-layer error envelope.
type errorReply struct {
	Error   string `json:"error"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message,omitempty"`
}

// Server owns the topic → handler table and runs the per-message dispatch
// contract. It is a supervised worker: Run subscribes every registered
// topic and drains the subscriptions on shutdown.
type Server struct {
	log               *slog.Logger
	nc                *nats.Conn
	exposeErrorDetail bool

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	runCtx context.Context
}

// NewServer builds a dispatch table bound to a bus connection. With
// exposeErrorDetail false (the production posture) internal error text never
// reaches a reply payload, only the logs.
func NewServer(log *slog.Logger, nc *nats.Conn, exposeErrorDetail bool) *Server {
	return &Server{
		log:               log,
		nc:                nc,
		exposeErrorDetail: exposeErrorDetail,
		handlers:          make(map[string]HandlerFunc),
		runCtx:            context.Background(),
	}
}

// Register binds a topic to a handler. The last registration wins so tests
// and hot reloads can override; an overwrite is worth a warning, not an error.
func (s *Server) Register(topic string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handlers[topic]; ok {
		s.log.Warn("Handler overwritten", "topic", topic)
	}
	s.handlers[topic] = handler
}

// Run subscribes every registered topic and blocks until the context is
// canceled, then drains the subscriptions. Handlers registered after Run
// is called are not picked up.
func (s *Server) Run(ctx context.Context) error {
	s.runCtx = ctx

	var subscriptions []*nats.Subscription
	for _, topic := range s.topics() {
		subscription, err := s.nc.Subscribe(topic, s.onMessage)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		subscriptions = append(subscriptions, subscription)
	}
	s.log.Info("Broker server started", "topics", len(subscriptions))

	<-ctx.Done()

	for _, subscription := range subscriptions {
		if err := subscription.Drain(); err != nil {
			s.log.Error("Error draining subscription", "topic", subscription.Subject, "error", err)
		}
	}
	return nil
}

// onMessage turns one bus delivery into an independent unit of concurrent
// work. The message is consumed regardless of handler outcome; redelivery
// is the bus's business, not ours.
func (s *Server) onMessage(msg *nats.Msg) {
	var reply ReplyFunc
	if msg.Reply != "" {
		reply = func(payload any) {
			data, err := json.Marshal(payload)
			if err != nil {
				s.log.Error("Marshal reply failed", "topic", msg.Subject, "error", err)
				return
			}
			if err := msg.Respond(data); err != nil {
				s.log.Error("Reply failed", "topic", msg.Subject, "error", err)
			}
		}
	}
	go s.Dispatch(s.runCtx, msg.Subject, msg.Data, reply)
}

// Dispatch runs the lookup → parse → invoke → reply contract for a single
// bus message. At most one reply is produced per invocation.
func (s *Server) Dispatch(ctx context.Context, topic string, data []byte, reply ReplyFunc) {
	handler, ok := s.handler(topic)
	if !ok {
		if reply != nil {
			reply(errorReply{Error: "Handler not found", Subject: topic})
		}
		return
	}

	// Reject garbage before it reaches domain logic; a malformed envelope
	// is not a validation failure.
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		s.log.Error("Invalid JSON payload", "topic", topic, "error", err)
		if reply != nil {
			reply(errorReply{Error: "Invalid JSON format", Message: err.Error()})
		}
		return
	}

	response, err := s.invoke(ctx, handler, data)
	if err != nil {
		s.log.Error("Handler error", "topic", topic, "error", err)
		if reply != nil {
			detail := "handler failed"
			if s.exposeErrorDetail {
				detail = err.Error()
			}
			reply(errorReply{Error: "Internal handler error", Message: detail})
		}
		return
	}

	if reply != nil && response != nil {
		reply(response)
	}
}

// invoke shields the dispatch loop from a panicking handler.
func (s *Server) invoke(ctx context.Context, handler HandlerFunc, data []byte) (response any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", apperrors.ErrHandlerPanic, r)
		}
	}()
	return handler(ctx, data)
}

func (s *Server) handler(topic string) (HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	handler, ok := s.handlers[topic]
	return handler, ok
}

func (s *Server) topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topics := make([]string, 0, len(s.handlers))
	for topic := range s.handlers {
		topics = append(topics, topic)
	}
	return topics
}
