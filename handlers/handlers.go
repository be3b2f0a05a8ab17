// Package handlers binds the bus topics to the domain logic: each handler
// re-validates its payload, applies the minimal persistence side-effect
// through the services and computes the fanout for the emitter.
package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/broker"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/services"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Bus topics consumed by the relay.
const (
	TopicMessageSend        = "message.send"
	TopicMessageRead        = "message.read"
	TopicTypingStart        = "typing.start"
	TopicTypingStop         = "typing.stop"
	TopicPresenceConnect    = "presence.connect"
	TopicPresenceDisconnect = "presence.disconnect"
)

type Handlers struct {
	log      *slog.Logger
	validate *validator.Validate
	messages services.IMessageService
	reader   services.IReadService
	presence services.IPresenceService
	emitter  contract.Emitter
}

func New(
	log *slog.Logger,
	messages services.IMessageService,
	reader services.IReadService,
	presence services.IPresenceService,
	emitter contract.Emitter,
) *Handlers {
	return &Handlers{
		log:      log,
		validate: validator.New(),
		messages: messages,
		reader:   reader,
		presence: presence,
		emitter:  emitter,
	}
}

// RegisterAll binds every topic handler on the dispatch table.
func (h *Handlers) RegisterAll(server *broker.Server) {
	h.log.Info("Registering broker handlers")
	server.Register(TopicMessageSend, h.MessageSend)
	server.Register(TopicMessageRead, h.MessageRead)
	server.Register(TopicTypingStart, h.TypingStart)
	server.Register(TopicTypingStop, h.TypingStop)
	server.Register(TopicPresenceConnect, h.PresenceConnect)
	server.Register(TopicPresenceDisconnect, h.PresenceDisconnect)
}

func (h *Handlers) MessageSend(ctx context.Context, raw []byte) (any, error) {
	var payload domain.MessageSendPayload
	if rejection, ok := h.decode(raw, &payload, TopicMessageSend, false); !ok {
		return rejection, nil
	}

	view, conversation, err := h.messages.Send(ctx, payload.FromUserID, payload.ToUserID, payload.Content)
	if err != nil {
		h.log.Error("Broker message.send failed",
			"fromUserId", payload.FromUserID, "toUserId", payload.ToUserID, "error", err)
		return nil, err
	}

	envelope := domain.MessageEnvelope{Message: view}
	h.emitter.EmitToUser(ctx, payload.FromUserID, domain.EventMessageSent, envelope)
	h.emitter.EmitToUser(ctx, payload.ToUserID, domain.EventMessageNew, envelope)
	h.emitter.EmitToUser(ctx, payload.ToUserID, domain.EventNotificationNew, domain.NotificationEvent{
		ID:             view.ID,
		Type:           "message",
		From:           view.From,
		Message:        fmt.Sprintf("New message from @%s", view.From.Username),
		Preview:        domain.Preview(payload.Content, domain.NotificationPreviewLength),
		ConversationID: conversation.Key,
		Timestamp:      time.Now().UTC(),
	})

	h.log.Info("Message sent via broker",
		"fromUserId", payload.FromUserID, "toUserId", payload.ToUserID, "messageId", view.ID)

	return sendResponse{Success: true, MessageID: view.ID, Timestamp: view.CreatedAt}, nil
}

func (h *Handlers) MessageRead(ctx context.Context, raw []byte) (any, error) {
	var payload domain.MessageReadPayload
	if rejection, ok := h.decode(raw, &payload, TopicMessageRead, false); !ok {
		return rejection, nil
	}

	// Duplicate IDs collapse before anything is counted
	messageIDs := lo.Uniq(payload.MessageIDs)

	modified, bySender, err := h.reader.MarkRead(ctx, payload.UserID, messageIDs)
	if err != nil {
		h.log.Error("Broker message.read failed", "userId", payload.UserID, "error", err)
		return nil, err
	}

	if modified > 0 {
		for senderID, senderMessageIDs := range bySender {
			h.emitter.EmitToUser(ctx, senderID, domain.EventMessageRead, domain.MessageReadEvent{
				MessageIDs: senderMessageIDs,
				ReadBy:     payload.UserID,
			})
		}
		h.log.Info("Messages marked read via broker", "userId", payload.UserID, "modifiedCount", modified)
	}

	return readResponse{Success: true, MessageIDs: messageIDs, ModifiedCount: modified}, nil
}

func (h *Handlers) TypingStart(ctx context.Context, raw []byte) (any, error) {
	var payload domain.TypingPayload
	if rejection, ok := h.decode(raw, &payload, TopicTypingStart, true); !ok {
		return rejection, nil
	}

	h.emitter.EmitToUser(ctx, payload.ToUserID, domain.EventTypingStart, domain.TypingEvent{
		From:     payload.FromUserID,
		Username: payload.Username,
	})
	h.log.Debug("Typing started", "fromUserId", payload.FromUserID, "toUserId", payload.ToUserID)
	return okResponse{Success: true}, nil
}

func (h *Handlers) TypingStop(ctx context.Context, raw []byte) (any, error) {
	var payload domain.TypingPayload
	if rejection, ok := h.decode(raw, &payload, TopicTypingStop, true); !ok {
		return rejection, nil
	}

	h.emitter.EmitToUser(ctx, payload.ToUserID, domain.EventTypingStop, domain.TypingEvent{
		From: payload.FromUserID,
	})
	h.log.Debug("Typing stopped", "fromUserId", payload.FromUserID, "toUserId", payload.ToUserID)
	return okResponse{Success: true}, nil
}

func (h *Handlers) PresenceConnect(ctx context.Context, raw []byte) (any, error) {
	var payload domain.PresenceConnectPayload
	if rejection, ok := h.decode(raw, &payload, TopicPresenceConnect, false); !ok {
		return rejection, nil
	}

	isFirst, onlineUserIDs := h.presence.Connect(payload.UserID, payload.ConnectionID)

	// Online transitions are edge-triggered: only the first connection
	// announces the user globally
	if isFirst {
		h.emitter.Broadcast(ctx, domain.EventUserOnline, domain.PresenceEvent{
			UserID:   payload.UserID,
			Username: payload.Username,
		})
		h.log.Info("User came online",
			"userId", payload.UserID, "username", payload.Username, "connectionId", payload.ConnectionID)
	}

	// The connecting user always gets an immediate snapshot
	h.emitter.EmitToUser(ctx, payload.UserID, domain.EventUsersOnline, domain.OnlineUsersEvent{
		UserIDs: onlineUserIDs,
	})

	return connectResponse{Success: true, IsFirstConnection: isFirst, OnlineUserIDs: onlineUserIDs}, nil
}

func (h *Handlers) PresenceDisconnect(ctx context.Context, raw []byte) (any, error) {
	var payload domain.PresenceDisconnectPayload
	if rejection, ok := h.decode(raw, &payload, TopicPresenceDisconnect, false); !ok {
		return rejection, nil
	}

	wasLast, err := h.presence.Disconnect(ctx, payload.UserID, payload.ConnectionID)
	if err != nil {
		h.log.Error("Broker presence.disconnect failed",
			"userId", payload.UserID, "connectionId", payload.ConnectionID, "error", err)
		return nil, err
	}

	if wasLast {
		h.emitter.Broadcast(ctx, domain.EventUserOffline, domain.PresenceEvent{
			UserID:   payload.UserID,
			Username: payload.Username,
		})
		h.log.Info("User went offline",
			"userId", payload.UserID, "username", payload.Username, "connectionId", payload.ConnectionID)
	}

	return disconnectResponse{Success: true, WasLastConnection: wasLast}, nil
}

// decode unmarshals and validates a payload before any domain logic runs.
// On failure it returns the structured rejection for the reply path; a
// validation failure is a recovered response, never an error. Quiet topics
// (typing) log at debug and omit details, they are noisy by nature.
func (h *Handlers) decode(raw []byte, payload any, topic string, quiet bool) (any, bool) {
	if err := json.Unmarshal(raw, payload); err != nil {
		return h.rejected(topic, quiet, []string{err.Error()}), false
	}
	if err := h.validate.Struct(payload); err != nil {
		return h.rejected(topic, quiet, validationDetails(err)), false
	}
	return nil, true
}

func (h *Handlers) rejected(topic string, quiet bool, details []string) any {
	if quiet {
		h.log.Debug("Invalid payload", "topic", topic, "details", details)
		return failureResponse{Success: false, Error: "Validation failed"}
	}
	h.log.Warn("Invalid payload", "topic", topic, "details", details)
	return failureResponse{Success: false, Error: "Validation failed", Details: details}
}

func validationDetails(err error) []string {
	var fieldErrors validator.ValidationErrors
	if stderrors.As(err, &fieldErrors) {
		return lo.Map(fieldErrors, func(fieldError validator.FieldError, _ int) string {
			return fmt.Sprintf("%s: %s", fieldError.Field(), fieldError.Tag())
		})
	}
	return []string{err.Error()}
}
