// Package chat implements the Chat Service (§4.6): durable per-trip
// messaging gated to live, driver-assigned trip states, plus ephemeral
// typing indicators and read receipts.
package chat

import (
	"context"
	"fmt"
	"time"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/chat"
	"ride-hail/internal/domain/trip"
	"ride-hail/internal/general/logger"
	"ride-hail/internal/ports"
)

// chattableStates is the set of trip statuses in which messaging is
// permitted (§3 ChatMessage, §4.6).
var chattableStates = map[trip.Status]bool{
	trip.StatusMatched:        true,
	trip.StatusDriverEnRoute:  true,
	trip.StatusDriverArrived:  true,
	trip.StatusInProgress:     true,
}

// Service implements ports.ChatService.
type Service struct {
	repo  ports.ChatRepository
	trips ports.TripRepository
	pub   ports.EventPublisher
	log   *logger.Logger
}

// New constructs a chat Service.
func New(repo ports.ChatRepository, trips ports.TripRepository, pub ports.EventPublisher, log *logger.Logger) *Service {
	return &Service{repo: repo, trips: trips, pub: pub, log: log}
}

var _ ports.ChatService = (*Service)(nil)

func (s *Service) loadParticipant(ctx context.Context, tripID, userID string) (*trip.Trip, string, error) {
	t, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, "", err
	}
	if !chattableStates[t.Status] {
		return nil, "", apperr.Precondition("TRIP_NOT_CHATTABLE", "chat is only available while a driver is assigned to this trip")
	}
	var counterpart string
	switch userID {
	case t.PassengerID:
		if t.DriverID == nil {
			return nil, "", apperr.Precondition("TRIP_NOT_CHATTABLE", "no driver assigned yet")
		}
		counterpart = *t.DriverID
	default:
		if t.DriverID == nil || *t.DriverID != userID {
			return nil, "", apperr.Forbidden("ACCESS_DENIED", "caller is not a participant of this trip")
		}
		counterpart = t.PassengerID
	}
	return t, counterpart, nil
}

// SendMessage validates the sender and trip state (§4.6), persists the
// message, then fans it out to the recipient's user room and the trip room.
func (s *Service) SendMessage(ctx context.Context, in ports.SendMessageInput) (*chat.Message, error) {
	_, counterpart, err := s.loadParticipant(ctx, in.TripID, in.FromUserID)
	if err != nil {
		return nil, err
	}

	msg, err := chat.New(in.TripID, in.FromUserID, in.Text)
	if err != nil {
		switch err {
		case chat.ErrEmptyText:
			return nil, apperr.Validation("EMPTY_MESSAGE", "message text cannot be empty")
		case chat.ErrTooLong:
			return nil, apperr.Validation("MESSAGE_TOO_LONG", fmt.Sprintf("message exceeds %d characters", chat.MaxLength))
		default:
			return nil, apperr.Internal("build chat message", err)
		}
	}

	if err := s.repo.Insert(ctx, msg); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"id": msg.ID, "trip_id": msg.TripID, "from_user_id": msg.FromUserID,
		"text": msg.Text, "created_at": msg.CreatedAt,
	}
	s.notify(ctx, fmt.Sprintf("user:%s", counterpart), "chat:new_message", in.TripID, payload)
	s.notify(ctx, fmt.Sprintf("trip:%s", in.TripID), "chat:new_message", in.TripID, payload)

	return msg, nil
}

// ListMessages returns the full durable transcript for a trip, oldest first.
func (s *Service) ListMessages(ctx context.Context, tripID string) ([]*chat.Message, error) {
	return s.repo.ListByTrip(ctx, tripID)
}

// MarkRead marks every message addressed to recipientID as read and
// notifies the counterparty (§4.6 "chat:mark_read").
func (s *Service) MarkRead(ctx context.Context, tripID, recipientID string) (int, error) {
	t, counterpart, err := s.loadParticipant(ctx, tripID, recipientID)
	if err != nil {
		return 0, err
	}
	n, err := s.repo.MarkReadForRecipient(ctx, tripID, recipientID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.notify(ctx, fmt.Sprintf("user:%s", counterpart), "chat:messages_read", tripID, map[string]any{
			"trip_id": tripID, "read_by": recipientID,
		})
	}
	_ = t
	return n, nil
}

func (s *Service) notify(ctx context.Context, room, eventType, tripID string, payload map[string]any) {
	ev := ports.WireEvent{Type: eventType, TripID: tripID, Payload: payload, Timestamp: time.Now().UTC()}
	if err := s.pub.Publish(ctx, room, ev); err != nil {
		s.log.Error(ctx, "chat_notify_failed", "Failed to publish chat event", err, map[string]any{"room": room, "event": eventType})
	}
}
