// Package chat models ChatMessage (§3): durable per-trip messaging,
// permitted only while a trip is in one of the live, driver-assigned states
// (§4.6).
package chat

import (
	"errors"
	"strings"
	"time"
)

const MaxLength = 2000

var (
	ErrTripIDRequired = errors.New("trip id is required")
	ErrEmptyText      = errors.New("message text cannot be empty")
	ErrTooLong        = errors.New("message text exceeds maximum length")
)

type Message struct {
	ID         string
	TripID     string
	FromUserID string
	Text       string
	ReadAt     *time.Time
	CreatedAt  time.Time
}

func New(tripID, fromUserID, text string) (*Message, error) {
	if strings.TrimSpace(tripID) == "" {
		return nil, ErrTripIDRequired
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if len(text) > MaxLength {
		return nil, ErrTooLong
	}
	return &Message{
		TripID:     tripID,
		FromUserID: fromUserID,
		Text:       text,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (m *Message) MarkRead() {
	if m.ReadAt != nil {
		return
	}
	now := time.Now().UTC()
	m.ReadAt = &now
}
