// Package domain contains core concepts of the message relay.
// This file defines the Message record and its delivery-state rules.
// A message is immutable except for its two delivery timestamps.
package domain

import (
	"time"

	"github.com/google/uuid"
)

const DefaultContentType = "text"

// Message is the durable unit of communication between two users.
// DeliveredAt and ReadAt each transition nil -> non-nil exactly once.
type Message struct {
	ID          uuid.UUID      `json:"id"`
	From        string         `json:"from"`
	To          string         `json:"to"`
	Content     string         `json:"content"`
	ContentType string         `json:"contentType"`
	Meta        map[string]any `json:"meta"`
	CreatedAt   time.Time      `json:"createdAt"`
	DeliveredAt *time.Time     `json:"deliveredAt"`
	ReadAt      *time.Time     `json:"readAt"`
}

func NewMessage(from, to, content, contentType string, meta map[string]any) Message {
	if contentType == "" {
		contentType = DefaultContentType
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return Message{
		ID:          uuid.New(),
		From:        from,
		To:          to,
		Content:     content,
		ContentType: contentType,
		Meta:        meta,
		CreatedAt:   time.Now().UTC(),
	}
}

func (m Message) Delivered() bool { return m.DeliveredAt != nil }

func (m Message) Read() bool { return m.ReadAt != nil }
