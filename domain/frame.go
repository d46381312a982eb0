package domain

import "github.com/samber/lo"

// FrameType tags every object crossing a channel.
type FrameType string

// Inbound frame types.
const (
	FrameIdentify      FrameType = "identify"
	FrameDirectMessage FrameType = "direct_message"
	FrameTyping        FrameType = "typing"
	FrameRead          FrameType = "read"
	FramePing          FrameType = "ping"
)

// Outbound frame types.
const (
	FrameWelcome     FrameType = "welcome"
	FrameMessage     FrameType = "message"
	FrameSent        FrameType = "sent"
	FrameDelivered   FrameType = "delivered"
	FrameOnlineUsers FrameType = "online_users"
	FramePong        FrameType = "pong"
	FrameError       FrameType = "error"
)

// Channel close codes. The 4xxx range is reserved for applications by the
// websocket protocol.
const (
	CloseAuthFailed  = 4002
	CloseAuthTimeout = 4003
)

// Inbound is the envelope decoded from a client frame. Fields beyond Type
// are populated depending on the frame type.
type Inbound struct {
	Type        FrameType      `json:"type"`
	Token       string         `json:"token,omitempty"`
	To          string         `json:"to,omitempty"`
	Content     string         `json:"content,omitempty"`
	ContentType string         `json:"contentType,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
	MsgKey      string         `json:"msgKey,omitempty"`
	State       bool           `json:"state,omitempty"`
}

// Frame is an outbound tagged object. From and State are only set on
// typing frames, Payload everywhere else.
type Frame struct {
	Type    FrameType `json:"type"`
	Payload any       `json:"payload,omitempty"`
	From    string    `json:"from,omitempty"`
	State   *bool     `json:"state,omitempty"`
}

type WelcomePayload struct {
	Content string `json:"content"`
}

type SentPayload struct {
	Message     Message `json:"message"`
	FrontendKey string  `json:"frontendKey,omitempty"`
	Delivered   bool    `json:"delivered"`
	CreatedAt   string  `json:"createdAt"`
}

type ReceiptPayload struct {
	Message Message `json:"message"`
}

type OnlineUsersPayload struct {
	UserIDs []string `json:"userIds"`
}

func WelcomeFrame() Frame {
	return Frame{Type: FrameWelcome, Payload: WelcomePayload{Content: "Welcome to the chat server"}}
}

func MessageFrame(m Message) Frame {
	return Frame{Type: FrameMessage, Payload: m}
}

// SentFrame acknowledges the sender. The frontend key is echoed back
// unmodified so the client can reconcile optimistic UI state.
func SentFrame(m Message, frontendKey string, delivered bool) Frame {
	return Frame{Type: FrameSent, Payload: SentPayload{
		Message:     m,
		FrontendKey: frontendKey,
		Delivered:   delivered,
		CreatedAt:   m.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}}
}

func DeliveredFrame(m Message) Frame {
	return Frame{Type: FrameDelivered, Payload: ReceiptPayload{Message: m}}
}

func ReadFrame(m Message) Frame {
	return Frame{Type: FrameRead, Payload: ReceiptPayload{Message: m}}
}

func TypingFrame(from string, state bool) Frame {
	return Frame{Type: FrameTyping, From: from, State: lo.ToPtr(state)}
}

func OnlineUsersFrame(userIDs []string) Frame {
	if userIDs == nil {
		userIDs = []string{}
	}
	return Frame{Type: FrameOnlineUsers, Payload: OnlineUsersPayload{UserIDs: userIDs}}
}

func PongFrame() Frame {
	return Frame{Type: FramePong}
}

func ErrorFrame(reason string) Frame {
	return Frame{Type: FrameError, Payload: reason}
}
