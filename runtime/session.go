package runtime

import (
	"encoding/json"
	"log/slog"

	"chat-relay/domain"

	"github.com/gorilla/websocket"
)

// Session owns the read side of one connection. Frames from a single
// channel are processed one at a time in arrival order: an operation that
// touches persistence suspends only this channel's next frame, never the
// other sessions.
type Session struct {
	log       *slog.Logger
	conn      *websocket.Conn
	ch        *WSChannel
	handshake *Handshake
	delivery  *Delivery
}

func NewSession(log *slog.Logger, conn *websocket.Conn, ch *WSChannel,
	handshake *Handshake, delivery *Delivery) *Session {
	return &Session{
		log:       log,
		conn:      conn,
		ch:        ch,
		handshake: handshake,
		delivery:  delivery,
	}
}

// Run blocks until the connection closes. Nothing thrown by a frame
// handler may take the process down, so the loop recovers and closes the
// channel instead.
func (s *Session) Run() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session panic", "panic", r)
		}
		s.handshake.OnClose()
		s.ch.Close(websocket.CloseNormalClosure, "")
	}()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handle(raw)
	}
}

func (s *Session) handle(raw []byte) {
	userID, authenticated := s.handshake.UserID()

	// Pre-auth, the only accepted frame is identify; everything else,
	// malformed input included, is silently discarded. Clients may open
	// the channel before the identify frame is ready.
	if !authenticated {
		var in domain.Inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			return
		}
		if in.Type == domain.FrameIdentify && in.Token != "" {
			s.handshake.Identify(in.Token)
		}
		return
	}

	var in domain.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		s.log.Warn("non-JSON frame from authenticated channel", "user", userID)
		s.pushError("Invalid frame")
		return
	}

	switch in.Type {
	case domain.FrameDirectMessage:
		if in.To == "" {
			s.pushError("Failed to send message")
			return
		}
		s.delivery.Send(s.ch, SendInput{
			From:        userID,
			To:          in.To,
			Content:     in.Content,
			ContentType: in.ContentType,
			Meta:        in.Meta,
			FrontendKey: in.MsgKey,
		})

	case domain.FrameTyping:
		s.delivery.ForwardTyping(userID, in.To, in.State)

	case domain.FrameRead:
		s.delivery.MarkRead(s.ch, userID, in.To)

	case domain.FramePing:
		if err := s.ch.Push(domain.PongFrame()); err != nil {
			s.log.Debug("pong push failed", "user", userID, "error", err)
		}

	default:
		s.pushError("Unknown message type")
	}
}

func (s *Session) pushError(reason string) {
	if err := s.ch.Push(domain.ErrorFrame(reason)); err != nil {
		s.log.Debug("error frame push failed", "error", err)
	}
}
