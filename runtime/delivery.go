package runtime

import (
	"log/slog"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/repositories"
)

const sendFailureReason = "Failed to send message"

// Delivery is the engine behind every stateful channel operation: it
// persists first, then attempts real-time fan-out, then emits receipts.
// Persistence failures abort only the call that hit them and surface to
// the initiating channel as an error frame; a failed push to one live
// channel never aborts delivery to the others.
type Delivery struct {
	log       *slog.Logger
	messages  repositories.IMessageRepository
	users     repositories.IUserRepository
	registry  contract.IRegistry
	monitor   *observability.Monitor
	readScope internal.ReadReceiptScope
}

func NewDelivery(log *slog.Logger,
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
	registry contract.IRegistry,
	monitor *observability.Monitor,
	readScope internal.ReadReceiptScope) *Delivery {
	return &Delivery{
		log:       log,
		messages:  messages,
		users:     users,
		registry:  registry,
		monitor:   monitor,
		readScope: readScope,
	}
}

// SendInput carries one direct_message frame from an authenticated channel.
type SendInput struct {
	From        string
	To          string
	Content     string
	ContentType string
	Meta        map[string]any
	FrontendKey string
}

// Send persists the message, records the contact link on both sides,
// fans out to the recipient's live channels, and acknowledges the sender
// on the originating channel.
func (d *Delivery) Send(origin contract.Channel, in SendInput) {
	msg := domain.NewMessage(in.From, in.To, in.Content, in.ContentType, in.Meta)

	if err := d.messages.StoreMessage(msg); err != nil {
		d.log.Error("message persistence failed", "from", in.From, "to", in.To, "error", err)
		d.pushError(origin)
		return
	}
	d.monitor.IncrSent()

	// Contact links only feed the history/contacts projection; their
	// failure must not block delivery.
	if err := d.users.AddContact(in.From, in.To); err != nil {
		d.log.Warn("contact update failed", "user", in.From, "error", err)
	}
	if err := d.users.AddContact(in.To, in.From); err != nil {
		d.log.Warn("contact update failed", "user", in.To, "error", err)
	}

	recipients := d.registry.ChannelsFor(in.To)
	for _, ch := range recipients {
		if err := ch.Push(domain.MessageFrame(msg)); err != nil {
			d.log.Debug("push to recipient channel failed", "to", in.To, "error", err)
		}
	}

	delivered := len(recipients) > 0
	if delivered {
		updated, err := d.messages.MarkDelivered(msg.ID, time.Now().UTC())
		if err != nil {
			d.log.Error("delivered-mark failed", "message_id", msg.ID, "error", err)
			d.pushError(origin)
			return
		}
		msg = updated
		d.monitor.IncrDelivered()
		d.notifySender(msg.From, domain.DeliveredFrame(msg))
	}

	if err := origin.Push(domain.SentFrame(msg, in.FrontendKey, delivered)); err != nil {
		d.log.Debug("sent ack push failed", "from", in.From, "error", err)
	}
}

// FlushPending replays undelivered messages to a freshly authenticated
// channel, oldest first, one at a time. A persistence failure stops the
// replay; the remainder is retried on the next authentication, so the
// stream is at-least-once and consumers must treat duplicate message
// frames with the same ID as idempotent.
func (d *Delivery) FlushPending(userID string, ch contract.Channel) {
	pending, err := d.messages.PendingFor(userID)
	if err != nil {
		d.log.Error("pending query failed", "user", userID, "error", err)
		d.pushError(ch)
		return
	}

	for _, msg := range pending {
		if err := ch.Push(domain.MessageFrame(msg)); err != nil {
			d.log.Debug("pending push failed", "user", userID, "error", err)
		}
		updated, err := d.messages.MarkDelivered(msg.ID, time.Now().UTC())
		if err != nil {
			d.log.Error("delivered-mark failed, stopping flush", "message_id", msg.ID, "error", err)
			d.pushError(ch)
			return
		}
		d.monitor.IncrDelivered()
		// The sender may be online on a different channel by now.
		d.notifySender(updated.From, domain.DeliveredFrame(updated))
	}
}

// MarkRead flips unread messages addressed to userID and notifies each
// sender. peerID only matters in peer scope; the blanket default marks
// every conversation, matching the original catch-up semantics.
func (d *Delivery) MarkRead(origin contract.Channel, userID, peerID string) {
	var unread []domain.Message
	var err error
	if d.readScope == internal.ReadScopePeer && peerID != "" {
		unread, err = d.messages.UnreadFromPeer(userID, peerID)
	} else {
		unread, err = d.messages.UnreadFor(userID)
	}
	if err != nil {
		d.log.Error("unread query failed", "user", userID, "error", err)
		d.pushError(origin)
		return
	}

	now := time.Now().UTC()
	for _, msg := range unread {
		updated, err := d.messages.MarkRead(msg.ID, now)
		if err != nil {
			d.log.Error("read-mark failed", "message_id", msg.ID, "error", err)
			d.pushError(origin)
			return
		}
		d.monitor.IncrRead()
		d.notifySender(updated.From, domain.ReadFrame(updated))
	}
}

// ForwardTyping relays a typing indicator to the recipient's live
// channels. No persistence, no acknowledgement, no-op when offline.
func (d *Delivery) ForwardTyping(from, to string, state bool) {
	for _, ch := range d.registry.ChannelsFor(to) {
		if err := ch.Push(domain.TypingFrame(from, state)); err != nil {
			d.log.Debug("typing push failed", "to", to, "error", err)
		}
	}
}

func (d *Delivery) notifySender(senderID string, frame domain.Frame) {
	for _, ch := range d.registry.ChannelsFor(senderID) {
		if err := ch.Push(frame); err != nil {
			d.log.Debug("receipt push failed", "sender", senderID, "error", err)
		}
	}
}

func (d *Delivery) pushError(ch contract.Channel) {
	if err := ch.Push(domain.ErrorFrame(sendFailureReason)); err != nil {
		d.log.Debug("error frame push failed", "error", err)
	}
}
