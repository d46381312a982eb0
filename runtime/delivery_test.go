package runtime

import (
	"log/slog"
	"testing"

	"chat-relay/domain"
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func newTestDelivery(t *testing.T, scope internal.ReadReceiptScope) (*Delivery, *Registry, repositories.MessageRepository) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	messages := repositories.NewMessageRepository(db, slog.Default(), nil)
	users := repositories.NewUserRepository(db)
	registry := NewRegistry()
	delivery := NewDelivery(slog.Default(), messages, users, registry, observability.NewMonitor(), scope)
	return delivery, registry, messages
}

func Test_Send_To_Online_Recipient(t *testing.T) {
	req := require.New(t)
	delivery, registry, _ := newTestDelivery(t, internal.ReadScopeAll)

	sender := &fakeChannel{}
	recipient := &fakeChannel{}
	registry.Register("alice", sender)
	registry.Register("bob", recipient)

	delivery.Send(sender, SendInput{From: "alice", To: "bob", Content: "hello", FrontendKey: "key-1"})

	// The recipient sees the message
	messages := recipient.ofType(domain.FrameMessage)
	req.Len(messages, 1)
	msg := messages[0].Payload.(domain.Message)
	req.Equal("hello", msg.Content)

	// The sender gets a delivered receipt and an ack echoing the key
	receipts := sender.ofType(domain.FrameDelivered)
	req.Len(receipts, 1)
	req.True(receipts[0].Payload.(domain.ReceiptPayload).Message.Delivered())
	acks := sender.ofType(domain.FrameSent)
	req.Len(acks, 1)
	ack := acks[0].Payload.(domain.SentPayload)
	req.Equal("key-1", ack.FrontendKey)
	req.True(ack.Delivered)
}

func Test_Send_To_Offline_Recipient_Then_Flush(t *testing.T) {
	req := require.New(t)
	delivery, registry, messages := newTestDelivery(t, internal.ReadScopeAll)

	sender := &fakeChannel{}
	registry.Register("alice", sender)

	// Given bob is offline when the message is sent
	delivery.Send(sender, SendInput{From: "alice", To: "bob", Content: "catch up later"})

	acks := sender.ofType(domain.FrameSent)
	req.Len(acks, 1)
	req.False(acks[0].Payload.(domain.SentPayload).Delivered)
	req.Empty(sender.ofType(domain.FrameDelivered))

	pending, err := messages.PendingFor("bob")
	req.NoError(err)
	req.Len(pending, 1)

	// When bob's channel authenticates and the queue flushes
	bob := &fakeChannel{}
	registry.Register("bob", bob)
	delivery.FlushPending("bob", bob)

	// Then bob receives the stored message and alice her receipt
	flushed := bob.ofType(domain.FrameMessage)
	req.Len(flushed, 1)
	req.Equal("catch up later", flushed[0].Payload.(domain.Message).Content)
	req.Len(sender.ofType(domain.FrameDelivered), 1)

	// And the queue is empty
	pending, err = messages.PendingFor("bob")
	req.NoError(err)
	req.Empty(pending)
}

func Test_Send_Without_Content_Fails_On_Origin_Only(t *testing.T) {
	req := require.New(t)
	delivery, registry, _ := newTestDelivery(t, internal.ReadScopeAll)

	sender := &fakeChannel{}
	recipient := &fakeChannel{}
	registry.Register("alice", sender)
	registry.Register("bob", recipient)

	delivery.Send(sender, SendInput{From: "alice", To: "bob"})

	req.Len(sender.ofType(domain.FrameError), 1)
	req.Empty(sender.ofType(domain.FrameSent))
	req.Empty(recipient.pushed())
}

func Test_Mark_Read_Notifies_Every_Sender(t *testing.T) {
	req := require.New(t)
	delivery, registry, _ := newTestDelivery(t, internal.ReadScopeAll)

	alice := &fakeChannel{}
	clara := &fakeChannel{}
	bob := &fakeChannel{}
	registry.Register("alice", alice)
	registry.Register("clara", clara)
	registry.Register("bob", bob)

	// Given bob has unread messages from two senders
	delivery.Send(alice, SendInput{From: "alice", To: "bob", Content: "one"})
	delivery.Send(clara, SendInput{From: "clara", To: "bob", Content: "two"})

	// When bob marks everything read
	delivery.MarkRead(bob, "bob", "")

	// Then each sender gets a read receipt for their own message
	aliceReads := alice.ofType(domain.FrameRead)
	req.Len(aliceReads, 1)
	req.Equal("one", aliceReads[0].Payload.(domain.ReceiptPayload).Message.Content)
	req.True(aliceReads[0].Payload.(domain.ReceiptPayload).Message.Read())

	claraReads := clara.ofType(domain.FrameRead)
	req.Len(claraReads, 1)
	req.Equal("two", claraReads[0].Payload.(domain.ReceiptPayload).Message.Content)
}

func Test_Mark_Read_Peer_Scope_Leaves_Other_Conversations(t *testing.T) {
	req := require.New(t)
	delivery, registry, messages := newTestDelivery(t, internal.ReadScopePeer)

	alice := &fakeChannel{}
	clara := &fakeChannel{}
	bob := &fakeChannel{}
	registry.Register("alice", alice)
	registry.Register("clara", clara)
	registry.Register("bob", bob)

	delivery.Send(alice, SendInput{From: "alice", To: "bob", Content: "one"})
	delivery.Send(clara, SendInput{From: "clara", To: "bob", Content: "two"})

	// When bob reads only the alice conversation
	delivery.MarkRead(bob, "bob", "alice")

	req.Len(alice.ofType(domain.FrameRead), 1)
	req.Empty(clara.ofType(domain.FrameRead))

	// Clara's message stays unread
	unread, err := messages.UnreadFor("bob")
	req.NoError(err)
	req.Len(unread, 1)
	req.Equal("two", unread[0].Content)
}

func Test_Typing_Is_Transient(t *testing.T) {
	req := require.New(t)
	delivery, registry, _ := newTestDelivery(t, internal.ReadScopeAll)

	bob := &fakeChannel{}
	registry.Register("bob", bob)

	delivery.ForwardTyping("alice", "bob", true)

	typing := bob.ofType(domain.FrameTyping)
	req.Len(typing, 1)
	req.Equal("alice", typing[0].From)
	req.True(*typing[0].State)

	// Typing to an offline user vanishes without error
	delivery.ForwardTyping("alice", "nobody", true)
}
