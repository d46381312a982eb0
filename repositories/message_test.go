package repositories

import (
	"log/slog"
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func messageAt(from, to, content string, at time.Time) domain.Message {
	m := domain.NewMessage(from, to, content, "", nil)
	m.CreatedAt = at
	return m
}

func Test_Store_And_Fetch_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	sent := messageAt("alice", "bob", "this message will self destruct in 5 seconds", time.Now().UTC())
	req.NoError(repository.StoreMessage(sent))

	fetched, err := repository.GetMessage(sent.ID)
	req.NoError(err)
	req.Equal(sent.ID, fetched.ID)
	req.Equal("alice", fetched.From)
	req.Equal(domain.DefaultContentType, fetched.ContentType)
	req.False(fetched.Delivered())
	req.False(fetched.Read())
}

func Test_Store_Rejects_Incomplete_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	noRecipient := domain.NewMessage("alice", "", "hello", "", nil)
	req.ErrorIs(repository.StoreMessage(noRecipient), errors.ErrEmptyRecipient)

	noContent := domain.NewMessage("alice", "bob", "", "", nil)
	req.ErrorIs(repository.StoreMessage(noContent), errors.ErrEmptyContent)
}

func Test_Pending_Comes_Back_Oldest_First(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)
	at := time.Now().UTC()

	// Given three undelivered messages stored out of order
	second := messageAt("alice", "bob", "second", at.Add(1*time.Minute))
	third := messageAt("clara", "bob", "third", at.Add(2*time.Minute))
	first := messageAt("alice", "bob", "first", at)
	for _, m := range []domain.Message{second, third, first} {
		req.NoError(repository.StoreMessage(m))
	}

	// When the recipient's queue is flushed
	pending, err := repository.PendingFor("bob")
	req.NoError(err)

	// Then messages arrive in creation order regardless of store order
	req.Equal([]string{"first", "second", "third"},
		lo.Map(pending, func(m domain.Message, _ int) string { return m.Content }))
}

func Test_Mark_Delivered_Empties_The_Pending_Queue(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	m := messageAt("alice", "bob", "hello", time.Now().UTC())
	req.NoError(repository.StoreMessage(m))

	at := time.Now().UTC()
	delivered, err := repository.MarkDelivered(m.ID, at)
	req.NoError(err)
	req.True(delivered.Delivered())

	pending, err := repository.PendingFor("bob")
	req.NoError(err)
	req.Empty(pending)

	// A replayed mark keeps the first timestamp
	again, err := repository.MarkDelivered(m.ID, at.Add(1*time.Hour))
	req.NoError(err)
	req.Equal(delivered.DeliveredAt.UnixNano(), again.DeliveredAt.UnixNano())
}

func Test_Mark_Read_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	m := messageAt("alice", "bob", "hello", time.Now().UTC())
	req.NoError(repository.StoreMessage(m))

	at := time.Now().UTC()
	read, err := repository.MarkRead(m.ID, at)
	req.NoError(err)
	req.True(read.Read())

	unread, err := repository.UnreadFor("bob")
	req.NoError(err)
	req.Empty(unread)

	again, err := repository.MarkRead(m.ID, at.Add(1*time.Hour))
	req.NoError(err)
	req.Equal(read.ReadAt.UnixNano(), again.ReadAt.UnixNano())
}

func Test_Mark_Unknown_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	_, err := repository.MarkDelivered(domain.NewMessage("a", "b", "x", "", nil).ID, time.Now().UTC())
	req.ErrorIs(err, errors.ErrMessageNotFound)
}

func Test_Unread_Can_Be_Scoped_To_One_Peer(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)
	at := time.Now().UTC()

	// Given unread messages from two senders
	req.NoError(repository.StoreMessage(messageAt("alice", "bob", "from alice", at)))
	req.NoError(repository.StoreMessage(messageAt("clara", "bob", "from clara", at.Add(1*time.Minute))))

	all, err := repository.UnreadFor("bob")
	req.NoError(err)
	req.Len(all, 2)

	fromAlice, err := repository.UnreadFromPeer("bob", "alice")
	req.NoError(err)
	req.Len(fromAlice, 1)
	req.Equal("from alice", fromAlice[0].Content)
}

func Test_Conversation_Pages_Have_No_Duplicates(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewMessageRepository(openTestDB(t), slog.Default(), &limit)
	at := time.Now().UTC()

	// Given five messages alternating directions
	for i := 0; i < 5; i++ {
		from, to := "alice", "bob"
		if i%2 == 1 {
			from, to = "bob", "alice"
		}
		m := messageAt(from, to, string(rune('a'+i)), at.Add(time.Duration(i)*time.Minute))
		req.NoError(repository.StoreMessage(m))
	}

	// When the whole history is walked page by page
	seen := map[string]bool{}
	var cursor *string
	pages := 0
	for {
		page, next, err := repository.Conversation("alice", "bob", cursor)
		req.NoError(err)
		req.LessOrEqual(len(page), limit)
		for _, m := range page {
			req.False(seen[m.ID.String()], "message repeated across pages")
			seen[m.ID.String()] = true
		}
		pages++
		if next == nil || len(page) == 0 {
			break
		}
		cursor = next
	}

	// Then every message shows up exactly once
	req.Len(seen, 5)
	req.GreaterOrEqual(pages, 3)
}

func Test_Conversation_Short_Page_Ends_The_Walk(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewMessageRepository(openTestDB(t), slog.Default(), &limit)
	at := time.Now().UTC()

	for i, content := range []string{"one", "two", "three"} {
		req.NoError(repository.StoreMessage(
			messageAt("alice", "bob", content, at.Add(time.Duration(i)*time.Minute))))
	}

	// A full page points at the next one
	first, cursor, err := repository.Conversation("alice", "bob", nil)
	req.NoError(err)
	req.Len(first, 2)
	req.NotNil(cursor)

	// A short page is the last one, no extra empty round-trip needed
	second, cursor, err := repository.Conversation("alice", "bob", cursor)
	req.NoError(err)
	req.Len(second, 1)
	req.Nil(cursor)

	// Without a page limit the whole history is one final page
	unlimited := NewMessageRepository(openTestDB(t), slog.Default(), nil)
	req.NoError(unlimited.StoreMessage(messageAt("alice", "bob", "only", at)))
	page, cursor, err := unlimited.Conversation("alice", "bob", nil)
	req.NoError(err)
	req.Len(page, 1)
	req.Nil(cursor)
}

func Test_Conversation_Is_Newest_First(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)
	at := time.Now().UTC()

	req.NoError(repository.StoreMessage(messageAt("alice", "bob", "old", at)))
	req.NoError(repository.StoreMessage(messageAt("bob", "alice", "new", at.Add(1*time.Minute))))

	page, _, err := repository.Conversation("bob", "alice", nil)
	req.NoError(err)
	req.Equal([]string{"new", "old"},
		lo.Map(page, func(m domain.Message, _ int) string { return m.Content }))

	// Direction of the lookup does not matter
	mirrored, _, err := repository.Conversation("alice", "bob", nil)
	req.NoError(err)
	req.Len(mirrored, 2)
}

func Test_Latest_In_Conversation(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)
	at := time.Now().UTC()

	_, found, err := repository.LatestInConversation("alice", "bob")
	req.NoError(err)
	req.False(found)

	req.NoError(repository.StoreMessage(messageAt("alice", "bob", "older", at)))
	req.NoError(repository.StoreMessage(messageAt("bob", "alice", "newest", at.Add(1*time.Minute))))

	latest, found, err := repository.LatestInConversation("alice", "bob")
	req.NoError(err)
	req.True(found)
	req.Equal("newest", latest.Content)
}
