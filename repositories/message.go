//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	StoreMessage(m domain.Message) error
	GetMessage(id uuid.UUID) (domain.Message, error)
	MarkDelivered(id uuid.UUID, at time.Time) (domain.Message, error)
	MarkRead(id uuid.UUID, at time.Time) (domain.Message, error)
	PendingFor(userID string) ([]domain.Message, error)
	UnreadFor(userID string) ([]domain.Message, error)
	UnreadFromPeer(userID, peerID string) ([]domain.Message, error)
	Conversation(userID, peerID string, cursor *string) ([]domain.Message, *string, error)
	LatestInConversation(userID, peerID string) (domain.Message, bool, error)
}

// MessageRepository persists messages in BadgerDB.
//
// The primary record lives under "msg:{id}". Three index families make the
// delivery queries key-range scans instead of full iterations, all using a
// 19-digit zero-padded creation timestamp so lexicographic order is
// chronological order:
//
//	pending:{to}:{padded_nanos}:{id}        removed when DeliveredAt is set
//	unread:{to}:{padded_nanos}:{id} -> from removed when ReadAt is set
//	conv:{lo}:{hi}:{padded_nanos}:{id}      permanent, for paged history
//
// The conversation prefix uses the lexicographically sorted ID pair so both
// parties scan the same range.
type MessageRepository struct {
	db        *badger.DB
	log       *slog.Logger
	pageLimit *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, pageLimit *int) MessageRepository {
	return MessageRepository{db: db, log: log, pageLimit: pageLimit}
}

func paddedNanos(at time.Time) string {
	return fmt.Sprintf("%019d", at.UnixNano())
}

func msgKey(id uuid.UUID) []byte {
	return []byte("msg:" + id.String())
}

func pendingKey(m domain.Message) []byte {
	return []byte("pending:" + m.To + ":" + paddedNanos(m.CreatedAt) + ":" + m.ID.String())
}

func unreadKey(m domain.Message) []byte {
	return []byte("unread:" + m.To + ":" + paddedNanos(m.CreatedAt) + ":" + m.ID.String())
}

func convPrefix(a, b string) string {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return "conv:" + lo + ":" + hi + ":"
}

func convKey(m domain.Message) []byte {
	return []byte(convPrefix(m.From, m.To) + paddedNanos(m.CreatedAt) + ":" + m.ID.String())
}

// StoreMessage is the durability point of a send: once this returns nil
// the message survives any real-time delivery failure.
func (r MessageRepository) StoreMessage(m domain.Message) error {
	if m.To == "" {
		return errors.ErrEmptyRecipient
	}
	if m.Content == "" {
		return errors.ErrEmptyContent
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(msgKey(m.ID), data); err != nil {
			return err
		}
		if err := txn.Set(pendingKey(m), nil); err != nil {
			return err
		}
		if err := txn.Set(unreadKey(m), []byte(m.From)); err != nil {
			return err
		}
		return txn.Set(convKey(m), []byte(m.ID.String()))
	})
}

func (r MessageRepository) GetMessage(id uuid.UUID) (domain.Message, error) {
	var m domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		return readMessage(txn, id, &m)
	})
	return m, err
}

// MarkDelivered flips DeliveredAt nil -> non-nil. A second call is a no-op
// returning the stored state, so replays after a crashed flush stay
// harmless for consumers treating duplicate message frames as idempotent.
func (r MessageRepository) MarkDelivered(id uuid.UUID, at time.Time) (domain.Message, error) {
	var m domain.Message
	err := r.db.Update(func(txn *badger.Txn) error {
		if err := readMessage(txn, id, &m); err != nil {
			return err
		}
		if m.DeliveredAt != nil {
			return nil
		}
		m.DeliveredAt = &at
		if err := writeMessage(txn, m); err != nil {
			return err
		}
		return txn.Delete(pendingKey(m))
	})
	return m, err
}

// MarkRead flips ReadAt nil -> non-nil, idempotent like MarkDelivered.
func (r MessageRepository) MarkRead(id uuid.UUID, at time.Time) (domain.Message, error) {
	var m domain.Message
	err := r.db.Update(func(txn *badger.Txn) error {
		if err := readMessage(txn, id, &m); err != nil {
			return err
		}
		if m.ReadAt != nil {
			return nil
		}
		m.ReadAt = &at
		if err := writeMessage(txn, m); err != nil {
			return err
		}
		return txn.Delete(unreadKey(m))
	})
	return m, err
}

// PendingFor returns undelivered messages addressed to userID, oldest
// first. Delivery order is creation order thanks to the padded timestamp
// in the index key.
func (r MessageRepository) PendingFor(userID string) ([]domain.Message, error) {
	return r.scanIndex("pending:"+userID+":", nil)
}

// UnreadFor returns every unread message addressed to userID.
func (r MessageRepository) UnreadFor(userID string) ([]domain.Message, error) {
	return r.scanIndex("unread:"+userID+":", nil)
}

// UnreadFromPeer restricts UnreadFor to one sender, using the sender
// recorded in the index value.
func (r MessageRepository) UnreadFromPeer(userID, peerID string) ([]domain.Message, error) {
	peer := []byte(peerID)
	return r.scanIndex("unread:"+userID+":", peer)
}

// scanIndex walks an index prefix oldest-first and resolves the primary
// records. A non-nil value filter keeps only entries whose value matches.
func (r MessageRepository) scanIndex(prefixStr string, valueFilter []byte) ([]domain.Message, error) {
	var ids []uuid.UUID
	prefix := []byte(prefixStr)

	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if valueFilter != nil {
				keep := false
				err := item.Value(func(val []byte) error {
					keep = string(val) == string(valueFilter)
					return nil
				})
				if err != nil {
					return err
				}
				if !keep {
					continue
				}
			}
			id, err := idFromIndexKey(item.Key())
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.resolve(ids)
}

// Conversation returns one page of history between two users, newest
// first, with an opaque cursor for the next page. Same seek/cursor scheme
// as the index scans, just reversed.
func (r MessageRepository) Conversation(userID, peerID string, cursor *string) ([]domain.Message, *string, error) {
	prefixStr := convPrefix(userID, peerID)
	prefix := []byte(prefixStr)
	prefixLen := len(prefixStr)

	var ids []uuid.UUID
	var lastKey string

	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Position past the newest possible timestamp, then walk back.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if r.pageLimit != nil && len(ids) == *r.pageLimit {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])
			id, err := idFromIndexKey(item.Key())
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages, err := r.resolve(ids)
	if err != nil {
		return nil, nil, err
	}
	// A short page means the walk reached the start of the history, so
	// there is no next page to point at.
	if len(messages) == 0 || r.pageLimit == nil || len(messages) < *r.pageLimit {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

// LatestInConversation returns the newest message exchanged between two
// users, or false when they never talked.
func (r MessageRepository) LatestInConversation(userID, peerID string) (domain.Message, bool, error) {
	prefixStr := convPrefix(userID, peerID)
	prefix := []byte(prefixStr)

	var id uuid.UUID
	found := false

	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		it.Seek(append(prefix, []byte("9999999999999999999")...))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		parsed, err := idFromIndexKey(it.Item().Key())
		if err != nil {
			return err
		}
		id = parsed
		found = true
		return nil
	})
	if err != nil || !found {
		return domain.Message{}, false, err
	}

	m, err := r.GetMessage(id)
	if err != nil {
		return domain.Message{}, false, err
	}
	return m, true, nil
}

func (r MessageRepository) resolve(ids []uuid.UUID) ([]domain.Message, error) {
	var messages []domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			var m domain.Message
			if err := readMessage(txn, id, &m); err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// idFromIndexKey extracts the message ID from the last segment of an
// index key.
func idFromIndexKey(key []byte) (uuid.UUID, error) {
	s := string(key)
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return uuid.UUID{}, fmt.Errorf("malformed index key %q", s)
	}
	return uuid.Parse(s[idx+1:])
}

func readMessage(txn *badger.Txn, id uuid.UUID, m *domain.Message) error {
	item, err := txn.Get(msgKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return errors.ErrMessageNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, m)
	})
}

func writeMessage(txn *badger.Txn, m domain.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(msgKey(m.ID), data)
}
