//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(name, email, hashedPassword string) (domain.User, error)
	GetUserByEmail(email string) (domain.User, error)
	GetUserByID(id string) (domain.User, error)
	UpdateLastSeen(id string, at time.Time) error
	SetAvatar(id, url string) error
	AddContact(id, peerID string) error
	SearchUsers(query, selfID string, limit int) ([]domain.User, error)
}

// UserRepository persists accounts in BadgerDB under "user:id:{id}", with
// a "user:email:{email}" pointer for login lookups.
type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

func userKey(id string) []byte {
	return []byte("user:id:" + id)
}

func emailKey(email string) []byte {
	return []byte("user:email:" + strings.ToLower(email))
}

// CreateUser persists a new account and returns it. The email pointer is
// written in the same transaction, so a duplicate email can never win a
// race against the uniqueness check.
func (r UserRepository) CreateUser(name, email, hashedPassword string) (domain.User, error) {
	user := domain.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        strings.ToLower(email),
		PasswordHash: hashedPassword,
		CreatedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(user)
	if err != nil {
		return domain.User{}, fmt.Errorf("marshal failed: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(emailKey(user.Email)); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(emailKey(user.Email), []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set(userKey(user.ID), data)
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (r UserRepository) GetUserByEmail(email string) (domain.User, error) {
	var user domain.User
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return errors.ErrUserNotFound
			}
			return err
		}
		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}
		return readUser(txn, id, &user)
	})
	return user, err
}

func (r UserRepository) GetUserByID(id string) (domain.User, error) {
	var user domain.User
	err := r.db.View(func(txn *badger.Txn) error {
		return readUser(txn, id, &user)
	})
	return user, err
}

// UpdateLastSeen refreshes the presence timestamp. Callers treat failures
// as best-effort.
func (r UserRepository) UpdateLastSeen(id string, at time.Time) error {
	return r.mutate(id, func(u *domain.User) {
		u.LastSeen = &at
	})
}

func (r UserRepository) SetAvatar(id, url string) error {
	return r.mutate(id, func(u *domain.User) {
		u.AvatarURL = url
	})
}

// AddContact records peerID in the user's contact set. Adding an existing
// contact is a no-op, giving the same uniqueness guarantee as a set.
func (r UserRepository) AddContact(id, peerID string) error {
	return r.mutate(id, func(u *domain.User) {
		if u.HasContact(peerID) {
			return
		}
		u.Contacts = append(u.Contacts, peerID)
	})
}

// SearchUsers matches users whose name or email starts with query,
// case-insensitive, excluding selfID. An empty query returns the first
// users encountered, capped at limit either way.
func (r UserRepository) SearchUsers(query, selfID string, limit int) ([]domain.User, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	var users []domain.User

	prefix := []byte("user:id:")
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if len(users) == limit {
				break
			}
			var user domain.User
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &user)
			})
			if err != nil {
				return err
			}
			if user.ID == selfID {
				continue
			}
			if q != "" &&
				!strings.HasPrefix(strings.ToLower(user.Name), q) &&
				!strings.HasPrefix(user.Email, q) {
				continue
			}
			users = append(users, user)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r UserRepository) mutate(id string, apply func(*domain.User)) error {
	return r.db.Update(func(txn *badger.Txn) error {
		var user domain.User
		if err := readUser(txn, id, &user); err != nil {
			return err
		}
		apply(&user)
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshal failed: %w", err)
		}
		return txn.Set(userKey(id), data)
	})
}

func readUser(txn *badger.Txn, id string, user *domain.User) error {
	item, err := txn.Get(userKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return errors.ErrUserNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, user)
	})
}
