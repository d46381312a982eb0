package repositories

import (
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func Test_Create_And_Lookup_User(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t))

	created, err := repository.CreateUser("Alice", "Alice@Example.com", "hash")
	req.NoError(err)
	req.NotEmpty(created.ID)
	req.Equal("alice@example.com", created.Email)

	byID, err := repository.GetUserByID(created.ID)
	req.NoError(err)
	req.Equal(created.ID, byID.ID)

	// Email lookup is case-insensitive
	byEmail, err := repository.GetUserByEmail("ALICE@example.COM")
	req.NoError(err)
	req.Equal(created.ID, byEmail.ID)
}

func Test_Duplicate_Email_Is_Rejected(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t))

	_, err := repository.CreateUser("Alice", "alice@example.com", "hash")
	req.NoError(err)

	_, err = repository.CreateUser("Imposter", "Alice@Example.com", "other")
	req.ErrorIs(err, errors.ErrUserAlreadyExists)
}

func Test_Unknown_User_Lookup(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t))

	_, err := repository.GetUserByID("nope")
	req.ErrorIs(err, errors.ErrUserNotFound)

	_, err = repository.GetUserByEmail("nobody@example.com")
	req.ErrorIs(err, errors.ErrUserNotFound)
}

func Test_Contacts_Behave_Like_A_Set(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t))

	alice, err := repository.CreateUser("Alice", "alice@example.com", "hash")
	req.NoError(err)

	req.NoError(repository.AddContact(alice.ID, "bob"))
	req.NoError(repository.AddContact(alice.ID, "bob"))
	req.NoError(repository.AddContact(alice.ID, "clara"))

	stored, err := repository.GetUserByID(alice.ID)
	req.NoError(err)
	req.Equal([]string{"bob", "clara"}, stored.Contacts)
}

func Test_Last_Seen_And_Avatar_Updates(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t))

	alice, err := repository.CreateUser("Alice", "alice@example.com", "hash")
	req.NoError(err)
	req.Nil(alice.LastSeen)

	at := time.Now().UTC()
	req.NoError(repository.UpdateLastSeen(alice.ID, at))
	req.NoError(repository.SetAvatar(alice.ID, "/uploads/a.png"))

	stored, err := repository.GetUserByID(alice.ID)
	req.NoError(err)
	req.NotNil(stored.LastSeen)
	req.Equal(at.UnixNano(), stored.LastSeen.UnixNano())
	req.Equal("/uploads/a.png", stored.AvatarURL)
}

func Test_Search_Excludes_Self_And_Matches_Prefixes(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t))

	alice, err := repository.CreateUser("Alice", "alice@example.com", "hash")
	req.NoError(err)
	_, err = repository.CreateUser("Alicia", "alicia@example.com", "hash")
	req.NoError(err)
	_, err = repository.CreateUser("Bob", "bob@example.com", "hash")
	req.NoError(err)

	// Prefix on name, caller excluded
	matches, err := repository.SearchUsers("ali", alice.ID, 10)
	req.NoError(err)
	req.Equal([]string{"Alicia"}, lo.Map(matches, func(u domain.User, _ int) string { return u.Name }))

	// Empty query returns everyone else
	all, err := repository.SearchUsers("", alice.ID, 10)
	req.NoError(err)
	req.Len(all, 2)

	// Limit caps the page
	capped, err := repository.SearchUsers("", alice.ID, 1)
	req.NoError(err)
	req.Len(capped, 1)
}
