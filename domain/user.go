package domain

import "time"

// User is the account record owned by the identity store.
// The relay core only references users by ID; the rest of the fields
// back the REST surface (profile, search, contacts).
type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"passwordHash"`
	AvatarURL    string     `json:"avatarUrl,omitempty"`
	LastSeen     *time.Time `json:"lastSeen"`
	Contacts     []string   `json:"contacts,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// PublicUser is the API-safe projection of a User.
type PublicUser struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	AvatarURL string     `json:"avatarUrl,omitempty"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		LastSeen:  u.LastSeen,
	}
}

// HasContact reports whether peerID is already in the contact set.
func (u User) HasContact(peerID string) bool {
	for _, c := range u.Contacts {
		if c == peerID {
			return true
		}
	}
	return false
}
