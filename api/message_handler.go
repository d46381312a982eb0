package api

import (
	"log/slog"
	"net/http"
	"slices"
	"sort"

	"chat-relay/domain"
	"chat-relay/repositories"

	"github.com/gorilla/mux"
)

type MessageHandler struct {
	log      *slog.Logger
	messages repositories.IMessageRepository
	users    repositories.IUserRepository
}

func NewMessageHandler(log *slog.Logger, messages repositories.IMessageRepository,
	users repositories.IUserRepository) *MessageHandler {
	return &MessageHandler{log: log, messages: messages, users: users}
}

type conversationResponse struct {
	Messages []domain.Message `json:"messages"`
	Cursor   *string          `json:"cursor,omitempty"`
}

// Conversation returns one page of the history with the peer named in
// the path. Pages walk backwards in time via the cursor, but each page
// is returned oldest first so clients can append it above the view.
func (h *MessageHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	caller, ok := UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	peerID := mux.Vars(r)["peerID"]
	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}

	page, next, err := h.messages.Conversation(caller.ID, peerID, cursor)
	if err != nil {
		h.log.Error("conversation lookup failed",
			slog.String("user_id", caller.ID),
			slog.String("peer_id", peerID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}

	slices.Reverse(page)
	if page == nil {
		page = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, conversationResponse{Messages: page, Cursor: next})
}

type recentContact struct {
	User        domain.PublicUser `json:"user"`
	LastMessage domain.Message    `json:"lastMessage"`
}

// RecentContacts returns the caller's contacts ordered by the most
// recent exchange, one latest message each.
func (h *MessageHandler) RecentContacts(w http.ResponseWriter, r *http.Request) {
	caller, ok := UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	contacts := make([]recentContact, 0, len(caller.Contacts))
	for _, peerID := range caller.Contacts {
		last, found, err := h.messages.LatestInConversation(caller.ID, peerID)
		if err != nil {
			h.log.Error("latest message lookup failed",
				slog.String("peer_id", peerID),
				slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "history lookup failed")
			return
		}
		if !found {
			continue
		}

		peer, err := h.users.GetUserByID(peerID)
		if err != nil {
			// A contact entry may outlive the account. Skip it.
			continue
		}
		contacts = append(contacts, recentContact{User: peer.Public(), LastMessage: last})
	}

	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].LastMessage.CreatedAt.After(contacts[j].LastMessage.CreatedAt)
	})
	writeJSON(w, http.StatusOK, contacts)
}
