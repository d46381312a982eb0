package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"chat-relay/services"

	"github.com/samber/lo"
)

const searchLimit = 10

type AuthHandler struct {
	log     *slog.Logger
	service services.IAuthService
	users   repositories.IUserRepository
}

func NewAuthHandler(log *slog.Logger, service services.IAuthService, users repositories.IUserRepository) *AuthHandler {
	return &AuthHandler{log: log, service: service, users: users}
}

type credentialsResponse struct {
	Token string            `json:"token"`
	User  domain.PublicUser `json:"user"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, user, err := h.service.Signup(req.Name, req.Email, req.Password)
	switch {
	case err == errors.ErrUserAlreadyExists:
		writeError(w, http.StatusConflict, "email already registered")
		return
	case err != nil:
		h.log.Warn("signup rejected", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, credentialsResponse{Token: string(token), User: user.Public()})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, user, err := h.service.Login(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, credentialsResponse{Token: string(token), User: user.Public()})
}

func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}

// Search matches name or email prefixes, excluding the caller. An empty
// query still returns the first page so a fresh client has someone to
// talk to.
func (h *AuthHandler) Search(w http.ResponseWriter, r *http.Request) {
	caller, ok := UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	matches, err := h.users.SearchUsers(r.URL.Query().Get("q"), caller.ID, searchLimit)
	if err != nil {
		h.log.Error("user search failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, lo.Map(matches, func(u domain.User, _ int) domain.PublicUser {
		return u.Public()
	}))
}
