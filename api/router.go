package api

import (
	"net/http"

	"chat-relay/contract"
	"chat-relay/repositories"

	"github.com/gorilla/mux"
)

// Routes groups everything the router mounts.
type Routes struct {
	Auth     *AuthHandler
	Messages *MessageHandler
	Uploads  *UploadHandler
	WS       *WSHandler
	Health   *HealthHandler

	Verifier contract.Verifier
	Users    repositories.IUserRepository

	UploadDir string
}

func NewRouter(routes Routes) *mux.Router {
	r := mux.NewRouter()

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return Authenticated(routes.Verifier, routes.Users, next)
	}

	r.HandleFunc("/auth/signup", routes.Auth.Signup).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", routes.Auth.Login).Methods(http.MethodPost)
	r.HandleFunc("/auth/", authed(routes.Auth.CurrentUser)).Methods(http.MethodGet)
	r.HandleFunc("/auth/search", authed(routes.Auth.Search)).Methods(http.MethodGet)

	r.HandleFunc("/messages/recent-contacts", authed(routes.Messages.RecentContacts)).Methods(http.MethodGet)
	r.HandleFunc("/messages/{peerID}", authed(routes.Messages.Conversation)).Methods(http.MethodGet)

	r.HandleFunc("/upload", authed(routes.Uploads.Upload)).Methods(http.MethodPost)
	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(routes.UploadDir))))

	r.Handle("/ws", routes.WS)
	r.HandleFunc("/", routes.Health.Health).Methods(http.MethodGet)

	return r
}
