package api

import (
	"log/slog"
	"net/http"
	"time"

	"chat-relay/contract"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"

	"github.com/gorilla/websocket"
)

// WSHandler upgrades HTTP requests into relay sessions. Authentication
// happens after the upgrade, inside the handshake, so the handler
// accepts every upgradeable request.
type WSHandler struct {
	log      *slog.Logger
	verifier contract.Verifier
	registry *runtime.Registry
	delivery *runtime.Delivery
	users    repositories.IUserRepository
	monitor  *observability.Monitor

	upgrader     websocket.Upgrader
	authTimeout  time.Duration
	sendBuffer   int
	writeTimeout time.Duration
}

func NewWSHandler(log *slog.Logger,
	verifier contract.Verifier,
	registry *runtime.Registry,
	delivery *runtime.Delivery,
	users repositories.IUserRepository,
	monitor *observability.Monitor,
	authTimeout time.Duration,
	sendBuffer int,
	writeTimeout time.Duration) *WSHandler {
	return &WSHandler{
		log:      log,
		verifier: verifier,
		registry: registry,
		delivery: delivery,
		users:    users,
		monitor:  monitor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		authTimeout:  authTimeout,
		sendBuffer:   sendBuffer,
		writeTimeout: writeTimeout,
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	h.monitor.ConnOpened()
	defer h.monitor.ConnClosed()

	ch := runtime.NewWSChannel(h.log, conn, h.sendBuffer, h.writeTimeout)
	handshake := runtime.NewHandshake(h.log, h.verifier, h.registry, h.delivery, h.users, h.authTimeout)
	handshake.Start(ch, r.URL.Query().Get("token"))

	runtime.NewSession(h.log, conn, ch, handshake, h.delivery).Run()
}
