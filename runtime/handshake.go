package runtime

import (
	"log/slog"
	"sync"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/repositories"
)

// HandshakeState is the per-channel authentication state.
type HandshakeState int

const (
	StateConnecting HandshakeState = iota
	StateAuthenticated
	StateClosed
)

// Handshake authenticates a newly opened channel before any application
// traffic is accepted. Exactly one attempt is processed: the credential
// arrives either through the connection URL or the first identify frame,
// and whichever reaches Identify first wins; the state guard makes every
// later attempt a no-op. A timer armed on entry closes the channel when
// nothing authenticates within the budget.
type Handshake struct {
	log      *slog.Logger
	verifier contract.Verifier
	registry contract.IRegistry
	delivery *Delivery
	users    repositories.IUserRepository
	timeout  time.Duration

	mu     sync.Mutex
	state  HandshakeState
	userID string
	timer  *time.Timer
	ch     contract.Channel
}

func NewHandshake(log *slog.Logger,
	verifier contract.Verifier,
	registry contract.IRegistry,
	delivery *Delivery,
	users repositories.IUserRepository,
	timeout time.Duration) *Handshake {
	return &Handshake{
		log:      log,
		verifier: verifier,
		registry: registry,
		delivery: delivery,
		users:    users,
		timeout:  timeout,
	}
}

// Start arms the timeout and, when the connection URL carried a
// credential, immediately attempts authentication with it.
func (h *Handshake) Start(ch contract.Channel, urlToken string) {
	h.mu.Lock()
	h.ch = ch
	h.timer = time.AfterFunc(h.timeout, h.onTimeout)
	h.mu.Unlock()

	if urlToken != "" {
		h.Identify(urlToken)
	}
}

// Identify processes one credential. Outside StateConnecting it is a
// no-op: a second identify frame after success is ignored because the
// identity is already bound, and anything after closure is irrelevant.
func (h *Handshake) Identify(token string) {
	h.mu.Lock()
	if h.state != StateConnecting {
		h.mu.Unlock()
		return
	}

	userID, err := h.verifier.Verify(token)
	if err != nil {
		h.state = StateClosed
		h.timer.Stop()
		ch := h.ch
		h.mu.Unlock()

		h.log.Warn("channel authentication failed", "error", err)
		ch.Close(domain.CloseAuthFailed, "Auth failed")
		return
	}

	h.state = StateAuthenticated
	h.userID = userID
	h.timer.Stop()
	ch := h.ch
	h.mu.Unlock()

	h.registry.Register(userID, ch)

	// Presence refresh is best-effort; an unavailable identity store must
	// not fail the handshake.
	if err := h.users.UpdateLastSeen(userID, time.Now().UTC()); err != nil {
		h.log.Warn("last-seen refresh failed", "user", userID, "error", err)
	}

	if err := ch.Push(domain.WelcomeFrame()); err != nil {
		h.log.Debug("welcome push failed", "user", userID, "error", err)
	}

	h.delivery.FlushPending(userID, ch)
}

// UserID returns the bound identity once authenticated.
func (h *Handshake) UserID() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.userID, h.state == StateAuthenticated
}

// OnClose finalizes the state machine when the connection goes away for
// any reason. An authenticated channel is deregistered and the user's
// last-seen timestamp refreshed once their final channel is gone.
func (h *Handshake) OnClose() {
	h.mu.Lock()
	wasAuthenticated := h.state == StateAuthenticated
	userID := h.userID
	ch := h.ch
	h.state = StateClosed
	if h.timer != nil {
		h.timer.Stop()
	}
	h.mu.Unlock()

	if !wasAuthenticated {
		return
	}

	h.registry.Deregister(userID, ch)
	if len(h.registry.ChannelsFor(userID)) == 0 {
		if err := h.users.UpdateLastSeen(userID, time.Now().UTC()); err != nil {
			h.log.Warn("last-seen refresh failed", "user", userID, "error", err)
		}
	}
}

// onTimeout fires when nothing authenticated within the budget. It is a
// no-op when the race was lost to a successful identify or an earlier
// close.
func (h *Handshake) onTimeout() {
	h.mu.Lock()
	if h.state != StateConnecting {
		h.mu.Unlock()
		return
	}
	h.state = StateClosed
	ch := h.ch
	h.mu.Unlock()

	h.log.Warn("channel authentication timed out")
	ch.Close(domain.CloseAuthTimeout, "Auth timeout")
}
