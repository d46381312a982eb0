package runtime

import (
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain"
)

// Presence pushes the full online-identity set to every live channel
// whenever the registry mutates. Full-state broadcast, no delta and no
// debouncing: back-to-back mutations each produce one broadcast, in
// mutation order because the registry invokes the hook while serialized.
type Presence struct {
	log *slog.Logger
}

func NewPresence(log *slog.Logger, registry *Registry) *Presence {
	p := &Presence{log: log}
	registry.OnChange(p.broadcast)
	return p
}

func (p *Presence) broadcast(online []string, channels []contract.Channel) {
	frame := domain.OnlineUsersFrame(online)
	for _, ch := range channels {
		if err := ch.Push(frame); err != nil {
			p.log.Debug("presence push skipped", "error", err)
		}
	}
}
