package runtime

import (
	"sync"

	"chat-relay/contract"

	"github.com/samber/lo"
)

type channelSet map[contract.Channel]struct{}

// Registry is the single piece of shared mutable state of the relay: the
// in-memory mapping from user identity to that user's live channels.
// Absence of an entry means offline; an entry never holds an empty set.
//
// Registry is safe for concurrent use by multiple goroutines.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]channelSet
	onChange func(online []string, all []contract.Channel)
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]channelSet)}
}

// OnChange installs the presence listener, invoked after every mutation
// with the complete online-identity set and a snapshot of every live
// channel. Must be called before the first Register. The callback runs
// while the registry lock is held, so consecutive mutations deliver
// their snapshots in mutation order; it must not block and must not call
// back into the registry.
func (r *Registry) OnChange(fn func(online []string, all []contract.Channel)) {
	r.onChange = fn
}

// Register files a channel under a user identity, creating the entry if
// absent. Registering an already present channel is idempotent. Every call
// triggers a presence notification.
func (r *Registry) Register(userID string, ch contract.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.channels[userID]
	if !ok {
		set = make(channelSet)
		r.channels[userID] = set
	}
	set[ch] = struct{}{}

	r.notifyLocked()
}

// Deregister removes a channel from the user's entry and deletes the entry
// once empty. It notifies unconditionally, even when the channel was not
// present, matching one broadcast per connection close.
func (r *Registry) Deregister(userID string, ch contract.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.channels[userID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(r.channels, userID)
		}
	}

	r.notifyLocked()
}

// ChannelsFor returns a snapshot of the user's live channels. An empty
// result means offline.
func (r *Registry) ChannelsFor(userID string) []contract.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.channels[userID])
}

// OnlineIDs returns every identity with at least one live channel.
func (r *Registry) OnlineIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.channels)
}

// AllChannels returns a snapshot of every live channel across all users.
func (r *Registry) AllChannels() []contract.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allChannelsLocked()
}

// CloseAll closes every live channel. Used at shutdown, where the HTTP
// server cannot reach hijacked connections.
func (r *Registry) CloseAll(code int, reason string) {
	for _, ch := range r.AllChannels() {
		ch.Close(code, reason)
	}
}

func (r *Registry) allChannelsLocked() []contract.Channel {
	var all []contract.Channel
	for _, set := range r.channels {
		all = append(all, lo.Keys(set)...)
	}
	return all
}

func (r *Registry) notifyLocked() {
	if r.onChange != nil {
		r.onChange(lo.Keys(r.channels), r.allChannelsLocked())
	}
}
