package chat

import (
	"strings"
	"sync"
)

// normalizeChannel lowercases a channel name and strips any leading '#'.
func normalizeChannel(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
}

// roster is the channel registry: the duplicate-free channel list both
// transports read, plus the per-channel subscription handle for the
// current event session. Handles are cleared whenever a new session
// starts, since subscriptions do not survive the old one.
type roster struct {
	mu      sync.Mutex
	entries []ChannelInfo
	subs    map[string]string // channel name -> subscription id
}

func newRoster() *roster {
	return &roster{
		subs: make(map[string]string),
	}
}

// Add appends a channel, preserving join order. It reports false when
// the name is already present.
func (r *roster) Add(info ChannelInfo) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Name == info.Name {
			return false
		}
	}
	r.entries = append(r.entries, info)
	return true
}

// Remove deletes a channel and its subscription handle. It reports false
// when the name is absent.
func (r *roster) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.Name == name {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			delete(r.subs, name)
			return true
		}
	}
	return false
}

// Has reports whether the channel is present.
func (r *roster) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Name == name {
			return true
		}
	}
	return false
}

// Channels returns a copy of the channel list in join order.
func (r *roster) Channels() []ChannelInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChannelInfo, len(r.entries))
	copy(out, r.entries)
	return out
}

// Names returns the channel names in join order.
func (r *roster) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Len returns the channel count.
func (r *roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// SetSubscription records the subscription handle for a channel. Ignored
// when the channel has left the roster in the meantime.
func (r *roster) SetSubscription(name, subID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Name == name {
			r.subs[name] = subID
			return
		}
	}
}

// Subscription returns the channel's handle for the current session.
func (r *roster) Subscription(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.subs[name]
	return id, ok
}

// ClearSubscriptions drops every subscription handle. Called at the
// start of each session's resubscribe pass.
func (r *roster) ClearSubscriptions() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.subs)
}

// ClearSubscriptionID drops a handle by subscription id, returning the
// channel it belonged to.
func (r *roster) ClearSubscriptionID(subID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, id := range r.subs {
		if id == subID {
			delete(r.subs, name)
			return name, true
		}
	}
	return "", false
}
