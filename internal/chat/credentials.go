package chat

import (
	"strings"
	"sync"
)

// credentials is the shared token store. IRC authentication, Helix
// requests and the refresh path all read it at the moment of use, so a
// replaced token reaches the next action without restarting anything.
type credentials struct {
	mu    sync.Mutex
	token string
}

func newCredentials(token string) *credentials {
	c := &credentials{}
	c.Set(token)
	return c
}

// Token returns the current access token without the "oauth:" prefix.
func (c *credentials) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Set replaces the token, accepting either the bare form or the
// "oauth:"-prefixed form IRC uses.
func (c *credentials) Set(token string) {
	token = strings.TrimPrefix(strings.TrimSpace(token), "oauth:")
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}
