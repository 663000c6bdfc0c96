package service

import "sync"

// Presence maps a user identity to its single most recent connection. A new
// announce for the same user supersedes the prior entry; there is no
// multi-device fan-out.
type Presence struct {
	mu      sync.RWMutex
	entries map[string]*Client
}

func NewPresence() *Presence {
	return &Presence{entries: map[string]*Client{}}
}

// Announce binds userID to c, overwriting any prior binding.
func (p *Presence) Announce(userID string, c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[userID] = c
}

// Disconnect removes the entry owned by c, if any. The entry is only
// removed when it still points at this exact connection, so a stale
// disconnect cannot evict a newer announce from the same user.
func (p *Presence) Disconnect(c *Client) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for userID, entry := range p.entries {
		if entry == c {
			delete(p.entries, userID)
			return userID, true
		}
	}
	return "", false
}

func (p *Presence) Lookup(userID string) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.entries[userID]
	return c, ok
}

// OnlineSet snapshots the currently announced user identities.
func (p *Presence) OnlineSet() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	users := make([]string, 0, len(p.entries))
	for userID := range p.entries {
		users = append(users, userID)
	}
	return users
}
