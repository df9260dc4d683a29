package guard

import "sync"

// guildLocks serializes event handling per guild so concurrent joins
// during a raid don't lose cache updates to read-modify-write races.
// Entries are never removed; the map is bounded by guild membership.
type guildLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (g *guildLocks) lock(guildID string) *sync.Mutex {
	g.mu.Lock()
	if g.m == nil {
		g.m = map[string]*sync.Mutex{}
	}
	l, ok := g.m[guildID]
	if !ok {
		l = &sync.Mutex{}
		g.m[guildID] = l
	}
	g.mu.Unlock()

	l.Lock()
	return l
}
