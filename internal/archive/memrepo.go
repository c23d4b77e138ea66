package archive

import (
	"context"
	"sort"
	"sync"
)

// memrepo is used when no DATABASE_URL is configured.
type memrepo struct {
	mu    sync.RWMutex
	games map[string]*Game
}

func NewMemoryRepository() Repository {
	return &memrepo{games: make(map[string]*Game)}
}

func (m *memrepo) SaveGame(ctx context.Context, g *Game) error {
	if g == nil {
		return nil
	}
	cp := clone(g)
	m.mu.Lock()
	m.games[g.SessionID] = cp
	m.mu.Unlock()
	return nil
}

func (m *memrepo) GetGame(ctx context.Context, sessionID string) (*Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[sessionID]
	if !ok {
		return nil, nil
	}
	return clone(g), nil
}

func (m *memrepo) RecentGames(ctx context.Context, playerID string, limit int) ([]*Game, error) {
	m.mu.RLock()
	items := make([]*Game, 0)
	for _, g := range m.games {
		if g.involves(playerID) {
			items = append(items, clone(g))
		}
	}
	m.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].SessionID > items[j].SessionID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memrepo) Close() error { return nil }

func clone(g *Game) *Game {
	cp := *g
	cp.MovesUCI = append([]string(nil), g.MovesUCI...)
	cp.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &cp
}
