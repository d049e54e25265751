// Package gamefactory defines the boundary between the invite lobby and the
// game-creation subsystem. The real game engine (out of scope for the
// invite manager — see spec.md §1) plugs in behind the Factory interface;
// this package also ships an in-memory implementation that satisfies the
// contract spec.md §4.6 requires, for use in tests and as a development
// stand-in.
package gamefactory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/corvidchess/invitelobby/internal/identity"
	"github.com/corvidchess/invitelobby/internal/invite"
)

// Player is one side of a hand-off: the identity being handed off, and
// (when that identity still has a live lobby subscription) a way to notify
// its connection.
type Player struct {
	Identity identity.AuthIdentity
	ConnID   string // empty if the owner has no live subscription at hand-off time
}

// Factory is the "Game factory" external collaborator from spec.md §1.
// CreateGame must, by the time it returns, have registered both players as
// participants of the new game, and it must not mutate the invite store.
// It does not touch the lobby's subscriber registry: the lobby coordinator
// removes both players from it as soon as CreateGame returns without
// error, within the same serialized accept command. The lobby
// coordinator calls this synchronously as part of the accept command; it
// runs to completion before the coordinator broadcasts the resulting
// game-count change. replyTo is the accepter's client-chosen correlation
// token from the triggering acceptinvite command, carried through so the
// game engine can send the accepter a reply correlated to it.
type Factory interface {
	CreateGame(ctx context.Context, inv *invite.Invite, player1, player2 Player, replyTo string) error
}

// Registry is the "Active-game registry" external collaborator: tracks
// which identities are currently in a game, independent of which Factory
// implementation created them.
type Registry interface {
	IsInActiveGame(id identity.AuthIdentity) bool
	ActiveGameCount() int
}

// InMemory is a Factory+Registry implementation sufficient for development
// and tests: it assigns each accepted invite a game id and tracks which
// identities are "in game" until ReleaseGame is called.
type InMemory struct {
	mu          sync.Mutex
	byGameID    map[string]gameRecord
	identityKey map[string]string // identity key -> game id

	// OnCreate, if set, is invoked synchronously after bookkeeping but
	// before CreateGame returns — tests hook this to observe hand-offs, and
	// cmd/invitelobbyd hooks it to publish the hand-off audit event with
	// the game id this package minted.
	OnCreate func(gameID string, inv *invite.Invite, player1, player2 Player, replyTo string)
}

type gameRecord struct {
	player1, player2 identity.AuthIdentity
}

// NewInMemory returns an empty in-memory game factory/registry.
func NewInMemory() *InMemory {
	return &InMemory{
		byGameID:    make(map[string]gameRecord),
		identityKey: make(map[string]string),
	}
}

// CreateGame registers both players as in-game under a freshly minted game
// id. It never touches the invite store.
func (m *InMemory) CreateGame(ctx context.Context, inv *invite.Invite, player1, player2 Player, replyTo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	gameID := uuid.NewString()
	m.byGameID[gameID] = gameRecord{player1: player1.Identity, player2: player2.Identity}
	m.identityKey[player1.Identity.Key()] = gameID
	m.identityKey[player2.Identity.Key()] = gameID

	if m.OnCreate != nil {
		m.OnCreate(gameID, inv, player1, player2, replyTo)
	}
	return nil
}

// IsInActiveGame reports whether id is currently registered to a game.
func (m *InMemory) IsInActiveGame(id identity.AuthIdentity) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.identityKey[id.Key()]
	return ok
}

// ActiveGameCount returns the number of games currently tracked.
func (m *InMemory) ActiveGameCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byGameID)
}

// ReleaseGame removes a completed game's participants from the active-game
// registry. Not part of the Factory/Registry interfaces (the real game
// engine would call something equivalent when a game ends) but exposed so
// tests can simulate a game ending; cmd/invitelobbyd never calls it.
func (m *InMemory) ReleaseGame(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byGameID[gameID]
	if !ok {
		return
	}
	delete(m.byGameID, gameID)
	delete(m.identityKey, rec.player1.Key())
	delete(m.identityKey, rec.player2.Key())
}
