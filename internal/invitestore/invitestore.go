// Package invitestore holds the in-memory, insertion-ordered collection of
// every live invite, public and private. It is one of the two pieces of
// shared mutable state the lobby coordinator serializes access to (the
// other being the subscriber registry); invitestore.Store is not itself
// safe for concurrent use — the coordinator is the only caller, by design.
package invitestore

import (
	"crypto/rand"
	"fmt"

	"github.com/corvidchess/invitelobby/internal/identity"
	"github.com/corvidchess/invitelobby/internal/invite"
)

const (
	idLength      = 5
	idAlphabet    = "0123456789abcdefghijklmnopqrstuvwxyz"
	maxIDAttempts = 64
)

// ErrOwnerAlreadyHasInvite is returned by Add when the owner already has a
// live invite; spec.md guarantees at most one invite per owner at all times.
var ErrOwnerAlreadyHasInvite = fmt.Errorf("invitestore: owner already has a live invite")

// ErrIDCollision is returned by Add when the supplied invite's id collides
// with a live invite's id.
var ErrIDCollision = fmt.Errorf("invitestore: id collision")

// ErrIDExhausted is returned by NewID when no unused id could be found
// within the bounded number of attempts.
var ErrIDExhausted = fmt.Errorf("invitestore: could not allocate an unused id")

// Store is the ordered collection of live invites. Order of insertion is
// preserved so that broadcasts are deterministic.
type Store struct {
	byID  map[string]*invite.Invite
	order []string // invite ids in insertion order
}

// New returns an empty Store.
func New() *Store {
	return &Store{byID: make(map[string]*invite.Invite)}
}

// NewID draws random 5-char base36 ids until one is not already live, up to
// a bounded number of attempts. Collision probability at realistic lobby
// sizes (≤ hundreds of invites out of 36^5 ≈ 60M ids) is negligible; the
// bound exists so a pathological caller gets an error instead of an
// unbounded loop.
func (s *Store) NewID() (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := randomID()
		if err != nil {
			return "", err
		}
		if _, exists := s.byID[id]; !exists {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

func randomID() (string, error) {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("invitestore: reading random bytes: %w", err)
	}
	out := make([]byte, idLength)
	for i, b := range buf {
		out[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(out), nil
}

// Add inserts inv, failing if the owner already has a live invite or the id
// collides with an existing one. The owner check happens before any
// mutation, so a failed Add leaves the store untouched.
func (s *Store) Add(inv *invite.Invite) error {
	if s.OwnedBy(inv.Owner) {
		return ErrOwnerAlreadyHasInvite
	}
	if _, exists := s.byID[inv.ID]; exists {
		return ErrIDCollision
	}
	s.byID[inv.ID] = inv
	s.order = append(s.order, inv.ID)
	return nil
}

// RemoveByID removes and returns the invite with the given id, or nil if no
// such live invite exists.
func (s *Store) RemoveByID(id string) *invite.Invite {
	inv, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byID, id)
	s.removeFromOrder(id)
	return inv
}

// RemoveByOwner removes every invite owned by identity, returning the
// removed invites (in their prior order) and whether any removed invite was
// public.
func (s *Store) RemoveByOwner(owner identity.AuthIdentity) (removed []*invite.Invite, publicDeleted bool) {
	var survivors []string
	for _, id := range s.order {
		inv := s.byID[id]
		if inv.Owner.Equals(owner) {
			removed = append(removed, inv)
			delete(s.byID, id)
			if inv.Publicity == invite.Public {
				publicDeleted = true
			}
			continue
		}
		survivors = append(survivors, id)
	}
	s.order = survivors
	return removed, publicDeleted
}

// FindByID returns the invite with the given id and its position in
// insertion order, or ok=false if no such live invite exists.
func (s *Store) FindByID(id string) (inv *invite.Invite, index int, ok bool) {
	found, exists := s.byID[id]
	if !exists {
		return nil, -1, false
	}
	for i, orderedID := range s.order {
		if orderedID == id {
			return found, i, true
		}
	}
	// Unreachable if byID and order are kept in sync.
	return found, -1, true
}

// OwnedBy reports whether identity currently owns a live invite.
func (s *Store) OwnedBy(owner identity.AuthIdentity) bool {
	for _, id := range s.order {
		if s.byID[id].Owner.Equals(owner) {
			return true
		}
	}
	return false
}

// PublicSnapshot returns a sanitized copy of every live public invite, in
// insertion order.
func (s *Store) PublicSnapshot() []invite.SafeInvite {
	out := make([]invite.SafeInvite, 0, len(s.order))
	for _, id := range s.order {
		inv := s.byID[id]
		if inv.Publicity == invite.Public {
			out = append(out, inv.Sanitize())
		}
	}
	return out
}

// PrivateOwnedBy returns a sanitized copy of owner's private invites, in
// insertion order. In steady state there is at most one (spec.md's
// at-most-one-invite-per-owner invariant), but this returns a slice to stay
// honest about what the store actually tracks.
func (s *Store) PrivateOwnedBy(owner identity.AuthIdentity) []invite.SafeInvite {
	var out []invite.SafeInvite
	for _, id := range s.order {
		inv := s.byID[id]
		if inv.Publicity == invite.Private && inv.Owner.Equals(owner) {
			out = append(out, inv.Sanitize())
		}
	}
	return out
}

// PrivateOwnedByKey is PrivateOwnedBy keyed by identity.AuthIdentity.Key()
// rather than a full identity value — used by the broadcaster, which only
// has each subscriber's key on hand when assembling a snapshot.
func (s *Store) PrivateOwnedByKey(ownerKey string) []invite.SafeInvite {
	var out []invite.SafeInvite
	for _, id := range s.order {
		inv := s.byID[id]
		if inv.Publicity == invite.Private && inv.Owner.Key() == ownerKey {
			out = append(out, inv.Sanitize())
		}
	}
	return out
}

// Len returns the number of live invites.
func (s *Store) Len() int {
	return len(s.order)
}

func (s *Store) removeFromOrder(id string) {
	for i, orderedID := range s.order {
		if orderedID == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
