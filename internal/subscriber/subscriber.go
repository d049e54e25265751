// Package subscriber tracks which connections currently watch the lobby.
// Like invitestore.Store, the Registry is not itself concurrency-safe: the
// lobby coordinator is its only caller, serializing access the same way it
// serializes access to the invite store.
package subscriber

import (
	"fmt"

	"github.com/corvidchess/invitelobby/internal/identity"
)

// ConnID identifies a single transport connection.
type ConnID string

// Subscription is a connection currently receiving lobby broadcasts.
type Subscription struct {
	ConnID   ConnID
	Identity identity.AuthIdentity
	Locale   string

	// Send delivers a payload to this connection's own outbound queue
	// without blocking the coordinator. Set by the transport layer.
	Send func(payload any)
}

// ErrAlreadySubscribed is returned by Add when conn is already registered —
// a programming-error signal per spec.md §4.2, since the transport layer is
// responsible for refusing a second subscribe on one connection.
var ErrAlreadySubscribed = fmt.Errorf("subscriber: connection already subscribed")

// Registry is the set of active subscriptions, indexed by connection id.
type Registry struct {
	byConn map[ConnID]*Subscription
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byConn: make(map[ConnID]*Subscription)}
}

// Add registers sub, failing if sub.ConnID is already present.
func (r *Registry) Add(sub *Subscription) error {
	if _, exists := r.byConn[sub.ConnID]; exists {
		return ErrAlreadySubscribed
	}
	r.byConn[sub.ConnID] = sub
	return nil
}

// Remove unregisters the connection, if present. Removing an absent
// connection is a no-op (the connection may already have been removed by a
// concurrent disconnect).
func (r *Registry) Remove(connID ConnID) {
	delete(r.byConn, connID)
}

// All returns every active subscription. The returned slice is a fresh copy
// safe to range over while further mutating the registry.
func (r *Registry) All() []*Subscription {
	out := make([]*Subscription, 0, len(r.byConn))
	for _, sub := range r.byConn {
		out = append(out, sub)
	}
	return out
}

// AnyFor reports whether any connection currently subscribed carries the
// given identity. Used by the grace timer to decide whether to clean up an
// owner's invites.
func (r *Registry) AnyFor(id identity.AuthIdentity) bool {
	for _, sub := range r.byConn {
		if sub.Identity.Equals(id) {
			return true
		}
	}
	return false
}

// FindFor returns a subscribed connection carrying the given identity, if
// any. When several connections match, which one is returned is not
// defined (the registry is an unordered map).
func (r *Registry) FindFor(id identity.AuthIdentity) (*Subscription, bool) {
	for _, sub := range r.byConn {
		if sub.Identity.Equals(id) {
			return sub, true
		}
	}
	return nil, false
}

// Get returns the subscription for a connection id, if present.
func (r *Registry) Get(connID ConnID) (*Subscription, bool) {
	sub, ok := r.byConn[connID]
	return sub, ok
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	return len(r.byConn)
}
