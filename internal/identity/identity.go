// Package identity defines the lobby's notion of "who is connected": either
// an authenticated member or an anonymous browser-cookie guest.
package identity

import "fmt"

// Kind distinguishes the two AuthIdentity variants.
type Kind int

const (
	// KindGuest is an anonymous connection identified only by a server-issued
	// browser cookie.
	KindGuest Kind = iota
	// KindMember is an authenticated connection.
	KindMember
)

// AuthIdentity is the tagged union the transport layer hands the lobby for
// every connection. It is produced once by the identity service (out of
// scope here) and treated as immutable by everything downstream.
type AuthIdentity struct {
	Kind Kind

	// Member fields, valid when Kind == KindMember.
	UserID   string
	Username string
	Roles    map[string]struct{}
	Verified bool

	// Guest field, valid when Kind == KindGuest.
	BrowserID string
}

// NewMember constructs a Member identity.
func NewMember(userID, username string, roles []string, verified bool) AuthIdentity {
	roleSet := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}
	return AuthIdentity{
		Kind:     KindMember,
		UserID:   userID,
		Username: username,
		Roles:    roleSet,
		Verified: verified,
	}
}

// NewGuest constructs a Guest identity from a browser-id cookie value.
func NewGuest(browserID string) AuthIdentity {
	return AuthIdentity{Kind: KindGuest, BrowserID: browserID}
}

// IsMember reports whether this identity is an authenticated member.
func (a AuthIdentity) IsMember() bool {
	return a.Kind == KindMember
}

// HasRole reports whether a Member identity carries the given role. Always
// false for guests.
func (a AuthIdentity) HasRole(role string) bool {
	if a.Kind != KindMember {
		return false
	}
	_, ok := a.Roles[role]
	return ok
}

// Key returns a stable string suitable for map indexing (grace timers,
// owner lookups). Distinct for every distinct identity, and stable across
// repeated connections by the same member or guest.
func (a AuthIdentity) Key() string {
	switch a.Kind {
	case KindMember:
		return fmt.Sprintf("member:%s", a.UserID)
	default:
		return fmt.Sprintf("guest:%s", a.BrowserID)
	}
}

// Equals reports whether two identities denote the same owner: same tag and
// same user_id (Member) or same browser_id (Guest). A Guest and a Member
// sharing the same underlying transport cookie are, by design, distinct
// owners.
func (a AuthIdentity) Equals(other AuthIdentity) bool {
	if a.Kind != other.Kind {
		return false
	}
	if a.Kind == KindMember {
		return a.UserID == other.UserID
	}
	return a.BrowserID == other.BrowserID
}
