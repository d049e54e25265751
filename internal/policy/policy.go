// Package policy implements the lobby's authorization and eligibility
// checks: the decisions that do not touch the Invite Store or Subscriber
// Registry directly but gate whether a command is allowed to reach them.
// It is deliberately stateless — every check takes exactly what it needs
// as arguments — so the lobby coordinator can call it inline without
// owning a lock of its own.
package policy

import (
	"github.com/corvidchess/invitelobby/internal/identity"
	"github.com/corvidchess/invitelobby/internal/invite"
)

// Verdict is the outcome of a policy check: either Allow, or a Deny
// carrying the i18n key/kind the caller should reply with.
type Verdict struct {
	Allowed bool
	// Reply is one of ReplyNotify or ReplyError, set only when !Allowed.
	Reply Reply
	// Key is the i18n key (for ReplyNotify) or literal message (for
	// ReplyError) to send back, set only when !Allowed.
	Key string
	// Minutes carries the restart countdown for the one notify case that
	// needs a numeric argument; zero otherwise.
	Minutes int
}

// Reply distinguishes a soft "notify" response from a hard "printerror".
type Reply int

const (
	ReplyNone Reply = iota
	ReplyNotify
	ReplyError
)

func allow() Verdict { return Verdict{Allowed: true} }

func denyNotify(key string) Verdict {
	return Verdict{Allowed: false, Reply: ReplyNotify, Key: key}
}

func denyNotifyMinutes(key string, minutes int) Verdict {
	return Verdict{Allowed: false, Reply: ReplyNotify, Key: key, Minutes: minutes}
}

func denyError(key string) Verdict {
	return Verdict{Allowed: false, Reply: ReplyError, Key: key}
}

// RestartCoordinator is the subset of internal/restart.Coordinator policy
// needs.
type RestartCoordinator interface {
	IsServerRestarting() bool
	MinutesUntilRestart() (minutes int, known bool)
}

// GameRegistry is the subset of internal/gamefactory.Registry policy
// needs.
type GameRegistry interface {
	IsInActiveGame(id identity.AuthIdentity) bool
}

// OwnerRole is the role name that exempts a Member from the restart gate,
// per spec.md §4.4 step 3.
const OwnerRole = "owner"

// CheckCreate evaluates createInvite's eligibility checks, in the exact
// order spec.md §4.4 specifies — already-in-game, already-have-invite,
// then the restart gate. Cross-field validation of params itself is
// internal/invite's responsibility (CreateParams.Validate), not this
// package's.
func CheckCreate(conn identity.AuthIdentity, ownerHasInvite bool, games GameRegistry, restarts RestartCoordinator) Verdict {
	if games.IsInActiveGame(conn) {
		return denyNotify("lobby.alreadyInGame")
	}
	if ownerHasInvite {
		return denyError("already have invite")
	}
	if restarts.IsServerRestarting() && !(conn.IsMember() && conn.HasRole(OwnerRole)) {
		minutes, known := restarts.MinutesUntilRestart()
		if !known {
			return denyNotify("lobby.underMaintenance")
		}
		return denyNotifyMinutes("lobby.serverRestarting", minutes)
	}
	return allow()
}

// CheckCreateUnavailable is the fail-closed path for when the restart
// coordinator itself could not be consulted (spec.md §7: "restart-check
// failure ... the safe default is to deny creation"). Unlike a rating
// lookup failure, this is never fail-safe.
func CheckCreateUnavailable() Verdict {
	return denyNotify("lobby.underMaintenance")
}

// CheckCancel evaluates cancelInvite's ownership check. inv must be a live
// invite; when the id matched nothing, the caller should send an empty
// acknowledgement rather than calling this function (there is nothing to
// authorize against).
func CheckCancel(conn identity.AuthIdentity, inv *invite.Invite) Verdict {
	if !inv.Owner.Equals(conn) {
		return denyError("forbidden")
	}
	return allow()
}

// AcceptNotFoundReply chooses the not-found reply for acceptInvite: public
// lookups get "game aborted", private (code-based) lookups get "invalid
// code" per spec.md §4.4 step 2 / §7.
func AcceptNotFoundReply(isPrivate bool) Verdict {
	if isPrivate {
		return denyNotify("lobby.invalidCode")
	}
	return denyNotify("lobby.gameAborted")
}

// CheckAccept evaluates acceptInvite's eligibility checks, in order:
// already-in-game, self-accept, then rated-requires-verified.
func CheckAccept(conn identity.AuthIdentity, inv *invite.Invite, games GameRegistry) Verdict {
	if games.IsInActiveGame(conn) {
		return denyNotify("lobby.alreadyInGame")
	}
	if inv.Owner.Equals(conn) {
		return denyError("cannot accept own invite")
	}
	if inv.Rated == invite.Rated && !(conn.IsMember() && conn.Verified) {
		return denyNotify("lobby.verificationNeeded")
	}
	return allow()
}
