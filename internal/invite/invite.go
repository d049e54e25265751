// Package invite defines the Invite record, its SafeInvite projection, and
// the validation of a create request against the variant/clock/rating
// collaborators.
package invite

import (
	"context"
	"errors"
	"fmt"

	"github.com/corvidchess/invitelobby/internal/identity"
)

// Color is the side the owner has committed to play, or NEUTRAL to let the
// acceptor's client pick randomly.
type Color string

const (
	ColorWhite   Color = "white"
	ColorBlack   Color = "black"
	ColorNeutral Color = "neutral"
)

func (c Color) valid() bool {
	switch c {
	case ColorWhite, ColorBlack, ColorNeutral:
		return true
	default:
		return false
	}
}

// RatedMode distinguishes a rated game (affects leaderboards) from casual.
type RatedMode string

const (
	Casual RatedMode = "casual"
	Rated  RatedMode = "rated"
)

func (r RatedMode) valid() bool {
	return r == Casual || r == Rated
}

// Publicity controls whether an invite is broadcast to every subscriber or
// only to its owner (joinable by id/code only).
type Publicity string

const (
	Public  Publicity = "public"
	Private Publicity = "private"
)

func (p Publicity) valid() bool {
	return p == Public || p == Private
}

// UsernameContainer is the owner-display projection embedded on both Invite
// and SafeInvite; it is computed once at creation time so later rating
// changes don't retroactively alter a standing invite.
type UsernameContainer struct {
	Type     string `json:"type"` // "player" (member) or "guest"
	Username string `json:"username"`
	Rating   *int   `json:"rating,omitempty"`
}

// Invite is a standing offer to start a game with the given parameters.
type Invite struct {
	ID                string                `json:"id"`
	Owner             identity.AuthIdentity `json:"-"`
	UsernameContainer UsernameContainer     `json:"usernameContainer"`
	Tag               string                `json:"tag"`
	Variant           string                `json:"variant"`
	Clock             string                `json:"clock"`
	Color             Color                 `json:"color"`
	Rated             RatedMode             `json:"rated"`
	Publicity         Publicity             `json:"publicity"`
}

// SafeInvite is the owner-stripped projection broadcast to every
// subscriber, the owner included.
type SafeInvite struct {
	ID                string            `json:"id"`
	UsernameContainer UsernameContainer `json:"usernameContainer"`
	Tag               string            `json:"tag"`
	Variant           string            `json:"variant"`
	Clock             string            `json:"clock"`
	Color             Color             `json:"color"`
	Rated             RatedMode         `json:"rated"`
	Publicity         Publicity         `json:"publicity"`
}

// Sanitize projects an Invite into the owner-stripped SafeInvite that is
// sent to subscribers.
func (inv Invite) Sanitize() SafeInvite {
	return SafeInvite{
		ID:                inv.ID,
		UsernameContainer: inv.UsernameContainer,
		Tag:               inv.Tag,
		Variant:           inv.Variant,
		Clock:             inv.Clock,
		Color:             inv.Color,
		Rated:             inv.Rated,
		Publicity:         inv.Publicity,
	}
}

// CreateParams is the client-supplied payload of a createinvite command.
type CreateParams struct {
	Variant   string
	Clock     string
	Color     Color
	Rated     RatedMode
	Publicity Publicity
	Tag       string
}

// Validation errors. Callers classify these as Policy or Protocol failures
// per the error-handling design; both are non-mutating and recovered
// locally by the caller.
var (
	ErrInvalidTag            = errors.New("invite: tag must be exactly 8 characters")
	ErrInvalidVariant        = errors.New("invite: unknown variant")
	ErrInvalidClock          = errors.New("invite: invalid clock")
	ErrInvalidColor          = errors.New("invite: invalid color")
	ErrInvalidRated          = errors.New("invite: invalid rated mode")
	ErrInvalidPublicity      = errors.New("invite: invalid publicity")
	ErrRatedNeedsLeaderboard = errors.New("invite: rated requires a variant with a leaderboard")
	ErrRatedNeedsTimedClock  = errors.New("invite: rated requires a timed clock")
	ErrRatedColorPublicity   = errors.New("invite: rated requires neutral color or a private invite")
	ErrRatedNeedsVerified    = errors.New("invite: rated requires a verified member")
)

const untimedClock = "-"

// VariantValidator resolves variant/clock/leaderboard questions. It is the
// "Variant/clock validator" external collaborator from spec.md §1.
type VariantValidator interface {
	IsVariantValid(variant string) bool
	// IsClockValid reports whether clock is playable for variant — some
	// variants disallow the untimed clock string (see ratingsvc.Variant.AllowUntimed).
	IsClockValid(variant, clock string) bool
	// VariantLeaderboard maps a variant to its leaderboard id. ok is false
	// when the variant has no leaderboard (e.g. unrated-only variants).
	VariantLeaderboard(variant string) (leaderboardID string, ok bool)
}

// Validate checks CreateParams against §3's cross-field constraints. It does
// not check ownership/one-invite-per-owner or rating lookups — those are
// the caller's (coordinator's) concern since they require store access.
func (p CreateParams) Validate(owner identity.AuthIdentity, vv VariantValidator) error {
	if len(p.Tag) != 8 {
		return ErrInvalidTag
	}
	if !vv.IsVariantValid(p.Variant) {
		return ErrInvalidVariant
	}
	if !vv.IsClockValid(p.Variant, p.Clock) {
		return ErrInvalidClock
	}
	if !p.Color.valid() {
		return ErrInvalidColor
	}
	if !p.Rated.valid() {
		return ErrInvalidRated
	}
	if !p.Publicity.valid() {
		return ErrInvalidPublicity
	}

	if p.Rated == Rated {
		if _, ok := vv.VariantLeaderboard(p.Variant); !ok {
			return ErrRatedNeedsLeaderboard
		}
		if p.Clock == untimedClock {
			return ErrRatedNeedsTimedClock
		}
		if p.Color != ColorNeutral && p.Publicity != Private {
			return ErrRatedColorPublicity
		}
		if !owner.IsMember() || !owner.Verified {
			return ErrRatedNeedsVerified
		}
	}
	return nil
}

// RatingProvider returns a displayable Elo for a user on a leaderboard. The
// "Rating provider" external collaborator from spec.md §1.
type RatingProvider interface {
	Rating(ctx context.Context, userID, leaderboardID string) (int, error)
}

// InfiniteLeaderboard is used to look up a display rating when the chosen
// variant has no dedicated leaderboard (casual-only variants still show a
// rating if the owner is a member).
const InfiniteLeaderboard = "infinite"

// BuildUsernameContainer derives the owner-display projection at creation
// time: guests get no rating, members get a best-effort rating lookup using
// the variant's leaderboard (or InfiniteLeaderboard as a fallback). A
// rating-lookup failure degrades gracefully to an unrated display per the
// external-unavailable error design — this is the one place fail-safe
// omission, rather than denial, is correct.
func BuildUsernameContainer(ctx context.Context, owner identity.AuthIdentity, variant string, vv VariantValidator, rp RatingProvider) UsernameContainer {
	if !owner.IsMember() {
		return UsernameContainer{Type: "guest", Username: "Anonymous"}
	}

	leaderboardID, ok := vv.VariantLeaderboard(variant)
	if !ok {
		leaderboardID = InfiniteLeaderboard
	}

	uc := UsernameContainer{Type: "player", Username: owner.Username}
	rating, err := rp.Rating(ctx, owner.UserID, leaderboardID)
	if err == nil {
		uc.Rating = &rating
	}
	return uc
}

// String renders an Invite for logging.
func (inv Invite) String() string {
	return fmt.Sprintf("Invite{id=%s owner=%s variant=%s clock=%s rated=%s publicity=%s}",
		inv.ID, inv.Owner.Key(), inv.Variant, inv.Clock, inv.Rated, inv.Publicity)
}
