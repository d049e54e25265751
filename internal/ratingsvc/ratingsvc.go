// Package ratingsvc is the "Variant/clock validator" and "Rating provider"
// external collaborators from spec.md §1, combined: which variants and
// clocks are playable, which variants have a dedicated leaderboard, and
// how to look up a rating for one. It delegates the actual rating number
// to whatever internal/invite.RatingProvider it is built with.
package ratingsvc

import (
	"context"

	"github.com/corvidchess/invitelobby/internal/invite"
)

// Variant mirrors the teacher's game-mode catalogue
// (internal/handlers/lobby.go's validGameModes), renamed to the lobby's
// own vocabulary and given a leaderboard id where one applies.
type Variant struct {
	Name         string
	Leaderboard  string // "" if this variant has no dedicated leaderboard
	AllowUntimed bool
}

// DefaultVariants is the catalogue a freshly wired lobby ships with.
func DefaultVariants() []Variant {
	return []Variant{
		{Name: "head_to_head", Leaderboard: "1v1", AllowUntimed: true},
		{Name: "group_of_4", Leaderboard: "4p", AllowUntimed: true},
		{Name: "circuit_4p", Leaderboard: "4p", AllowUntimed: false},
		{Name: "circuit_7p8p", Leaderboard: "7p8p", AllowUntimed: false},
		{Name: "custom", Leaderboard: "", AllowUntimed: true},
	}
}

const untimedClock = "-"

// Catalogue implements invite.VariantValidator against a fixed set of
// variants, plus a RatingProvider to satisfy lookups.
type Catalogue struct {
	byName  map[string]Variant
	ratings invite.RatingProvider
}

// New builds a Catalogue from variants, backed by ratings for the actual
// Elo lookups.
func New(variants []Variant, ratings invite.RatingProvider) *Catalogue {
	byName := make(map[string]Variant, len(variants))
	for _, v := range variants {
		byName[v.Name] = v
	}
	return &Catalogue{byName: byName, ratings: ratings}
}

// IsVariantValid reports whether variant is in the catalogue.
func (c *Catalogue) IsVariantValid(variant string) bool {
	_, ok := c.byName[variant]
	return ok
}

// IsClockValid accepts "-" (untimed, only for variants whose catalogue
// entry sets AllowUntimed) or any clock string shaped
// "<minutes>+<incrementSeconds>".
func (c *Catalogue) IsClockValid(variant, clock string) bool {
	if clock == untimedClock {
		v, ok := c.byName[variant]
		return ok && v.AllowUntimed
	}
	return isTimedClockFormat(clock)
}

func isTimedClockFormat(clock string) bool {
	if clock == "" {
		return false
	}
	plus := -1
	for i, r := range clock {
		if r == '+' {
			plus = i
			break
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	if plus <= 0 || plus == len(clock)-1 {
		return false
	}
	for _, r := range clock[plus+1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// VariantLeaderboard returns the leaderboard a variant contributes to, if
// any.
func (c *Catalogue) VariantLeaderboard(variant string) (string, bool) {
	v, ok := c.byName[variant]
	if !ok || v.Leaderboard == "" {
		return "", false
	}
	return v.Leaderboard, true
}

// Rating satisfies invite.RatingProvider by delegating to the underlying
// provider — Catalogue exists to combine variant knowledge with rating
// lookups behind a single collaborator, not to store ratings itself.
func (c *Catalogue) Rating(ctx context.Context, userID, leaderboardID string) (int, error) {
	return c.ratings.Rating(ctx, userID, leaderboardID)
}
