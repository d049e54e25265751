package ratingsvc

import (
	"context"
	"testing"
)

type fakeRatings struct{ rating int }

func (f fakeRatings) Rating(ctx context.Context, userID, leaderboardID string) (int, error) {
	return f.rating, nil
}

func TestIsVariantValid(t *testing.T) {
	c := New(DefaultVariants(), fakeRatings{})
	if !c.IsVariantValid("head_to_head") {
		t.Fatalf("expected head_to_head to be valid")
	}
	if c.IsVariantValid("nonexistent") {
		t.Fatalf("expected unknown variant to be invalid")
	}
}

func TestIsClockValid(t *testing.T) {
	c := New(DefaultVariants(), fakeRatings{})
	cases := map[string]bool{
		"-":     true,
		"5+0":   true,
		"10+5":  true,
		"":      false,
		"+5":    false,
		"5+":    false,
		"abc+5": false,
		"5+abc": false,
	}
	for clock, want := range cases {
		if got := c.IsClockValid("head_to_head", clock); got != want {
			t.Errorf("IsClockValid(head_to_head, %q) = %v, want %v", clock, got, want)
		}
	}
}

func TestIsClockValidRejectsUntimedForVariantsThatDisallowIt(t *testing.T) {
	c := New(DefaultVariants(), fakeRatings{})
	if c.IsClockValid("circuit_4p", "-") {
		t.Fatalf("expected circuit_4p to reject the untimed clock")
	}
	if !c.IsClockValid("circuit_4p", "10+5") {
		t.Fatalf("expected circuit_4p to accept a timed clock")
	}
}

func TestVariantLeaderboard(t *testing.T) {
	c := New(DefaultVariants(), fakeRatings{})
	if lb, ok := c.VariantLeaderboard("head_to_head"); !ok || lb != "1v1" {
		t.Fatalf("expected head_to_head -> 1v1, got %q ok=%v", lb, ok)
	}
	if _, ok := c.VariantLeaderboard("custom"); ok {
		t.Fatalf("expected custom variant to have no leaderboard")
	}
}

func TestRatingDelegates(t *testing.T) {
	c := New(DefaultVariants(), fakeRatings{rating: 1800})
	rating, err := c.Rating(context.Background(), "u1", "1v1")
	if err != nil || rating != 1800 {
		t.Fatalf("expected delegated rating 1800, got %d err=%v", rating, err)
	}
}
