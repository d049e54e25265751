package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/corvidchess/invitelobby/internal/broadcaster"
	"github.com/corvidchess/invitelobby/internal/gamefactory"
	"github.com/corvidchess/invitelobby/internal/identity"
	"github.com/corvidchess/invitelobby/internal/invite"
	"github.com/corvidchess/invitelobby/internal/restart"
	"github.com/corvidchess/invitelobby/internal/subscriber"
)

type fakeValidator struct{}

func (fakeValidator) IsVariantValid(variant string) bool { return variant == "standard" }
func (fakeValidator) IsClockValid(variant, clock string) bool {
	return clock == "-" || clock == "5+0"
}
func (fakeValidator) VariantLeaderboard(variant string) (string, bool) {
	if variant == "standard" {
		return "standard-leaderboard", true
	}
	return "", false
}

type fakeRatingProvider struct{}

func (fakeRatingProvider) Rating(ctx context.Context, userID, leaderboardID string) (int, error) {
	return 1500, nil
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c := New(Config{
		Games:            gamefactory.NewInMemory(),
		Restarts:         restart.NewGate(),
		VariantValidator: fakeValidator{},
		RatingProvider:   fakeRatingProvider{},
		GraceWindow:      30 * time.Millisecond,
	})
	go c.Run(ctx)
	return c
}

// recordingConn builds a Conn whose Send appends every message it receives
// to a slice the test can inspect, and returns a pointer to that slice.
func recordingConn(id string, who identity.AuthIdentity) (Conn, *[]any) {
	received := &[]any{}
	conn := Conn{
		ID:       subscriber.ConnID(id),
		Identity: who,
		Locale:   "en",
		Send:     func(msg any) { *received = append(*received, msg) },
	}
	return conn, received
}

func casualPublicParams() invite.CreateParams {
	return invite.CreateParams{
		Variant:   "standard",
		Clock:     "5+0",
		Color:     invite.ColorNeutral,
		Rated:     invite.Casual,
		Publicity: invite.Public,
		Tag:       "12345678",
	}
}

// latestInvitesList returns the last broadcaster.InvitesListMessage in msgs,
// or ok=false if none was delivered.
func latestInvitesList(msgs []any) (broadcaster.InvitesListMessage, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if list, ok := msgs[i].(broadcaster.InvitesListMessage); ok {
			return list, true
		}
	}
	return broadcaster.InvitesListMessage{}, false
}

func TestCreatePublicInviteBroadcastsToAllSubscribers(t *testing.T) {
	c := newTestCoordinator(t)

	owner := identity.NewMember("u1", "alice", nil, true)
	bystander := identity.NewMember("u2", "bob", nil, true)

	ownerConn, ownerMsgs := recordingConn("c1", owner)
	bystanderConn, bystanderMsgs := recordingConn("c2", bystander)
	c.Subscribe(ownerConn)
	c.Subscribe(bystanderConn)

	c.CreateInvite(context.Background(), ownerConn, casualPublicParams(), "req-1")

	list, ok := latestInvitesList(*bystanderMsgs)
	if !ok || len(list.InvitesList) != 1 {
		t.Fatalf("expected bystander to see the new public invite, got %+v", *bystanderMsgs)
	}
	if list.ReplyTo != "" {
		t.Fatalf("expected no replyTo for the non-originating bystander, got %q", list.ReplyTo)
	}

	ownerList, ok := latestInvitesList(*ownerMsgs)
	if !ok || ownerList.ReplyTo != "req-1" {
		t.Fatalf("expected owner's broadcast to carry replyTo req-1, got %+v", ownerList)
	}
}

func TestCreateInviteRejectsSecondFromSameOwner(t *testing.T) {
	c := newTestCoordinator(t)

	owner := identity.NewMember("u1", "alice", nil, true)
	conn, msgs := recordingConn("c1", owner)
	c.Subscribe(conn)

	params := casualPublicParams()
	c.CreateInvite(context.Background(), conn, params, "req-1")
	c.CreateInvite(context.Background(), conn, params, "req-2")

	found := false
	for _, m := range *msgs {
		if errMsg, ok := m.(ErrorReply); ok && errMsg.Key == "already have invite" && errMsg.ReplyTo == "req-2" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected second create to be rejected with already have invite, got %+v", *msgs)
	}
}

func TestCreateInviteWhileInActiveGameIsDenied(t *testing.T) {
	games := gamefactory.NewInMemory()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c := New(Config{
		Games:            games,
		Restarts:         restart.NewGate(),
		VariantValidator: fakeValidator{},
		RatingProvider:   fakeRatingProvider{},
	})
	go c.Run(ctx)

	player := identity.NewMember("u1", "alice", nil, true)
	opponent := identity.NewMember("u2", "bob", nil, true)
	_ = games.CreateGame(context.Background(), &invite.Invite{ID: "aaaaa", Owner: player},
		gamefactory.Player{Identity: player}, gamefactory.Player{Identity: opponent}, "")

	conn, msgs := recordingConn("c1", player)
	c.Subscribe(conn)
	c.CreateInvite(context.Background(), conn, casualPublicParams(), "req-1")

	found := false
	for _, m := range *msgs {
		if n, ok := m.(NotifyReply); ok && n.Key == "lobby.alreadyInGame" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected alreadyInGame notify, got %+v", *msgs)
	}
}

func TestCancelInviteByNonOwnerIsRejected(t *testing.T) {
	c := newTestCoordinator(t)

	owner := identity.NewMember("u1", "alice", nil, true)
	other := identity.NewMember("u2", "bob", nil, true)
	ownerConn, ownerMsgs := recordingConn("c1", owner)
	otherConn, otherMsgs := recordingConn("c2", other)
	c.Subscribe(ownerConn)
	c.Subscribe(otherConn)

	c.CreateInvite(context.Background(), ownerConn, casualPublicParams(), "req-1")

	list, ok := latestInvitesList(*ownerMsgs)
	if !ok || len(list.InvitesList) != 1 {
		t.Fatalf("expected exactly one invite after create, got %+v", list)
	}
	id := list.InvitesList[0].ID

	c.CancelInvite(otherConn, id, "req-2")
	found := false
	for _, m := range *otherMsgs {
		if errMsg, ok := m.(ErrorReply); ok && errMsg.Key == "forbidden" && errMsg.ReplyTo == "req-2" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected forbidden error for non-owner cancel, got %+v", *otherMsgs)
	}
}

func TestCancelNonexistentInviteSendsEmptyAck(t *testing.T) {
	c := newTestCoordinator(t)
	owner := identity.NewMember("u1", "alice", nil, true)
	conn, msgs := recordingConn("c1", owner)
	c.Subscribe(conn)

	c.CancelInvite(conn, "zzzzz", "req-2")
	found := false
	for _, m := range *msgs {
		if ack, ok := m.(AckReply); ok && ack.ReplyTo == "req-2" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected empty ack for cancelling a nonexistent id, got %+v", *msgs)
	}
}

func TestAcceptInviteRemovesBothFromRegistryAndStore(t *testing.T) {
	c := newTestCoordinator(t)

	owner := identity.NewMember("u1", "alice", nil, true)
	challenger := identity.NewMember("u2", "bob", nil, true)
	ownerConn, ownerMsgs := recordingConn("c1", owner)
	challengerConn, challengerMsgs := recordingConn("c2", challenger)
	c.Subscribe(ownerConn)
	c.Subscribe(challengerConn)

	c.CreateInvite(context.Background(), ownerConn, casualPublicParams(), "req-1")

	list, ok := latestInvitesList(*ownerMsgs)
	if !ok || len(list.InvitesList) != 1 {
		t.Fatalf("expected exactly one invite after create, got %+v", list)
	}
	id := list.InvitesList[0].ID

	c.AcceptInvite(context.Background(), challengerConn, id, false, "req-2")

	c.submit(func() {
		if c.subs.AnyFor(challenger) {
			t.Errorf("expected challenger removed from subscriber registry after accept")
		}
		if c.subs.AnyFor(owner) {
			t.Errorf("expected owner removed from subscriber registry after accept")
		}
		if _, _, ok := c.store.FindByID(id); ok {
			t.Errorf("expected invite removed from store after accept")
		}
	})
	_ = challengerMsgs
}

func TestAcceptOwnInviteIsRejected(t *testing.T) {
	c := newTestCoordinator(t)
	owner := identity.NewMember("u1", "alice", nil, true)
	ownerConn, ownerMsgs := recordingConn("c1", owner)
	c.Subscribe(ownerConn)

	c.CreateInvite(context.Background(), ownerConn, casualPublicParams(), "req-1")
	list, _ := latestInvitesList(*ownerMsgs)
	id := list.InvitesList[0].ID

	c.AcceptInvite(context.Background(), ownerConn, id, false, "req-2")

	found := false
	for _, m := range *ownerMsgs {
		if errMsg, ok := m.(ErrorReply); ok && errMsg.Key == "cannot accept own invite" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cannotAcceptOwn rejection, got %+v", *ownerMsgs)
	}
}

func TestUnsubscribeByChoiceDropsInviteImmediately(t *testing.T) {
	c := newTestCoordinator(t)
	owner := identity.NewMember("u1", "alice", nil, true)
	conn, msgs := recordingConn("c1", owner)
	c.Subscribe(conn)
	c.CreateInvite(context.Background(), conn, casualPublicParams(), "req-1")

	c.Unsubscribe(conn, true)

	c.submit(func() {
		if c.store.OwnedBy(owner) {
			t.Errorf("expected owner's invite dropped on deliberate unsubscribe")
		}
	})
	_ = msgs
}

func TestUnsubscribeInvoluntaryGracePeriodPreservesInviteOnResubscribe(t *testing.T) {
	c := newTestCoordinator(t)
	owner := identity.NewMember("u1", "alice", nil, true)
	conn, _ := recordingConn("c1", owner)
	c.Subscribe(conn)
	c.CreateInvite(context.Background(), conn, casualPublicParams(), "req-1")

	c.Unsubscribe(conn, false)
	// Resubscribe (e.g. a reconnect) before the grace window elapses.
	c.Subscribe(conn)

	time.Sleep(50 * time.Millisecond)

	c.submit(func() {
		if !c.store.OwnedBy(owner) {
			t.Errorf("expected invite to survive a resubscribe within the grace window")
		}
	})
}

func TestUnsubscribeInvoluntaryGracePeriodDropsInviteWhenNotResubscribed(t *testing.T) {
	c := newTestCoordinator(t)
	owner := identity.NewMember("u1", "alice", nil, true)
	conn, _ := recordingConn("c1", owner)
	c.Subscribe(conn)
	c.CreateInvite(context.Background(), conn, casualPublicParams(), "req-1")

	c.Unsubscribe(conn, false)

	time.Sleep(50 * time.Millisecond)

	c.submit(func() {
		if c.store.OwnedBy(owner) {
			t.Errorf("expected invite dropped once the grace window elapsed without resubscribe")
		}
	})
}
