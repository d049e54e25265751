// Package lobby implements the Command Router: the single coordinator
// that serializes every mutation to the Invite Store, Subscriber Registry,
// and Grace Timer Pool behind one goroutine consuming a command channel,
// per spec.md §5's concurrency invariant. Everything else in this module
// is a collaborator this package calls synchronously from within that
// goroutine.
package lobby

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/corvidchess/invitelobby/internal/broadcaster"
	"github.com/corvidchess/invitelobby/internal/gamefactory"
	"github.com/corvidchess/invitelobby/internal/gracetimer"
	"github.com/corvidchess/invitelobby/internal/identity"
	"github.com/corvidchess/invitelobby/internal/invite"
	"github.com/corvidchess/invitelobby/internal/invitestore"
	"github.com/corvidchess/invitelobby/internal/policy"
	"github.com/corvidchess/invitelobby/internal/restart"
	"github.com/corvidchess/invitelobby/internal/subscriber"
)

// DefaultGraceWindow is the nominal disconnect-grace duration from
// spec.md §4.5.
const DefaultGraceWindow = 5 * time.Second

// Conn is everything the coordinator needs to know about a connection to
// serve it: its subscriber identity, display locale, and outbound sink.
// Transport constructs one of these per accepted connection.
type Conn struct {
	ID       subscriber.ConnID
	Identity identity.AuthIdentity
	Locale   string
	Send     func(msg any)
}

// NotifyReply is a soft informational reply: spec.md §6's
// {action:"notify", value:<i18n-key>, args?:{customNumber?,replyTo?}}.
type NotifyReply struct {
	Key     string
	Minutes int
	ReplyTo string
}

// ErrorReply is a hard protocol/authorization reply: spec.md §6's
// {action:"printerror", value:<message>, replyTo?}. Key is already a
// literal display message, not an i18n key.
type ErrorReply struct {
	Key     string
	ReplyTo string
}

// AckReply is the empty acknowledgement spec.md §6 describes: used when a
// client's UI latch must unblock even though there is no content to send.
type AckReply struct {
	ReplyTo string
}

// GameFactory is the combined hand-off + in-game-lookup contract the
// coordinator needs; gamefactory.InMemory satisfies it, as would a real
// game-creation subsystem.
type GameFactory interface {
	gamefactory.Factory
	gamefactory.Registry
}

// Coordinator owns the Invite Store, Subscriber Registry, and Grace Timer
// Pool, and is the only thing allowed to mutate them. All public methods
// are safe for concurrent use: each submits a closure to the coordinator's
// single internal goroutine and blocks until it has run to completion.
type Coordinator struct {
	store  *invitestore.Store
	subs   *subscriber.Registry
	timers *gracetimer.Pool
	bcast  *broadcaster.Broadcaster

	games    GameFactory
	restarts restart.Coordinator
	vv       invite.VariantValidator
	rp       invite.RatingProvider

	graceWindow time.Duration
	log         *logrus.Logger

	cmds chan command
}

type command struct {
	fn   func()
	done chan struct{}
}

// Config bundles the Coordinator's external collaborators.
type Config struct {
	Games            GameFactory
	Restarts         restart.Coordinator
	VariantValidator invite.VariantValidator
	RatingProvider   invite.RatingProvider
	GraceWindow      time.Duration
	Log              *logrus.Logger
}

// New constructs a Coordinator. Run must be called (typically in its own
// goroutine) before any command method is invoked, or submit will block
// forever.
func New(cfg Config) *Coordinator {
	graceWindow := cfg.GraceWindow
	if graceWindow <= 0 {
		graceWindow = DefaultGraceWindow
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Coordinator{
		store:       invitestore.New(),
		subs:        subscriber.New(),
		timers:      gracetimer.New(),
		bcast:       broadcaster.New(log),
		games:       cfg.Games,
		restarts:    cfg.Restarts,
		vv:          cfg.VariantValidator,
		rp:          cfg.RatingProvider,
		graceWindow: graceWindow,
		log:         log,
		cmds:        make(chan command, 64),
	}
}

// Run executes the coordinator's serialized command loop until ctx is
// cancelled. It is the only goroutine that ever touches the store,
// registry, or timer pool directly.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.cmds:
			cmd.fn()
			close(cmd.done)
		}
	}
}

// submit hands fn to the coordinator goroutine and waits for it to finish,
// giving every exported method the "runs inside the serialized section"
// property without each needing its own mutex.
func (c *Coordinator) submit(fn func()) {
	done := make(chan struct{})
	c.cmds <- command{fn: fn, done: done}
	<-done
}

// Subscribe registers conn in the subscriber registry, per spec.md §4.4.
// Double-subscribe is rejected silently (as the spec directs — it is a
// protocol-violation signal, not a user-facing error).
func (c *Coordinator) Subscribe(conn Conn) {
	c.submit(func() { c.handleSubscribe(conn) })
}

func (c *Coordinator) handleSubscribe(conn Conn) {
	sub := &subscriber.Subscription{ConnID: conn.ID, Identity: conn.Identity, Locale: conn.Locale, Send: conn.Send}
	if err := c.subs.Add(sub); err != nil {
		c.log.WithFields(logrus.Fields{"conn": conn.ID, "err": err}).Warn("lobby: rejected duplicate subscribe")
		return
	}
	c.timers.Cancel(conn.Identity.Key())
	c.bcast.Send(sub, c.snapshot(), "")
}

// Unsubscribe removes conn from the subscriber registry. byChoice
// distinguishes a deliberate logout (drop the owner's invites immediately)
// from an involuntary disconnect (arm a grace timer instead).
func (c *Coordinator) Unsubscribe(conn Conn, byChoice bool) {
	c.submit(func() { c.handleUnsubscribe(conn, byChoice) })
}

func (c *Coordinator) handleUnsubscribe(conn Conn, byChoice bool) {
	c.subs.Remove(conn.ID)

	if byChoice {
		removed, publicDeleted := c.store.RemoveByOwner(conn.Identity)
		if len(removed) > 0 && publicDeleted {
			c.broadcastAll("")
		}
		return
	}

	key := conn.Identity.Key()
	c.timers.Start(key, c.graceWindow, func(key string) {
		c.submit(func() { c.handleGraceFire(key, conn.Identity) })
	})
}

// handleGraceFire runs inside the serialized section (submitted by the
// timer's own goroutine) and implements spec.md §4.5's fire behaviour:
// only act if the identity has not resubscribed in the meantime.
func (c *Coordinator) handleGraceFire(key string, id identity.AuthIdentity) {
	if c.subs.AnyFor(id) {
		return
	}
	removed, publicDeleted := c.store.RemoveByOwner(id)
	if len(removed) > 0 && publicDeleted {
		c.broadcastAll("")
	}
}

// CreateInvite implements spec.md §4.4's createInvite command.
func (c *Coordinator) CreateInvite(ctx context.Context, conn Conn, params invite.CreateParams, replyTo string) {
	c.submit(func() { c.handleCreateInvite(ctx, conn, params, replyTo) })
}

func (c *Coordinator) handleCreateInvite(ctx context.Context, conn Conn, params invite.CreateParams, replyTo string) {
	v := policy.CheckCreate(conn.Identity, c.store.OwnedBy(conn.Identity), c.games, c.restarts)
	if !v.Allowed {
		c.replyVerdict(conn, v, replyTo)
		return
	}

	if err := params.Validate(conn.Identity, c.vv); err != nil {
		if err == invite.ErrRatedNeedsVerified {
			conn.Send(NotifyReply{Key: "lobby.verificationNeeded", ReplyTo: replyTo})
			return
		}
		conn.Send(ErrorReply{Key: "invalid invite parameters", ReplyTo: replyTo})
		return
	}

	uc := invite.BuildUsernameContainer(ctx, conn.Identity, params.Variant, c.vv, c.rp)

	id, err := c.store.NewID()
	if err != nil {
		c.log.WithError(err).Error("lobby: invite id space exhausted")
		conn.Send(ErrorReply{Key: "could not create invite", ReplyTo: replyTo})
		return
	}

	inv := &invite.Invite{
		ID:                id,
		Owner:             conn.Identity,
		UsernameContainer: uc,
		Tag:               params.Tag,
		Variant:           params.Variant,
		Clock:             params.Clock,
		Color:             params.Color,
		Rated:             params.Rated,
		Publicity:         params.Publicity,
	}
	if err := c.store.Add(inv); err != nil {
		conn.Send(ErrorReply{Key: "already have invite", ReplyTo: replyTo})
		return
	}

	if params.Publicity == invite.Public {
		c.broadcastAllFrom(conn.ID, replyTo)
	} else {
		if sub, ok := c.subs.Get(conn.ID); ok {
			c.bcast.Send(sub, c.snapshot(), replyTo)
		}
	}
}

// CancelInvite implements spec.md §4.4's cancelInvite command.
func (c *Coordinator) CancelInvite(conn Conn, id string, replyTo string) {
	c.submit(func() { c.handleCancelInvite(conn, id, replyTo) })
}

func (c *Coordinator) handleCancelInvite(conn Conn, id string, replyTo string) {
	inv, _, ok := c.store.FindByID(id)
	if !ok {
		conn.Send(AckReply{ReplyTo: replyTo})
		return
	}

	v := policy.CheckCancel(conn.Identity, inv)
	if !v.Allowed {
		c.log.WithFields(logrus.Fields{"conn": conn.ID, "invite": id}).Warn("lobby: rejected cancel from non-owner")
		conn.Send(ErrorReply{Key: v.Key, ReplyTo: replyTo})
		return
	}

	c.store.RemoveByID(id)

	if inv.Publicity == invite.Public {
		c.broadcastAllFrom(conn.ID, replyTo)
	} else if sub, ok := c.subs.Get(conn.ID); ok {
		c.bcast.Send(sub, c.snapshot(), replyTo)
	}
}

// AcceptInvite implements spec.md §4.4's acceptInvite command and §4.6's
// hand-off contract.
func (c *Coordinator) AcceptInvite(ctx context.Context, conn Conn, id string, isPrivate bool, replyTo string) {
	c.submit(func() { c.handleAcceptInvite(ctx, conn, id, isPrivate, replyTo) })
}

func (c *Coordinator) handleAcceptInvite(ctx context.Context, conn Conn, id string, isPrivate bool, replyTo string) {
	if c.games.IsInActiveGame(conn.Identity) {
		conn.Send(NotifyReply{Key: "lobby.alreadyInGame", ReplyTo: replyTo})
		return
	}

	inv, _, ok := c.store.FindByID(id)
	if !ok {
		v := policy.AcceptNotFoundReply(isPrivate)
		conn.Send(NotifyReply{Key: v.Key, ReplyTo: replyTo})
		return
	}

	v := policy.CheckAccept(conn.Identity, inv, c.games)
	if !v.Allowed {
		c.replyVerdict(conn, v, replyTo)
		return
	}

	ownerSub, ownerSubscribed := c.subs.FindFor(inv.Owner)

	c.store.RemoveByID(inv.ID)
	_, accepterPublicDeleted := c.store.RemoveByOwner(conn.Identity)

	player1 := gamefactory.Player{Identity: inv.Owner}
	if ownerSubscribed {
		player1.ConnID = string(ownerSub.ConnID)
	}
	player2 := gamefactory.Player{Identity: conn.Identity, ConnID: string(conn.ID)}

	if err := c.games.CreateGame(ctx, inv, player1, player2, replyTo); err != nil {
		c.log.WithError(err).Error("lobby: hand-off failed")
		conn.Send(ErrorReply{Key: "could not start game", ReplyTo: replyTo})
		return
	}

	c.subs.Remove(conn.ID)
	if ownerSubscribed {
		c.subs.Remove(ownerSub.ConnID)
	}
	c.timers.Cancel(inv.Owner.Key())
	c.timers.Cancel(conn.Identity.Key())

	if inv.Publicity == invite.Public || accepterPublicDeleted {
		c.broadcastAllFrom(conn.ID, replyTo)
	} else {
		c.broadcastAll("")
	}
}

// replyVerdict sends a denied policy.Verdict as the appropriate wire reply.
func (c *Coordinator) replyVerdict(conn Conn, v policy.Verdict, replyTo string) {
	switch v.Reply {
	case policy.ReplyNotify:
		conn.Send(NotifyReply{Key: v.Key, Minutes: v.Minutes, ReplyTo: replyTo})
	case policy.ReplyError:
		conn.Send(ErrorReply{Key: v.Key, ReplyTo: replyTo})
	}
}

// snapshot assembles the current store+game-count state into a
// broadcaster.Snapshot.
func (c *Coordinator) snapshot() broadcaster.Snapshot {
	return broadcaster.Snapshot{
		Public:          c.store.PublicSnapshot(),
		ActiveGameCount: c.games.ActiveGameCount(),
		PrivateByOwner: func(ownerKey string) []invite.SafeInvite {
			return c.store.PrivateOwnedByKey(ownerKey)
		},
	}
}

// broadcastAll sends the current snapshot to every subscriber, with no
// reply-to correlation.
func (c *Coordinator) broadcastAll(replyTo string) {
	c.bcast.BroadcastAll(c.subs.All(), c.snapshot(), "", replyTo)
}

// broadcastAllFrom sends the current snapshot to every subscriber,
// attaching replyTo only for the originating connection.
func (c *Coordinator) broadcastAllFrom(origin subscriber.ConnID, replyTo string) {
	c.bcast.BroadcastAll(c.subs.All(), c.snapshot(), origin, replyTo)
}

// PublicInvites returns the current public invite catalogue, routed
// through the serialized command loop so it never races with a mutation.
// This is adminapi's only point of contact with the coordinator's
// internal state.
func (c *Coordinator) PublicInvites() []invite.SafeInvite {
	var out []invite.SafeInvite
	c.submit(func() {
		out = c.store.PublicSnapshot()
	})
	return out
}
