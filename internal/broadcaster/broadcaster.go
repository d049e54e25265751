// Package broadcaster assembles the per-subscriber invites-list payload and
// hands it off to each connection's outbound channel. It never holds its
// own state: every call receives the current snapshot from its caller (the
// lobby coordinator), which serializes all reads and writes to that state.
package broadcaster

import (
	"github.com/sirupsen/logrus"

	"github.com/corvidchess/invitelobby/internal/invite"
	"github.com/corvidchess/invitelobby/internal/subscriber"
)

// Snapshot is everything a broadcast needs beyond the recipient's own
// identity — the lobby coordinator builds one per broadcast round and
// reuses it across every subscriber.
type Snapshot struct {
	Public          []invite.SafeInvite
	ActiveGameCount int
	PrivateByOwner  func(ownerKey string) []invite.SafeInvite
}

// InvitesListMessage is the wire shape of a broadcast to one subscriber.
type InvitesListMessage struct {
	Type             string              `json:"type"`
	InvitesList      []invite.SafeInvite `json:"invitesList"`
	CurrentGameCount int                 `json:"currentGameCount"`
	ReplyTo          string              `json:"replyTo,omitempty"`
}

// Broadcaster delivers Snapshot-derived payloads to subscribers.
type Broadcaster struct {
	log *logrus.Logger
}

// New returns a Broadcaster that logs dropped/slow sends via log.
func New(log *logrus.Logger) *Broadcaster {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Broadcaster{log: log}
}

// payloadFor builds the exact message one subscriber should receive: the
// public snapshot unioned with that subscriber's own private invites, per
// spec.md §4.3. replyTo is attached only when this subscriber originated
// the command that triggered the round.
func (b *Broadcaster) payloadFor(snap Snapshot, sub *subscriber.Subscription, replyTo string) InvitesListMessage {
	list := make([]invite.SafeInvite, 0, len(snap.Public))
	list = append(list, snap.Public...)
	if snap.PrivateByOwner != nil {
		list = append(list, snap.PrivateByOwner(sub.Identity.Key())...)
	}
	return InvitesListMessage{
		Type:             "invitesList",
		InvitesList:      list,
		CurrentGameCount: snap.ActiveGameCount,
		ReplyTo:          replyTo,
	}
}

// BroadcastAll sends the current snapshot to every subscriber in subs. If
// originConnID is non-empty, the subscriber with that connection id (the
// one whose command triggered this round, if still subscribed) receives
// replyTo in its payload; everyone else gets none.
func (b *Broadcaster) BroadcastAll(subs []*subscriber.Subscription, snap Snapshot, originConnID subscriber.ConnID, replyTo string) {
	for _, sub := range subs {
		msg := b.payloadFor(snap, sub, "")
		if originConnID != "" && sub.ConnID == originConnID {
			msg.ReplyTo = replyTo
		}
		b.deliver(sub, msg)
	}
}

// Send delivers the snapshot to a single subscriber, with replyTo attached
// — used for private-only mutations, where only the owner's subscription
// should see the updated catalogue (spec.md §4.4 create/cancel, private
// path).
func (b *Broadcaster) Send(sub *subscriber.Subscription, snap Snapshot, replyTo string) {
	msg := b.payloadFor(snap, sub, replyTo)
	b.deliver(sub, msg)
}

// deliver hands msg to the subscriber's Send function, which is expected to
// be non-blocking (see internal/transport's outbound channel). A subscriber
// whose Send is unset is skipped rather than panicking — useful for tests.
func (b *Broadcaster) deliver(sub *subscriber.Subscription, msg InvitesListMessage) {
	if sub.Send == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.log.WithFields(logrus.Fields{
				"conn":  sub.ConnID,
				"panic": r,
			}).Warn("broadcaster: recovered from panic delivering invitesList")
		}
	}()
	sub.Send(msg)
}
