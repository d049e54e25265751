// Package transport is the WebSocket boundary between a client and the
// lobby coordinator: it upgrades connections, authenticates them, decodes
// client commands into coordinator calls, and serializes coordinator
// replies back onto the wire, per spec.md §6.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/corvidchess/invitelobby/internal/broadcaster"
	"github.com/corvidchess/invitelobby/internal/identity"
	"github.com/corvidchess/invitelobby/internal/invite"
	"github.com/corvidchess/invitelobby/internal/lobby"
	"github.com/corvidchess/invitelobby/internal/subscriber"
	"github.com/corvidchess/invitelobby/internal/translator"
)

// Custom WebSocket close codes for the lobby subprotocol.
const (
	closeBadSubprotocol = 3000
	closeAuthFailed     = 3001
)

// IdentityResolver authenticates an incoming HTTP request into an
// AuthIdentity, issuing a guest cookie when the request carries none. The
// "Identity service" external collaborator from spec.md §1.
type IdentityResolver interface {
	Resolve(w http.ResponseWriter, r *http.Request) (identity.AuthIdentity, error)
}

// outChanCapacity bounds each connection's outbound queue; once it is full,
// a connection that cannot keep up has each further message dropped rather
// than blocking the coordinator (see connection.send).
const outChanCapacity = 32

// Handler upgrades requests to the lobby WebSocket subprotocol and wires
// each connection to the Coordinator.
type Handler struct {
	log        *logrus.Logger
	coord      *lobby.Coordinator
	identities IdentityResolver
	translator translator.Translator
}

// NewHandler constructs a transport Handler.
func NewHandler(log *logrus.Logger, coord *lobby.Coordinator, identities IdentityResolver, tr translator.Translator) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{log: log, coord: coord, identities: identities, translator: tr}
}

// connection wraps one accepted WebSocket with its outbound queue. Mirrors
// the teacher's LobbyConnection/OutChan shape, generalized to the lobby's
// wire messages instead of game-lobby chat/ready events.
type connection struct {
	id     subscriber.ConnID
	who    identity.AuthIdentity
	locale string
	out    chan any
}

func (c *connection) send(msg any) {
	select {
	case c.out <- msg:
	default:
		// Outbound queue full: this connection is not draining fast enough.
		// Dropping rather than blocking the coordinator is the contract
		// spec.md §5 requires of transport writes.
	}
}

// ServeHTTP accepts the WebSocket, authenticates, subscribes to the
// coordinator, and runs the read/write pumps until the connection closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	who, err := h.identities.Resolve(w, r)
	if err != nil {
		h.log.WithError(err).Warn("transport: identity resolution failed")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"lobby"},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.WithError(err).Warn("transport: websocket accept failed")
		return
	}
	if c.Subprotocol() != "lobby" {
		c.Close(closeBadSubprotocol, "client must speak the lobby subprotocol")
		return
	}

	locale := r.URL.Query().Get("locale")
	if locale == "" {
		locale = "en"
	}

	conn := &connection{
		id:     subscriber.ConnID(connIDFor(who, r)),
		who:    who,
		locale: locale,
		out:    make(chan any, outChanCapacity),
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.coord.Subscribe(h.lobbyConn(conn))
	defer h.coord.Unsubscribe(h.lobbyConn(conn), false)

	go h.writePump(ctx, c, conn)
	h.readPump(ctx, c, conn)
}

// connIDFor derives a per-connection id distinct from the identity key
// itself, so the same identity can hold multiple simultaneous connections
// (e.g. two browser tabs) without colliding in the subscriber registry.
func connIDFor(who identity.AuthIdentity, r *http.Request) string {
	return who.Key() + "#" + r.RemoteAddr + "#" + strconv.FormatInt(int64(len(r.URL.Path)), 10)
}

func (h *Handler) lobbyConn(c *connection) lobby.Conn {
	return lobby.Conn{ID: c.id, Identity: c.who, Locale: c.locale, Send: c.send}
}

func (h *Handler) readPump(ctx context.Context, c *websocket.Conn, conn *connection) {
	defer c.Close(websocket.StatusNormalClosure, "closing")
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		h.handleMessage(ctx, conn, data)
	}
}

func (h *Handler) writePump(ctx context.Context, c *websocket.Conn, conn *connection) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-conn.out:
			env := h.envelopeFor(msg, conn.locale)
			data, err := json.Marshal(env)
			if err != nil {
				h.log.WithError(err).Warn("transport: failed to marshal outbound message")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// inboundEnvelope is the client→server wire shape from spec.md §6.
type inboundEnvelope struct {
	Action string          `json:"action"`
	Value  json.RawMessage `json:"value"`
	ID     *uint32         `json:"id"`
}

func (h *Handler) handleMessage(ctx context.Context, conn *connection, data []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.log.WithError(err).Warn("transport: malformed client message")
		conn.send(lobby.ErrorReply{Key: "malformed message"})
		return
	}
	replyTo := ""
	if env.ID != nil {
		replyTo = strconv.FormatUint(uint64(*env.ID), 10)
	}

	switch env.Action {
	case "createinvite":
		var payload struct {
			Variant   string           `json:"variant"`
			Clock     string           `json:"clock"`
			Color     invite.Color     `json:"color"`
			Rated     invite.RatedMode `json:"rated"`
			Publicity invite.Publicity `json:"publicity"`
			Tag       string           `json:"tag"`
		}
		if err := json.Unmarshal(env.Value, &payload); err != nil {
			conn.send(lobby.ErrorReply{Key: "invalid invite parameters", ReplyTo: replyTo})
			return
		}
		h.coord.CreateInvite(ctx, h.lobbyConn(conn), invite.CreateParams{
			Variant:   payload.Variant,
			Clock:     payload.Clock,
			Color:     payload.Color,
			Rated:     payload.Rated,
			Publicity: payload.Publicity,
			Tag:       payload.Tag,
		}, replyTo)

	case "cancelinvite":
		var id string
		if err := json.Unmarshal(env.Value, &id); err != nil {
			conn.send(lobby.ErrorReply{Key: "invalid invite id", ReplyTo: replyTo})
			return
		}
		h.coord.CancelInvite(h.lobbyConn(conn), id, replyTo)

	case "acceptinvite":
		var payload struct {
			ID        string `json:"id"`
			IsPrivate bool   `json:"isPrivate"`
		}
		if err := json.Unmarshal(env.Value, &payload); err != nil {
			conn.send(lobby.ErrorReply{Key: "invalid accept payload", ReplyTo: replyTo})
			return
		}
		h.coord.AcceptInvite(ctx, h.lobbyConn(conn), payload.ID, payload.IsPrivate, replyTo)

	default:
		h.log.WithField("action", env.Action).Warn("transport: unknown action")
		conn.send(lobby.ErrorReply{Key: "unknown action", ReplyTo: replyTo})
	}
}

// envelopeFor translates a coordinator reply into the spec.md §6 wire
// shape, rendering notify keys through the translator at write time.
func (h *Handler) envelopeFor(msg any, locale string) map[string]any {
	switch m := msg.(type) {
	case broadcaster.InvitesListMessage:
		env := map[string]any{
			"action": "inviteslist",
			"value": map[string]any{
				"invitesList":      m.InvitesList,
				"currentGameCount": m.CurrentGameCount,
			},
		}
		if m.ReplyTo != "" {
			env["replyTo"] = replyToNumber(m.ReplyTo)
		}
		return env

	case lobby.NotifyReply:
		env := map[string]any{
			"action": "notify",
			"value":  h.translator.Translate(m.Key, locale),
		}
		args := map[string]any{}
		if m.Minutes > 0 {
			args["customNumber"] = m.Minutes
		}
		if m.ReplyTo != "" {
			args["replyTo"] = replyToNumber(m.ReplyTo)
		}
		if len(args) > 0 {
			env["args"] = args
		}
		return env

	case lobby.ErrorReply:
		env := map[string]any{
			"action": "printerror",
			"value":  m.Key,
		}
		if m.ReplyTo != "" {
			env["replyTo"] = replyToNumber(m.ReplyTo)
		}
		return env

	case lobby.AckReply:
		env := map[string]any{}
		if m.ReplyTo != "" {
			env["replyTo"] = replyToNumber(m.ReplyTo)
		}
		return env

	default:
		h.log.WithField("type", msg).Warn("transport: unrecognized outbound message type")
		return map[string]any{}
	}
}

// replyToNumber converts a coordinator-internal string replyTo back into
// the numeric correlation token the wire protocol expects.
func replyToNumber(s string) any {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return s
	}
	return uint32(n)
}
