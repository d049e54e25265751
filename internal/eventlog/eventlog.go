// Package eventlog is an async audit trail for completed invite hand-offs.
// It only ever records events after a hand-off has already happened — the
// live invite catalogue itself is never persisted here, matching spec.md's
// non-goal against persisting invites across restarts. This mirrors the
// teacher's game-action-log queue, retargeted from per-move events to
// per-hand-off events.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list used when none is configured.
const DefaultQueueName = "invitelobby_handoffs"

// HandoffEvent records that an invite was accepted and handed off to the
// game-creation subsystem.
type HandoffEvent struct {
	GameID      string `json:"game_id"`
	InviteID    string `json:"invite_id"`
	OwnerKey    string `json:"owner_key"`
	AccepterKey string `json:"accepter_key"`
	Variant     string `json:"variant"`
	Rated       string `json:"rated"`
	TimestampMS int64  `json:"timestamp_ms"`
}

// Publisher pushes HandoffEvents onto a Redis list for cmd/historiand to
// drain. Publishing never blocks the lobby coordinator for long — it is a
// single RPush — but callers should still treat it as best-effort and log
// rather than propagate failures into the hand-off's own error path.
type Publisher struct {
	client    *redis.Client
	queueName string
}

// NewPublisher constructs a Publisher against an already-connected client.
func NewPublisher(client *redis.Client, queueName string) *Publisher {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	return &Publisher{client: client, queueName: queueName}
}

// Publish serializes ev and pushes it to the configured queue.
func (p *Publisher) Publish(ctx context.Context, ev HandoffEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventlog: marshaling handoff event: %w", err)
	}
	if err := p.client.RPush(ctx, p.queueName, data).Err(); err != nil {
		return fmt.Errorf("eventlog: rpush to %s: %w", p.queueName, err)
	}
	return nil
}
