// Package notify delivers negotiation lifecycle events to the platform's
// notification pipeline. Delivery is fire-and-forget: a failed publish is
// logged and never rolls back engine state.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alialshehriar/bithrah-app-sub003/internal/store"
)

const (
	EventDepositHeld      = "deposit_held"
	EventAgreementReached = "agreement_reached"
	EventSessionExpired   = "session_expired"
	EventSessionCancelled = "session_cancelled"
	EventSessionCompleted = "session_completed"
)

// Channel is the Redis pub/sub channel the notification worker consumes.
const Channel = "negotiation.events"

// Event is one lifecycle notification.
type Event struct {
	Type      string    `json:"type"`
	SessionID uuid.UUID `json:"session_id"`
	ListingID uuid.UUID `json:"listing_id"`
	UserID    uuid.UUID `json:"user_id"` // the participant the event concerns
	At        time.Time `json:"at"`
}

// Notifier publishes lifecycle events.
type Notifier interface {
	Publish(ctx context.Context, e Event)
}

// RedisNotifier publishes events to Redis pub/sub.
type RedisNotifier struct {
	redis  *store.RedisStore
	logger zerolog.Logger
}

// NewRedisNotifier creates a Redis-backed notifier.
func NewRedisNotifier(redis *store.RedisStore, logger zerolog.Logger) *RedisNotifier {
	return &RedisNotifier{redis: redis, logger: logger}
}

// Publish sends the event, logging on failure.
func (n *RedisNotifier) Publish(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		n.logger.Warn().Err(err).Str("type", e.Type).Msg("failed to encode notification event")
		return
	}
	if err := n.redis.PublishEvent(ctx, Channel, payload); err != nil {
		n.logger.Warn().Err(err).
			Str("type", e.Type).
			Str("session_id", e.SessionID.String()).
			Msg("failed to publish notification event")
	}
}

// LogNotifier writes events to the log only. Used when Redis is absent.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Publish logs the event.
func (n *LogNotifier) Publish(ctx context.Context, e Event) {
	n.logger.Info().
		Str("type", e.Type).
		Str("session_id", e.SessionID.String()).
		Str("user_id", e.UserID.String()).
		Msg("notification event")
}
