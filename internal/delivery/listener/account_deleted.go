// Package listener consumes account lifecycle messages published on Redis.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"potluck/internal/domain"
)

// DefaultAccountDeletedChannel is the channel the identity provider publishes deletions on.
const DefaultAccountDeletedChannel = "accounts.deleted"

// AccountDeletedMessage is the payload published when an account is deleted.
type AccountDeletedMessage struct {
	UserID string `json:"user_id"`
}

// AccountDeletedListener runs the account purge for every deletion message.
type AccountDeletedListener struct {
	client  *redis.Client
	channel string
	purge   domain.PurgeService
	logger  *slog.Logger
}

func NewAccountDeletedListener(client *redis.Client, channel string, purge domain.PurgeService, logger *slog.Logger) *AccountDeletedListener {
	if channel == "" {
		channel = DefaultAccountDeletedChannel
	}
	return &AccountDeletedListener{
		client:  client,
		channel: channel,
		purge:   purge,
		logger:  logger,
	}
}

// Run blocks until ctx is done or the subscription fails. Messages are
// handled one at a time so two purges of the same account never overlap.
func (l *AccountDeletedListener) Run(ctx context.Context) error {
	pubsub := l.client.Subscribe(ctx, l.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", l.channel, err)
	}
	ch := pubsub.Channel()
	l.logger.InfoContext(ctx, "listening for account deletions", "channel", l.channel)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("account deletion subscription closed")
			}
			l.handle(ctx, msg.Payload)
		}
	}
}

func (l *AccountDeletedListener) handle(ctx context.Context, payload string) {
	var msg AccountDeletedMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		l.logger.WarnContext(ctx, "discarding malformed account deletion", "payload", payload, "err", err)
		return
	}
	if msg.UserID == "" {
		l.logger.WarnContext(ctx, "discarding account deletion without user id", "payload", payload)
		return
	}

	report, err := l.purge.PurgeAccount(ctx, msg.UserID)
	switch {
	case errors.Is(err, domain.ErrProtectedIdentity):
		l.logger.WarnContext(ctx, "refused to purge protected account", "user_id", msg.UserID)
	case err != nil:
		l.logger.ErrorContext(ctx, "account purge failed", "user_id", msg.UserID, "err", err)
	default:
		l.logger.InfoContext(ctx, "account purged",
			"user_id", msg.UserID,
			"deleted_events", len(report.DeletedEvents),
			"deleted_assignments", report.DeletedAssignments,
			"writes", report.Writes,
		)
	}
}
