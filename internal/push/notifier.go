package push

import (
	"context"
	"errors"
	"log/slog"

	"github.com/suratbrts/cms/internal/model"
)

// Sender delivers one payload to one subscription. *Service implements it.
type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

// SubscriptionStore is the subset of store.PushStore the notifier needs.
type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID int64) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Notifier sends a payload to every device a user registered. Failures are
// logged and never returned: a notification must not fail the caller.
type Notifier struct {
	sender Sender
	subs   SubscriptionStore
	logger *slog.Logger
}

// NewNotifier returns a Notifier. A nil sender disables delivery.
func NewNotifier(sender Sender, subs SubscriptionStore, logger *slog.Logger) *Notifier {
	return &Notifier{sender: sender, subs: subs, logger: logger}
}

// NotifyUser returns the number of devices the payload reached.
func (n *Notifier) NotifyUser(ctx context.Context, userID int64, payload Payload) int {
	if n.sender == nil {
		return 0
	}

	subs, err := n.subs.ListByUser(ctx, userID)
	if err != nil {
		n.logger.Error("list push subscriptions", "user_id", userID, "error", err)
		return 0
	}

	sent := 0
	for i := range subs {
		sub := &subs[i]
		if err := n.sender.Send(ctx, sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				if err := n.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
					n.logger.Error("delete expired subscription", "id", sub.ID, "error", err)
				}
				continue
			}
			n.logger.Warn("push send failed", "user_id", userID, "subscription_id", sub.ID, "error", err)
			continue
		}
		sent++
	}
	return sent
}
