package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/familyq/internal/model"
	ws "github.com/dukerupert/familyq/internal/websocket"
)

const defaultDeliveryTimeout = 30 * time.Second

// Sender delivers one payload to one subscription. *Service satisfies it.
type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

// SubscriptionStore is the slice of *store.PushStore the notifier needs.
type SubscriptionStore interface {
	ListByFamily(ctx context.Context, familyID int64) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Notifier turns question lifecycle events into web push notifications for
// every subscribed member of the family. Delivery runs in the background so a
// slow push service never holds up an answer or an assignment.
type Notifier struct {
	subs    SubscriptionStore
	sender  Sender
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewNotifier(subs SubscriptionStore, sender Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		subs:    subs,
		sender:  sender,
		logger:  logger,
		timeout: defaultDeliveryTimeout,
	}
}

// BroadcastFamily queues a push for the events members care about away from
// the app. Other events are ignored.
func (n *Notifier) BroadcastFamily(familyID int64, msg ws.Message) {
	payload, ok := payloadFor(msg)
	if !ok {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		n.deliver(ctx, familyID, payload)
	}()
}

// Wait blocks until every queued delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) deliver(ctx context.Context, familyID int64, payload Payload) {
	subs, err := n.subs.ListByFamily(ctx, familyID)
	if err != nil {
		n.logger.Error("push: list subscriptions", "family_id", familyID, "error", err)
		return
	}

	for i := range subs {
		sub := &subs[i]
		err := n.sender.Send(ctx, sub, payload)
		switch {
		case err == nil:
		case errors.Is(err, ErrExpired):
			if err := n.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				n.logger.Error("push: drop expired subscription", "subscription_id", sub.ID, "error", err)
			} else {
				n.logger.Info("push: dropped expired subscription", "subscription_id", sub.ID, "member_id", sub.MemberID)
			}
		default:
			n.logger.Warn("push: send", "family_id", familyID, "subscription_id", sub.ID, "error", err)
		}
	}
}

func payloadFor(msg ws.Message) (Payload, bool) {
	switch msg.Type {
	case "question_assigned":
		return Payload{
			Title: "Today's family question is here",
			Body:  "Open the app to answer it together.",
			URL:   "/",
			Tag:   "question-assigned",
		}, true
	case "question_completed":
		return Payload{
			Title: "Everyone has answered",
			Body:  "See what your family said today.",
			URL:   "/",
			Tag:   "question-completed",
		}, true
	}
	return Payload{}, false
}
