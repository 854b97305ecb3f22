/*
Package notify delivers campaign lifecycle notifications to followers.

PURPOSE:
  When the reconciler commits a transition it hands the Transition to a
  Fanout. The Fanout resolves the campaign's followers, renders one message
  per follower from the event's template and sends each one through a
  Notifier, all off the reconciler's critical path.

NOTIFIERS:
  - LogNotifier:   writes messages to the log (development default)
  - EmailNotifier: sends e-mail through Resend
  - QueueNotifier: publishes JSON messages to a durable RabbitMQ queue for
                   an external mail worker

DELIVERY:
  Best effort. A failed send is logged and dropped; retries, if any, belong
  to the Notifier's backend (Resend, the queue consumer).

SEE ALSO:
  - templates.go: per-event subject/body templates
  - fanout.go: concurrent dispatch
*/
package notify

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/warp/campaign-engine/campaign"
)

// Message is one rendered notification for one recipient.
type Message struct {
	To         string              `json:"to"`
	Subject    string              `json:"subject"`
	Body       string              `json:"body"`
	Event      campaign.Event      `json:"event"`
	CampaignID campaign.CampaignID `json:"campaign_id"`
}

// Notifier sends a message to its recipient.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LogNotifier logs each message instead of delivering it.
type LogNotifier struct {
	Logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{Logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.Logger.Info().
		Str("recipient", msg.To).
		Str("event", string(msg.Event)).
		Str("campaign_id", string(msg.CampaignID)).
		Str("subject", msg.Subject).
		Msg("notification")
	return nil
}
