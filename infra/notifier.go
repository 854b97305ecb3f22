package infra

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/warp/campaign-engine/notify"
)

const (
	NotifierLog    = "log"
	NotifierResend = "resend"
	NotifierAMQP   = "amqp"
)

// NewNotifier builds the notifier selected by cfg.Notifier. The returned
// closer releases broker connections and is never nil.
func NewNotifier(cfg Config, logger zerolog.Logger) (notify.Notifier, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Notifier {
	case NotifierLog:
		return notify.NewLogNotifier(logger), noop, nil
	case NotifierResend:
		n, err := notify.NewEmailNotifier(cfg.ResendAPIKey, cfg.FromEmail, cfg.FromName)
		if err != nil {
			return nil, nil, err
		}
		return n, noop, nil
	case NotifierAMQP:
		n := notify.NewQueueNotifier(cfg.AMQPURL, cfg.NotifyQueue)
		return n, n.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported notifier %q", cfg.Notifier)
	}
}
