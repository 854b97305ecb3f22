package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/campaign-engine/campaign"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("fanout closed")

// FollowerLister is the slice of campaign.Store the fan-out reads.
type FollowerLister interface {
	ListFollowers(ctx context.Context, campaignID campaign.CampaignID) ([]campaign.Follower, error)
}

type FanoutConfig struct {
	// Concurrency caps in-flight sends across all transitions.
	Concurrency int64
	// Timeout bounds a single follower lookup or send.
	Timeout time.Duration
}

// Fanout turns transitions into per-follower messages. Publish never blocks
// the caller; work runs in goroutines bounded by a weighted semaphore.
type Fanout struct {
	followers FollowerLister
	notifier  Notifier
	templates Templates
	renderer  *Renderer
	timeout   time.Duration
	sem       *semaphore.Weighted
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewFanout(followers FollowerLister, notifier Notifier, templates Templates, renderer *Renderer, cfg FanoutConfig, logger zerolog.Logger) *Fanout {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Fanout{
		followers: followers,
		notifier:  notifier,
		templates: templates,
		renderer:  renderer,
		timeout:   cfg.Timeout,
		sem:       semaphore.NewWeighted(cfg.Concurrency),
		logger:    logger.With().Str("component", "fanout").Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Publish schedules notifications for t and returns immediately. It reports
// false when the fan-out is closed and t was dropped.
func (f *Fanout) Publish(t campaign.Transition) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		f.logger.Warn().
			Str("campaign_id", string(t.Campaign.ID)).
			Str("event", string(t.Event)).
			Msg("fan-out closed, transition not notified")
		return false
	}

	f.wg.Add(1)
	go f.dispatch(t)
	return true
}

func (f *Fanout) dispatch(t campaign.Transition) {
	defer f.wg.Done()

	log := f.logger.With().
		Str("campaign_id", string(t.Campaign.ID)).
		Str("event", string(t.Event)).
		Logger()

	tmpl, ok := f.templates[t.Event]
	if !ok {
		log.Warn().Msg("no template for event, skipping notification")
		return
	}

	ctx, cancel := context.WithTimeout(f.ctx, f.timeout)
	followers, err := f.followers.ListFollowers(ctx, t.Campaign.ID)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("list followers failed")
		return
	}

	subject, body := f.renderer.Render(tmpl, t.Campaign)
	sent := 0
	for _, follower := range followers {
		if !follower.ReceiveNotifications || follower.Address == "" {
			continue
		}
		if err := f.sem.Acquire(f.ctx, 1); err != nil {
			log.Warn().Err(err).Msg("fan-out aborted")
			return
		}
		msg := Message{
			To:         follower.Address,
			Subject:    subject,
			Body:       body,
			Event:      t.Event,
			CampaignID: t.Campaign.ID,
		}
		f.wg.Add(1)
		go f.send(msg, log)
		sent++
	}
	log.Debug().Int("recipients", sent).Msg("notifications dispatched")
}

func (f *Fanout) send(msg Message, log zerolog.Logger) {
	defer f.wg.Done()
	defer f.sem.Release(1)

	ctx, cancel := context.WithTimeout(f.ctx, f.timeout)
	defer cancel()

	if err := f.notifier.Send(ctx, msg); err != nil {
		log.Error().Err(err).Str("recipient", msg.To).Msg("notification failed")
	}
}

// Close stops accepting transitions and waits for in-flight work. If ctx
// expires first, outstanding sends are cancelled and ctx.Err() is returned.
func (f *Fanout) Close(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	f.closed = true
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		f.cancel()
		return nil
	case <-ctx.Done():
		f.cancel()
		return ctx.Err()
	}
}
