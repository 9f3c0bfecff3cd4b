package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/anonto42/nano-midea/social/internal/metrics"
	"github.com/anonto42/nano-midea/social/internal/models"
	"github.com/anonto42/nano-midea/social/pkg/logger"
	"github.com/anonto42/nano-midea/social/pkg/safego"
)

// Registry is the part of the subscription store the dispatcher needs.
type Registry interface {
	ListFor(ctx context.Context, userID uint) ([]models.PushSubscription, error)
	Remove(ctx context.Context, id uint) error
}

// Options bound the dispatcher's calls to its collaborators.
type Options struct {
	// DeliveryTimeout bounds one push to one subscription.
	DeliveryTimeout time.Duration
	// StoreTimeout bounds each registry call.
	StoreTimeout time.Duration
}

// Report counts the outcomes of one Dispatch call.
type Report struct {
	Delivered int
	Gone      int
	Failed    int
}

// Dispatcher fans a payload out to every subscription of a recipient. Each
// subscription gets exactly one concurrent delivery attempt; there are no retries.
type Dispatcher struct {
	registry  Registry
	transport Transport
	opts      Options
	log       logger.Logger
}

// NewDispatcher creates a dispatcher. A nil transport disables push delivery.
func NewDispatcher(registry Registry, transport Transport, opts Options, log logger.Logger) *Dispatcher {
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 10 * time.Second
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	return &Dispatcher{registry: registry, transport: transport, opts: opts, log: log}
}

// Enabled reports whether a push transport is configured.
func (d *Dispatcher) Enabled() bool {
	return d != nil && d.transport != nil
}

// Dispatch delivers payload to every device of recipientID and waits for all attempts.
// Subscriptions reported gone are removed from the registry. Dispatch never fails;
// every problem is logged and counted in the returned Report.
func (d *Dispatcher) Dispatch(ctx context.Context, recipientID uint, payload models.NotificationPayload) Report {
	var report Report
	if !d.Enabled() {
		if d != nil {
			d.log.Debug(ctx, "Push not configured, skipping dispatch", "recipient_id", recipientID)
		}
		return report
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.log.Warn(ctx, "Failed to encode push payload", "recipient_id", recipientID, "error", err.Error())
		return report
	}

	subs, err := d.listFor(ctx, recipientID)
	if err != nil {
		d.log.Warn(ctx, "Failed to load push subscriptions", "recipient_id", recipientID, "error", err.Error())
		return report
	}
	if len(subs) == 0 {
		return report
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(sub models.PushSubscription) {
			defer wg.Done()
			var outcome string
			ok := safego.Run(ctx, d.log, "push.deliver", func() {
				outcome = d.deliver(ctx, sub, body)
			})
			if !ok {
				outcome = metrics.OutcomeFailed
			}
			metrics.ObservePushDelivery(outcome)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case metrics.OutcomeDelivered:
				report.Delivered++
			case metrics.OutcomeGone:
				report.Gone++
			default:
				report.Failed++
			}
		}(sub)
	}
	wg.Wait()

	d.log.Debug(ctx, "Push dispatch finished", "recipient_id", recipientID,
		"delivered", report.Delivered, "gone", report.Gone, "failed", report.Failed)
	return report
}

func (d *Dispatcher) deliver(ctx context.Context, sub models.PushSubscription, body []byte) string {
	sendCtx, cancel := context.WithTimeout(ctx, d.opts.DeliveryTimeout)
	defer cancel()

	err := d.transport.Send(sendCtx, sub, body)
	switch {
	case err == nil:
		return metrics.OutcomeDelivered
	case errors.Is(err, ErrSubscriptionGone):
		d.prune(ctx, sub)
		return metrics.OutcomeGone
	default:
		d.log.Warn(ctx, "Push delivery failed",
			"subscription_id", sub.ID,
			"user_id", sub.UserID,
			"endpoint", ShortEndpoint(sub.Endpoint),
			"error", err.Error(),
		)
		return metrics.OutcomeFailed
	}
}

func (d *Dispatcher) prune(ctx context.Context, sub models.PushSubscription) {
	storeCtx, cancel := context.WithTimeout(ctx, d.opts.StoreTimeout)
	defer cancel()

	if err := d.registry.Remove(storeCtx, sub.ID); err != nil {
		d.log.Warn(ctx, "Failed to remove gone push subscription",
			"subscription_id", sub.ID, "error", err.Error())
		return
	}
	metrics.PushSubscriptionsPrunedCounter.Inc()
	d.log.Info(ctx, "Removed gone push subscription",
		"subscription_id", sub.ID,
		"user_id", sub.UserID,
		"endpoint", ShortEndpoint(sub.Endpoint),
	)
}

func (d *Dispatcher) listFor(ctx context.Context, userID uint) ([]models.PushSubscription, error) {
	storeCtx, cancel := context.WithTimeout(ctx, d.opts.StoreTimeout)
	defer cancel()
	return d.registry.ListFor(storeCtx, userID)
}
