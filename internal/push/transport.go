// Package push delivers notification payloads to every registered device of a user
// over Web Push, pruning subscriptions the push service reports as gone.
package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/anonto42/nano-midea/social/internal/models"
)

var (
	// ErrSubscriptionGone means the push service no longer knows the endpoint.
	// The subscription should be removed; retrying will never succeed.
	ErrSubscriptionGone = errors.New("push: subscription gone")
	// ErrSubscriptionDeliveryFailed is any other delivery failure.
	ErrSubscriptionDeliveryFailed = errors.New("push: delivery failed")
)

// Transport sends one encrypted payload to one subscription. Send returns nil on
// acceptance, ErrSubscriptionGone or ErrSubscriptionDeliveryFailed otherwise.
type Transport interface {
	Send(ctx context.Context, sub models.PushSubscription, payload []byte) error
}

// VAPID is the application identity used to sign every push message.
type VAPID struct {
	PublicKey  string
	PrivateKey string
	// Subscriber is the contact URL or e-mail sent in the VAPID claims.
	Subscriber string
}

// WebPushTransport implements Transport with the Web Push protocol (RFC 8030/8291/8292).
type WebPushTransport struct {
	vapid      VAPID
	ttl        int
	httpClient *http.Client
}

// NewWebPushTransport creates a transport. ttl is how long the push service should
// hold an undelivered message.
func NewWebPushTransport(vapid VAPID, ttl time.Duration, httpClient *http.Client) *WebPushTransport {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &WebPushTransport{vapid: vapid, ttl: int(ttl.Seconds()), httpClient: httpClient}
}

// PublicKey is the application server key browsers subscribe with.
func (t *WebPushTransport) PublicKey() string {
	return t.vapid.PublicKey
}

func (t *WebPushTransport) Send(ctx context.Context, sub models.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      t.httpClient,
		Subscriber:      t.vapid.Subscriber,
		VAPIDPublicKey:  t.vapid.PublicKey,
		VAPIDPrivateKey: t.vapid.PrivateKey,
		TTL:             t.ttl,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubscriptionDeliveryFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: status %d", ErrSubscriptionGone, resp.StatusCode)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: status %d: %s", ErrSubscriptionDeliveryFailed, resp.StatusCode, body)
	}
}

// GenerateVAPIDKeys creates a new application identity key pair.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	return publicKey, privateKey, err
}

// ShortEndpoint trims an endpoint for logging.
func ShortEndpoint(endpoint string) string {
	const keep = 60
	if len(endpoint) <= keep {
		return endpoint
	}
	return endpoint[:keep] + "..."
}
