package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/suratbrts/cms/internal/model"
)

// ErrExpired is returned when a push subscription is no longer valid (404/410).
var ErrExpired = errors.New("push subscription expired")

const (
	defaultTTL     = 24 * time.Hour
	maxTopicLength = 32
)

// Urgency is the RFC 8030 delivery urgency.
type Urgency = webpush.Urgency

const (
	UrgencyNormal = webpush.UrgencyNormal
	UrgencyHigh   = webpush.UrgencyHigh
)

// Payload is the JSON shown by the service worker. Tag doubles as the push
// topic, so a newer payload with the same tag replaces an undelivered older
// one. Urgency and TTL only shape delivery.
type Payload struct {
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	URL     string            `json:"url,omitempty"`
	Tag     string            `json:"tag,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
	Urgency Urgency           `json:"-"`
	TTL     time.Duration     `json:"-"`
}

// Service sends web push notifications signed with the VAPID key pair.
type Service struct {
	publicKey  string
	privateKey string
	subscriber string
	client     webpush.HTTPClient
}

// NewService creates a push service. subscriber is the contact URI (mailto:
// or https:) sent to push services.
func NewService(publicKey, privateKey, subscriber string) *Service {
	return &Service{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Send delivers payload to one subscription.
func (s *Service) Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	ttl := payload.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	urgency := payload.Urgency
	if urgency == "" {
		urgency = UrgencyNormal
	}

	resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		Subscriber:      s.subscriber,
		Topic:           topic(payload.Tag),
		TTL:             int(ttl.Seconds()),
		Urgency:         urgency,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// topic reduces a tag to the URL-safe base64 alphabet and 32 characters the
// Topic header allows.
func topic(tag string) string {
	out := make([]byte, 0, maxTopicLength)
	for i := 0; i < len(tag) && len(out) < maxTopicLength; i++ {
		c := tag[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			out = append(out, c)
		}
	}
	return string(out)
}

// GenerateVAPIDKeys returns a new P-256 key pair, base64url encoded: the
// uncompressed public point and the 32-byte private scalar.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate P-256 key: %w", err)
	}
	publicKey = base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes())
	privateKey = base64.RawURLEncoding.EncodeToString(key.Bytes())
	return publicKey, privateKey, nil
}
