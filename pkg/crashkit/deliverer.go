// deliverer.go defines the network delivery contract and the payloads it carries.

package crashkit

import (
	"context"
	"time"
)

// DeliveryStatus classifies the outcome of one delivery attempt.
type DeliveryStatus int

const (
	// Delivered means the collector accepted the payload.
	Delivered DeliveryStatus = iota

	// Undelivered means a transient or network-layer failure; retry later.
	Undelivered

	// Failure means a non-retryable rejection; the payload should be dropped.
	Failure
)

func (s DeliveryStatus) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case Undelivered:
		return "undelivered"
	case Failure:
		return "failure"
	}
	return "unknown"
}

// Notifier identifies this library in every payload.
type Notifier struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	URL     string `json:"url"`
}

// DefaultNotifier is reported unless the client is configured otherwise.
var DefaultNotifier = Notifier{
	Name:    "crashkit-go",
	Version: "1.0.0",
	URL:     "https://github.com/strongdm/ai-crashkit",
}

// EventPayload is one request carrying one or more events.
type EventPayload struct {
	APIKey   string   `json:"apiKey"`
	Notifier Notifier `json:"notifier"`
	Events   []*Event `json:"events"`
}

// SessionRecord is the delivered form of a session start.
type SessionRecord struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
	User      User      `json:"user"`
}

// SessionPayload is one request carrying session starts. It is also the
// on-disk form of a stored session.
type SessionPayload struct {
	Notifier Notifier        `json:"notifier"`
	App      AppInfo         `json:"app"`
	Device   DeviceInfo      `json:"device"`
	Sessions []SessionRecord `json:"sessions"`
}

// DeliveryParams tell a Deliverer where and how to send a payload.
type DeliveryParams struct {
	Endpoint string
	Headers  map[string]string
}

const (
	HeaderAPIKey         = "Crashkit-Api-Key"
	HeaderPayloadVersion = "Crashkit-Payload-Version"
	HeaderSentAt         = "Crashkit-Sent-At"
	HeaderIntegrity      = "Crashkit-Integrity"
)

// EventDeliveryParams builds the params for an event request.
func EventDeliveryParams(endpoint, apiKey string, now time.Time) DeliveryParams {
	return DeliveryParams{
		Endpoint: endpoint,
		Headers: map[string]string{
			HeaderAPIKey:         apiKey,
			HeaderPayloadVersion: "4.0",
			HeaderSentAt:         now.UTC().Format(time.RFC3339Nano),
		},
	}
}

// SessionDeliveryParams builds the params for a session request.
func SessionDeliveryParams(endpoint, apiKey string, now time.Time) DeliveryParams {
	return DeliveryParams{
		Endpoint: endpoint,
		Headers: map[string]string{
			HeaderAPIKey:         apiKey,
			HeaderPayloadVersion: "1.0",
			HeaderSentAt:         now.UTC().Format(time.RFC3339Nano),
		},
	}
}

// Deliverer sends payloads over the network.
// Implementations must be safe for concurrent use and must return promptly
// once ctx is cancelled (reporting Undelivered).
type Deliverer interface {
	// DeliverEvent sends an event payload.
	DeliverEvent(ctx context.Context, payload *EventPayload, params DeliveryParams) DeliveryStatus

	// DeliverSession sends a session payload.
	DeliverSession(ctx context.Context, payload *SessionPayload, params DeliveryParams) DeliveryStatus
}
