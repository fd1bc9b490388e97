// Package multi provides a Deliverer that fans out to multiple deliverers.
// Every deliverer receives every payload; the results are combined.
package multi

import (
	"context"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
)

// Deliverer fans out to multiple deliverers.
type Deliverer struct {
	deliverers []crashkit.Deliverer
}

// New creates a deliverer that writes to all of deliverers.
func New(deliverers ...crashkit.Deliverer) *Deliverer {
	return &Deliverer{deliverers: deliverers}
}

// DeliverEvent sends the payload to every deliverer, even after one fails.
func (d *Deliverer) DeliverEvent(ctx context.Context, payload *crashkit.EventPayload, params crashkit.DeliveryParams) crashkit.DeliveryStatus {
	statuses := make([]crashkit.DeliveryStatus, 0, len(d.deliverers))
	for _, inner := range d.deliverers {
		statuses = append(statuses, inner.DeliverEvent(ctx, payload, params))
	}
	return Combine(statuses...)
}

// DeliverSession sends the payload to every deliverer, even after one fails.
func (d *Deliverer) DeliverSession(ctx context.Context, payload *crashkit.SessionPayload, params crashkit.DeliveryParams) crashkit.DeliveryStatus {
	statuses := make([]crashkit.DeliveryStatus, 0, len(d.deliverers))
	for _, inner := range d.deliverers {
		statuses = append(statuses, inner.DeliverSession(ctx, payload, params))
	}
	return Combine(statuses...)
}

// Combine merges statuses: any Undelivered wins so the payload is retried,
// then any Failure, else Delivered.
func Combine(statuses ...crashkit.DeliveryStatus) crashkit.DeliveryStatus {
	result := crashkit.Delivered
	for _, s := range statuses {
		switch s {
		case crashkit.Undelivered:
			return crashkit.Undelivered
		case crashkit.Failure:
			result = crashkit.Failure
		}
	}
	return result
}
