// Package noop provides a Deliverer that discards all payloads.
// Useful for testing and for disabling network delivery.
package noop

import (
	"context"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
)

// Deliverer discards all payloads.
type Deliverer struct{}

// New creates a deliverer that acknowledges and drops every payload.
func New() *Deliverer {
	return &Deliverer{}
}

// DeliverEvent discards the payload and reports Delivered.
func (Deliverer) DeliverEvent(context.Context, *crashkit.EventPayload, crashkit.DeliveryParams) crashkit.DeliveryStatus {
	return crashkit.Delivered
}

// DeliverSession discards the payload and reports Delivered.
func (Deliverer) DeliverSession(context.Context, *crashkit.SessionPayload, crashkit.DeliveryParams) crashkit.DeliveryStatus {
	return crashkit.Delivered
}
