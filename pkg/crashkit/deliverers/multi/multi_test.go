package multi

import (
	"context"
	"testing"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
)

// fixedDeliverer returns a fixed status and counts calls.
type fixedDeliverer struct {
	status   crashkit.DeliveryStatus
	events   int
	sessions int
}

func (f *fixedDeliverer) DeliverEvent(context.Context, *crashkit.EventPayload, crashkit.DeliveryParams) crashkit.DeliveryStatus {
	f.events++
	return f.status
}

func (f *fixedDeliverer) DeliverSession(context.Context, *crashkit.SessionPayload, crashkit.DeliveryParams) crashkit.DeliveryStatus {
	f.sessions++
	return f.status
}

func TestDeliverer_ImplementsDeliverer(t *testing.T) {
	var _ crashkit.Deliverer = New()
}

func TestDeliverer_FansOutToAll(t *testing.T) {
	a := &fixedDeliverer{status: crashkit.Failure}
	b := &fixedDeliverer{status: crashkit.Delivered}
	d := New(a, b)

	if got := d.DeliverEvent(context.Background(), &crashkit.EventPayload{}, crashkit.DeliveryParams{}); got != crashkit.Failure {
		t.Errorf("DeliverEvent = %v, want failure", got)
	}
	d.DeliverSession(context.Background(), &crashkit.SessionPayload{}, crashkit.DeliveryParams{})

	if a.events != 1 || b.events != 1 {
		t.Errorf("events = %d/%d, want 1/1", a.events, b.events)
	}
	if a.sessions != 1 || b.sessions != 1 {
		t.Errorf("sessions = %d/%d, want 1/1", a.sessions, b.sessions)
	}
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name string
		in   []crashkit.DeliveryStatus
		want crashkit.DeliveryStatus
	}{
		{"empty", nil, crashkit.Delivered},
		{"all delivered", []crashkit.DeliveryStatus{crashkit.Delivered, crashkit.Delivered}, crashkit.Delivered},
		{"failure", []crashkit.DeliveryStatus{crashkit.Delivered, crashkit.Failure}, crashkit.Failure},
		{"undelivered wins", []crashkit.DeliveryStatus{crashkit.Failure, crashkit.Undelivered}, crashkit.Undelivered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Combine(tt.in...); got != tt.want {
				t.Errorf("Combine(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
