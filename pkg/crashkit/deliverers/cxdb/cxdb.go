// Package cxdb provides a Deliverer that persists events to cxdb as SystemMessage items.
package cxdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"
	cxdtypes "github.com/strongdm/ai-cxdb/clients/go/types"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
)

// CXDBClient is the minimal interface for cxdb client operations.
// The real *cxdb.Client satisfies this interface.
type CXDBClient interface {
	CreateContext(ctx context.Context, baseTurnID uint64) (*cxdbclient.ContextHead, error)
	AppendTurn(ctx context.Context, req *cxdbclient.AppendRequest) (*cxdbclient.AppendResult, error)
}

// Option configures the cxdb deliverer.
type Option func(*Deliverer)

// WithOrphanLabels sets labels for orphan error contexts.
func WithOrphanLabels(labels []string) Option {
	return func(d *Deliverer) { d.orphanLabels = labels }
}

// WithClientTag sets the client tag for orphan contexts.
func WithClientTag(tag string) Option {
	return func(d *Deliverer) { d.clientTag = tag }
}

// WithSessionDeliverer forwards session payloads, which cxdb does not store.
func WithSessionDeliverer(inner crashkit.Deliverer) Option {
	return func(d *Deliverer) { d.sessions = inner }
}

// Deliverer writes events to cxdb.
type Deliverer struct {
	client       CXDBClient
	orphanLabels []string
	clientTag    string
	sessions     crashkit.Deliverer
}

// New creates a deliverer that writes to cxdb.
func New(client CXDBClient, opts ...Option) *Deliverer {
	d := &Deliverer{
		client:       client,
		orphanLabels: []string{"error", "unlinked"},
		clientTag:    "crashkit",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DeliverEvent appends every event in the payload. A cxdb error makes the
// payload Undelivered so it is retried; an encode error is a Failure.
func (d *Deliverer) DeliverEvent(ctx context.Context, payload *crashkit.EventPayload, _ crashkit.DeliveryParams) crashkit.DeliveryStatus {
	for _, event := range payload.Events {
		if err := d.write(ctx, event); err != nil {
			if isEncodeError(err) {
				return crashkit.Failure
			}
			return crashkit.Undelivered
		}
	}
	return crashkit.Delivered
}

// DeliverSession forwards to the session deliverer, or acknowledges and drops.
func (d *Deliverer) DeliverSession(ctx context.Context, payload *crashkit.SessionPayload, params crashkit.DeliveryParams) crashkit.DeliveryStatus {
	if d.sessions == nil {
		return crashkit.Delivered
	}
	return d.sessions.DeliverSession(ctx, payload, params)
}

type encodeError struct{ err error }

func (e *encodeError) Error() string { return "encode payload: " + e.err.Error() }
func (e *encodeError) Unwrap() error { return e.err }

func isEncodeError(err error) bool {
	_, ok := err.(*encodeError)
	return ok
}

func (d *Deliverer) write(ctx context.Context, event *crashkit.Event) error {
	var contextID uint64
	isOrphan := false

	if event.ContextID != nil {
		contextID = *event.ContextID
	} else {
		// Create orphan context
		head, err := d.client.CreateContext(ctx, 0)
		if err != nil {
			return fmt.Errorf("create orphan context: %w", err)
		}
		contextID = head.ContextID
		isOrphan = true
	}

	item, err := d.buildConversationItem(event, isOrphan)
	if err != nil {
		return &encodeError{err}
	}

	// Encode to msgpack using the official cxdb encoder.
	payload, err := cxdbclient.EncodeMsgpack(item)
	if err != nil {
		return &encodeError{err}
	}

	req := &cxdbclient.AppendRequest{
		ContextID:      contextID,
		ParentTurnID:   0,
		TypeID:         cxdtypes.TypeIDConversationItem,
		TypeVersion:    cxdtypes.TypeVersionConversationItem,
		Payload:        payload,
		IdempotencyKey: event.ID,
	}
	if _, err := d.client.AppendTurn(ctx, req); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// buildConversationItem creates a ConversationItem from an Event.
func (d *Deliverer) buildConversationItem(event *crashkit.Event, isOrphan bool) (*cxdtypes.ConversationItem, error) {
	content, err := buildEventDetails(event)
	if err != nil {
		return nil, err
	}

	item := &cxdtypes.ConversationItem{
		ItemType:  cxdtypes.ItemTypeSystem,
		Status:    cxdtypes.ItemStatusComplete,
		Timestamp: event.Timestamp.UnixMilli(),
		ID:        event.ID,
		System: &cxdtypes.SystemMessage{
			Kind:    cxdtypes.SystemKindError,
			Title:   title(event),
			Content: content,
		},
	}

	// cxdb expects context metadata on the first turn of a new context.
	if isOrphan {
		item.ContextMetadata = &cxdtypes.ContextMetadata{
			Labels:    d.orphanLabels,
			ClientTag: d.clientTag,
		}
	}
	return item, nil
}

// title renders "class: message", capped at 100 characters.
func title(event *crashkit.Event) string {
	if len(event.Errors) == 0 {
		return "error"
	}
	first := event.Errors[0]
	t := first.Class
	if first.Message != "" {
		const maxMsgLen = 80
		msg := first.Message
		if len(msg) > maxMsgLen {
			msg = msg[:maxMsgLen] + "..."
		}
		t = first.Class + ": " + msg
	}
	if len(t) > 100 {
		t = t[:97] + "..."
	}
	return t
}

// buildEventDetails encodes the event summary as JSON for SystemMessage.Content.
func buildEventDetails(event *crashkit.Event) (string, error) {
	state := event.HandledState()
	details := map[string]any{
		"event_id":        event.ID,
		"severity":        string(event.Severity()),
		"severity_reason": string(state.SeverityReasonType()),
		"unhandled":       event.IsUnhandled(),
		"grouping_hash":   event.GroupingHash,
	}

	if len(event.Errors) > 0 {
		classes := make([]string, 0, len(event.Errors))
		for _, e := range event.Errors {
			classes = append(classes, e.Class)
		}
		details["error_class"] = event.Errors[0].Class
		details["message"] = event.Errors[0].Message
		details["error_chain"] = strings.Join(classes, " <- ")
		if event.Errors[0].Stacktrace != "" {
			details["stack_trace"] = event.Errors[0].Stacktrace
		}
	}
	if event.Context != "" {
		details["context"] = event.Context
	}
	if event.ContextID != nil {
		details["context_id"] = *event.ContextID
	}
	if event.User != (crashkit.User{}) {
		details["user"] = event.User
	}
	if event.Session != nil {
		details["session"] = event.Session
	}
	details["app"] = event.App
	details["device"] = map[string]any{
		"memory_bytes":    event.Device.MemoryBytes,
		"goroutine_count": event.Device.GoroutineCount,
		"host_name":       event.Device.HostName,
	}
	if len(event.Breadcrumbs) > 0 {
		details["breadcrumbs"] = event.Breadcrumbs
	}
	if event.Metadata.Len() > 0 {
		details["metadata"] = event.Metadata.ToMap()
	}

	jsonBytes, err := json.Marshal(details)
	if err != nil {
		return "", err
	}
	return string(jsonBytes), nil
}
