package crashkit

import (
	"context"
	"errors"
	"testing"
)

func TestRunID(t *testing.T) {
	ctx := context.Background()
	if _, ok := RunIDFromContext(ctx); ok {
		t.Error("run ID reported on a bare context")
	}
	if _, ok := RunIDFromContext(WithRunID(ctx, "")); ok {
		t.Error("empty run ID should count as unset")
	}
	if id, ok := RunIDFromContext(WithRunID(ctx, "run-1")); !ok || id != "run-1" {
		t.Errorf("RunIDFromContext = %q/%v", id, ok)
	}
}

func TestContextID_ZeroIsSet(t *testing.T) {
	if _, ok := ContextIDFromContext(context.Background()); ok {
		t.Error("context ID reported on a bare context")
	}
	id, ok := ContextIDFromContext(WithContextID(context.Background(), 0))
	if !ok || id != 0 {
		t.Errorf("ContextIDFromContext = %d/%v, want 0/true", id, ok)
	}
}

func TestLinkContextID(t *testing.T) {
	if linkContextID(context.Background()) != nil {
		t.Error("expected no callback without a context ID")
	}

	link := linkContextID(WithContextID(context.Background(), 99))
	e := NewEvent(errors.New("boom"), Handled(), "")
	if !link(e) || e.ContextID == nil || *e.ContextID != 99 {
		t.Fatalf("ContextID = %v, want 99", e.ContextID)
	}

	explicit := uint64(7)
	e = NewEvent(errors.New("boom"), Handled(), "")
	e.ContextID = &explicit
	link(e)
	if *e.ContextID != 7 {
		t.Errorf("explicit ContextID overwritten: %d", *e.ContextID)
	}
}
