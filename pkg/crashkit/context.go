// context.go carries per-run identifiers on a context.Context so capture
// points deep in a call tree can link events back to a run or a cxdb context.

package crashkit

import "context"

type ctxKey int

const (
	runKey ctxKey = iota
	cxdbContextKey
)

// WithRunID tags ctx with an adapter run. Hook breadcrumbs and the error
// reported at the run boundary share it.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runKey, runID)
}

// RunIDFromContext returns the run tagged by WithRunID. An empty ID counts as unset.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, _ := ctx.Value(runKey).(string)
	return id, id != ""
}

// WithContextID links events captured under ctx to a cxdb context. Zero is a
// valid ID, so the value is boxed to tell it apart from "unset".
func WithContextID(ctx context.Context, contextID uint64) context.Context {
	return context.WithValue(ctx, cxdbContextKey, &contextID)
}

// ContextIDFromContext returns the cxdb context set by WithContextID.
func ContextIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(cxdbContextKey).(*uint64)
	if !ok || id == nil {
		return 0, false
	}
	return *id, true
}

// linkContextID returns an OnErrorFunc stamping the cxdb context from ctx, or
// nil when ctx carries none.
func linkContextID(ctx context.Context) OnErrorFunc {
	id, ok := ContextIDFromContext(ctx)
	if !ok {
		return nil
	}
	return func(e *Event) bool {
		if e.ContextID == nil {
			e.ContextID = &id
		}
		return true
	}
}

// ContextIDProvider is satisfied by agent sessions that know their cxdb
// context, such as the agents SDK's cxdb-backed session.
type ContextIDProvider interface {
	ContextID(ctx context.Context) (uint64, error)
}
