// wrapper.go wraps agents.Runner so run errors become handled events and
// run panics become unhandled events.

package agentssdk

import (
	"context"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/strongdm/ai-agents-sdk/pkg/agents"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
)

// Option configures a WrappedRunner.
type Option func(*WrappedRunner)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *WrappedRunner) { w.logger = l }
}

// WithEnrichmentStore replaces the default in-memory store.
func WithEnrichmentStore(store EnrichmentStore) Option {
	return func(w *WrappedRunner) { w.enrichments = store }
}

// WithoutBreadcrumbs stops hooks from leaving breadcrumbs.
func WithoutBreadcrumbs() Option {
	return func(w *WrappedRunner) { w.breadcrumbs = false }
}

// WrappedRunner is an agents.Runner that reports failures.
type WrappedRunner struct {
	inner       *agents.Runner
	reporter    crashkit.Reporter
	enrichments EnrichmentStore
	breadcrumbs bool
	logger      zerolog.Logger
}

// Instrument wraps runner so errors and panics reach reporter.
//
//	c, _ := client.New(cfg)
//	runner := agentssdk.Instrument(agents.NewRunner(llm), c)
//	result, err := runner.Run(ctx, agent, input, session, nil)
func Instrument(runner *agents.Runner, reporter crashkit.Reporter, opts ...Option) *WrappedRunner {
	w := &WrappedRunner{
		inner:       runner,
		reporter:    reporter,
		enrichments: NewEnrichmentStore(DefaultHistorySize),
		breadcrumbs: true,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With().Str("component", "agentssdk").Logger()
	return w
}

// Run executes the agent, reporting any error or panic. Panics are re-raised.
func (w *WrappedRunner) Run(ctx context.Context, agent *agents.Agent, input string, session agents.Session, cfg *agents.RunConfig) (agents.RunResult, error) {
	var result agents.RunResult
	err := w.guard(ctx, session, false, func(ctx context.Context) error {
		var err error
		result, err = w.inner.Run(ctx, agent, input, session, w.wrapRunConfig(cfg))
		return err
	})
	return result, err
}

// RunOnce executes a single turn, reporting any error or panic.
func (w *WrappedRunner) RunOnce(ctx context.Context, agent *agents.Agent, input string, cfg *agents.RunConfig) (agents.RunResult, error) {
	var result agents.RunResult
	err := w.guard(ctx, nil, false, func(ctx context.Context) error {
		var err error
		result, err = w.inner.RunOnce(ctx, agent, input, w.wrapRunConfig(cfg))
		return err
	})
	return result, err
}

// RunStream starts a streaming run. Only failures to start are reported;
// the run's enrichment is kept until ctx is done.
func (w *WrappedRunner) RunStream(ctx context.Context, agent *agents.Agent, input string, session agents.Session, cfg *agents.RunConfig) (*agents.StreamingRun, error) {
	var stream *agents.StreamingRun
	err := w.guard(ctx, session, true, func(ctx context.Context) error {
		var err error
		stream, err = w.inner.RunStream(ctx, agent, input, session, w.wrapRunConfig(cfg))
		return err
	})
	return stream, err
}

// Inner returns the wrapped runner.
func (w *WrappedRunner) Inner() *agents.Runner {
	return w.inner
}

// guard runs fn under a fresh run ID and reports what it returns or raises.
// With streaming set, enrichment outlives guard until ctx is cancelled.
func (w *WrappedRunner) guard(ctx context.Context, session any, streaming bool, fn func(ctx context.Context) error) (err error) {
	runID := uuid.NewString()
	ctx = crashkit.WithRunID(ctx, runID)
	if id, ok := w.contextID(ctx, session); ok {
		ctx = crashkit.WithContextID(ctx, id)
	}

	defer func() {
		if !streaming || err != nil {
			w.enrichments.Delete(runID)
		} else {
			context.AfterFunc(ctx, func() { w.enrichments.Delete(runID) })
		}
	}()
	defer w.capturePanic(ctx, runID)

	if err = fn(ctx); err != nil {
		enrichment, _ := w.enrichments.Get(runID)
		w.reporter.Notify(ctx, err, enrichEvent(classifyError(err), enrichment))
	}
	return err
}

// capturePanic reports a panic as unhandled and re-raises it.
func (w *WrappedRunner) capturePanic(ctx context.Context, runID string) {
	r := recover()
	if r == nil {
		return
	}
	enrichment, _ := w.enrichments.Get(runID)
	w.logger.Warn().Interface("panic", r).Msg("agent run panicked")
	w.reporter.NotifyUnhandled(ctx, crashkit.RecoveredError(r), crashkit.Unhandled(), string(debug.Stack()),
		enrichEvent(ErrorTypePanic, enrichment))
	panic(r)
}

// contextID prefers the session's cxdb context, then the one on ctx.
func (w *WrappedRunner) contextID(ctx context.Context, session any) (uint64, bool) {
	if provider, ok := session.(crashkit.ContextIDProvider); ok {
		if id, err := provider.ContextID(ctx); err == nil {
			return id, true
		}
	}
	return crashkit.ContextIDFromContext(ctx)
}

// wrapRunConfig clones cfg with the enrichment hooks in front of the user's.
func (w *WrappedRunner) wrapRunConfig(cfg *agents.RunConfig) *agents.RunConfig {
	var cloned agents.RunConfig
	if cfg != nil {
		cloned = *cfg
	}
	var reporter crashkit.Reporter
	if w.breadcrumbs {
		reporter = w.reporter
	}
	cloned.Hooks = NewHookAdapter(w.enrichments, cloned.Hooks, reporter)
	return &cloned
}
