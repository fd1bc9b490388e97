// hooks.go implements agents.RunHooks to record enrichment and breadcrumbs.
// Errors are detected by WrappedRunner, not here.

package agentssdk

import (
	"context"
	"time"

	"github.com/strongdm/ai-agents-sdk/pkg/agents"
	llmsdk "github.com/strongdm/ai-llm-sdk/pkg/llm"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
)

// Operation kinds stored in enrichment and history.
const (
	OperationLLM  = "llm"
	OperationTool = "tool"
)

// HookAdapter wraps an inner RunHooks. It never fails a run: only the inner
// hooks' errors are returned.
type HookAdapter struct {
	store    EnrichmentStore
	inner    agents.RunHooks
	reporter crashkit.Reporter
	now      func() time.Time
}

// NewHookAdapter wraps inner (may be nil). When reporter is non-nil every
// hook also leaves a breadcrumb.
func NewHookAdapter(store EnrichmentStore, inner agents.RunHooks, reporter crashkit.Reporter) *HookAdapter {
	return &HookAdapter{store: store, inner: inner, reporter: reporter, now: time.Now}
}

// OnAgentStart records the agent name.
func (h *HookAdapter) OnAgentStart(ctx context.Context, runCtx *agents.AgentHookContext, agent *agents.Agent) error {
	if agent != nil {
		h.update(ctx, func(e *Enrichment) { e.AgentName = agent.Name() })
		h.breadcrumb("agent started", crashkit.BreadcrumbState, map[string]any{"agent": agent.Name()})
	}
	if h.inner != nil {
		return h.inner.OnAgentStart(ctx, runCtx, agent)
	}
	return nil
}

// OnAgentEnd delegates to inner hooks.
func (h *HookAdapter) OnAgentEnd(ctx context.Context, runCtx *agents.AgentHookContext, agent *agents.Agent, result agents.RunResult) error {
	if h.inner != nil {
		return h.inner.OnAgentEnd(ctx, runCtx, agent, result)
	}
	return nil
}

// OnHandoff records the new agent and leaves a navigation breadcrumb.
func (h *HookAdapter) OnHandoff(ctx context.Context, runCtx *agents.RunContext, from *agents.Agent, to *agents.Agent) error {
	meta := map[string]any{}
	if from != nil {
		meta["from"] = from.Name()
	}
	if to != nil {
		meta["to"] = to.Name()
		h.update(ctx, func(e *Enrichment) {
			e.AgentName = to.Name()
			e.Operation = "handoff"
		})
	}
	h.breadcrumb("agent handoff", crashkit.BreadcrumbNavigation, meta)

	if h.inner != nil {
		return h.inner.OnHandoff(ctx, runCtx, from, to)
	}
	return nil
}

// OnToolStart marks the tool call as the operation in flight.
func (h *HookAdapter) OnToolStart(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, tool agents.Tool, call llmsdk.ToolCall) error {
	agentName := nameOf(agent)
	h.update(ctx, func(e *Enrichment) {
		if agentName != "" {
			e.AgentName = agentName
		}
		e.Operation = OperationTool
		e.ToolName = tool.Name
		e.ToolCallID = call.ID
		e.OperationID = call.ID
	})
	h.record(ctx, OperationRecord{
		Kind:      OperationTool,
		StartedAt: h.now(),
		AgentName: agentName,
		Tool:      &ToolOperation{Name: tool.Name, CallID: call.ID, InputSize: len(call.Arguments)},
	})
	h.breadcrumb("tool call: "+tool.Name, crashkit.BreadcrumbProcess, map[string]any{
		"tool":    tool.Name,
		"call_id": call.ID,
	})

	if h.inner != nil {
		return h.inner.OnToolStart(ctx, runCtx, agent, tool, call)
	}
	return nil
}

// OnToolEnd completes the tool record.
func (h *HookAdapter) OnToolEnd(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, tool agents.Tool, output string) error {
	h.finish(ctx, OperationTool, func(op *OperationRecord) {
		op.DurationMs = h.now().Sub(op.StartedAt).Milliseconds()
		if op.Tool != nil {
			op.Tool.OutputSize = len(output)
		}
	})

	if h.inner != nil {
		return h.inner.OnToolEnd(ctx, runCtx, agent, tool, output)
	}
	return nil
}

// OnLLMStart marks the model request as the operation in flight.
func (h *HookAdapter) OnLLMStart(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, req llmsdk.Request) error {
	agentName := nameOf(agent)
	h.update(ctx, func(e *Enrichment) {
		if agentName != "" {
			e.AgentName = agentName
		}
		e.Operation = OperationLLM
		e.Model = req.Model
	})
	h.record(ctx, OperationRecord{
		Kind:      OperationLLM,
		StartedAt: h.now(),
		AgentName: agentName,
		LLM:       newLLMOperation(req),
	})
	h.breadcrumb("llm request", crashkit.BreadcrumbRequest, map[string]any{
		"model":    req.Model,
		"messages": len(req.Messages),
	})

	if h.inner != nil {
		return h.inner.OnLLMStart(ctx, runCtx, agent, req)
	}
	return nil
}

// OnLLMEnd completes the model record.
func (h *HookAdapter) OnLLMEnd(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, resp llmsdk.Response) error {
	h.finish(ctx, OperationLLM, func(op *OperationRecord) {
		op.DurationMs = h.now().Sub(op.StartedAt).Milliseconds()
		if op.LLM != nil {
			op.LLM.finish(resp)
		}
	})
	h.breadcrumb("llm response", crashkit.BreadcrumbRequest, map[string]any{
		"finish_reason": string(resp.FinishReason),
		"total_tokens":  resp.Usage.TotalTokens,
	})

	if h.inner != nil {
		return h.inner.OnLLMEnd(ctx, runCtx, agent, resp)
	}
	return nil
}

func (h *HookAdapter) update(ctx context.Context, fn func(e *Enrichment)) {
	if runID, ok := crashkit.RunIDFromContext(ctx); ok {
		h.store.Update(runID, fn)
	}
}

func (h *HookAdapter) record(ctx context.Context, op OperationRecord) {
	if runID, ok := crashkit.RunIDFromContext(ctx); ok {
		h.store.Record(runID, op)
	}
}

func (h *HookAdapter) finish(ctx context.Context, kind string, fn func(op *OperationRecord)) {
	if runID, ok := crashkit.RunIDFromContext(ctx); ok {
		h.store.Finish(runID, kind, fn)
	}
}

func (h *HookAdapter) breadcrumb(message string, typ crashkit.BreadcrumbType, meta map[string]any) {
	if h.reporter != nil {
		h.reporter.LeaveBreadcrumb(message, typ, meta)
	}
}

func nameOf(agent *agents.Agent) string {
	if agent == nil {
		return ""
	}
	return agent.Name()
}
