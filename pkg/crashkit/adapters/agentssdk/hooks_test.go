package agentssdk

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/strongdm/ai-agents-sdk/pkg/agents"
	llmsdk "github.com/strongdm/ai-llm-sdk/pkg/llm"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
)

// mockRunHooks implements agents.RunHooks for testing.
type mockRunHooks struct {
	agentStartCalled bool
	toolStartCalled  bool
	toolEndCalled    bool
	llmStartCalled   bool
	handoffCalled    bool
	returnErr        error
}

func (m *mockRunHooks) OnAgentStart(ctx context.Context, runCtx *agents.AgentHookContext, agent *agents.Agent) error {
	m.agentStartCalled = true
	return m.returnErr
}

func (m *mockRunHooks) OnAgentEnd(ctx context.Context, runCtx *agents.AgentHookContext, agent *agents.Agent, result agents.RunResult) error {
	return m.returnErr
}

func (m *mockRunHooks) OnHandoff(ctx context.Context, runCtx *agents.RunContext, from *agents.Agent, to *agents.Agent) error {
	m.handoffCalled = true
	return m.returnErr
}

func (m *mockRunHooks) OnToolStart(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, tool agents.Tool, call llmsdk.ToolCall) error {
	m.toolStartCalled = true
	return m.returnErr
}

func (m *mockRunHooks) OnToolEnd(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, tool agents.Tool, output string) error {
	m.toolEndCalled = true
	return m.returnErr
}

func (m *mockRunHooks) OnLLMStart(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, req llmsdk.Request) error {
	m.llmStartCalled = true
	return m.returnErr
}

func (m *mockRunHooks) OnLLMEnd(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, resp llmsdk.Response) error {
	return m.returnErr
}

func TestHookAdapter_ImplementsRunHooks(t *testing.T) {
	var _ agents.RunHooks = NewHookAdapter(NewEnrichmentStore(0), nil, nil)
}

func TestHookAdapter_OnToolStart_CapturesEnrichment(t *testing.T) {
	store := NewEnrichmentStore(0)
	reporter := &recordingReporter{}
	adapter := NewHookAdapter(store, nil, reporter)

	ctx := crashkit.WithRunID(context.Background(), "run-123")
	agent := agents.NewAgent(agents.AgentConfig{Name: "test-agent"})
	tool := agents.Tool{Name: "WebSearch"}
	call := llmsdk.ToolCall{ID: "call-456", Arguments: json.RawMessage(`{"q":"go"}`)}

	if err := adapter.OnToolStart(ctx, nil, agent, tool, call); err != nil {
		t.Fatalf("OnToolStart returned error: %v", err)
	}
	if err := adapter.OnToolEnd(ctx, nil, agent, tool, "three"); err != nil {
		t.Fatalf("OnToolEnd returned error: %v", err)
	}

	enrichment, ok := store.Get("run-123")
	if !ok {
		t.Fatal("Enrichment not found for run-123")
	}
	if enrichment.AgentName != "test-agent" {
		t.Errorf("AgentName = %q, want %q", enrichment.AgentName, "test-agent")
	}
	if enrichment.Operation != OperationTool {
		t.Errorf("Operation = %q, want %q", enrichment.Operation, OperationTool)
	}
	if enrichment.ToolName != "WebSearch" || enrichment.ToolCallID != "call-456" {
		t.Errorf("Tool = %q/%q", enrichment.ToolName, enrichment.ToolCallID)
	}

	if len(enrichment.History) != 1 {
		t.Fatalf("History length = %d, want 1", len(enrichment.History))
	}
	op := enrichment.History[0].Tool
	if op.InputSize != len(`{"q":"go"}`) || op.OutputSize != len("three") {
		t.Errorf("Tool sizes = %d/%d", op.InputSize, op.OutputSize)
	}

	crumbs := reporter.getBreadcrumbs()
	if len(crumbs) != 1 || crumbs[0].typ != crashkit.BreadcrumbProcess {
		t.Fatalf("breadcrumbs = %+v", crumbs)
	}
	if crumbs[0].metadata["tool"] != "WebSearch" {
		t.Errorf("breadcrumb tool = %v", crumbs[0].metadata["tool"])
	}
}

func TestHookAdapter_LLMRecordsShapeOnly(t *testing.T) {
	store := NewEnrichmentStore(0)
	adapter := NewHookAdapter(store, nil, nil)
	ctx := crashkit.WithRunID(context.Background(), "run-llm")
	agent := agents.NewAgent(agents.AgentConfig{Name: "writer"})

	req := llmsdk.Request{
		Model:    "gpt-4o",
		Messages: []llmsdk.Message{{Role: llmsdk.RoleAssistant}, {Role: llmsdk.RoleAssistant}},
	}
	if err := adapter.OnLLMStart(ctx, nil, agent, req); err != nil {
		t.Fatalf("OnLLMStart returned error: %v", err)
	}
	resp := llmsdk.Response{
		FinishReason: llmsdk.FinishReasonToolCalls,
		ToolCalls:    []llmsdk.ToolCall{{Name: "Search"}},
	}
	if err := adapter.OnLLMEnd(ctx, nil, agent, resp); err != nil {
		t.Fatalf("OnLLMEnd returned error: %v", err)
	}

	enrichment, _ := store.Get("run-llm")
	if enrichment.Model != "gpt-4o" || enrichment.Operation != OperationLLM {
		t.Errorf("enrichment = %+v", enrichment)
	}
	llm := enrichment.History[0].LLM
	if llm.MessageCount != 2 || len(llm.Messages) != 2 {
		t.Errorf("MessageCount = %d, messages = %d", llm.MessageCount, len(llm.Messages))
	}
	if llm.FinishReason != string(llmsdk.FinishReasonToolCalls) {
		t.Errorf("FinishReason = %q", llm.FinishReason)
	}
	if len(llm.ToolCallNames) != 1 || llm.ToolCallNames[0] != "Search" {
		t.Errorf("ToolCallNames = %v", llm.ToolCallNames)
	}
}

func TestHookAdapter_Handoff(t *testing.T) {
	store := NewEnrichmentStore(0)
	reporter := &recordingReporter{}
	inner := &mockRunHooks{}
	adapter := NewHookAdapter(store, inner, reporter)
	ctx := crashkit.WithRunID(context.Background(), "run-h")

	from := agents.NewAgent(agents.AgentConfig{Name: "triage"})
	to := agents.NewAgent(agents.AgentConfig{Name: "billing"})
	if err := adapter.OnHandoff(ctx, nil, from, to); err != nil {
		t.Fatalf("OnHandoff returned error: %v", err)
	}

	enrichment, _ := store.Get("run-h")
	if enrichment.AgentName != "billing" {
		t.Errorf("AgentName = %q, want billing", enrichment.AgentName)
	}
	if !inner.handoffCalled {
		t.Error("inner OnHandoff not called")
	}
	crumbs := reporter.getBreadcrumbs()
	if len(crumbs) != 1 || crumbs[0].typ != crashkit.BreadcrumbNavigation || crumbs[0].metadata["to"] != "billing" {
		t.Errorf("breadcrumbs = %+v", crumbs)
	}
}

func TestHookAdapter_NoRunID_SkipsEnrichment(t *testing.T) {
	store := NewEnrichmentStore(0)
	adapter := NewHookAdapter(store, nil, nil)

	agent := agents.NewAgent(agents.AgentConfig{Name: "agent"})
	if err := adapter.OnToolStart(context.Background(), nil, agent, agents.Tool{Name: "Tool"}, llmsdk.ToolCall{}); err != nil {
		t.Fatalf("OnToolStart returned error: %v", err)
	}
	if _, ok := store.Get(""); ok {
		t.Error("enrichment stored without a run ID")
	}
}

func TestHookAdapter_DelegatesToInner(t *testing.T) {
	inner := &mockRunHooks{}
	adapter := NewHookAdapter(NewEnrichmentStore(0), inner, nil)
	ctx := crashkit.WithRunID(context.Background(), "run")
	agent := agents.NewAgent(agents.AgentConfig{Name: "agent"})

	adapter.OnAgentStart(ctx, nil, agent)
	adapter.OnToolStart(ctx, nil, agent, agents.Tool{Name: "Tool"}, llmsdk.ToolCall{})
	adapter.OnToolEnd(ctx, nil, agent, agents.Tool{Name: "Tool"}, "")
	adapter.OnLLMStart(ctx, nil, agent, llmsdk.Request{})

	if !inner.agentStartCalled || !inner.toolStartCalled || !inner.toolEndCalled || !inner.llmStartCalled {
		t.Errorf("inner hooks not all called: %+v", inner)
	}
}

func TestHookAdapter_ReturnsInnerError(t *testing.T) {
	innerErr := errors.New("inner hook failed")
	adapter := NewHookAdapter(NewEnrichmentStore(0), &mockRunHooks{returnErr: innerErr}, nil)
	ctx := crashkit.WithRunID(context.Background(), "run")

	err := adapter.OnToolStart(ctx, nil, agents.NewAgent(agents.AgentConfig{Name: "agent"}), agents.Tool{Name: "Tool"}, llmsdk.ToolCall{})
	if !errors.Is(err, innerErr) {
		t.Errorf("OnToolStart error = %v, want %v", err, innerErr)
	}
}
