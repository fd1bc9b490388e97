package agentssdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
)

func TestEnrichmentStore_UpdateGetDelete(t *testing.T) {
	store := NewEnrichmentStore(0)

	_, ok := store.Get("run-1")
	assert.False(t, ok)

	store.Update("run-1", func(e *Enrichment) { e.AgentName = "planner" })
	store.Update("run-1", func(e *Enrichment) { e.Operation = OperationTool })

	got, ok := store.Get("run-1")
	require.True(t, ok)
	assert.Equal(t, "planner", got.AgentName)
	assert.Equal(t, OperationTool, got.Operation)

	store.Delete("run-1")
	_, ok = store.Get("run-1")
	assert.False(t, ok)
}

func TestEnrichmentStore_HistoryIsBoundedAndOrdered(t *testing.T) {
	store := NewEnrichmentStore(3)
	for i := range 5 {
		store.Record("run", OperationRecord{Kind: OperationTool, Tool: &ToolOperation{Name: fmt.Sprintf("t%d", i)}})
	}

	got, ok := store.Get("run")
	require.True(t, ok)
	require.Len(t, got.History, 3)
	assert.Equal(t, "t2", got.History[0].Tool.Name)
	assert.Equal(t, "t4", got.History[2].Tool.Name)
}

func TestEnrichmentStore_FinishUpdatesLatestOfKind(t *testing.T) {
	store := NewEnrichmentStore(4)
	store.Record("run", OperationRecord{Kind: OperationTool, Tool: &ToolOperation{Name: "a"}})
	store.Record("run", OperationRecord{Kind: OperationLLM, LLM: &LLMOperation{Model: "m"}})
	store.Record("run", OperationRecord{Kind: OperationTool, Tool: &ToolOperation{Name: "b"}})

	store.Finish("run", OperationTool, func(op *OperationRecord) { op.Tool.OutputSize = 7 })
	store.Finish("missing", OperationTool, func(op *OperationRecord) { t.Fatal("unexpected finish") })

	got, _ := store.Get("run")
	assert.Equal(t, 0, got.History[0].Tool.OutputSize)
	assert.Equal(t, 7, got.History[2].Tool.OutputSize)
}

func TestEnrichmentStore_GetReturnsCopies(t *testing.T) {
	store := NewEnrichmentStore(2)
	store.Record("run", OperationRecord{Kind: OperationTool, Tool: &ToolOperation{Name: "a"}})

	got, _ := store.Get("run")
	got.History[0].Tool.Name = "mutated"

	again, _ := store.Get("run")
	assert.Equal(t, "a", again.History[0].Tool.Name)
}

func TestEnrichmentStore_Concurrent(t *testing.T) {
	store := NewEnrichmentStore(DefaultHistorySize)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runID := fmt.Sprintf("run-%d", i%4)
			store.Update(runID, func(e *Enrichment) { e.Model = "m" })
			store.Record(runID, OperationRecord{Kind: OperationLLM, LLM: &LLMOperation{}})
			store.Get(runID)
		}(i)
	}
	wg.Wait()

	got, ok := store.Get("run-0")
	require.True(t, ok)
	assert.Len(t, got.History, 5)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ErrorTypeError},
		{errors.New("boom"), ErrorTypeError},
		{fmt.Errorf("llm: %w", context.DeadlineExceeded), ErrorTypeTimeout},
		{context.Canceled, ErrorTypeCanceled},
		{errors.New("request Blocked By Policy"), ErrorTypeGuardrail},
		{errors.New("output guardrail tripped"), ErrorTypeGuardrail},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyError(tt.err), "%v", tt.err)
	}
}

func TestEnrichEvent(t *testing.T) {
	event := crashkit.NewEvent(errors.New("boom"), crashkit.Handled(), "")
	keep := enrichEvent(ErrorTypeError, Enrichment{
		AgentName:   "planner",
		Model:       "gpt-4o",
		Operation:   OperationTool,
		OperationID: "call-1",
		ToolName:    "Search",
		History:     []OperationRecord{{Kind: OperationTool}},
	})(event)

	assert.True(t, keep)
	assert.Equal(t, "planner", event.Context)
	section := event.Metadata.Section(MetadataSection)
	assert.Equal(t, "Search", section["tool_name"])
	assert.Equal(t, "gpt-4o", section["model"])
	assert.Equal(t, ErrorTypeError, section["error_type"])
	assert.NotContains(t, section, "tool_call_id")
	assert.Len(t, section["operation_history"], 1)

	// An existing context is kept.
	other := crashkit.NewEvent(errors.New("boom"), crashkit.Handled(), "")
	other.Context = "checkout"
	enrichEvent(ErrorTypeError, Enrichment{AgentName: "planner"})(other)
	assert.Equal(t, "checkout", other.Context)
}
