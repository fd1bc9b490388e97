// operation.go records the recent LLM and tool calls of a run. Only shape
// metadata is kept; prompt text and tool output never leave the process.

package agentssdk

import (
	"time"

	llmsdk "github.com/strongdm/ai-llm-sdk/pkg/llm"
)

// DefaultHistorySize is how many operations are kept per run.
const DefaultHistorySize = 10

// maxMessageMetadata bounds the per-request message summaries.
const maxMessageMetadata = 10

// OperationRecord is one LLM or tool call.
type OperationRecord struct {
	Kind       string         `json:"kind"`
	StartedAt  time.Time      `json:"startedAt"`
	DurationMs int64          `json:"durationMs,omitempty"`
	AgentName  string         `json:"agentName,omitempty"`
	LLM        *LLMOperation  `json:"llm,omitempty"`
	Tool       *ToolOperation `json:"tool,omitempty"`
}

// LLMOperation summarizes a model request and, once finished, its response.
type LLMOperation struct {
	Model        string            `json:"model"`
	Provider     string            `json:"provider,omitempty"`
	MessageCount int               `json:"messageCount"`
	Messages     []MessageMetadata `json:"messages,omitempty"`
	ToolNames    []string          `json:"toolNames,omitempty"`

	FinishReason  string   `json:"finishReason,omitempty"`
	ToolCallNames []string `json:"toolCallNames,omitempty"`
	TotalTokens   int      `json:"totalTokens,omitempty"`
}

// MessageMetadata is the shape of one message without its content.
type MessageMetadata struct {
	Role          string `json:"role"`
	ContentLength int    `json:"contentLength"`
	HasToolCall   bool   `json:"hasToolCall,omitempty"`
	HasToolResult bool   `json:"hasToolResult,omitempty"`
}

// ToolOperation summarizes a tool call.
type ToolOperation struct {
	Name       string `json:"name"`
	CallID     string `json:"callId,omitempty"`
	InputSize  int    `json:"inputSize"`
	OutputSize int    `json:"outputSize,omitempty"`
}

func newLLMOperation(req llmsdk.Request) *LLMOperation {
	op := &LLMOperation{
		Model:        req.Model,
		Provider:     string(req.Provider),
		MessageCount: len(req.Messages),
	}
	for _, tool := range req.Tools {
		op.ToolNames = append(op.ToolNames, tool.Name)
	}

	start := max(len(req.Messages)-maxMessageMetadata, 0)
	for _, msg := range req.Messages[start:] {
		meta := MessageMetadata{Role: string(msg.Role)}
		for _, part := range msg.Parts {
			meta.ContentLength += len(part.Text)
			if part.ToolCall != nil {
				meta.HasToolCall = true
			}
			if part.ToolResult != nil {
				meta.HasToolResult = true
			}
		}
		op.Messages = append(op.Messages, meta)
	}
	return op
}

func (op *LLMOperation) finish(resp llmsdk.Response) {
	op.FinishReason = string(resp.FinishReason)
	op.TotalTokens = resp.Usage.TotalTokens
	for _, call := range resp.ToolCalls {
		op.ToolCallNames = append(op.ToolCallNames, call.Name)
	}
}

// history is a fixed-size ring of operations, oldest first.
type history struct {
	records []OperationRecord
	size    int
	next    int
}

func (h *history) add(r OperationRecord) {
	if h.size <= 0 {
		return
	}
	if len(h.records) < h.size {
		h.records = append(h.records, r)
		return
	}
	h.records[h.next] = r
	h.next = (h.next + 1) % h.size
}

// last returns the most recent record whose kind matches, or nil.
func (h *history) last(kind string) *OperationRecord {
	for i := len(h.records) - 1; i >= 0; i-- {
		idx := (h.next + i) % len(h.records)
		if h.records[idx].Kind == kind {
			return &h.records[idx]
		}
	}
	return nil
}

func (h *history) all() []OperationRecord {
	out := make([]OperationRecord, 0, len(h.records))
	out = append(out, h.records[h.next:]...)
	return append(out, h.records[:h.next]...)
}
