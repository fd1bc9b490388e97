// events.go turns run enrichment into event metadata.

package agentssdk

import (
	"context"
	"errors"
	"strings"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
)

// MetadataSection is the event metadata section written by the adapter.
const MetadataSection = "agent"

// Error types reported under agent.error_type.
const (
	ErrorTypeError     = "error"
	ErrorTypeTimeout   = "timeout"
	ErrorTypeCanceled  = "canceled"
	ErrorTypeGuardrail = "guardrail"
	ErrorTypePanic     = "panic"
)

var guardrailPatterns = []string{
	"guardrail",
	"content policy",
	"safety filter",
	"blocked by policy",
}

// classifyError names the broad failure kind of a run error.
func classifyError(err error) string {
	switch {
	case err == nil:
		return ErrorTypeError
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled
	}
	msg := strings.ToLower(err.Error())
	for _, p := range guardrailPatterns {
		if strings.Contains(msg, p) {
			return ErrorTypeGuardrail
		}
	}
	return ErrorTypeError
}

// enrichEvent returns an OnError callback that copies enrichment onto the
// event. The agent name becomes the event context unless one is set.
func enrichEvent(errorType string, enrichment Enrichment) crashkit.OnErrorFunc {
	return func(e *crashkit.Event) bool {
		section := map[string]any{"error_type": errorType}
		set := func(key, value string) {
			if value != "" {
				section[key] = value
			}
		}
		set("agent_name", enrichment.AgentName)
		set("model", enrichment.Model)
		set("operation", enrichment.Operation)
		set("operation_id", enrichment.OperationID)
		set("tool_name", enrichment.ToolName)
		set("tool_call_id", enrichment.ToolCallID)
		if len(enrichment.History) > 0 {
			section["operation_history"] = enrichment.History
		}
		e.Metadata = e.Metadata.WithSection(MetadataSection, section)

		if e.Context == "" && enrichment.AgentName != "" {
			e.Context = enrichment.AgentName
		}
		return true
	}
}
