// scrubber.go redacts sensitive data from events before they are stored or sent.

package crashkit

import (
	"regexp"
	"strings"
)

// ScrubberConfig controls scrubbing behavior.
type ScrubberConfig struct {
	// RedactedKeys are case-insensitive substrings; any metadata key containing
	// one has its value replaced.
	RedactedKeys []string

	// MaxMessageSize is the maximum length for error messages (default: 4096).
	MaxMessageSize int

	// MaxStackTraceSize is the maximum length for stack traces (default: 32768).
	MaxStackTraceSize int

	// MaxValueSize is the maximum length of a string metadata value (default: 1024).
	MaxValueSize int

	// ScrubMessages enables pattern scrubbing of error messages (default: true).
	ScrubMessages bool
}

// DefaultRedactedKeys are used when a config leaves RedactedKeys empty.
var DefaultRedactedKeys = []string{
	"token",
	"key",
	"secret",
	"password",
	"credential",
	"auth",
	"passwd",
}

// DefaultScrubberConfig returns production-safe defaults.
func DefaultScrubberConfig() ScrubberConfig {
	return ScrubberConfig{
		RedactedKeys:      DefaultRedactedKeys,
		MaxMessageSize:    4096,
		MaxStackTraceSize: 32768,
		MaxValueSize:      1024,
		ScrubMessages:     true,
	}
}

// Redacted replaces any scrubbed value.
const Redacted = "[REDACTED]"

// Compiled regex patterns for message scrubbing (compiled once at package init)
var messageScrubPatterns = []*regexp.Regexp{
	// API keys and tokens
	regexp.MustCompile(`(?i)(api[_-]?key|token)[=:\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[\w\-\.]+`),
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`(?i)gh[po]_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`(?i)eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`), // JWT

	// Credentials
	regexp.MustCompile(`(?i)(password|passwd|secret)[=:\s]+['"]?[^\s'",]+['"]?`),

	// PII
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
}

var (
	pathNormalizationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/home/[^/]+/`),
		regexp.MustCompile(`/Users/[^/]+/`),
		regexp.MustCompile(`C:\\Users\\[^\\]+\\`),
	}
	addressPattern = regexp.MustCompile(`0x[0-9a-fA-F]+`)
)

// Scrubber redacts sensitive data from events. Safe for concurrent use.
type Scrubber struct {
	cfg  ScrubberConfig
	keys []string
}

// NewScrubber creates a scrubber with the given configuration.
func NewScrubber(cfg ScrubberConfig) *Scrubber {
	keys := cfg.RedactedKeys
	if len(keys) == 0 {
		keys = DefaultRedactedKeys
	}
	lowered := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return &Scrubber{cfg: cfg, keys: lowered}
}

// ScrubEvent redacts the event in place: messages, stack traces, metadata and
// breadcrumb metadata.
func (s *Scrubber) ScrubEvent(e *Event) {
	for i := range e.Errors {
		e.Errors[i].Message = s.ScrubMessage(e.Errors[i].Message)
		e.Errors[i].Stacktrace = s.ScrubStackTrace(e.Errors[i].Stacktrace)
	}
	for i := range e.Breadcrumbs {
		e.Breadcrumbs[i].Metadata = s.ScrubMap(e.Breadcrumbs[i].Metadata)
	}
	e.Metadata = NewMetadata(s.ScrubSections(e.Metadata.ToMap()))
}

// ScrubMessage scrubs sensitive patterns from an error message.
func (s *Scrubber) ScrubMessage(msg string) string {
	if s.cfg.MaxMessageSize > 0 && len(msg) > s.cfg.MaxMessageSize {
		msg = truncateWithMarker(msg, s.cfg.MaxMessageSize)
	}
	if !s.cfg.ScrubMessages {
		return msg
	}
	for _, pattern := range messageScrubPatterns {
		msg = pattern.ReplaceAllString(msg, Redacted)
	}
	return msg
}

// ScrubStackTrace normalizes home directories and limits trace size.
// Memory addresses are left in place; grouping strips them separately.
func (s *Scrubber) ScrubStackTrace(trace string) string {
	if trace == "" {
		return trace
	}
	for _, pattern := range pathNormalizationPatterns {
		trace = pattern.ReplaceAllString(trace, "/[PATH]/")
	}
	if s.cfg.MaxStackTraceSize > 0 && len(trace) > s.cfg.MaxStackTraceSize {
		trace = truncateWithMarker(trace, s.cfg.MaxStackTraceSize)
	}
	return trace
}

// ScrubSections scrubs every metadata section.
func (s *Scrubber) ScrubSections(sections map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(sections))
	for name, section := range sections {
		out[name] = s.ScrubMap(section)
	}
	return out
}

// ScrubMap redacts sensitive keys from a metadata map, recursing into nested
// maps and slices.
func (s *Scrubber) ScrubMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for key, value := range m {
		if s.IsRedactedKey(key) {
			out[key] = Redacted
			continue
		}
		out[key] = s.scrubValue(value)
	}
	return out
}

func (s *Scrubber) scrubValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return s.ScrubMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.scrubValue(item)
		}
		return out
	case string:
		if s.cfg.MaxValueSize > 0 && len(v) > s.cfg.MaxValueSize {
			v = truncateWithMarker(v, s.cfg.MaxValueSize)
		}
		return v
	default:
		return v
	}
}

// IsRedactedKey checks if a metadata key matches a redacted pattern.
func (s *Scrubber) IsRedactedKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range s.keys {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

// truncateWithMarker truncates a string and adds a truncation marker.
func truncateWithMarker(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	marker := "...[TRUNCATED]"
	if maxLen <= len(marker) {
		return marker[:maxLen]
	}
	return s[:maxLen-len(marker)] + marker
}
