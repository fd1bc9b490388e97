// grouping.go generates stable hashes for grouping similar events.

package crashkit

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// GroupingHash generates a hash for grouping similar events.
// The hash is based on:
//   - the error class of every error in the chain
//   - the first 3 stack frames of the outermost error (function names only)
//
// It ignores variable data like timestamps, event IDs, messages,
// line numbers, and memory addresses.
func GroupingHash(e *Event) string {
	var parts []string
	for _, err := range e.Errors {
		parts = append(parts, err.Class)
	}
	if len(e.Errors) > 0 {
		parts = append(parts, normalizeStackTrace(e.Errors[0].Stacktrace)...)
	}

	input := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(input))

	// Return hex-encoded first 16 bytes (32 hex chars)
	return hex.EncodeToString(hash[:16])
}

var (
	// Match function names like "main.doSomething" or "pkg/subpkg.(*T).Method"
	funcNamePattern = regexp.MustCompile(`^([a-zA-Z0-9_./()*\[\]-]+\.[a-zA-Z0-9_]+)`)

	offsetPattern = regexp.MustCompile(`\+0x[0-9a-fA-F]+`)
)

// Frames from the recovery machinery itself are skipped so that every panic
// does not hash to the same value.
var skippedFramePrefixes = []string{
	"runtime/debug.Stack",
	"runtime.gopanic",
	"panic",
	"github.com/strongdm/ai-crashkit/pkg/crashkit.Recover",
}

// normalizeStackTrace extracts the first 3 function names from a stack trace,
// stripping line numbers, memory addresses, and other variable data.
func normalizeStackTrace(trace string) []string {
	if trace == "" {
		return nil
	}

	var frames []string
	for _, line := range strings.Split(trace, "\n") {
		// File lines start with a tab in goroutine dumps
		if strings.HasPrefix(line, "\t") {
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "goroutine ") || strings.HasPrefix(line, "/") {
			continue
		}

		funcLine := offsetPattern.ReplaceAllString(line, "")
		funcLine = addressPattern.ReplaceAllString(funcLine, "")
		if idx := strings.LastIndex(funcLine, "("); idx > 0 {
			funcLine = funcLine[:idx]
		}
		funcLine = strings.TrimSpace(funcLine)
		if funcLine == "" || skippedFrame(funcLine) {
			continue
		}

		if match := funcNamePattern.FindString(funcLine); match != "" {
			frames = append(frames, match)
			if len(frames) >= 3 {
				break
			}
		}
	}
	return frames
}

func skippedFrame(fn string) bool {
	for _, prefix := range skippedFramePrefixes {
		if strings.HasPrefix(fn, prefix) {
			return true
		}
	}
	return false
}
