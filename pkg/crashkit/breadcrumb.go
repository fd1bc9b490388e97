// breadcrumb.go keeps a bounded, chronological trail of prior actions.

package crashkit

import (
	"sync"
	"time"
)

// BreadcrumbType categorizes a breadcrumb.
type BreadcrumbType string

const (
	BreadcrumbManual     BreadcrumbType = "manual"
	BreadcrumbError      BreadcrumbType = "error"
	BreadcrumbLog        BreadcrumbType = "log"
	BreadcrumbNavigation BreadcrumbType = "navigation"
	BreadcrumbProcess    BreadcrumbType = "process"
	BreadcrumbRequest    BreadcrumbType = "request"
	BreadcrumbState      BreadcrumbType = "state"
	BreadcrumbUser       BreadcrumbType = "user"
)

// Breadcrumb is a small timestamped log entry attached to events for context.
type Breadcrumb struct {
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"name"`
	Type      BreadcrumbType `json:"type"`
	Metadata  map[string]any `json:"metaData,omitempty"`
}

// BreadcrumbBuffer is a bounded ring buffer safe for concurrent use.
// Once full, each Add overwrites the oldest entry.
type BreadcrumbBuffer struct {
	mu       sync.Mutex
	records  []Breadcrumb
	maxSize  int
	writeIdx int
}

// NewBreadcrumbBuffer creates a buffer holding at most maxSize breadcrumbs.
// A maxSize of zero or less disables collection.
func NewBreadcrumbBuffer(maxSize int) *BreadcrumbBuffer {
	if maxSize < 0 {
		maxSize = 0
	}
	return &BreadcrumbBuffer{maxSize: maxSize}
}

// Add appends a breadcrumb, evicting the oldest if the buffer is full.
func (b *BreadcrumbBuffer) Add(crumb Breadcrumb) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxSize == 0 {
		return
	}
	if len(b.records) < b.maxSize {
		b.records = append(b.records, crumb)
		return
	}
	b.records[b.writeIdx] = crumb
	b.writeIdx = (b.writeIdx + 1) % b.maxSize
}

// Copy returns the breadcrumbs oldest first. The result is owned by the caller.
func (b *BreadcrumbBuffer) Copy() []Breadcrumb {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]Breadcrumb, len(b.records))
	if len(b.records) < b.maxSize {
		copy(result, b.records)
		return result
	}
	// writeIdx points at the oldest record once the buffer has wrapped
	n := copy(result, b.records[b.writeIdx:])
	copy(result[n:], b.records[:b.writeIdx])
	return result
}

// Len is the number of breadcrumbs currently held.
func (b *BreadcrumbBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}
