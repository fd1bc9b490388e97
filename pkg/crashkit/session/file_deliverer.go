// file_deliverer.go sends stored session files for the flush controller.

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
)

// PayloadReader decodes stored session payloads.
// *store.Store[*crashkit.SessionPayload] satisfies it.
type PayloadReader interface {
	Read(path string) (*crashkit.SessionPayload, error)
}

// FileDeliverer implements flush.FileDeliverer for session files.
type FileDeliverer struct {
	reader    PayloadReader
	deliverer crashkit.Deliverer
	endpoint  string
	apiKey    string
	now       func() time.Time
}

// NewFileDeliverer creates a FileDeliverer.
func NewFileDeliverer(reader PayloadReader, deliverer crashkit.Deliverer, endpoint, apiKey string) *FileDeliverer {
	return &FileDeliverer{
		reader:    reader,
		deliverer: deliverer,
		endpoint:  endpoint,
		apiKey:    apiKey,
		now:       time.Now,
	}
}

// DeliverFile implements flush.FileDeliverer.
func (d *FileDeliverer) DeliverFile(ctx context.Context, path string) (crashkit.DeliveryStatus, error) {
	payload, err := d.reader.Read(path)
	if err != nil {
		return crashkit.Failure, err
	}
	if payload == nil || len(payload.Sessions) == 0 {
		return crashkit.Failure, fmt.Errorf("stored session %s has no sessions", path)
	}
	params := crashkit.SessionDeliveryParams(d.endpoint, d.apiKey, d.now())
	return d.deliverer.DeliverSession(ctx, payload, params), nil
}
