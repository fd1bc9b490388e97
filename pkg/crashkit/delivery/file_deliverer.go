// file_deliverer.go sends stored event files for the flush controller.

package delivery

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/store"
)

// EventReader decodes stored events. *store.Store[*crashkit.Event] satisfies it.
type EventReader interface {
	Read(path string) (*crashkit.Event, error)
}

// FileDeliverer implements flush.FileDeliverer for event files.
type FileDeliverer struct {
	reader    EventReader
	deliverer crashkit.Deliverer
	endpoint  string
	apiKey    string
	notifier  crashkit.Notifier
	now       func() time.Time
}

// NewFileDeliverer creates a FileDeliverer. apiKey is used when neither the
// stored event nor its filename carries one.
func NewFileDeliverer(reader EventReader, deliverer crashkit.Deliverer, endpoint, apiKey string, notifier crashkit.Notifier) *FileDeliverer {
	if notifier == (crashkit.Notifier{}) {
		notifier = crashkit.DefaultNotifier
	}
	return &FileDeliverer{
		reader:    reader,
		deliverer: deliverer,
		endpoint:  endpoint,
		apiKey:    apiKey,
		notifier:  notifier,
		now:       time.Now,
	}
}

// DeliverFile implements flush.FileDeliverer.
func (d *FileDeliverer) DeliverFile(ctx context.Context, path string) (crashkit.DeliveryStatus, error) {
	event, err := d.reader.Read(path)
	if err != nil {
		return crashkit.Failure, err
	}
	if event == nil {
		return crashkit.Failure, fmt.Errorf("stored event %s is empty", path)
	}

	apiKey := event.APIKey
	if apiKey == "" {
		if name, err := store.ParseEventFilename(path); err == nil {
			apiKey = name.APIKey
		}
	}
	if apiKey == "" {
		apiKey = d.apiKey
	}
	event.APIKey = apiKey

	payload := &crashkit.EventPayload{
		APIKey:   apiKey,
		Notifier: d.notifier,
		Events:   []*crashkit.Event{event},
	}
	return d.deliverer.DeliverEvent(ctx, payload, crashkit.EventDeliveryParams(d.endpoint, apiKey, d.now())), nil
}

// DiscardPolicy returns the check for undelivered event files: files older
// than maxAge or larger than maxBytes are dropped instead of retried.
func DiscardPolicy(maxAge time.Duration, maxBytes int64, now func() time.Time) func(path string) bool {
	return func(path string) bool {
		if store.IsTooOld(path, now(), maxAge) {
			return true
		}
		if maxBytes <= 0 {
			return false
		}
		info, err := os.Stat(path)
		return err == nil && info.Size() > maxBytes
	}
}
