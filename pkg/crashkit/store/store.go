// store.go implements the capacity-bounded on-disk payload queue.

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/coocood/freecache"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/strongdm/ai-crashkit/pkg/crashkit/metrics"
)

// ErrNoDirectory is returned by Read when the store has no usable directory.
var ErrNoDirectory = errors.New("store has no usable directory")

// tombstoneCacheBytes is the freecache minimum; entries are tiny path keys.
const tombstoneCacheBytes = 512 * 1024

// Option configures a Store.
type Option func(*options)

type options struct {
	logger  zerolog.Logger
	metrics metrics.Recorder
	kind    string
}

// WithLogger sets the logger for store diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(o *options) { o.metrics = m }
}

// WithKind sets the payload kind used in logs and metric labels.
func WithKind(kind string) Option {
	return func(o *options) { o.kind = kind }
}

// Store is a thread-safe, capacity-bounded queue of serialized payloads.
//
// Every file is either on disk and idle, or queued for an in-flight delivery.
// FindStoredFiles is the only way to queue idle files; Claim queues one known
// file. Queued files are never evicted and never returned twice until released
// by CancelQueuedFiles or DeleteStoredFiles.
type Store[T any] struct {
	dir      string
	maxFiles int
	namer    func(T) string
	less     func(a, b string) bool
	logger   zerolog.Logger
	metrics  metrics.Recorder
	kind     string

	// mu serializes every mutating operation.
	mu     sync.Mutex
	queued map[string]struct{}

	// tombstones remembers files whose deletion failed so they stay
	// logically removed.
	tombstones *freecache.Cache
	usable     bool
}

// New creates a store rooted at dir holding at most maxFiles files.
//
// namer computes the base filename for a payload and must end in ".json".
// less orders base filenames oldest first for eviction.
// A dir that is empty or cannot be created leaves the store disabled: writes
// return "" and listings are empty.
func New[T any](dir string, maxFiles int, namer func(T) string, less func(a, b string) bool, opts ...Option) *Store[T] {
	o := options{logger: zerolog.Nop(), metrics: metrics.Noop(), kind: "payload"}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store[T]{
		dir:        dir,
		maxFiles:   maxFiles,
		namer:      namer,
		less:       less,
		logger:     o.logger.With().Str("component", "store").Str("kind", o.kind).Logger(),
		metrics:    o.metrics,
		kind:       o.kind,
		queued:     make(map[string]struct{}),
		tombstones: freecache.NewCache(tombstoneCacheBytes),
	}

	if dir == "" {
		s.logger.Debug().Msg("no persistence directory, payloads will not be stored")
		return s
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		s.logger.Error().Err(err).Str("dir", dir).Msg("could not create persistence directory")
		return s
	}
	s.usable = true
	return s
}

// Directory is the store root, or "" when the store is disabled.
func (s *Store[T]) Directory() string {
	if !s.usable {
		return ""
	}
	return s.dir
}

// Write serializes v to a new file and returns its path. Returns "" when the
// payload could not be stored; the payload is then dropped.
func (s *Store[T]) Write(v T) string {
	if !s.usable {
		return ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("could not serialize payload")
		return ""
	}

	s.discardOldestFileIfNeededLocked()

	path := filepath.Join(s.dir, s.namer(v))
	if err := atomicWriteFile(path, data, 0o600); err != nil {
		s.logger.Error().Err(err).Str("file", path).Msg("could not write payload to disk")
		return ""
	}
	s.tombstones.Del([]byte(path))
	s.metrics.IncStoredWritten(s.kind)
	s.logger.Debug().Str("file", path).Msg("stored payload")
	return path
}

// Read loads and decodes one stored file.
func (s *Store[T]) Read(path string) (T, error) {
	var v T
	if !s.usable {
		return v, ErrNoDirectory
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return v, fmt.Errorf("read stored file: %w", err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode stored file %s: %w", filepath.Base(path), err)
	}
	return v, nil
}

// FindStoredFiles returns every idle file and marks them queued.
func (s *Store[T]) FindStoredFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []string
	for _, path := range s.listLocked() {
		if _, ok := s.queued[path]; ok {
			continue
		}
		s.queued[path] = struct{}{}
		found = append(found, path)
	}
	return found
}

// Claim marks one specific idle file queued. Returns false if the file is
// already queued or no longer exists.
func (s *Store[T]) Claim(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queued[path]; ok {
		return false
	}
	if s.isTombstoned(path) {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}
	s.queued[path] = struct{}{}
	return true
}

// CancelQueuedFiles releases files so a later pass can retry them.
func (s *Store[T]) CancelQueuedFiles(files []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range files {
		delete(s.queued, path)
	}
}

// DeleteStoredFiles releases and deletes files. Deletion is best effort: a
// file that cannot be removed is still treated as gone.
func (s *Store[T]) DeleteStoredFiles(files []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range files {
		delete(s.queued, path)
		s.removeLocked(path)
	}
}

// Peek lists every stored file without queueing anything.
func (s *Store[T]) Peek() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

// IsQueued reports whether path is currently queued.
func (s *Store[T]) IsQueued(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.queued[path]
	return ok
}

// discardOldestFileIfNeededLocked evicts the oldest idle files until there
// is room for one more.
func (s *Store[T]) discardOldestFileIfNeededLocked() {
	files := s.listLocked()
	if len(files) < s.maxFiles {
		return
	}

	sort.Slice(files, func(i, j int) bool {
		return s.less(filepath.Base(files[i]), filepath.Base(files[j]))
	})

	remaining := len(files)
	for _, path := range files {
		if remaining < s.maxFiles {
			break
		}
		if _, ok := s.queued[path]; ok {
			continue
		}
		s.logger.Warn().Str("file", path).Int("max", s.maxFiles).Msg("discarding oldest payload to respect capacity")
		s.removeLocked(path)
		s.metrics.IncStoredEvicted(s.kind)
		remaining--
	}
}

// listLocked returns the stored ".json" files that are not tombstoned.
func (s *Store[T]) listLocked() []string {
	if !s.usable {
		return nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error().Err(err).Msg("could not list persistence directory")
		return nil
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		path := filepath.Join(s.dir, name)
		if s.isTombstoned(path) {
			continue
		}
		files = append(files, path)
	}
	return files
}

func (s *Store[T]) removeLocked(path string) {
	err := os.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return
	}
	s.logger.Warn().Err(err).Str("file", path).Msg("could not delete stored file, treating as removed")
	if setErr := s.tombstones.Set([]byte(path), []byte{1}, 0); setErr != nil {
		s.logger.Error().Err(setErr).Str("file", path).Msg("could not record removed file")
	}
}

func (s *Store[T]) isTombstoned(path string) bool {
	_, err := s.tombstones.Get([]byte(path))
	return err == nil
}
