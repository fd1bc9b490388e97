// naming.go encodes payload metadata in stored filenames so files can be
// classified without decoding them.
//
// Events:   <timestampMs>_<apiKey>_<uuid>[_startupcrash].json
// Sessions: <uuid><timestampMs>_v2.json

package store

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
)

const (
	jsonSuffix        = ".json"
	launchCrashSuffix = "_startupcrash"
	sessionSuffix     = "_v2.json"
	uuidLength        = 36
)

// EventFilename is the metadata encoded in an event filename.
type EventFilename struct {
	Timestamp   time.Time
	APIKey      string
	UUID        string
	LaunchCrash bool
}

// String renders the base filename.
func (f EventFilename) String() string {
	suffix := ""
	if f.LaunchCrash {
		suffix = launchCrashSuffix
	}
	return fmt.Sprintf("%d_%s_%s%s%s", f.Timestamp.UnixMilli(), f.APIKey, f.UUID, suffix, jsonSuffix)
}

// ParseEventFilename decodes a path or base name produced by EventFilename.
func ParseEventFilename(path string) (EventFilename, error) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, jsonSuffix) {
		return EventFilename{}, fmt.Errorf("event filename %q: missing %s suffix", name, jsonSuffix)
	}
	name = strings.TrimSuffix(name, jsonSuffix)

	var f EventFilename
	if trimmed, ok := strings.CutSuffix(name, launchCrashSuffix); ok {
		f.LaunchCrash = true
		name = trimmed
	}

	// The uuid has a fixed length, so it is cut from the right and the api
	// key may itself contain underscores.
	bad := fmt.Errorf("event filename %q: want <timestamp>_<apiKey>_<uuid>", filepath.Base(path))
	if len(name) < uuidLength+1 || name[len(name)-uuidLength-1] != '_' {
		return EventFilename{}, bad
	}
	f.UUID = name[len(name)-uuidLength:]
	prefix, apiKey, ok := strings.Cut(name[:len(name)-uuidLength-1], "_")
	if !ok || apiKey == "" {
		return EventFilename{}, bad
	}
	ms, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return EventFilename{}, fmt.Errorf("event filename %q: bad timestamp: %w", filepath.Base(path), err)
	}
	f.Timestamp = time.UnixMilli(ms)
	f.APIKey = apiKey
	return f, nil
}

// IsLaunchCrashReport reports whether the file was flagged as a launch crash.
func IsLaunchCrashReport(path string) bool {
	return strings.HasSuffix(filepath.Base(path), launchCrashSuffix+jsonSuffix)
}

// EventNamer names event files. Events captured while the app reported
// IsLaunching are flagged as launch crashes.
func EventNamer() func(*crashkit.Event) string {
	return func(e *crashkit.Event) string {
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		return EventFilename{
			Timestamp:   e.Timestamp,
			APIKey:      e.APIKey,
			UUID:        id,
			LaunchCrash: e.App.IsLaunching,
		}.String()
	}
}

// EventLess orders event filenames oldest first. Unparseable names sort first
// so they are evicted before valid payloads.
func EventLess(a, b string) bool {
	return lessByTimestamp(eventTimestamp(a), eventTimestamp(b), a, b)
}

func eventTimestamp(name string) int64 {
	f, err := ParseEventFilename(name)
	if err != nil {
		return 0
	}
	return f.Timestamp.UnixMilli()
}

// SessionFilename is the metadata encoded in a session filename.
type SessionFilename struct {
	UUID      string
	Timestamp time.Time
}

// String renders the base filename.
func (f SessionFilename) String() string {
	return fmt.Sprintf("%s%d%s", f.UUID, f.Timestamp.UnixMilli(), sessionSuffix)
}

// ParseSessionFilename decodes a path or base name produced by SessionFilename.
func ParseSessionFilename(path string) (SessionFilename, error) {
	name := filepath.Base(path)
	body, ok := strings.CutSuffix(name, sessionSuffix)
	if !ok || len(body) <= uuidLength {
		return SessionFilename{}, fmt.Errorf("session filename %q: want <uuid><timestamp>%s", name, sessionSuffix)
	}
	ms, err := strconv.ParseInt(body[uuidLength:], 10, 64)
	if err != nil {
		return SessionFilename{}, fmt.Errorf("session filename %q: bad timestamp: %w", name, err)
	}
	return SessionFilename{UUID: body[:uuidLength], Timestamp: time.UnixMilli(ms)}, nil
}

// SessionNamer names session files by a fresh uuid and the first session's
// start time, falling back to now.
func SessionNamer(now func() time.Time) func(*crashkit.SessionPayload) string {
	return func(p *crashkit.SessionPayload) string {
		ts := now()
		if len(p.Sessions) > 0 && !p.Sessions[0].StartedAt.IsZero() {
			ts = p.Sessions[0].StartedAt
		}
		return SessionFilename{UUID: uuid.NewString(), Timestamp: ts}.String()
	}
}

// SessionLess orders session filenames oldest first.
func SessionLess(a, b string) bool {
	return lessByTimestamp(sessionTimestamp(a), sessionTimestamp(b), a, b)
}

func sessionTimestamp(name string) int64 {
	f, err := ParseSessionFilename(name)
	if err != nil {
		return 0
	}
	return f.Timestamp.UnixMilli()
}

func lessByTimestamp(ta, tb int64, a, b string) bool {
	if ta != tb {
		return ta < tb
	}
	return a < b
}

// IsTooOld reports whether a stored event or session file was written more
// than maxAge before now. Files whose name cannot be parsed are not too old.
func IsTooOld(path string, now time.Time, maxAge time.Duration) bool {
	var ts time.Time
	if f, err := ParseEventFilename(path); err == nil && !strings.HasSuffix(path, sessionSuffix) {
		ts = f.Timestamp
	} else if f, err := ParseSessionFilename(path); err == nil {
		ts = f.Timestamp
	} else {
		return false
	}
	return now.Sub(ts) > maxAge
}
