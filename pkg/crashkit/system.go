// system.go captures app and device state at capture time.

package crashkit

import (
	"os"
	"runtime"
	"time"
)

// AppInfo summarizes the host program.
type AppInfo struct {
	Version      string `json:"version,omitempty"`
	ReleaseStage string `json:"releaseStage,omitempty"`
	Type         string `json:"type,omitempty"`

	// DurationMs is the process uptime in milliseconds.
	DurationMs int64 `json:"duration"`

	// DurationInForegroundMs is how long the program has been foregrounded.
	DurationInForegroundMs int64 `json:"durationInForeground"`

	InForeground bool `json:"inForeground"`

	// IsLaunching is true within the launch-crash threshold of process start.
	IsLaunching bool `json:"isLaunching"`
}

// DeviceInfo summarizes the machine the program runs on.
type DeviceInfo struct {
	HostName       string    `json:"hostname,omitempty"`
	OSName         string    `json:"osName"`
	Arch           string    `json:"cpuAbi"`
	RuntimeVersion string    `json:"runtimeVersion"`
	MemoryBytes    int64     `json:"memoryUsage"`
	GoroutineCount int       `json:"goroutineCount"`
	Time           time.Time `json:"time"`
}

// ForegroundState reports foreground status to the collector.
// session.Tracker satisfies it.
type ForegroundState interface {
	InForeground() bool
	DurationInForeground(now time.Time) time.Duration
}

// MetadataCollector returns app and device summaries at capture time.
type MetadataCollector interface {
	AppInfo(now time.Time) AppInfo
	DeviceInfo(now time.Time) DeviceInfo
}

// RuntimeCollector is the default MetadataCollector, backed by the Go runtime.
type RuntimeCollector struct {
	StartTime            time.Time
	Version              string
	ReleaseStage         string
	Type                 string
	LaunchCrashThreshold time.Duration

	// Foreground is optional; without it the program is reported as foregrounded.
	Foreground ForegroundState
}

// AppInfo implements MetadataCollector.
func (c *RuntimeCollector) AppInfo(now time.Time) AppInfo {
	uptime := now.Sub(c.StartTime)
	if uptime < 0 {
		uptime = 0 // Clamp to 0 if start time is in the future
	}
	info := AppInfo{
		Version:      c.Version,
		ReleaseStage: c.ReleaseStage,
		Type:         c.Type,
		DurationMs:   uptime.Milliseconds(),
		InForeground: true,
		IsLaunching:  uptime < c.LaunchCrashThreshold,
	}
	if c.Foreground != nil {
		info.InForeground = c.Foreground.InForeground()
		info.DurationInForegroundMs = c.Foreground.DurationInForeground(now).Milliseconds()
	} else {
		info.DurationInForegroundMs = info.DurationMs
	}
	return info
}

// DeviceInfo implements MetadataCollector.
func (c *RuntimeCollector) DeviceInfo(now time.Time) DeviceInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hostname, _ := os.Hostname() // Ignore error, empty hostname is acceptable

	return DeviceInfo{
		HostName:       hostname,
		OSName:         runtime.GOOS,
		Arch:           runtime.GOARCH,
		RuntimeVersion: runtime.Version(),
		MemoryBytes:    int64(memStats.Alloc),
		GoroutineCount: runtime.NumGoroutine(),
		Time:           now,
	}
}
