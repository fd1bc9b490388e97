// config.go loads the client configuration with viper and validates it.

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/spf13/viper"
)

// ErrInvalid wraps every validation failure returned by Validate and Load.
var ErrInvalid = errors.New("invalid crashkit config")

// Endpoints are the collector URLs.
type Endpoints struct {
	Notify   string `mapstructure:"notify" validate:"required|fullUrl"`
	Sessions string `mapstructure:"sessions" validate:"required|fullUrl"`
}

// Delivery controls when events reach the network.
type Delivery struct {
	// AttemptDeliveryOnCrash enables the bounded synchronous send for unhandled events.
	AttemptDeliveryOnCrash bool `mapstructure:"attemptDeliveryOnCrash"`

	// SyncTimeout bounds the synchronous send.
	SyncTimeout time.Duration `mapstructure:"syncTimeout" validate:"required|min:1"`

	// LaunchCrashThreshold marks events captured this soon after start as launch crashes.
	LaunchCrashThreshold time.Duration `mapstructure:"launchCrashThreshold" validate:"min:0"`

	// SendLaunchCrashesSynchronously makes Start wait for launch-crash delivery.
	SendLaunchCrashesSynchronously bool `mapstructure:"sendLaunchCrashesSynchronously"`

	// LaunchFlushTimeout bounds that wait.
	LaunchFlushTimeout time.Duration `mapstructure:"launchFlushTimeout" validate:"min:0"`

	// Compress gzips HTTP request bodies.
	Compress bool `mapstructure:"compress"`

	// RequestTimeout bounds a single HTTP request.
	RequestTimeout time.Duration `mapstructure:"requestTimeout" validate:"required|min:1"`
}

// Persistence controls the on-disk queues.
type Persistence struct {
	// Directory is the queue root; events and sessions get subdirectories.
	// Empty disables persistence.
	Directory    string        `mapstructure:"directory"`
	MaxEvents    int           `mapstructure:"maxEvents" validate:"required|min:1"`
	MaxSessions  int           `mapstructure:"maxSessions" validate:"required|min:1"`
	MaxAge       time.Duration `mapstructure:"maxAge" validate:"required|min:1"`
	MaxFileBytes int64         `mapstructure:"maxFileBytes" validate:"required|min:1"`
}

// Sessions controls session tracking.
type Sessions struct {
	AutoTrack bool          `mapstructure:"autoTrack"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"min:0"`
}

// Executor sizes the background task queues.
type Executor struct {
	QueueSize int `mapstructure:"queueSize" validate:"required|min:1"`
}

// Breadcrumbs sizes the breadcrumb ring buffer.
type Breadcrumbs struct {
	Max int `mapstructure:"max" validate:"min:0"`
}

// Logger configures the root zerolog logger.
type Logger struct {
	Level  string `mapstructure:"level" validate:"required|in:trace,debug,info,warn,error,disabled"`
	Format string `mapstructure:"format" validate:"required|in:json,console"`
}

// Metrics toggles the Prometheus recorder.
type Metrics struct {
	Enabled bool `mapstructure:"enabled"`
}

// Bus sizes the state message buffer.
type Bus struct {
	BufferSize int `mapstructure:"bufferSize" validate:"required|min:1"`
}

// Config is the client configuration. Treat it as immutable after Load.
type Config struct {
	APIKey               string      `mapstructure:"apiKey" validate:"required|regex:^[0-9A-Za-z-]+$"`
	AppVersion           string      `mapstructure:"appVersion"`
	AppType              string      `mapstructure:"appType"`
	ReleaseStage         string      `mapstructure:"releaseStage" validate:"required"`
	EnabledReleaseStages []string    `mapstructure:"enabledReleaseStages"`
	RedactedKeys         []string    `mapstructure:"redactedKeys"`
	Endpoints            Endpoints   `mapstructure:"endpoints"`
	Delivery             Delivery    `mapstructure:"delivery"`
	Persistence          Persistence `mapstructure:"persistence"`
	Sessions             Sessions    `mapstructure:"sessions"`
	Executor             Executor    `mapstructure:"executor"`
	Breadcrumbs          Breadcrumbs `mapstructure:"breadcrumbs"`
	Logger               Logger      `mapstructure:"logger"`
	Metrics              Metrics     `mapstructure:"metrics"`
	Bus                  Bus         `mapstructure:"bus"`
}

// Default returns a config with every default applied and no API key.
func Default() *Config {
	return &Config{
		ReleaseStage: "production",
		RedactedKeys: []string{"password"},
		Endpoints: Endpoints{
			Notify:   "https://notify.crashkit.dev",
			Sessions: "https://sessions.crashkit.dev",
		},
		Delivery: Delivery{
			SyncTimeout:                    3 * time.Second,
			LaunchCrashThreshold:           5 * time.Second,
			SendLaunchCrashesSynchronously: true,
			LaunchFlushTimeout:             2 * time.Second,
			Compress:                       true,
			RequestTimeout:                 30 * time.Second,
		},
		Persistence: Persistence{
			MaxEvents:    32,
			MaxSessions:  128,
			MaxAge:       60 * 24 * time.Hour,
			MaxFileBytes: 1 << 20,
		},
		Sessions: Sessions{
			AutoTrack: true,
			Timeout:   30 * time.Second,
		},
		Executor:    Executor{QueueSize: 128},
		Breadcrumbs: Breadcrumbs{Max: 100},
		Logger:      Logger{Level: "info", Format: "json"},
		Bus:         Bus{BufferSize: 64},
	}
}

// setDefaults mirrors Default into v so env overrides work for every key.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("apiKey", d.APIKey)
	v.SetDefault("appVersion", d.AppVersion)
	v.SetDefault("appType", d.AppType)
	v.SetDefault("releaseStage", d.ReleaseStage)
	v.SetDefault("enabledReleaseStages", d.EnabledReleaseStages)
	v.SetDefault("redactedKeys", d.RedactedKeys)
	v.SetDefault("endpoints.notify", d.Endpoints.Notify)
	v.SetDefault("endpoints.sessions", d.Endpoints.Sessions)
	v.SetDefault("delivery.attemptDeliveryOnCrash", d.Delivery.AttemptDeliveryOnCrash)
	v.SetDefault("delivery.syncTimeout", d.Delivery.SyncTimeout)
	v.SetDefault("delivery.launchCrashThreshold", d.Delivery.LaunchCrashThreshold)
	v.SetDefault("delivery.sendLaunchCrashesSynchronously", d.Delivery.SendLaunchCrashesSynchronously)
	v.SetDefault("delivery.launchFlushTimeout", d.Delivery.LaunchFlushTimeout)
	v.SetDefault("delivery.compress", d.Delivery.Compress)
	v.SetDefault("delivery.requestTimeout", d.Delivery.RequestTimeout)
	v.SetDefault("persistence.directory", d.Persistence.Directory)
	v.SetDefault("persistence.maxEvents", d.Persistence.MaxEvents)
	v.SetDefault("persistence.maxSessions", d.Persistence.MaxSessions)
	v.SetDefault("persistence.maxAge", d.Persistence.MaxAge)
	v.SetDefault("persistence.maxFileBytes", d.Persistence.MaxFileBytes)
	v.SetDefault("sessions.autoTrack", d.Sessions.AutoTrack)
	v.SetDefault("sessions.timeout", d.Sessions.Timeout)
	v.SetDefault("executor.queueSize", d.Executor.QueueSize)
	v.SetDefault("breadcrumbs.max", d.Breadcrumbs.Max)
	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.format", d.Logger.Format)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("bus.bufferSize", d.Bus.BufferSize)
}

// Load reads path (YAML) over the defaults, applies CRASHKIT_* environment
// overrides and validates the result. An empty path loads defaults and env only.
//
// Environment keys use upper snake case of the dotted key, e.g.
// CRASHKIT_PERSISTENCE_DIRECTORY or CRASHKIT_APIKEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CRASHKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	v := validate.Struct(c)
	if !v.Validate() {
		return fmt.Errorf("%w: %s", ErrInvalid, v.Errors.Error())
	}
	return nil
}

// ShouldNotifyForReleaseStage reports whether the current release stage is
// enabled. An empty enabled list enables every stage.
func (c *Config) ShouldNotifyForReleaseStage() bool {
	if len(c.EnabledReleaseStages) == 0 {
		return true
	}
	return slices.Contains(c.EnabledReleaseStages, c.ReleaseStage)
}

// EventsDirectory is the event queue directory, or "" when persistence is off.
func (c *Config) EventsDirectory() string {
	if c.Persistence.Directory == "" {
		return ""
	}
	return filepath.Join(c.Persistence.Directory, "events")
}

// SessionsDirectory is the session queue directory, or "" when persistence is off.
func (c *Config) SessionsDirectory() string {
	if c.Persistence.Directory == "" {
		return ""
	}
	return filepath.Join(c.Persistence.Directory, "sessions")
}
