// messages.go defines the state-change messages carried by the bus.

package bus

import "github.com/strongdm/ai-crashkit/pkg/crashkit"

// Message is a state change published by the client. Switch on the concrete
// type to handle it.
type Message interface {
	// Kind names the message for logs.
	Kind() string
}

// Install is published once when the client starts.
type Install struct {
	APIKey       string
	ReleaseStage string
	AppVersion   string
}

// SessionStarted is published when a session becomes current.
type SessionStarted struct {
	Session      crashkit.SessionSnapshot
	User         crashkit.User
	AutoCaptured bool
}

// SessionPaused is published when the current session is stopped.
type SessionPaused struct{}

// NotifyHandled is published when a handled event is counted.
type NotifyHandled struct{}

// NotifyUnhandled is published when an unhandled event is counted.
type NotifyUnhandled struct{}

// UpdateContext is published when the event context changes.
type UpdateContext struct {
	Context string
}

// UpdateInForeground is published on every foreground transition.
type UpdateInForeground struct {
	InForeground bool
	Component    string
}

// BreadcrumbAdded is published after a breadcrumb is recorded.
type BreadcrumbAdded struct {
	Breadcrumb crashkit.Breadcrumb
}

// MetadataChanged carries one metadata patch.
type MetadataChanged struct {
	Patch crashkit.MetadataPatch
}

// UpdateUser is published when the user changes.
type UpdateUser struct {
	User crashkit.User
}

func (Install) Kind() string            { return "install" }
func (SessionStarted) Kind() string     { return "session_started" }
func (SessionPaused) Kind() string      { return "session_paused" }
func (NotifyHandled) Kind() string      { return "notify_handled" }
func (NotifyUnhandled) Kind() string    { return "notify_unhandled" }
func (UpdateContext) Kind() string      { return "update_context" }
func (UpdateInForeground) Kind() string { return "update_in_foreground" }
func (BreadcrumbAdded) Kind() string    { return "breadcrumb_added" }
func (MetadataChanged) Kind() string    { return "metadata_changed" }
func (UpdateUser) Kind() string         { return "update_user" }
