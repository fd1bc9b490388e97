// notify.go sends a handled test event to check an installation end to end.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strongdm/ai-crashkit/pkg/crashkit"
)

func newNotifyCmd(root *rootOptions) *cobra.Command {
	var (
		message      string
		severity     string
		eventContext string
	)
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a handled test event",
		RunE: func(cmd *cobra.Command, args []string) error {
			sev, err := parseSeverity(severity)
			if err != nil {
				return err
			}
			c, err := root.openClient()
			if err != nil {
				return err
			}
			if eventContext != "" {
				c.SetContext(eventContext)
			}
			c.NotifyWithSeverity(cmd.Context(), errors.New(message), sev, func(e *crashkit.Event) bool {
				e.Metadata = e.Metadata.WithSection("crashkit", map[string]any{"source": "cli"})
				return true
			})
			// Close waits for the queued delivery.
			if err := c.Close(); err != nil {
				return err
			}
			cmd.Printf("sent %s event %q\n", sev, message)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "crashkit test event", "error message")
	cmd.Flags().StringVar(&severity, "severity", string(crashkit.SeverityWarning), "info, warning or error")
	cmd.Flags().StringVar(&eventContext, "context", "", "event context")
	return cmd
}

func parseSeverity(s string) (crashkit.Severity, error) {
	sev := crashkit.Severity(s)
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}
