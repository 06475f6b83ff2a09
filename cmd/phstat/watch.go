package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewWatchCommand streams the daemon's SSE feed and prints the payload of
// each event as one line, the same shape the dashboard consumes.
func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Short:   "Stream telemetry from the daemon",
		GroupID: gAdvanced,
		Long: `Stream telemetry and dose events from the daemon until interrupted.

Each control cycle prints one JSON line; dose events are interleaved as
they fire.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := apiClient.Stream("/events")
			if err != nil {
				return fmt.Errorf("failed to subscribe to events: %v", err)
			}
			defer func() { _ = body.Close() }()

			scanner := bufio.NewScanner(body)
			var event string
			for scanner.Scan() {
				line := scanner.Text()
				switch {
				case strings.HasPrefix(line, "event:"):
					event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				case strings.HasPrefix(line, "data:"):
					data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
					cmd.Printf("%s %s\n", event, data)
				}
			}
			return scanner.Err()
		},
	}
}
