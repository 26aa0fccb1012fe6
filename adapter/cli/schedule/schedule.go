// Package schedule implements the "schedule" command group: run drives
// the Core Service against a JSON fixture, health prints health_status().
package schedule

import "github.com/spf13/cobra"

// Cmd is the schedule command group.
var Cmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the scheduler and inspect its health",
}

func init() {
	Cmd.AddCommand(runCmd)
	Cmd.AddCommand(healthCmd)
}
