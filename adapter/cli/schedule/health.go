package schedule

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowforge/scheduler/adapter/cli"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print the scheduler's health_status() snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.HealthMonitor == nil {
			return fmt.Errorf("scheduler is not initialized")
		}

		status := app.HealthMonitor.Snapshot(cmd.Context())
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("encode health status: %w", err)
		}
		fmt.Println(string(out))
		if !status.Healthy {
			return fmt.Errorf("scheduler is unhealthy")
		}
		return nil
	},
}
