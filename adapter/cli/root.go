// Package cli wires the scheduler's Core Service behind a cobra command
// tree, the way the teacher's adapter/cli package wires every bounded
// context's handlers behind rootCmd.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	logger  *slog.Logger
)

type commandContext struct {
	correlationID uuid.UUID
	startedAt     time.Time
}

type commandContextKey struct{}

var rootCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Adaptive scheduling engine",
	Long: `scheduler turns tasks, busy events, and preferences into a
concrete time-blocked schedule, subject to per-request SLO gating.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logger == nil {
			logger = slog.Default()
		}
		info := commandContext{correlationID: uuid.New(), startedAt: time.Now()}
		cmd.SetContext(context.WithValue(cmd.Context(), commandContextKey{}, info))
		logger.Info("command start", "command", cmd.CommandPath(), "correlation_id", info.correlationID.String())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger == nil {
			logger = slog.Default()
		}
		info, ok := cmd.Context().Value(commandContextKey{}).(commandContext)
		if !ok {
			return
		}
		logger.Info("command end", "command", cmd.CommandPath(), "correlation_id", info.correlationID.String(),
			"duration_ms", time.Since(info.startedAt).Milliseconds())
	},
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// SetLogger installs the logger command hooks use for start/end tracing.
func SetLogger(l *slog.Logger) {
	logger = l
}

// AddCommand exposes rootCmd.AddCommand for subpackages (e.g.
// adapter/cli/schedule) to register their command group.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
