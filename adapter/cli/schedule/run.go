package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/flowforge/scheduler/adapter/cli"
	"github.com/flowforge/scheduler/internal/scheduling/application/services/core"
	"github.com/flowforge/scheduler/internal/scheduling/domain"
	"github.com/flowforge/scheduler/internal/scheduling/infrastructure/calendar"
	"github.com/flowforge/scheduler/internal/scheduling/infrastructure/persistence"
)

var (
	runFixturePath string
	runHorizonDays int
	runDryRun      bool
)

// fixture is the on-disk shape schedule run reads: tasks, busy events, and
// preferences for one user, expressed with string timezone/durations since
// domain.Preferences itself holds a *time.Location and time.Duration.
type fixture struct {
	Tasks              []domain.Task             `json:"tasks"`
	BusyEvents         []domain.BusyEvent        `json:"busy_events"`
	RecurringEvents    []calendar.RecurringEvent `json:"recurring_events"`
	TimezoneName       string                    `json:"timezone"`
	WorkdayStartHHMM   string                    `json:"workday_start"`
	WorkdayEndHHMM     string                    `json:"workday_end"`
	BreakCadenceMin    int                       `json:"break_cadence_minutes"`
	BreakDurationMin   int                       `json:"break_duration_minutes"`
	MaxDailyEffortMin  int                       `json:"max_daily_effort_minutes"`
	GranularityMinutes int                       `json:"granularity_minutes"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Schedule tasks from a JSON fixture file",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Service == nil {
			return fmt.Errorf("scheduler is not initialized")
		}

		raw, err := os.ReadFile(runFixturePath)
		if err != nil {
			return fmt.Errorf("read fixture: %w", err)
		}
		var fx fixture
		if err := json.Unmarshal(raw, &fx); err != nil {
			return fmt.Errorf("parse fixture: %w", err)
		}

		tz := time.UTC
		if fx.TimezoneName != "" {
			loc, err := time.LoadLocation(fx.TimezoneName)
			if err != nil {
				return fmt.Errorf("load timezone %q: %w", fx.TimezoneName, err)
			}
			tz = loc
		}

		prefs := domain.DefaultPreferences(tz)
		if fx.WorkdayStartHHMM != "" {
			prefs.WorkdayStartHHMM = fx.WorkdayStartHHMM
		}
		if fx.WorkdayEndHHMM != "" {
			prefs.WorkdayEndHHMM = fx.WorkdayEndHHMM
		}
		if fx.BreakCadenceMin > 0 {
			prefs.BreakCadence = time.Duration(fx.BreakCadenceMin) * time.Minute
		}
		if fx.BreakDurationMin > 0 {
			prefs.BreakDuration = time.Duration(fx.BreakDurationMin) * time.Minute
		}
		if fx.MaxDailyEffortMin > 0 {
			prefs.MaxDailyEffortMinutes = fx.MaxDailyEffortMin
		}
		if fx.GranularityMinutes == 15 || fx.GranularityMinutes == 30 {
			prefs.GranularityMinutes = fx.GranularityMinutes
		}

		if memRepo, ok := app.Repository.(*persistence.MemoryRepository); ok {
			memRepo.SeedTasks(app.CurrentUserID, fx.Tasks)
			memRepo.SeedBusyEvents(app.CurrentUserID, fx.BusyEvents)
			memRepo.SeedRecurringBusyEvents(app.CurrentUserID, fx.RecurringEvents)
			memRepo.SeedPreferences(app.CurrentUserID, prefs)
		} else if localRepo, ok := app.Repository.(interface {
			SeedTasks(uuid.UUID, []domain.Task)
			SeedBusyEvents(uuid.UUID, []domain.BusyEvent)
			SeedRecurringBusyEvents(uuid.UUID, []calendar.RecurringEvent)
			SeedPreferences(uuid.UUID, domain.Preferences)
		}); ok {
			localRepo.SeedTasks(app.CurrentUserID, fx.Tasks)
			localRepo.SeedBusyEvents(app.CurrentUserID, fx.BusyEvents)
			localRepo.SeedRecurringBusyEvents(app.CurrentUserID, fx.RecurringEvents)
			localRepo.SeedPreferences(app.CurrentUserID, prefs)
		}

		horizon := runHorizonDays
		if horizon <= 0 {
			horizon = 7
		}

		resp, err := app.Service.Schedule(cmd.Context(), core.Request{
			UserID:      app.CurrentUserID,
			HorizonDays: horizon,
			DryRun:      runDryRun,
		}, time.Now())
		if err != nil {
			return fmt.Errorf("schedule: %w", err)
		}

		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runFixturePath, "fixture", "f", "", "path to JSON fixture file (required)")
	runCmd.Flags().IntVar(&runHorizonDays, "horizon", 7, "scheduling horizon in days")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "compute a solution without persisting it")
	_ = runCmd.MarkFlagRequired("fixture")
}
