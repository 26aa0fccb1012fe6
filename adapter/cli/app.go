package cli

import (
	"github.com/google/uuid"

	"github.com/flowforge/scheduler/internal/scheduling/application/ports"
	"github.com/flowforge/scheduler/internal/scheduling/application/services/core"
)

// App holds the CLI's dependency on the wired Core Service, mirroring the
// teacher's package-level App/GetApp/SetApp pattern rather than threading
// the service through every command's flag parsing.
type App struct {
	Service       *core.Service
	HealthMonitor *core.HealthMonitor
	Repository    ports.Repository
	CurrentUserID uuid.UUID
}

// NewApp builds an App bound to svc and monitor. repo is the raw,
// unguarded store behind the breaker-guarded repository svc was wired
// with; commands that seed fixture data (schedule run) type-assert it down
// to the concrete store they need.
func NewApp(svc *core.Service, monitor *core.HealthMonitor, repo ports.Repository) *App {
	return &App{Service: svc, HealthMonitor: monitor, Repository: repo, CurrentUserID: uuid.Nil}
}

// SetCurrentUserID updates the user ID commands act on behalf of.
func (a *App) SetCurrentUserID(id uuid.UUID) {
	a.CurrentUserID = id
}

var app *App

// SetApp installs the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance, or nil if the
// process is running without a wired container (e.g. development mode
// with no database).
func GetApp() *App {
	return app
}
