package supervisor

import (
	"time"

	"github.com/loykin/processmon/internal/process"
)

type ProcessStatus = process.Status

// Status is the control loop's view at one instant.
type Status struct {
	Running       []ProcessStatus `json:"running"`
	LastRestartAt *time.Time      `json:"last_restart_at,omitempty"`
	Restarts      int             `json:"restarts"`
	Cycle         string          `json:"cycle,omitempty"`
}
