package client

import "time"

// ProcessStatus mirrors one entry of the status server's "running" list.
type ProcessStatus struct {
	Name        string    `json:"name"`
	PID         int       `json:"pid"`
	StartedAt   time.Time `json:"started_at"`
	ProcessPort int       `json:"process_port,omitempty"`
	ConnectPort int       `json:"connect_port,omitempty"`
}

// Status is the full supervisor view returned by GET /status.
type Status struct {
	Running       []ProcessStatus `json:"running"`
	LastRestartAt *time.Time      `json:"last_restart_at,omitempty"`
	Restarts      int             `json:"restarts"`
	Cycle         string          `json:"cycle,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
