package process

import "time"

// Status is a point-in-time view of a running Handle.
type Status struct {
	Name        string    `json:"name"`
	PID         int       `json:"pid"`
	StartedAt   time.Time `json:"started_at"`
	ProcessPort int       `json:"process_port,omitempty"`
	ConnectPort int       `json:"connect_port,omitempty"`
}
