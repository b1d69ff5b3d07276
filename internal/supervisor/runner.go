package supervisor

import "github.com/loykin/processmon/internal/process"

// Handle is a running process as seen by the supervisor.
type Handle interface {
	Kill() error
	Wait() error
	Status() process.Status
}

// Runner spawns processes.
type Runner interface {
	Spawn(spec process.Spec, extraEnv map[string]string) (Handle, error)
}

// ProcessRunner adapts *process.Runner to Runner.
type ProcessRunner struct {
	*process.Runner
}

func (r ProcessRunner) Spawn(spec process.Spec, extraEnv map[string]string) (Handle, error) {
	h, err := r.Runner.Spawn(spec, extraEnv)
	if err != nil {
		return nil, err
	}
	return h, nil
}
