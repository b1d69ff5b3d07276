package process

import (
	"os/exec"
	"strings"
)

// Spec describes a process to be supervised or a trigger command to be run.
// The command is executed directly with Args; no shell is involved.
type Spec struct {
	Name        string            `json:"name" toml:"-"`
	Command     string            `json:"command" toml:"command"`
	Args        []string          `json:"args,omitempty" toml:"args"`
	WorkDir     string            `json:"working_dir,omitempty" toml:"working_dir"`
	Env         map[string]string `json:"env,omitempty" toml:"env"`
	ProcessPort int               `json:"process_port,omitempty" toml:"process_port"`
	ConnectPort int               `json:"connect_port,omitempty" toml:"connect_port"`
}

// Attachable reports whether both attach ports are assigned.
func (s Spec) Attachable() bool {
	return s.ProcessPort > 0 && s.ConnectPort > 0
}

// BuildCommand constructs the *exec.Cmd for the spec with the given merged
// environment. The child is placed in its own process group so Kill reaches
// anything it forks.
func (s Spec) BuildCommand(mergedEnv []string) *exec.Cmd {
	// #nosec G204
	cmd := exec.Command(s.Command, s.Args...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if len(mergedEnv) > 0 {
		cmd.Env = mergedEnv
	}
	configureSysProcAttr(cmd)
	return cmd
}

func (s Spec) String() string {
	if len(s.Args) == 0 {
		return s.Command
	}
	return s.Command + " " + strings.Join(s.Args, " ")
}
