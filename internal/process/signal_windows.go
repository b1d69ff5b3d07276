//go:build windows

package process

import (
	"errors"
	"os"
)

// killGroup terminates the process. Windows has no process-group signal
// equivalent for console-less children, so only the leader is terminated.
func killGroup(p *os.Process) error {
	err := p.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
