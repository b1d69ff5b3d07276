package attach

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// MakeRaw switches f into raw mode when it is a terminal and returns a
// function restoring the previous state. For non-terminals it is a no-op.
func MakeRaw(f *os.File) (restore func(), err error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("set terminal raw mode: %w", err)
	}
	return func() { _ = term.Restore(fd, old) }, nil
}
