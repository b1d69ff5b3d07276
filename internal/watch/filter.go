package watch

import (
	"context"
	"os"
	"time"
)

// Filter converts RawEvents into ChangeEvents.
type Filter struct {
	// Exists reports whether path is present on disk. Defaults to os.Stat.
	Exists func(path string) bool
	// Now stamps accepted events. Defaults to time.Now.
	Now func() time.Time
}

func NewFilter() *Filter {
	return &Filter{Exists: pathExists, Now: time.Now}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Convert returns the change event for ev, or false when ev is noise.
func (f *Filter) Convert(ev RawEvent) (ChangeEvent, bool) {
	switch ev.Kind {
	case KindAccess, KindAny, KindOther:
		return ChangeEvent{}, false
	}
	if len(ev.Paths) == 0 {
		return ChangeEvent{}, false
	}
	// rename reports old then new; the destination is what exists now
	path := ev.Paths[len(ev.Paths)-1]
	exists := f.Exists
	if exists == nil {
		exists = pathExists
	}
	if !exists(path) {
		return ChangeEvent{}, false
	}
	now := f.Now
	if now == nil {
		now = time.Now
	}
	return ChangeEvent{Path: path, ObservedAt: now()}, true
}

// Run forwards converted events from in to out until ctx is done or in is
// closed. out is closed on return so the consumer can tell the stage ended.
func (f *Filter) Run(ctx context.Context, in <-chan RawEvent, out chan<- ChangeEvent) error {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			ce, keep := f.Convert(ev)
			if !keep {
				continue
			}
			select {
			case out <- ce:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
