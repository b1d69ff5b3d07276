package process

import (
	"bytes"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Palette is cycled over processes in configuration order.
var Palette = []lipgloss.Color{
	"10", // bright green
	"12", // bright blue
	"3",  // yellow
	"5",  // magenta
	"14", // bright cyan
}

// TriggerColor is used for every trigger prefix.
const TriggerColor = lipgloss.Color("2")

// Console is the shared output sink for supervised processes. Each line is
// written with a single Write so lines from different processes never
// interleave mid-line.
type Console struct {
	mu       sync.Mutex
	w        io.Writer
	renderer *lipgloss.Renderer
	styles   map[string]lipgloss.Style
	next     int
}

func NewConsole(w io.Writer) *Console {
	return &Console{
		w:        w,
		renderer: lipgloss.NewRenderer(w),
		styles:   make(map[string]lipgloss.Style),
	}
}

// Assign gives each name the next palette color, round-robin. Names that
// already have a color keep it.
func (c *Console) Assign(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range names {
		c.styleLocked(n)
	}
}

// AssignColor pins name to color.
func (c *Console) AssignColor(name string, color lipgloss.Color) {
	c.mu.Lock()
	c.styles[name] = c.renderer.NewStyle().Foreground(color)
	c.mu.Unlock()
}

// Prefix returns the rendered prefix for name.
func (c *Console) Prefix(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.styleLocked(name).Render(name)
}

// Line writes "{prefix}: {line}" or "{prefix} stderr: {line}".
func (c *Console) Line(name string, stderr bool, line []byte) {
	line = bytes.TrimRight(line, "\r\n")
	c.mu.Lock()
	defer c.mu.Unlock()

	var buf bytes.Buffer
	buf.Grow(len(name) + len(line) + 16)
	buf.WriteString(c.styleLocked(name).Render(name))
	if stderr {
		buf.WriteString(" stderr")
	}
	buf.WriteString(": ")
	buf.Write(line)
	buf.WriteByte('\n')
	_, _ = c.w.Write(buf.Bytes())
}

func (c *Console) styleLocked(name string) lipgloss.Style {
	if s, ok := c.styles[name]; ok {
		return s
	}
	color := Palette[c.next%len(Palette)]
	c.next++
	s := c.renderer.NewStyle().Foreground(color)
	c.styles[name] = s
	return s
}
