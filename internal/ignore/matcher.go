// Package ignore decides which changed paths the supervisor should disregard.
package ignore

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loykin/processmon/internal/watch"
)

// Matcher holds absolute ignore prefixes. It is immutable after New and safe
// for concurrent use.
type Matcher struct {
	prefixes []string
}

// New joins every ignore entry with its (absolute) root. Relative roots are
// resolved against cwd; an empty cwd means the process working directory.
func New(paths []watch.WatchedPath, cwd string) *Matcher {
	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	set := make(map[string]struct{})
	for _, p := range paths {
		if len(p.Ignore) == 0 {
			continue
		}
		root := p.Root
		if !filepath.IsAbs(root) {
			root = filepath.Join(cwd, root)
		}
		for _, ig := range p.Ignore {
			set[filepath.Join(root, ig)] = struct{}{}
		}
	}
	prefixes := make([]string, 0, len(set))
	for p := range set {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return &Matcher{prefixes: prefixes}
}

// ShouldIgnore reports whether path equals or lies below an ignore prefix.
// Matching is per path component: /path/tmp does not cover /path/tmp2.
func (m *Matcher) ShouldIgnore(path string) bool {
	if m == nil || len(m.prefixes) == 0 {
		return false
	}
	p := filepath.Clean(path)
	for _, prefix := range m.prefixes {
		if hasPathPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func hasPathPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	// prefix may already end in a separator (filesystem root)
	if strings.HasSuffix(prefix, string(filepath.Separator)) {
		return true
	}
	return path[len(prefix)] == filepath.Separator
}
