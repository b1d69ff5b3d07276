package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

type Env struct {
	Var Var // global variables (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{
		Var: make(Var),
	}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k := kv[:i]
			v := kv[i+1:]
			if k == "" {
				continue
			}
			base[k] = v
		}
	}
	e.env = base
}

// WithBase replaces the cached OS base. Tests use it to get a deterministic environment.
func (e *Env) WithBase(base Var) *Env {
	cp := make(Var, len(base))
	for k, v := range base {
		cp[k] = v
	}
	e.env = cp
	return e
}

// Set sets a global variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Merge composes the final environment list for a child process:
// base = OS env (or cached)
// then global e.Var overrides
// then spec variables, keys upper-cased
// then extra variables verbatim (trigger injection wins over everything)
// The result is sorted by key so repeated spawns see identical slices.
func (e *Env) Merge(spec map[string]string, extra map[string]string) []string {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var, len(e.env)+len(e.Var)+len(spec)+len(extra))
	for k, v := range e.env {
		m[k] = v
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for k, v := range spec {
		if k == "" {
			continue
		}
		m[strings.ToUpper(k)] = v
	}
	for k, v := range extra {
		if k == "" {
			continue
		}
		m[k] = v
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}
