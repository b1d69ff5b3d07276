package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// globalEnv merges env_files (in order) and then the top-level env list into
// KEY=VALUE pairs. Relative env file paths resolve against base, the
// directory holding the config file.
func globalEnv(fc FileConfig, base string) ([]string, error) {
	m := make(map[string]string)
	for _, p := range fc.EnvFiles {
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("config: env file: %w", err)
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range fc.Env {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			return nil, fmt.Errorf("config: env entry %q must be KEY=VALUE", kv)
		}
		m[kv[:i]] = kv[i+1:]
	}
	if len(m) == 0 {
		return nil, nil
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
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}

// EnvVars splits Env into a map for env.Env.
func (c *Config) EnvVars() map[string]string {
	m := make(map[string]string, len(c.Env))
	for _, kv := range c.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}
