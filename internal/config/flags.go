package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlagKeys maps CLI flag names onto setting keys.
var FlagKeys = map[string]string{
	"debug":            KeyDebugMode,
	"port-range-start": KeyPortRangeStart,
	"log-level":        KeyLogLevel,
	"log-format":       KeyLogFormat,
	"log-dir":          KeyLogDir,
	"status-listen":    KeyStatusListen,
}

// BindFlags binds every flag of fs that has a setting key. Flags missing
// from fs are skipped so commands can expose a subset.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range FlagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag --%s: %w", name, err)
		}
	}
	return nil
}
