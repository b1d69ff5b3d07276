package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "processmon.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimal = `
[[paths_to_watch]]
path = "."

[processes.web]
command = "true"
`

func TestLoad_PortsFollowDocumentOrder(t *testing.T) {
	cfg, err := Load("testdata/processmon.toml", nil)
	require.NoError(t, err)

	require.Len(t, cfg.Processes, 3)
	want := []struct {
		name          string
		process, conn int
	}{
		{"process1", 40000, 40001},
		{"process2", 40002, 40003},
		{"process3", 40004, 40005},
	}
	for i, w := range want {
		assert.Equal(t, w.name, cfg.Processes[i].Name)
		assert.Equal(t, w.process, cfg.Processes[i].ProcessPort, w.name)
		assert.Equal(t, w.conn, cfg.Processes[i].ConnectPort, w.name)
	}
	assert.Equal(t, []string{"process1", "process2", "process3"}, cfg.ProcessNames())
}

func TestLoad_TriggersKeepDocumentOrder(t *testing.T) {
	cfg, err := Load("testdata/processmon.toml", nil)
	require.NoError(t, err)

	require.Len(t, cfg.Triggers, 2)
	assert.Equal(t, "zeta", cfg.Triggers[0].Name)
	assert.Equal(t, "alpha", cfg.Triggers[1].Name)
	assert.Equal(t, []string{"first"}, cfg.Triggers[0].Args)
	assert.Zero(t, cfg.Triggers[0].ProcessPort, "triggers are not attachable")
}

func TestLoad_DottedKeysKeepDocumentOrder(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[[paths_to_watch]]
path = "."

[processes]
web.command = "sleep"
web.args = ["60"]
api.command = "true"

[triggers]
zeta.command = "make"
alpha.command = "true"
`), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"web", "api"}, cfg.ProcessNames())
	assert.Equal(t, []string{"60"}, cfg.Processes[0].Args)
	assert.Equal(t, 40002, cfg.Processes[1].ProcessPort)
	require.Len(t, cfg.Triggers, 2)
	assert.Equal(t, "zeta", cfg.Triggers[0].Name)
	assert.Equal(t, "alpha", cfg.Triggers[1].Name)
}

func TestLoad_InlineTables(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
processes = { api = { command = "true" }, web = { command = "sleep", args = ["60"] } }
triggers = { build = { command = "make" } }

[[paths_to_watch]]
path = "."
`), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"api", "web"}, cfg.ProcessNames())
	assert.Equal(t, 40000, cfg.Processes[0].ProcessPort)
	assert.Equal(t, []string{"60"}, cfg.Processes[1].Args)
	require.Len(t, cfg.Triggers, 1, "inline triggers must not be dropped")
	assert.Equal(t, "build", cfg.Triggers[0].Name)
	assert.Equal(t, "make", cfg.Triggers[0].Command)
}

func TestLoad_TriggerPortsAreCleared(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal+`
[triggers.build]
command = "make"
process_port = 40000
connect_port = 40001
`), nil)
	require.NoError(t, err)

	require.Len(t, cfg.Triggers, 1)
	assert.False(t, cfg.Triggers[0].Attachable())
	assert.Zero(t, cfg.Triggers[0].ConnectPort)
	assert.True(t, cfg.Processes[0].Attachable())
}

func TestLoad_SpecFields(t *testing.T) {
	cfg, err := Load("testdata/processmon.toml", nil)
	require.NoError(t, err)

	p2, err := cfg.Process("process2")
	require.NoError(t, err)
	assert.Equal(t, "sleep", p2.Command)
	assert.Equal(t, []string{"60"}, p2.Args)
	assert.Equal(t, map[string]string{"log_level": "debug"}, p2.Env)

	require.Len(t, cfg.Paths, 1)
	assert.Equal(t, "testdata", cfg.Paths[0].Root)
	assert.Equal(t, []string{"tmp"}, cfg.Paths[0].Ignore)
	assert.NotEmpty(t, cfg.Cwd)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal), nil)
	require.NoError(t, err)
	assert.False(t, cfg.Debug)
	assert.Equal(t, DefaultPortRangeStart, cfg.PortRangeStart)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", string(cfg.Log.Format))
	assert.Empty(t, cfg.StatusListen)
	assert.Empty(t, cfg.Triggers)
}

func TestLoad_FileScalars(t *testing.T) {
	body := `
debug_mode = true
port_range_start = 50000

[log]
format = "json"
dir = "logs"

[status]
listen = "127.0.0.1:9090"
` + minimal
	cfg, err := Load(writeConfig(t, body), nil)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "debug", cfg.Log.Level, "debug_mode forces debug logging")
	assert.Equal(t, "json", string(cfg.Log.Format))
	assert.Equal(t, "logs", cfg.Log.File.Dir)
	assert.Equal(t, "127.0.0.1:9090", cfg.StatusListen)
	assert.Equal(t, 50000, cfg.Processes[0].ProcessPort)
	assert.Equal(t, 50001, cfg.Processes[0].ConnectPort)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("PROCESSMON_PORT_RANGE_START", "41000")
	t.Setenv("PROCESSMON_LOG_LEVEL", "warn")
	cfg, err := Load(writeConfig(t, "port_range_start = 50000\n"+minimal), nil)
	require.NoError(t, err)
	assert.Equal(t, 41000, cfg.PortRangeStart)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("PROCESSMON_PORT_RANGE_START", "41000")
	fs := pflag.NewFlagSet("start", pflag.ContinueOnError)
	fs.Int("port-range-start", DefaultPortRangeStart, "")
	fs.Bool("debug", false, "")
	require.NoError(t, fs.Parse([]string{"--port-range-start=42000", "--debug"}))

	v := viper.New()
	require.NoError(t, BindFlags(v, fs))
	cfg, err := Load(writeConfig(t, minimal), v)
	require.NoError(t, err)
	assert.Equal(t, 42000, cfg.PortRangeStart)
	assert.True(t, cfg.Debug)
}

func TestLoad_GlobalEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("A=1\n#comment\nB=two\n"), 0o600))
	body := `
env = ["B=override", "C=3"]
env_files = [".env"]
` + minimal
	path := filepath.Join(dir, "processmon.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A=1", "B=override", "C=3"}, cfg.Env)
	assert.Equal(t, map[string]string{"A": "1", "B": "override", "C": "3"}, cfg.EnvVars())
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"malformed", "processes = [", "parsing config file"},
		{"no watch paths", "[processes.web]\ncommand = \"true\"\n", "paths_to_watch"},
		{"missing watch path", "[[paths_to_watch]]\npath = \"/definitely/not/here\"\n[processes.web]\ncommand = \"true\"\n", "watch path"},
		{"empty command", "[[paths_to_watch]]\npath = \".\"\n[processes.web]\ncommand = \"\"\n", "requires command"},
		{"missing working dir", "[[paths_to_watch]]\npath = \".\"\n[processes.web]\ncommand = \"true\"\nworking_dir = \"/definitely/not/here\"\n", "working_dir"},
		{"trigger without command", minimal + "[triggers.build]\nargs = [\"x\"]\n", "trigger \"build\""},
		{"ports overflow", "port_range_start = 65535\n" + minimal, "port_range_start"},
		{"bad log level", "[log]\nlevel = \"loud\"\n" + minimal, "invalid log level"},
		{"bad env entry", "env = [\"NOEQUALS\"]\n" + minimal, "KEY=VALUE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_NoProcesses(t *testing.T) {
	_, err := Load(writeConfig(t, "[[paths_to_watch]]\npath = \".\"\n"), nil)
	assert.ErrorIs(t, err, ErrNoProcesses)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestProcess_Unknown(t *testing.T) {
	cfg, err := Load("testdata/processmon.toml", nil)
	require.NoError(t, err)
	_, err = cfg.Process("nope")
	assert.ErrorIs(t, err, ErrUnknownProcess)
}

func TestAssignPorts(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal+"[processes.api]\ncommand = \"true\"\n"), nil)
	require.NoError(t, err)
	AssignPorts(cfg.Processes, 30000)
	assert.Equal(t, 30000, cfg.Processes[0].ProcessPort)
	assert.Equal(t, 30003, cfg.Processes[1].ConnectPort)
}
