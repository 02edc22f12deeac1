// Package config holds the daemon configuration and its defaults.
//
// Defaults are assembled once at package init by merging two immutable
// layers: the bridge layer (dispatch-side settings) and the serve layer
// (socket and lifecycle settings). The merged result is never mutated;
// callers always receive copies.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/codefionn/httpbridge/internal/dispatch"
)

// Config represents the daemon configuration
type Config struct {
	Host                   string           `json:"host"`
	Port                   int              `json:"port"`
	UnixSocket             string           `json:"unix_socket"`
	UnixSocketPerms        string           `json:"unix_socket_perms"` // octal, e.g. "0600"
	Backlog                int              `json:"backlog"`
	Routes                 []dispatch.Route `json:"routes"`
	Static                 []string         `json:"static"` // "prefix=directory" entries
	ScriptName             string           `json:"script_name"`
	ShutdownTimeoutSeconds float64          `json:"shutdown_timeout_seconds"`
	LogLevel               string           `json:"log_level"`
	LogFile                string           `json:"log_file"`
	PidFile                string           `json:"pid_file"`
}

// bridgeDefaults is the dispatch-side default layer
func bridgeDefaults() Config {
	return Config{
		ScriptName: "",
		LogLevel:   "info",
	}
}

// serveDefaults is the socket and lifecycle default layer
func serveDefaults() Config {
	return Config{
		Port:                   8080,
		UnixSocketPerms:        "0600",
		Backlog:                1024,
		ShutdownTimeoutSeconds: 60,
		PidFile:                DefaultPidFile(),
	}
}

// defaults is built once; Default hands out copies
var defaults = merge(bridgeDefaults(), serveDefaults())

// merge overlays every non-zero field of top onto base
func merge(base, top Config) Config {
	out := base
	if top.Host != "" {
		out.Host = top.Host
	}
	if top.Port != 0 {
		out.Port = top.Port
	}
	if top.UnixSocket != "" {
		out.UnixSocket = top.UnixSocket
	}
	if top.UnixSocketPerms != "" {
		out.UnixSocketPerms = top.UnixSocketPerms
	}
	if top.Backlog != 0 {
		out.Backlog = top.Backlog
	}
	if len(top.Routes) > 0 {
		out.Routes = append([]dispatch.Route(nil), top.Routes...)
	}
	if len(top.Static) > 0 {
		out.Static = append([]string(nil), top.Static...)
	}
	if top.ScriptName != "" {
		out.ScriptName = top.ScriptName
	}
	if top.ShutdownTimeoutSeconds != 0 {
		out.ShutdownTimeoutSeconds = top.ShutdownTimeoutSeconds
	}
	if top.LogLevel != "" {
		out.LogLevel = top.LogLevel
	}
	if top.LogFile != "" {
		out.LogFile = top.LogFile
	}
	if top.PidFile != "" {
		out.PidFile = top.PidFile
	}
	return out
}

// Default returns a copy of the merged defaults
func Default() Config {
	return defaults
}

// Load reads a JSON config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ShutdownTimeout returns the drain timeout as a duration
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds * float64(time.Second))
}

// Perms parses the octal unix socket permission string. Unparseable values
// fall back to 0600.
func (c Config) Perms() os.FileMode {
	var mode uint64
	if _, err := fmt.Sscanf(c.UnixSocketPerms, "%o", &mode); err != nil {
		return 0600
	}
	return os.FileMode(mode)
}

// DefaultPidFile returns the XDG runtime location for the daemon PID file
func DefaultPidFile() string {
	return filepath.Join(runtimeDir(), "httpbridge.pid")
}

// DefaultUnixSocket returns the XDG runtime location for the daemon socket
func DefaultUnixSocket() string {
	return filepath.Join(runtimeDir(), "httpbridge.sock")
}

func runtimeDir() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, "httpbridge")
	}
	return filepath.Join(os.TempDir(), "httpbridge")
}
