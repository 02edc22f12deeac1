package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/codefionn/httpbridge/internal/bridge"
	"github.com/codefionn/httpbridge/internal/config"
	"github.com/codefionn/httpbridge/internal/dispatch"
	"github.com/codefionn/httpbridge/internal/logger"
	"github.com/codefionn/httpbridge/internal/runner"
)

const version = "0.1.0"

type stringSlice []string

func (s *stringSlice) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(value string) error {
	if value == "" {
		return fmt.Errorf("value cannot be empty")
	}
	*s = append(*s, value)
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("httpbridge", flag.ExitOnError)

	var static stringSlice
	configPath := fs.String("config", "", "path to a JSON config file")
	host := fs.String("host", "", "host interface to bind; empty binds every interface")
	port := fs.Int("port", 0, "port to bind")
	unixSocket := fs.String("unix-socket", "", "unix socket path to bind instead of host/port")
	unixSocketPerms := fs.String("unix-socket-perms", "", "octal permissions applied to the unix socket")
	backlog := fs.Int("backlog", 0, "socket accept backlog")
	scriptName := fs.String("script-name", "", "mount prefix of the bridged application")
	shutdownTimeout := fs.Float64("shutdown-timeout", 0, "seconds to wait for in-flight connections on shutdown")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error, none")
	logFile := fs.String("log-file", "", "log file path; empty logs to stderr")
	pidFile := fs.String("pidfile", "", "PID file path")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Var(&static, "static", "static mount as 'prefix=directory', repeatable")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	if *showVersion {
		fmt.Println("httpbridge " + version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// Flags given on the command line win over the config file
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["host"] {
		cfg.Host = *host
	}
	if set["port"] {
		cfg.Port = *port
	}
	if set["unix-socket"] {
		cfg.UnixSocket = *unixSocket
	}
	if set["unix-socket-perms"] {
		cfg.UnixSocketPerms = *unixSocketPerms
	}
	if set["backlog"] {
		cfg.Backlog = *backlog
	}
	if set["script-name"] {
		cfg.ScriptName = *scriptName
	}
	if set["shutdown-timeout"] {
		cfg.ShutdownTimeoutSeconds = *shutdownTimeout
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	if set["log-file"] {
		cfg.LogFile = *logFile
	}
	if set["pidfile"] {
		cfg.PidFile = *pidFile
	}
	if len(static) > 0 {
		cfg.Static = append(cfg.Static, static...)
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogFile); err != nil {
		return err
	}
	defer logger.Global().Close()

	// Built-in handlers routes may reference by name
	registry := dispatch.NewRegistry()
	registry.RegisterFunc("health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	return runner.Run(context.Background(), cfg, runner.Options{
		App:      bridge.Echo(),
		Resolver: registry,
	})
}
