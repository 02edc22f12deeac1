// Package runner wires configuration into a running server process: it
// opens the listeners, assembles the dispatch pipeline, starts the server
// and drives it through shutdown when the process is interrupted.
package runner

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/codefionn/httpbridge/internal/bridge"
	"github.com/codefionn/httpbridge/internal/config"
	"github.com/codefionn/httpbridge/internal/dispatch"
	"github.com/codefionn/httpbridge/internal/listen"
	"github.com/codefionn/httpbridge/internal/logger"
	"github.com/codefionn/httpbridge/internal/pidfile"
	"github.com/codefionn/httpbridge/internal/server"
)

// Options carries the collaborators the configuration cannot express
type Options struct {
	// App is the legacy application behind the fallback route
	App bridge.App
	// Resolver turns configured handler references into handlers. A nil
	// Resolver only permits an empty route table.
	Resolver dispatch.Resolver
	// Adopted is an optional caller-supplied listener (overridden by a
	// configured unix socket)
	Adopted net.Listener
	// OnFinish hooks run during shutdown, in order
	OnFinish []server.Hook
	// Cleanup runs last in the shutdown sequence
	Cleanup func(ctx context.Context) error
	// AccessLog overrides the default logger-backed access sink
	AccessLog dispatch.AccessLog
	// Logger defaults to the global logger
	Logger *logger.Logger
}

// Start opens the configured sockets, mounts the dispatch pipeline and
// begins serving. Configuration and bind errors are returned before the
// process claims to be serving.
func Start(cfg config.Config, opts Options) (*server.Server, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Global()
	}

	static := make([]dispatch.StaticMount, 0, len(cfg.Static))
	for _, entry := range cfg.Static {
		mount, err := dispatch.ParseStaticMount(entry)
		if err != nil {
			return nil, err
		}
		static = append(static, mount)
	}

	scriptName, err := dispatch.FormatPath(cfg.ScriptName)
	if err != nil {
		return nil, err
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = dispatch.NewRegistry()
	}
	accessLog := opts.AccessLog
	if accessLog == nil {
		accessLog = dispatch.NewLogSink(log)
	}

	var fallback http.Handler
	if opts.App != nil {
		fallback = bridge.NewHandler(opts.App, scriptName, log)
	}

	dispatcher, err := dispatch.Build(dispatch.Config{
		Routes:     cfg.Routes,
		Static:     static,
		ScriptName: cfg.ScriptName,
		Resolver:   resolver,
		Bridge:     fallback,
		AccessLog:  accessLog,
	})
	if err != nil {
		return nil, err
	}

	sockets, err := listen.Open(listen.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		UnixSocket:      cfg.UnixSocket,
		UnixSocketPerms: cfg.Perms(),
		Adopted:         opts.Adopted,
		Backlog:         cfg.Backlog,
	})
	if err != nil {
		return nil, err
	}

	s := server.New(server.Config{
		ShutdownTimeout: cfg.ShutdownTimeout(),
		OnFinish:        opts.OnFinish,
		Cleanup:         opts.Cleanup,
		Logger:          log,
	}, sockets, dispatcher)

	s.Serve()
	return s, nil
}

// Run starts the server and blocks until the context is cancelled or the
// process receives SIGINT/SIGTERM, then drives the full shutdown sequence.
func Run(ctx context.Context, cfg config.Config, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = logger.Global()
	}

	s, err := Start(cfg, opts)
	if err != nil {
		return err
	}

	uris := serverURIs(s)
	log.Info("Serving on %s", uris)

	if cfg.PidFile != "" {
		pid := pidfile.New(cfg.PidFile)
		if err := pid.Write(); err != nil {
			log.Warn("failed to write pidfile: %v", err)
		} else {
			defer func() {
				if err := pid.Remove(); err != nil {
					log.Warn("failed to remove pidfile: %v", err)
				}
			}()
		}
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	log.Debug("Waiting for server to shut down")
	s.Close()
	log.Debug("Waiting for client connections to terminate")
	if err := s.WaitClosed(context.Background()); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	log.Info("Stopped serving on %s", uris)
	return nil
}

func serverURIs(s *server.Server) string {
	var uris []string
	for _, name := range s.Socknames() {
		uris = append(uris, name.URI("/"))
	}
	return strings.Join(uris, " ")
}
