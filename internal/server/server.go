// Package server owns a bound listener set, the dispatch pipeline attached
// to it, and shutdown coordination.
//
// The lifecycle is Open -> Closing -> Closed with no re-opening. Close is
// idempotent and never blocks; the teardown sequence runs as a background
// task whose single outcome every WaitClosed caller observes. Teardown
// order: stop accepting, wait for the accept loops, run the finish hooks in
// registration order, drain in-flight connections bounded by the shutdown
// timeout (stragglers are forced closed, which is not an error), then run
// the final application cleanup.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/codefionn/httpbridge/internal/listen"
	"github.com/codefionn/httpbridge/internal/logger"
	"github.com/codefionn/httpbridge/internal/sockaddr"
)

// DefaultShutdownTimeout bounds the connection drain when Config leaves
// ShutdownTimeout unset
const DefaultShutdownTimeout = 60 * time.Second

// Hook is an application-level teardown callback. Hooks run in registration
// order; the first failure aborts the remaining shutdown sequence.
type Hook func(ctx context.Context) error

// Config carries the lifecycle settings of a Server
type Config struct {
	// ShutdownTimeout is the maximum time to wait for in-flight
	// connections to finish before they are forced closed
	ShutdownTimeout time.Duration
	// OnFinish hooks run during shutdown, after the listener set has
	// stopped and before connections are drained
	OnFinish []Hook
	// Cleanup releases whatever the dispatch pipeline itself owns; it runs
	// last, after the drain
	Cleanup func(ctx context.Context) error
	// Logger defaults to the global logger
	Logger *logger.Logger
}

// Server binds a request handler to a set of accepting sockets and manages
// their lifecycle
type Server struct {
	shutdownTimeout time.Duration
	hooks           []Hook
	cleanup         func(ctx context.Context) error
	log             *logger.Logger

	httpServer *http.Server
	sockets    []listen.Socket
	serveWG    sync.WaitGroup

	closeOnce sync.Once
	done      chan struct{}
	closeErr  error

	// embedded client, created at most once on first use
	clientOnce   sync.Once
	clientClosed chan struct{}
	client       *http.Client
	transport    *http.Transport
	clientName   sockaddr.Sockname
}

// New creates a Server around already-open sockets and a mounted dispatch
// pipeline. The Server takes exclusive ownership of the sockets.
func New(cfg Config, sockets []listen.Socket, handler http.Handler) *Server {
	log := cfg.Logger
	if log == nil {
		log = logger.Global()
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	return &Server{
		shutdownTimeout: timeout,
		hooks:           cfg.OnFinish,
		cleanup:         cfg.Cleanup,
		log:             log,
		httpServer:      &http.Server{Handler: handler},
		sockets:         sockets,
		done:            make(chan struct{}),
		clientClosed:    make(chan struct{}),
	}
}

// Socknames returns the resolved (kind, address) of every bound socket
func (s *Server) Socknames() []sockaddr.Sockname {
	names := make([]sockaddr.Sockname, 0, len(s.sockets))
	for _, sock := range s.sockets {
		names = append(names, sock.Name())
	}
	return names
}

// Serve starts one accept loop per bound socket and returns immediately
func (s *Server) Serve() {
	for _, sock := range s.sockets {
		s.serveWG.Add(1)
		go func(sock listen.Socket) {
			defer s.serveWG.Done()
			err := s.httpServer.Serve(sock.Listener())
			if err != nil && !errors.Is(err, http.ErrServerClosed) && !isClosedError(err) {
				s.log.Error("serve error on %s: %v", sock.Name(), err)
			}
		}(sock)
	}
}

// Close moves the server from Open to Closing. The first call releases the
// embedded client, removes any unix socket files, stops the listeners and
// spawns the background shutdown task; later calls are no-ops. Close never
// blocks on in-flight connections.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.releaseClient()

		// The OS does not remove unix socket files on close
		for _, sock := range s.sockets {
			if err := sock.Cleanup(); err != nil {
				s.log.Warn("socket cleanup failed: %v", err)
			}
		}

		// Stop accepting new connections
		for _, sock := range s.sockets {
			if err := sock.Listener().Close(); err != nil && !isClosedError(err) {
				s.log.Warn("listener close failed: %v", err)
			}
		}

		go s.shutdownTask()
	})
}

// shutdownTask drives Closing -> Closed
func (s *Server) shutdownTask() {
	defer close(s.done)

	// Wait for the accept loops to finish
	s.serveWG.Wait()

	// Application teardown hooks, in order. A failing hook aborts the
	// remaining sequence and every waiter sees its error.
	ctx := context.Background()
	for _, hook := range s.hooks {
		if err := hook(ctx); err != nil {
			s.closeErr = fmt.Errorf("shutdown hook failed: %w", err)
			return
		}
	}

	// Drain in-flight connections, bounded by the shutdown timeout.
	// Expiry forces the stragglers closed; that is expected behavior,
	// not a failure.
	drainCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(drainCtx); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			s.closeErr = fmt.Errorf("connection drain failed: %w", err)
			return
		}
		s.log.Warn("drain timeout after %s, forcing remaining connections closed", s.shutdownTimeout)
		if err := s.httpServer.Close(); err != nil {
			s.log.Warn("forced close: %v", err)
		}
	}

	// Final application cleanup
	if s.cleanup != nil {
		if err := s.cleanup(ctx); err != nil {
			s.closeErr = fmt.Errorf("application cleanup failed: %w", err)
		}
	}
}

// WaitClosed blocks until the background shutdown task completes and
// returns its outcome. It is safe to call before Close: it then blocks
// until the task exists and finishes. Any number of concurrent callers
// observe the same result.
func (s *Server) WaitClosed(ctx context.Context) error {
	select {
	case <-s.done:
		return s.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown is the convenience form of Close followed by WaitClosed
func (s *Server) Shutdown(ctx context.Context) error {
	s.Close()
	return s.WaitClosed(ctx)
}

func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
