// Package dispatch assembles the ordered request-dispatch pipeline: explicit
// routes first, static mounts second, and the legacy-application bridge as
// the structurally final fallback.
package dispatch

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

var (
	// ErrBadPath reports a mount prefix that fails normalization
	ErrBadPath = errors.New("mount prefix must start with '/' and must not end with '/'")
	// ErrBadStaticMount reports a static mount string without a '=' separator
	ErrBadStaticMount = errors.New("static mount must have the form 'prefix=directory'")
	// ErrRouteConflict reports routes that cannot coexist in the dispatch table
	ErrRouteConflict = errors.New("conflicting route registration")
	// ErrNoResolver reports a route table configured without a resolver
	ErrNoResolver = errors.New("route table requires a resolver")
)

// Route binds a handler reference to one method and path pattern
type Route struct {
	Method  string `json:"method"`
	Path    string `json:"path"`
	Handler string `json:"handler"`
}

// StaticMount serves files from Dir under Prefix
type StaticMount struct {
	Prefix string `json:"prefix"`
	Dir    string `json:"dir"`
}

// ParseStaticMount parses the "prefix=directory" string form of a mount
func ParseStaticMount(s string) (StaticMount, error) {
	prefix, dir, ok := strings.Cut(s, "=")
	if !ok {
		return StaticMount{}, fmt.Errorf("%w: %q", ErrBadStaticMount, s)
	}
	return StaticMount{Prefix: prefix, Dir: dir}, nil
}

// FormatPath normalizes a mount prefix. The empty prefix becomes "/"; any
// other prefix must start with '/' and must not end with '/'.
func FormatPath(path string) (string, error) {
	if path == "" {
		return "/", nil
	}
	if !strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return "", fmt.Errorf("%w: %q", ErrBadPath, path)
	}
	return path, nil
}

// Config describes the dispatch table to build
type Config struct {
	// Routes are registered first, in order
	Routes []Route
	// Static mounts are registered after the explicit routes
	Static []StaticMount
	// ScriptName is the mount prefix of the bridge fallback
	ScriptName string
	// Resolver turns Route.Handler references into handlers
	Resolver Resolver
	// Bridge handles every request no earlier entry claimed. A nil Bridge
	// turns unmatched requests into plain 404s.
	Bridge http.Handler
	// AccessLog receives one record per completed request; nil disables
	// access logging
	AccessLog AccessLog
}

// Dispatcher decides which handler serves a given request
type Dispatcher struct {
	router    *httprouter.Router
	accessLog AccessLog
}

// Build validates the descriptors and assembles the dispatch table.
// Configuration violations (bad prefixes, malformed static mounts,
// conflicting routes, unknown handler references) fail fast before any
// request is served.
func Build(cfg Config) (*Dispatcher, error) {
	router := httprouter.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	// The router must not answer method mismatches or OPTIONS itself: a
	// request whose method+path no explicit route claims belongs to the
	// bridge fallback
	router.HandleMethodNotAllowed = false
	router.HandleOPTIONS = false

	if len(cfg.Routes) > 0 && cfg.Resolver == nil {
		return nil, ErrNoResolver
	}

	for _, route := range cfg.Routes {
		h, err := cfg.Resolver.Resolve(route.Handler)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve handler %q: %w", route.Handler, err)
		}
		if err := register(func() { router.Handler(route.Method, route.Path, h) }); err != nil {
			return nil, err
		}
	}

	for _, mount := range cfg.Static {
		prefix, err := FormatPath(mount.Prefix)
		if err != nil {
			return nil, err
		}
		pattern := prefix + "/*filepath"
		if prefix == "/" {
			pattern = "/*filepath"
		}
		if err := register(func() { router.ServeFiles(pattern, http.Dir(mount.Dir)) }); err != nil {
			return nil, err
		}
	}

	scriptName, err := FormatPath(cfg.ScriptName)
	if err != nil {
		return nil, err
	}
	router.NotFound = bridgeFallback(scriptName, cfg.Bridge)

	return &Dispatcher{router: router, accessLog: cfg.AccessLog}, nil
}

// register converts httprouter's registration panics into configuration
// errors so a bad route table surfaces before startup completes
func register(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRouteConflict, r)
		}
	}()
	fn()
	return nil
}

// bridgeFallback scopes the legacy-application bridge to the script name
// prefix. Installing it as the router's NotFound handler guarantees it only
// sees requests no earlier, more specific entry matched.
func bridgeFallback(scriptName string, bridge http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bridge == nil {
			http.NotFound(w, r)
			return
		}
		path := r.URL.Path
		mounted := scriptName == "/" ||
			path == scriptName ||
			strings.HasPrefix(path, scriptName+"/")
		if !mounted {
			http.NotFound(w, r)
			return
		}
		bridge.ServeHTTP(w, r)
	})
}

// ServeHTTP dispatches the request and records it on the access log
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if d.accessLog == nil {
		d.router.ServeHTTP(w, r)
		return
	}

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	d.router.ServeHTTP(rec, r)
	d.accessLog.Access(r.Method, r.URL.Path, rec.status, time.Since(start))
}

// statusRecorder captures the response status for access logging while
// passing the optional streaming interfaces through to the underlying
// writer
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}
