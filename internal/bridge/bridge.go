// Package bridge adapts inbound HTTP requests to a legacy synchronous
// request-handling convention: given method, path, headers and body, the
// application returns status, headers and body. The wire semantics behind
// that convention are the application's concern, not this package's.
package bridge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/codefionn/httpbridge/internal/logger"
)

// Request is the inbound half of the legacy calling convention
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Response is the outbound half of the legacy calling convention
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// App is a legacy synchronous request-handling application
type App interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// AppFunc adapts a function to the App interface
type AppFunc func(ctx context.Context, req *Request) (*Response, error)

// Handle calls the function
func (f AppFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Handler serves HTTP requests by calling a legacy application. The mount
// prefix is stripped from the forwarded path, mirroring how a script name
// separates the mount point from the path info the application sees.
type Handler struct {
	app    App
	prefix string
	log    *logger.Logger
}

// NewHandler wraps app as an http.Handler mounted at prefix. The prefix is
// expected to be normalized already; "/" mounts at the root.
func NewHandler(app App, prefix string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Global()
	}
	if prefix == "/" {
		prefix = ""
	}
	return &Handler{app: app, prefix: prefix, log: log}
}

// ServeHTTP translates the request, invokes the application, and writes the
// response verbatim. Application errors surface as 502.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.log.Error("failed to read request body for %s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, h.prefix)
	if path == "" {
		path = "/"
	}

	resp, err := h.app.Handle(r.Context(), &Request{
		Method: r.Method,
		Path:   path,
		Header: r.Header.Clone(),
		Body:   body,
	})
	if err != nil {
		h.log.Error("application error for %s %s: %v", r.Method, path, err)
		http.Error(w, "application error", http.StatusBadGateway)
		return
	}

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			h.log.Debug("failed to write response body: %v", err)
		}
	}
}

// Echo returns a trivial application answering every request with a small
// plaintext description of what it received. It is the default application
// of the standalone daemon and doubles as a smoke-test target.
func Echo() App {
	return AppFunc(func(ctx context.Context, req *Request) (*Response, error) {
		header := make(http.Header)
		header.Set("Content-Type", "text/plain; charset=utf-8")
		return &Response{
			Status: http.StatusOK,
			Header: header,
			Body:   []byte(fmt.Sprintf("%s %s (%d bytes)\n", req.Method, req.Path, len(req.Body))),
		}, nil
	})
}
