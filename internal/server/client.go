package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/codefionn/httpbridge/internal/sockaddr"
)

// ErrClientClosed is returned by Request once Close has released the
// embedded client
var ErrClientClosed = errors.New("embedded client closed")

type requestOptions struct {
	header http.Header
	body   []byte
}

// RequestOption customizes a request issued through the embedded client
type RequestOption func(*requestOptions)

// WithHeader adds a header to the outbound request
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.header == nil {
			o.header = make(http.Header)
		}
		o.header.Add(key, value)
	}
}

// WithBody sets the request body
func WithBody(body []byte) RequestOption {
	return func(o *requestOptions) {
		o.body = body
	}
}

// Request issues one request against the server's own listening address and
// returns the raw response. The connector and client session are created on
// first use and reused; a unix-bound server is dialed through its socket
// path behind the placeholder host "unix". Transport errors propagate
// unchanged; there is no retry.
func (s *Server) Request(ctx context.Context, method, path string, opts ...RequestOption) (*http.Response, error) {
	client, name, err := s.session()
	if err != nil {
		return nil, err
	}

	var options requestOptions
	for _, opt := range opts {
		opt(&options)
	}

	var body io.Reader
	if options.body != nil {
		body = bytes.NewReader(options.body)
	}

	req, err := http.NewRequestWithContext(ctx, method, name.URI(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request %s %s: %w", method, path, err)
	}
	for key, values := range options.header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	return client.Do(req)
}

// session memoizes the connector and client bound to the first socket. The
// sync.Once guard keeps concurrent first use from constructing two
// connectors.
func (s *Server) session() (*http.Client, sockaddr.Sockname, error) {
	select {
	case <-s.clientClosed:
		return nil, sockaddr.Sockname{}, ErrClientClosed
	default:
	}

	if len(s.sockets) == 0 {
		return nil, sockaddr.Sockname{}, errors.New("server has no bound sockets")
	}

	s.clientOnce.Do(func() {
		name := s.sockets[0].Name()
		transport := &http.Transport{}
		if name.Kind == sockaddr.KindUnix {
			socketPath := name.Path
			transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			}
		}
		s.transport = transport
		s.client = &http.Client{Transport: transport}
		s.clientName = name
	})

	if s.client == nil {
		// Close burned the once before first use
		return nil, sockaddr.Sockname{}, ErrClientClosed
	}
	return s.client, s.clientName, nil
}

// releaseClient tears down the memoized session during Close. Burning the
// once first guarantees no later Request can construct a fresh connector.
func (s *Server) releaseClient() {
	close(s.clientClosed)
	s.clientOnce.Do(func() {})
	if s.transport != nil {
		s.transport.CloseIdleConnections()
	}
}
