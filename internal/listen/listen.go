// Package listen opens the accepting sockets a server binds to.
//
// Exactly one binding mode is honored per call: a unix socket path takes
// precedence over an adopted listener, which takes precedence over a TCP
// host/port bind. Each opened socket knows how to resolve its own address
// and how to clean up its own backing resource.
package listen

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/codefionn/httpbridge/internal/sockaddr"
)

// Config selects the binding mode and its parameters
type Config struct {
	// Host and Port bind a TCP listener. An empty Host binds the wildcard
	// address, one socket per available address family.
	Host string
	Port int

	// UnixSocket binds a unix domain socket at the given path. Takes
	// precedence over Adopted and Host/Port.
	UnixSocket string
	// UnixSocketPerms is applied to the socket file after bind; socket
	// creation itself does not accept permission bits.
	UnixSocketPerms os.FileMode

	// Adopted is a caller-supplied already-open listener. Takes precedence
	// over Host/Port. The caller keeps ownership of the backing resource.
	Adopted net.Listener

	// Backlog is the OS accept-queue depth, shared across binding modes.
	Backlog int
}

// DefaultBacklog is used when Config.Backlog is zero
const DefaultBacklog = 1024

// Socket is one OS-level accepting endpoint
type Socket interface {
	// Listener returns the accepting listener
	Listener() net.Listener
	// Name returns the resolved (kind, address) of the bound socket
	Name() sockaddr.Sockname
	// Cleanup releases the backing OS resource the socket created, if any.
	// For unix sockets this removes the socket file; the OS does not.
	Cleanup() error
}

type tcpSocket struct {
	l    net.Listener
	name sockaddr.Sockname
}

func (s *tcpSocket) Listener() net.Listener  { return s.l }
func (s *tcpSocket) Name() sockaddr.Sockname { return s.name }
func (s *tcpSocket) Cleanup() error          { return nil }

type unixSocket struct {
	l    net.Listener
	name sockaddr.Sockname
}

func (s *unixSocket) Listener() net.Listener  { return s.l }
func (s *unixSocket) Name() sockaddr.Sockname { return s.name }

func (s *unixSocket) Cleanup() error {
	if err := os.Remove(s.name.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove socket file %s: %w", s.name.Path, err)
	}
	return nil
}

type adoptedSocket struct {
	l    net.Listener
	name sockaddr.Sockname
}

func (s *adoptedSocket) Listener() net.Listener  { return s.l }
func (s *adoptedSocket) Name() sockaddr.Sockname { return s.name }
func (s *adoptedSocket) Cleanup() error          { return nil }

// Open binds the accepting sockets selected by cfg. Bind failures are fatal
// startup errors and are returned unchanged; there is no retry.
func Open(cfg Config) ([]Socket, error) {
	if cfg.Backlog <= 0 {
		cfg.Backlog = DefaultBacklog
	}

	switch {
	case cfg.UnixSocket != "":
		return openUnix(cfg)
	case cfg.Adopted != nil:
		return []Socket{&adoptedSocket{
			l:    cfg.Adopted,
			name: sockaddr.Resolve(cfg.Adopted.Addr()),
		}}, nil
	default:
		return openTCP(cfg)
	}
}

// AdoptFile turns an inherited open file descriptor (e.g. from a service
// manager) into a listener usable as Config.Adopted. The file can be closed
// after the call.
func AdoptFile(f *os.File) (net.Listener, error) {
	l, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("failed to adopt file descriptor %d: %w", f.Fd(), err)
	}
	return l, nil
}

func openUnix(cfg Config) ([]Socket, error) {
	path, err := filepath.Abs(cfg.UnixSocket)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve socket path %s: %w", cfg.UnixSocket, err)
	}

	l, err := listenUnix(path, cfg.Backlog)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on unix socket %s: %w", path, err)
	}

	// Permissions are a separate step after bind
	perms := cfg.UnixSocketPerms
	if perms == 0 {
		perms = 0600
	}
	if err := os.Chmod(path, perms); err != nil {
		l.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to set socket permissions on %s: %w", path, err)
	}

	return []Socket{&unixSocket{l: l, name: sockaddr.Resolve(l.Addr())}}, nil
}

func openTCP(cfg Config) ([]Socket, error) {
	if cfg.Host != "" {
		addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s:%d: %w", cfg.Host, cfg.Port, err)
		}
		l, err := listenTCP(addr.IP, addr.Port, cfg.Backlog)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		return []Socket{&tcpSocket{l: l, name: sockaddr.Resolve(l.Addr())}}, nil
	}

	// Wildcard bind: one socket per address family, both on the same port
	var sockets []Socket
	port := cfg.Port
	for _, ip := range []net.IP{net.IPv4zero, net.IPv6unspecified} {
		l, err := listenTCP(ip, port, cfg.Backlog)
		if err != nil {
			closeSockets(sockets)
			return nil, fmt.Errorf("failed to listen on %s:%d: %w", ip, port, err)
		}
		name := sockaddr.Resolve(l.Addr())
		sockets = append(sockets, &tcpSocket{l: l, name: name})
		// An ephemeral port is assigned on the first bind and pinned for
		// the remaining families
		port = name.Port
	}
	return sockets, nil
}

func closeSockets(sockets []Socket) {
	for _, s := range sockets {
		s.Listener().Close()
	}
}
