// Package sockaddr normalizes bound socket addresses into a (kind, address)
// pair that is independent of the OS-level representation.
package sockaddr

import (
	"fmt"
	"net"
	"strconv"
)

const (
	// KindUnix marks a socket addressed by a filesystem path
	KindUnix = "unix"
	// KindTCP marks a socket addressed by a network host and port
	KindTCP = "tcp"
)

// Sockname is the normalized form of a bound socket address
type Sockname struct {
	Kind string
	Host string
	Port int
	Path string
}

// Resolve normalizes a raw socket address. Passing an address that is
// neither a unix address nor a host:port pair is a programming error and
// panics.
func Resolve(addr net.Addr) Sockname {
	switch a := addr.(type) {
	case *net.UnixAddr:
		return Sockname{Kind: KindUnix, Path: a.Name}
	case *net.TCPAddr:
		return Sockname{Kind: KindTCP, Host: a.IP.String(), Port: a.Port}
	}

	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		panic(fmt.Sprintf("sockaddr: unresolvable address %q", addr.String()))
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		panic(fmt.Sprintf("sockaddr: non-numeric port in %q", addr.String()))
	}
	return Sockname{Kind: KindTCP, Host: host, Port: port}
}

// String renders the address for logging: "unix:<path>" or "host:port"
func (s Sockname) String() string {
	if s.Kind == KindUnix {
		return "unix:" + s.Path
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URI builds a synthetic http URI targeting the socket. Unix sockets are
// address-less, so the placeholder host "unix" is used; wildcard network
// hosts are rewritten to the matching loopback address so the URI is
// actually dialable.
func (s Sockname) URI(path string) string {
	if s.Kind == KindUnix {
		return "http://unix" + path
	}
	host := s.Host
	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "::1"
	}
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(host, strconv.Itoa(s.Port)), path)
}
