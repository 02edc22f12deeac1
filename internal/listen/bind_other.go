//go:build !linux && !darwin

package listen

import (
	"net"
	"strconv"
)

// The portable fallback cannot pass a backlog to the OS; the kernel default
// accept-queue depth applies.

func listenTCP(ip net.IP, port, _ int) (net.Listener, error) {
	network := "tcp4"
	if ip.To4() == nil {
		network = "tcp6"
	}
	return net.Listen(network, net.JoinHostPort(ip.String(), strconv.Itoa(port)))
}

func listenUnix(path string, _ int) (net.Listener, error) {
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	// Socket file removal is owned by Socket.Cleanup, not the listener
	l.(*net.UnixListener).SetUnlinkOnClose(false)
	return l, nil
}
