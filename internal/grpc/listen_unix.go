//go:build linux || darwin || freebsd

package grpc

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// reusableListen binds addr with SO_REUSEADDR/SO_REUSEPORT set on the
// listening socket before bind(2), so a restarted ojp-server process can
// rebind ojp.server.port immediately instead of waiting out the prior
// socket's TIME_WAIT, and so a clustered deployment can run more than one
// listener bound to the same port across kernel-load-balanced instances.
func reusableListen(addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					sockErr = err
					return
				}
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	return lc.Listen(context.Background(), "tcp", addr)
}
