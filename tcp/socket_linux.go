//go:build linux
// +build linux

// File: tcp/socket_linux.go
//
// Raw non-blocking socket helpers, grounded on the teacher's socket(2)/
// setsockopt(2) style in internal/transport/transport_linux.go.
package tcp

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/reactorcore/netaddr"
	"github.com/momentics/reactorcore/xstatus"
)

func domainFor(ip netaddr.IpAddress) int {
	if ip.IsIPv4() {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

func newNonBlockingSocket(domain int) (int, xstatus.Status) {
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, xstatus.ErrnoToStatus(err.(unix.Errno))
	}
	return fd, xstatus.OkStatus
}

func setReuseAddr(fd int) xstatus.Status {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return xstatus.ErrnoToStatus(err.(unix.Errno))
	}
	return xstatus.OkStatus
}

func setTCPNoDelay(fd int) xstatus.Status {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return xstatus.ErrnoToStatus(err.(unix.Errno))
	}
	return xstatus.OkStatus
}

func setSendBufferSize(fd, n int) xstatus.Status {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, n); err != nil {
		return xstatus.ErrnoToStatus(err.(unix.Errno))
	}
	return xstatus.OkStatus
}

func setRecvBufferSize(fd, n int) xstatus.Status {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, n); err != nil {
		return xstatus.ErrnoToStatus(err.(unix.Errno))
	}
	return xstatus.OkStatus
}

// getSocketError reads and clears SO_ERROR, the canonical way to learn why a
// connect(2) failed or why an fd became readiness-error.
func getSocketError(fd int) unix.Errno {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err.(unix.Errno)
	}
	if errno == 0 {
		return 0
	}
	return unix.Errno(errno)
}

// bytesAvailable wraps the FIONREAD ioctl (unix.TIOCINQ is the numerically
// identical alias exposed by this x/sys version) used to size the next read.
func bytesAvailable(fd int) (int, xstatus.Status) {
	n, err := unix.IoctlGetInt(fd, unix.TIOCINQ)
	if err != nil {
		return 0, xstatus.ErrnoToStatus(err.(unix.Errno))
	}
	return n, xstatus.OkStatus
}
