//go:build linux
// +build linux

package reactor

import "golang.org/x/sys/unix"

// eventfdWake is the Linux wake mechanism: a single eventfd used both to
// signal and to drain.
type eventfdWake struct {
	fd int
}

func newWakeSignal() (wakeSignal, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &eventfdWake{fd: fd}, nil
}

func (w *eventfdWake) ReadFD() int { return w.fd }

func (w *eventfdWake) Wake() {
	var buf [8]byte
	buf[0] = 1
	unix.Write(w.fd, buf[:])
}

func (w *eventfdWake) Drain() {
	var buf [8]byte
	for {
		_, err := unix.Read(w.fd, buf[:])
		if err != nil {
			return
		}
	}
}

func (w *eventfdWake) Close() error { return unix.Close(w.fd) }
