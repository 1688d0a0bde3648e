//go:build !linux
// +build !linux

package reactor

import "golang.org/x/sys/unix"

// pipeWake is the portable self-pipe wake mechanism.
type pipeWake struct {
	r, w int
}

func newWakeSignal() (wakeSignal, error) {
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK); err != nil {
		return nil, err
	}
	return &pipeWake{r: fds[0], w: fds[1]}, nil
}

func (w *pipeWake) ReadFD() int { return w.r }

func (w *pipeWake) Wake() {
	unix.Write(w.w, []byte{1})
}

func (w *pipeWake) Drain() {
	var buf [64]byte
	for {
		_, err := unix.Read(w.r, buf[:])
		if err != nil {
			return
		}
	}
}

func (w *pipeWake) Close() error {
	unix.Close(w.w)
	return unix.Close(w.r)
}
