//go:build linux
// +build linux

// File: pollbackend/epoll_linux.go
//
// Linux epoll(7)-based Backend, grounded on reactor/reactor_linux.go's
// EpollCreate1/EpollCtl/EpollWait usage, generalized from a fixed-mask
// single-purpose reactor into the full Add/Update/Delete/Step surface the
// core requires.

package pollbackend

import (
	"time"

	"golang.org/x/sys/unix"
)

// EpollBackend implements Backend atop epoll_create1/epoll_ctl/epoll_wait.
type EpollBackend struct {
	epfd        int
	maxEvents   int
	rawEventBuf []unix.EpollEvent
}

// NewEpollBackend creates an epoll instance sized for maxEventsPerStep.
func NewEpollBackend(maxEventsPerStep int) (*EpollBackend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	if maxEventsPerStep <= 0 {
		maxEventsPerStep = 128
	}
	return &EpollBackend{
		epfd:        epfd,
		maxEvents:   maxEventsPerStep,
		rawEventBuf: make([]unix.EpollEvent, maxEventsPerStep),
	}, nil
}

func desireToEpollMask(d Desire) uint32 {
	var mask uint32
	if d.Has(WantRead) {
		mask |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if d.Has(WantWrite) {
		mask |= unix.EPOLLOUT
	}
	if d.Has(WantError) {
		mask |= unix.EPOLLERR | unix.EPOLLHUP
	}
	return mask
}

func epollMaskToDesire(mask uint32) Desire {
	var d Desire
	if mask&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		d |= WantError
	}
	if mask&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		d |= WantRead
	}
	if mask&unix.EPOLLOUT != 0 {
		d |= WantWrite
	}
	return d
}

func (b *EpollBackend) Add(fd int, userData uintptr, desire Desire) error {
	ev := unix.EpollEvent{Events: desireToEpollMask(desire)}
	packUserData(&ev, userData)
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (b *EpollBackend) Update(fd int, userData uintptr, desire Desire) error {
	ev := unix.EpollEvent{Events: desireToEpollMask(desire)}
	packUserData(&ev, userData)
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (b *EpollBackend) Delete(fd int) error {
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (b *EpollBackend) Step(timeout time.Duration) ([]EventData, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	n, err := unix.EpollWait(b.epfd, b.rawEventBuf, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]EventData, n)
	for i := 0; i < n; i++ {
		out[i] = EventData{
			UserData: unpackUserData(&b.rawEventBuf[i]),
			Desire:   epollMaskToDesire(b.rawEventBuf[i].Events),
			Raw:      b.rawEventBuf[i].Events,
		}
	}
	return out, nil
}

func (b *EpollBackend) IsHangUp(raw uint32) bool       { return raw&unix.EPOLLHUP != 0 }
func (b *EpollBackend) IsRemoteHangUp(raw uint32) bool { return raw&unix.EPOLLRDHUP != 0 }
func (b *EpollBackend) IsAnyHangUp(raw uint32) bool {
	return raw&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0
}
func (b *EpollBackend) IsError(raw uint32) bool { return raw&unix.EPOLLERR != 0 }
func (b *EpollBackend) IsInput(raw uint32) bool { return raw&(unix.EPOLLIN|unix.EPOLLPRI) != 0 }

func (b *EpollBackend) Close() error { return unix.Close(b.epfd) }
