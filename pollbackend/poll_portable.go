// File: pollbackend/poll_portable.go
//
// PollBackend is the portable poll(2)-based Backend fallback: a dense fd
// array plus an fd->(index,userData) map. Delete marks a slot vacant and
// defers compaction to the top of the next Step, so in-flight Step results
// referencing a since-deleted fd remain valid for the duration of one Step.
package pollbackend

import (
	"time"

	"golang.org/x/sys/unix"
)

const defaultPollCapacity = 4096

type pollSlot struct {
	fd       int32
	userData uintptr
	desire   Desire
	vacant   bool
}

// PollBackend implements Backend atop unix.Poll, for platforms or
// deployments that prefer not to rely on epoll.
type PollBackend struct {
	capacity int
	slots    []pollSlot
	index    map[int]int // fd -> slot index
	pollfds  []unix.PollFd
}

// NewPollBackend creates a poll backend capped at capacity registered fds
// (default 4096 when capacity <= 0).
func NewPollBackend(capacity int) *PollBackend {
	if capacity <= 0 {
		capacity = defaultPollCapacity
	}
	return &PollBackend{
		capacity: capacity,
		index:    make(map[int]int, capacity),
	}
}

func desireToPollMask(d Desire) int16 {
	var mask int16
	if d.Has(WantRead) {
		mask |= unix.POLLIN | unix.POLLRDHUP
	}
	if d.Has(WantWrite) {
		mask |= unix.POLLOUT
	}
	if d.Has(WantError) {
		mask |= unix.POLLERR | unix.POLLHUP
	}
	return mask
}

func pollMaskToDesire(mask int16) Desire {
	var d Desire
	if mask&(unix.POLLERR|unix.POLLHUP|unix.POLLRDHUP) != 0 {
		d |= WantError
	}
	if mask&(unix.POLLIN|unix.POLLPRI) != 0 {
		d |= WantRead
	}
	if mask&unix.POLLOUT != 0 {
		d |= WantWrite
	}
	return d
}

// compact removes vacant slots left by prior Deletes. Called at the top of
// Step, matching the spec's "defers compaction to the top of the next Step".
func (b *PollBackend) compact() {
	write := 0
	for read := 0; read < len(b.slots); read++ {
		if b.slots[read].vacant {
			continue
		}
		if write != read {
			b.slots[write] = b.slots[read]
			b.index[int(b.slots[write].fd)] = write
		}
		write++
	}
	b.slots = b.slots[:write]
}

func (b *PollBackend) Add(fd int, userData uintptr, desire Desire) error {
	if _, exists := b.index[fd]; exists {
		return b.Update(fd, userData, desire)
	}
	if len(b.index) >= b.capacity {
		return ErrBackendFull
	}
	idx := len(b.slots)
	b.slots = append(b.slots, pollSlot{fd: int32(fd), userData: userData, desire: desire})
	b.index[fd] = idx
	return nil
}

func (b *PollBackend) Update(fd int, userData uintptr, desire Desire) error {
	idx, ok := b.index[fd]
	if !ok {
		return b.Add(fd, userData, desire)
	}
	b.slots[idx].userData = userData
	b.slots[idx].desire = desire
	return nil
}

func (b *PollBackend) Delete(fd int) error {
	idx, ok := b.index[fd]
	if !ok {
		return nil
	}
	b.slots[idx].vacant = true
	delete(b.index, fd)
	return nil
}

func (b *PollBackend) Step(timeout time.Duration) ([]EventData, error) {
	b.compact()
	if cap(b.pollfds) < len(b.slots) {
		b.pollfds = make([]unix.PollFd, len(b.slots))
	}
	b.pollfds = b.pollfds[:len(b.slots)]
	for i, s := range b.slots {
		b.pollfds[i] = unix.PollFd{Fd: s.fd, Events: desireToPollMask(s.desire)}
	}
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	n, err := unix.Poll(b.pollfds, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]EventData, 0, n)
	for i, pfd := range b.pollfds {
		if pfd.Revents == 0 {
			continue
		}
		out = append(out, EventData{
			UserData: b.slots[i].userData,
			Desire:   pollMaskToDesire(pfd.Revents),
			Raw:      uint32(pfd.Revents),
		})
	}
	return out, nil
}

func (b *PollBackend) IsHangUp(raw uint32) bool       { return raw&uint32(unix.POLLHUP) != 0 }
func (b *PollBackend) IsRemoteHangUp(raw uint32) bool { return raw&uint32(unix.POLLRDHUP) != 0 }
func (b *PollBackend) IsAnyHangUp(raw uint32) bool {
	return raw&uint32(unix.POLLHUP|unix.POLLRDHUP) != 0
}
func (b *PollBackend) IsError(raw uint32) bool { return raw&uint32(unix.POLLERR) != 0 }
func (b *PollBackend) IsInput(raw uint32) bool { return raw&uint32(unix.POLLIN|unix.POLLPRI) != 0 }

func (b *PollBackend) Close() error { return nil }
