package pollbackend

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func withPipe(t *testing.T) (r, w int) {
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func testBackendReadiness(t *testing.T, b Backend) {
	r, w := withPipe(t)
	if err := b.Add(r, 0xdead, WantRead|WantError); err != nil {
		t.Fatalf("add: %v", err)
	}
	defer b.Delete(r)

	evs, err := b.Step(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(evs) != 0 {
		t.Fatalf("expected no events before write, got %d", len(evs))
	}

	if _, err := unix.Write(w, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	evs, err = b.Step(time.Second)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].UserData != 0xdead {
		t.Fatalf("user data = %x, want 0xdead", evs[0].UserData)
	}
	if !evs[0].Desire.Has(WantRead) {
		t.Fatalf("expected WantRead desire, got %v", evs[0].Desire)
	}
	if !b.IsInput(evs[0].Raw) {
		t.Fatalf("expected IsInput true for raw %x", evs[0].Raw)
	}
}

func TestEpollBackendReadiness(t *testing.T) {
	b, err := NewEpollBackend(16)
	if err != nil {
		t.Fatalf("new epoll backend: %v", err)
	}
	defer b.Close()
	testBackendReadiness(t, b)
}

func TestPollBackendReadiness(t *testing.T) {
	b := NewPollBackend(16)
	defer b.Close()
	testBackendReadiness(t, b)
}

func TestPollBackendCapacity(t *testing.T) {
	b := NewPollBackend(1)
	r1, _ := withPipe(t)
	r2, _ := withPipe(t)
	if err := b.Add(r1, 1, WantRead); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := b.Add(r2, 2, WantRead); err != ErrBackendFull {
		t.Fatalf("expected ErrBackendFull, got %v", err)
	}
}

func TestPollBackendDeleteCompaction(t *testing.T) {
	b := NewPollBackend(4)
	r1, _ := withPipe(t)
	r2, w2 := withPipe(t)
	b.Add(r1, 1, WantRead)
	b.Add(r2, 2, WantRead)
	b.Delete(r1)
	unix.Write(w2, []byte("y"))
	evs, err := b.Step(time.Second)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(evs) != 1 || evs[0].UserData != 2 {
		t.Fatalf("unexpected events after delete: %+v", evs)
	}
}
