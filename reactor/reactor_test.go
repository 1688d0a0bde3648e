package reactor

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// pipeSelectable is a minimal Selectable fixture: it owns one end of a
// pipe and records every event it is handed.
type pipeSelectable struct {
	Base
	fd      int
	reads   int
	writes  int
	errs    int
	onRead  func() bool
	lastBuf []byte
}

func newPipeSelectable(fd int) *pipeSelectable {
	return &pipeSelectable{Base: NewBase(), fd: fd}
}

func (p *pipeSelectable) HandleReadEvent(ev EventData) bool {
	p.reads++
	buf := make([]byte, 64)
	n, _ := p.Read(p.fd, buf)
	p.lastBuf = buf[:n]
	if p.onRead != nil {
		return p.onRead()
	}
	return true
}

func (p *pipeSelectable) HandleWriteEvent(ev EventData) bool {
	p.writes++
	return true
}

func (p *pipeSelectable) HandleErrorEvent(ev EventData) bool {
	p.errs++
	return true
}

func (p *pipeSelectable) GetFd() int { return p.fd }

func (p *pipeSelectable) Close() {
	if p.fd == InvalidFd {
		return
	}
	if sel := p.Selector(); sel != nil {
		sel.Unregister(p)
	}
	unix.Close(p.fd)
	p.fd = InvalidFd
}

func makePipe(t *testing.T) (r, w int) {
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	return fds[0], fds[1]
}

func TestRegisterUnregisterClearsBackPointer(t *testing.T) {
	sel, err := NewSelector(DefaultParams())
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	defer sel.Close()

	r, w := makePipe(t)
	defer unix.Close(w)
	ps := newPipeSelectable(r)

	if err := sel.Register(ps, WantRead|WantError); err != nil {
		t.Fatalf("register: %v", err)
	}
	if ps.Selector() != sel {
		t.Fatalf("back pointer not set")
	}
	if err := sel.Unregister(ps); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if ps.Selector() != nil {
		t.Fatalf("back pointer should be nil after unregister")
	}
	unix.Close(r)
}

func TestLoopDispatchesReadEvent(t *testing.T) {
	sel, err := NewSelector(DefaultParams())
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}

	r, w := makePipe(t)
	ps := newPipeSelectable(r)
	ps.onRead = func() bool {
		sel.MakeLoopExit()
		return false
	}
	if err := sel.Register(ps, WantRead|WantError); err != nil {
		t.Fatalf("register: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		unix.Write(w, []byte("hi"))
	}()

	done := make(chan error, 1)
	go func() { done <- sel.Loop() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("loop error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not exit")
	}
	if ps.reads != 1 {
		t.Fatalf("reads = %d, want 1", ps.reads)
	}
	if string(ps.lastBuf) != "hi" {
		t.Fatalf("lastBuf = %q, want %q", ps.lastBuf, "hi")
	}
	unix.Close(w)
	sel.Close()
}

func TestRunInSelectLoopFromOtherGoroutine(t *testing.T) {
	sel, err := NewSelector(DefaultParams())
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}

	ran := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		sel.RunInSelectLoop(func() {
			close(ran)
			sel.MakeLoopExit()
		})
	}()

	done := make(chan error, 1)
	go func() { done <- sel.Loop() }()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("callback never ran")
	}
	<-done
	sel.Close()
}

func TestAlarmFiresAndRespectsUnregister(t *testing.T) {
	sel, err := NewSelector(DefaultParams())
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	defer sel.Close()

	fired := make(chan struct{}, 1)
	id := sel.RegisterAlarm(func() { fired <- struct{}{} }, 20*time.Millisecond)
	cancelledFired := false
	cancelID := sel.RegisterAlarm(func() { cancelledFired = true }, 20*time.Millisecond)
	sel.UnregisterAlarm(cancelID)

	go func() {
		time.Sleep(200 * time.Millisecond)
		sel.MakeLoopExit()
	}()
	done := make(chan error, 1)
	go func() { done <- sel.Loop() }()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("alarm %d never fired", id)
	}
	<-done
	if cancelledFired {
		t.Fatalf("cancelled alarm fired")
	}
}

func TestCleanAndCloseAllEmptiesRegisteredSet(t *testing.T) {
	sel, err := NewSelector(DefaultParams())
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}

	r, w := makePipe(t)
	ps := newPipeSelectable(r)
	if err := sel.Register(ps, WantRead|WantError); err != nil {
		t.Fatalf("register: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sel.Loop() }()

	time.Sleep(20 * time.Millisecond)
	sel.MakeLoopExit()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("loop error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not exit")
	}
	if ps.Selector() != nil {
		t.Fatalf("selectable should have been closed and unregistered")
	}
	unix.Close(w)
	sel.Close()
}
