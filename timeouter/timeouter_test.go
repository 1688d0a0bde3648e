package timeouter

import (
	"testing"
	"time"

	"github.com/momentics/reactorcore/reactor"
)

func runLoop(t *testing.T, sel *reactor.Selector) chan error {
	done := make(chan error, 1)
	go func() { done <- sel.Loop() }()
	return done
}

func TestSetTimeoutFires(t *testing.T) {
	sel, err := reactor.NewSelector(reactor.DefaultParams())
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	defer sel.Close()

	fired := make(chan TimeoutId, 1)
	to := New(sel, func(id TimeoutId) { fired <- id })
	to.SetTimeout(1, 20*time.Millisecond)

	done := runLoop(t, sel)
	select {
	case id := <-fired:
		if id != 1 {
			t.Fatalf("fired id = %d, want 1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout never fired")
	}
	sel.MakeLoopExit()
	<-done
}

func TestClearTimeoutPreventsFire(t *testing.T) {
	sel, err := reactor.NewSelector(reactor.DefaultParams())
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	defer sel.Close()

	fired := false
	to := New(sel, func(id TimeoutId) { fired = true })
	to.SetTimeout(1, 20*time.Millisecond)
	if !to.ClearTimeout(1) {
		t.Fatalf("expected ClearTimeout to report cleared")
	}

	done := runLoop(t, sel)
	time.Sleep(100 * time.Millisecond)
	sel.MakeLoopExit()
	<-done
	if fired {
		t.Fatalf("cleared timeout fired anyway")
	}
}

func TestSetTimeoutResetsPrevious(t *testing.T) {
	sel, err := reactor.NewSelector(reactor.DefaultParams())
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	defer sel.Close()

	count := 0
	to := New(sel, func(id TimeoutId) { count++ })
	to.SetTimeout(1, 500*time.Millisecond)
	to.SetTimeout(1, 20*time.Millisecond) // re-arm sooner, cancels the first

	done := runLoop(t, sel)
	time.Sleep(150 * time.Millisecond)
	sel.MakeLoopExit()
	<-done
	if count != 1 {
		t.Fatalf("callback fired %d times, want 1", count)
	}
}
