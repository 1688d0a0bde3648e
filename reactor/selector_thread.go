// File: reactor/selector_thread.go
//
// SelectorThread is a thin goroutine wrapper owning a Selector, grounded on
// original_source/whisperlib/net/selector.h's SelectorThread: a
// Create/Start/Stop lifecycle so callers that just want "a reactor running
// somewhere in the background" don't hand-roll the goroutine and shutdown
// handshake themselves.
package reactor

import "sync"

// SelectorThread owns a Selector and runs its Loop on a dedicated
// goroutine.
type SelectorThread struct {
	sel     *Selector
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	loopErr error
}

// NewSelectorThread builds a Selector with params and wraps it.
func NewSelectorThread(params Params) (*SelectorThread, error) {
	sel, err := NewSelector(params)
	if err != nil {
		return nil, err
	}
	return &SelectorThread{sel: sel}, nil
}

// Selector returns the owned reactor.
func (t *SelectorThread) Selector() *Selector { return t.sel }

// IsStarted reports whether Start has been called and Stop has not yet
// completed.
func (t *SelectorThread) IsStarted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// Start launches the reactor loop on a new goroutine.
func (t *SelectorThread) Start() {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.loopErr = t.sel.Loop()
	}()
}

// Stop requests loop exit and blocks until the goroutine has returned.
func (t *SelectorThread) Stop() error {
	t.sel.MakeLoopExit()
	t.wg.Wait()
	t.mu.Lock()
	t.started = false
	t.mu.Unlock()
	return t.loopErr
}
