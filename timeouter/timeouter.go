// File: timeouter/timeouter.go
//
// Package timeouter implements the per-owner named-timeout helper built
// atop a reactor.Selector's alarm service, grounded on
// original_source/whisperlib/net/timeouter.h.
package timeouter

import (
	"sync"
	"time"

	"github.com/momentics/reactorcore/reactor"
)

// TimeoutId is the caller-chosen identifier for one named timeout slot.
type TimeoutId int64

// Callback is invoked with the timeout id when a timeout fires.
type Callback func(id TimeoutId)

// Timeouter multiplexes a single callback over many named timeouts, each
// backed by one reactor alarm.
type Timeouter struct {
	sel      *reactor.Selector
	callback Callback

	mu        sync.Mutex
	timeouts  map[TimeoutId]reactor.AlarmId
}

// New builds a Timeouter bound to sel; callback fires (on the reactor
// thread) whenever a registered timeout elapses.
func New(sel *reactor.Selector, callback Callback) *Timeouter {
	return &Timeouter{
		sel:      sel,
		callback: callback,
		timeouts: make(map[TimeoutId]reactor.AlarmId),
	}
}

// SetTimeout (re)arms the named timeout id to fire after d. If id was
// already armed, the previous alarm is unregistered first.
func (t *Timeouter) SetTimeout(id TimeoutId, d time.Duration) {
	t.mu.Lock()
	if prev, ok := t.timeouts[id]; ok {
		t.sel.UnregisterAlarm(prev)
	}
	alarmID := t.sel.RegisterAlarm(func() { t.fire(id) }, d)
	t.timeouts[id] = alarmID
	t.mu.Unlock()
}

func (t *Timeouter) fire(id TimeoutId) {
	t.mu.Lock()
	delete(t.timeouts, id)
	t.mu.Unlock()
	t.callback(id)
}

// ClearTimeout disarms id, reporting whether a timeout was actually
// cleared.
func (t *Timeouter) ClearTimeout(id TimeoutId) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	alarmID, ok := t.timeouts[id]
	if !ok {
		return false
	}
	t.sel.UnregisterAlarm(alarmID)
	delete(t.timeouts, id)
	return true
}

// ClearAllTimeouts disarms every currently armed timeout.
func (t *Timeouter) ClearAllTimeouts() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, alarmID := range t.timeouts {
		t.sel.UnregisterAlarm(alarmID)
		delete(t.timeouts, id)
	}
}
