// File: reactor/selector.go
//
// Package reactor implements the single-threaded event loop (the
// "Selector"): it owns the readiness backend, the fd registration set, the
// cross-thread callback queue, and the alarm heap, and drives every
// Selectable's read/write/error handlers from one goroutine.
package reactor

import (
	"log"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/reactorcore/pollbackend"
	"github.com/momentics/reactorcore/xstatus"
	"golang.org/x/sys/unix"
)

// Desire is the SelectDesire bitset, re-exported from pollbackend so callers
// never need to import that package directly.
type Desire = pollbackend.Desire

const (
	WantRead  = pollbackend.WantRead
	WantWrite = pollbackend.WantWrite
	WantError = pollbackend.WantError
)

// LoopType selects which readiness backend a Selector is built on.
type LoopType int

const (
	LoopEpoll LoopType = iota
	LoopPoll
)

// Params enumerates the Selector's creation parameters, all defaulted.
type Params struct {
	MaxEventsPerStep         int
	MaxNumCallbacksPerEvent  int
	CallbacksTimeoutPerEvent time.Duration
	DefaultLoopTimeout       time.Duration
	LoopType                 LoopType
	PollCapacity             int
	DetailLog                bool
}

// DefaultParams returns the spec's documented defaults.
func DefaultParams() Params {
	return Params{
		MaxEventsPerStep:         128,
		MaxNumCallbacksPerEvent:  64,
		CallbacksTimeoutPerEvent: time.Second,
		DefaultLoopTimeout:       time.Second,
		LoopType:                 LoopEpoll,
		PollCapacity:             4096,
	}
}

// EventData is the (fd, normalized desire, raw backend bits) triple
// delivered to a Selectable's handlers.
type EventData struct {
	FD     int
	Desire Desire
	Raw    uint32
}

const noNextAlarm = int64(math.MaxInt64)

// Selector is the reactor. The zero value is not usable; construct with
// NewSelector.
type Selector struct {
	params  Params
	backend pollbackend.Backend
	wake    wakeSignal

	loopThreadID atomic.Int32
	started      atomic.Bool
	shouldEnd    atomic.Bool
	now          atomic.Int64

	registered map[uintptr]Selectable

	toRunMu   sync.Mutex
	toRun     *queue.Queue
	haveToRun atomic.Bool

	alarmMu       sync.Mutex
	alarmCounter  atomic.Uint64
	alarms        map[AlarmId]func()
	alarmHeapData alarmHeap
	nextAlarmTime atomic.Int64

	closeCallback func()
}

// NewSelector builds a Selector and its backend, and registers the wake fd.
func NewSelector(params Params) (*Selector, error) {
	if params.MaxEventsPerStep <= 0 {
		params.MaxEventsPerStep = 128
	}
	if params.MaxNumCallbacksPerEvent <= 0 {
		params.MaxNumCallbacksPerEvent = 64
	}
	if params.CallbacksTimeoutPerEvent <= 0 {
		params.CallbacksTimeoutPerEvent = time.Second
	}
	if params.DefaultLoopTimeout <= 0 {
		params.DefaultLoopTimeout = time.Second
	}

	var backend pollbackend.Backend
	var err error
	switch params.LoopType {
	case LoopPoll:
		backend = pollbackend.NewPollBackend(params.PollCapacity)
	default:
		backend, err = pollbackend.NewEpollBackend(params.MaxEventsPerStep)
		if err != nil {
			return nil, err
		}
	}

	wake, err := newWakeSignal()
	if err != nil {
		backend.Close()
		return nil, err
	}

	s := &Selector{
		params:     params,
		backend:    backend,
		wake:       wake,
		registered: make(map[uintptr]Selectable),
		toRun:      queue.New(),
		alarms:     make(map[AlarmId]func()),
	}
	s.nextAlarmTime.Store(noNextAlarm)
	if err := backend.Add(wake.ReadFD(), 0, WantRead|WantError); err != nil {
		backend.Close()
		wake.Close()
		return nil, err
	}
	return s, nil
}

// SetCloseCallback sets the optional callback invoked after Loop's
// registered set has fully drained.
func (s *Selector) SetCloseCallback(f func()) { s.closeCallback = f }

// IsInSelectThread reports whether the caller is running on the loop's
// goroutine, or the loop has not started yet (in which case every thread is
// considered "in" the select thread, per the spec's pre-start allowance).
func (s *Selector) IsInSelectThread() bool {
	if !s.started.Load() {
		return true
	}
	return int32(unix.Gettid()) == s.loopThreadID.Load()
}

// IsExiting reports whether MakeLoopExit has been called.
func (s *Selector) IsExiting() bool { return s.shouldEnd.Load() }

// Now returns the loop's monotonic "now" snapshot, safe from any goroutine.
func (s *Selector) Now() time.Time { return time.Unix(0, s.now.Load()) }

// MakeLoopExit requests the loop to exit. If called off-thread it hops
// through RunInSelectLoop to preserve ordering against other callbacks.
func (s *Selector) MakeLoopExit() {
	if s.IsInSelectThread() {
		s.shouldEnd.Store(true)
		return
	}
	s.RunInSelectLoop(func() { s.shouldEnd.Store(true) })
}

// RunInSelectLoop appends f to the callback queue; if called off-thread it
// wakes the loop so f is observed promptly.
func (s *Selector) RunInSelectLoop(f func()) {
	inThread := s.IsInSelectThread()
	s.toRunMu.Lock()
	s.toRun.Add(f)
	s.toRunMu.Unlock()
	s.haveToRun.Store(true)
	if !inThread {
		s.wake.Wake()
	}
}

// Register binds s to this reactor with the given initial desire. Failing
// preconditions: s already bound to a different reactor, or the call
// arriving off the loop thread after the loop has started.
func (s *Selector) Register(sel Selectable, desire Desire) error {
	if !s.IsInSelectThread() {
		return errNotInSelectThread
	}
	if cur := sel.selector(); cur != nil && cur != s {
		return errAlreadyRegisteredElsewhere
	}
	fd := sel.GetFd()
	if fd < 0 {
		return errInvalidFd
	}
	if err := s.backend.Add(fd, fdUserData(fd), desire); err != nil {
		return err
	}
	sel.setSelector(s)
	sel.setDesire(desire)
	s.registered[fdUserData(fd)] = sel
	return nil
}

// Unregister removes sel from the registered set and resets its back
// pointer to nil.
func (s *Selector) Unregister(sel Selectable) error {
	if !s.IsInSelectThread() {
		return errNotInSelectThread
	}
	fd := sel.GetFd()
	if fd >= 0 {
		s.backend.Delete(fd)
		delete(s.registered, fdUserData(fd))
	}
	sel.setSelector(nil)
	return nil
}

// EnableReadCallback toggles the read bit of sel's desire mask, issuing a
// backend Update only if the bit actually changes.
func (s *Selector) EnableReadCallback(sel Selectable, enable bool) error {
	return s.updateDesireBit(sel, WantRead, enable)
}

// EnableWriteCallback toggles the write bit of sel's desire mask.
func (s *Selector) EnableWriteCallback(sel Selectable, enable bool) error {
	return s.updateDesireBit(sel, WantWrite, enable)
}

func (s *Selector) updateDesireBit(sel Selectable, bit Desire, enable bool) error {
	if !s.IsInSelectThread() {
		return errNotInSelectThread
	}
	cur := sel.desire()
	var next Desire
	if enable {
		next = cur | bit
	} else {
		next = cur &^ bit
	}
	if next == cur {
		return nil
	}
	fd := sel.GetFd()
	if fd < 0 {
		return errInvalidFd
	}
	if err := s.backend.Update(fd, fdUserData(fd), next); err != nil {
		return err
	}
	sel.setDesire(next)
	return nil
}

// CleanAndCloseAll repeatedly closes the head of the registered set until
// it is empty. Close is expected to Unregister its own Selectable.
func (s *Selector) CleanAndCloseAll() {
	for {
		var victim Selectable
		for _, sel := range s.registered {
			victim = sel
			break
		}
		if victim == nil {
			return
		}
		victim.Close()
	}
}

// IsHangUp, IsRemoteHangUp, IsAnyHangUp, IsError and IsInput expose the
// backend's raw-bit predicates so Selectables can distinguish a local
// hang-up from a remote half-close when handling EventData.Raw.
func (s *Selector) IsHangUp(raw uint32) bool       { return s.backend.IsHangUp(raw) }
func (s *Selector) IsRemoteHangUp(raw uint32) bool { return s.backend.IsRemoteHangUp(raw) }
func (s *Selector) IsAnyHangUp(raw uint32) bool    { return s.backend.IsAnyHangUp(raw) }
func (s *Selector) IsError(raw uint32) bool        { return s.backend.IsError(raw) }
func (s *Selector) IsInput(raw uint32) bool        { return s.backend.IsInput(raw) }

func (s *Selector) drainWake() { s.wake.Drain() }

func (s *Selector) computeTimeout() time.Duration {
	if s.haveToRun.Load() {
		return 0
	}
	def := s.params.DefaultLoopTimeout
	next := s.nextAlarmTime.Load()
	if next == noNextAlarm {
		return def
	}
	until := time.Duration(next - time.Now().UnixNano())
	if until < 0 {
		return 0
	}
	if until < def {
		return until
	}
	return def
}

func (s *Selector) dispatchEvents(events []pollbackend.EventData) {
	for _, ev := range events {
		if ev.UserData == 0 {
			s.drainWake()
			continue
		}
		sel, ok := s.registered[ev.UserData]
		if !ok {
			continue
		}
		data := EventData{FD: sel.GetFd(), Desire: ev.Desire, Raw: ev.Raw}
		cont := true
		if ev.Desire.Has(WantError) {
			cont = sel.HandleErrorEvent(data)
		}
		if cont && sel.GetFd() >= 0 && ev.Desire.Has(WantRead) {
			cont = sel.HandleReadEvent(data)
		}
		if cont && sel.GetFd() >= 0 && ev.Desire.Has(WantWrite) {
			sel.HandleWriteEvent(data)
		}
	}
}

func (s *Selector) drainCallbacks() {
	if !s.haveToRun.Load() {
		return
	}
	deadline := time.Now().Add(s.params.CallbacksTimeoutPerEvent)
	for count := 0; count < s.params.MaxNumCallbacksPerEvent; count++ {
		s.toRunMu.Lock()
		if s.toRun.Length() == 0 {
			s.toRunMu.Unlock()
			s.haveToRun.Store(false)
			return
		}
		f := s.toRun.Remove().(func())
		remaining := s.toRun.Length()
		s.toRunMu.Unlock()

		f()

		if remaining == 0 {
			s.haveToRun.Store(false)
			return
		}
		if time.Now().After(deadline) {
			return
		}
	}
}

// Loop runs the event loop on the calling goroutine until MakeLoopExit has
// been called and the registered set has fully drained.
func (s *Selector) Loop() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	s.loopThreadID.Store(int32(unix.Gettid()))
	s.started.Store(true)
	defer s.started.Store(false)

	for {
		if s.shouldEnd.Load() {
			s.CleanAndCloseAll()
			s.drainCallbacks()
			break
		}
		s.now.Store(time.Now().UnixNano())
		timeout := s.computeTimeout()
		events, err := s.backend.Step(timeout)
		if err != nil {
			return err
		}
		s.now.Store(time.Now().UnixNano())
		s.dispatchEvents(events)
		s.drainCallbacks()
		s.runDueAlarms()
	}

	if s.closeCallback != nil {
		s.closeCallback()
	}
	return nil
}

// Close releases the backend and wake fd. Call only after Loop has
// returned.
func (s *Selector) Close() error {
	s.wake.Close()
	return s.backend.Close()
}

func (s *Selector) logDetail(format string, args ...any) {
	if s.params.DetailLog {
		log.Printf(format, args...)
	}
}

func fdUserData(fd int) uintptr { return uintptr(fd) + 1 }

var (
	errNotInSelectThread          error = xstatus.New(xstatus.FailedPrecondition, "must be called from the select loop thread")
	errAlreadyRegisteredElsewhere error = xstatus.New(xstatus.FailedPrecondition, "selectable already registered with another selector")
	errInvalidFd                  error = xstatus.New(xstatus.InvalidArgument, "selectable has no valid fd")
)
