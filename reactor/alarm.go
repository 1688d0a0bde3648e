// File: reactor/alarm.go
//
// The alarm heap with tombstones: RegisterAlarm/UnregisterAlarm are safe
// from any goroutine; only the map is authoritative for "is this alarm
// still live" — the heap may carry stale entries that are discarded lazily
// when popped.
package reactor

import (
	"container/heap"
	"time"
)

// AlarmId is the opaque handle returned by RegisterAlarm.
type AlarmId uint64

type alarmEntry struct {
	deadline time.Time
	id       AlarmId
}

type alarmHeap []alarmEntry

func (h alarmHeap) Len() int            { return len(h) }
func (h alarmHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h alarmHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *alarmHeap) Push(x any)         { *h = append(*h, x.(alarmEntry)) }
func (h *alarmHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// RegisterAlarm schedules f to run on the loop thread after d has elapsed,
// returning an opaque id usable with UnregisterAlarm. Safe from any thread.
func (s *Selector) RegisterAlarm(f func(), d time.Duration) AlarmId {
	id := AlarmId(s.alarmCounter.Add(1))
	deadline := time.Now().Add(d)

	s.alarmMu.Lock()
	s.alarms[id] = f
	heap.Push(&s.alarmHeapData, alarmEntry{deadline: deadline, id: id})
	s.nextAlarmTime.Store(s.alarmHeapData[0].deadline.UnixNano())
	s.alarmMu.Unlock()

	return id
}

// UnregisterAlarm removes id from the map. Its heap entry, if any, becomes
// a tombstone skipped at pop time. Safe from any thread.
func (s *Selector) UnregisterAlarm(id AlarmId) {
	s.alarmMu.Lock()
	delete(s.alarms, id)
	s.alarmMu.Unlock()
}

func (s *Selector) runDueAlarms() {
	now := time.Now()

	var due []func()
	s.alarmMu.Lock()
	for len(s.alarmHeapData) > 0 && !s.alarmHeapData[0].deadline.After(now) {
		entry := heap.Pop(&s.alarmHeapData).(alarmEntry)
		if f, ok := s.alarms[entry.id]; ok {
			delete(s.alarms, entry.id)
			due = append(due, f)
		}
	}
	if len(s.alarmHeapData) > 0 {
		s.nextAlarmTime.Store(s.alarmHeapData[0].deadline.UnixNano())
	} else {
		s.nextAlarmTime.Store(noNextAlarm)
	}
	s.alarmMu.Unlock()

	for _, f := range due {
		f()
	}
}
