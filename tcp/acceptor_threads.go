package tcp

import (
	"sync/atomic"

	"github.com/momentics/reactorcore/reactor"
)

// AcceptorThreads is a fixed pool of worker reactors an Acceptor hands newly
// accepted connections to, round-robin, grounded on
// original_source/whisperlib/net/connection.h's AcceptorThreads.
type AcceptorThreads struct {
	threads []*reactor.Selector
	cursor  atomic.Uint64
}

// NewAcceptorThreads wraps an existing pool of running selectors.
func NewAcceptorThreads(threads []*reactor.Selector) *AcceptorThreads {
	return &AcceptorThreads{threads: threads}
}

// Next returns the next selector in round-robin order, or nil if the pool is
// empty (callers fall back to the accepting selector itself).
func (t *AcceptorThreads) Next() *reactor.Selector {
	if t == nil || len(t.threads) == 0 {
		return nil
	}
	idx := t.cursor.Add(1) - 1
	return t.threads[idx%uint64(len(t.threads))]
}
