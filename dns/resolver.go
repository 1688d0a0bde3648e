// File: dns/resolver.go
//
// The resolver itself: a fixed pool of worker goroutines, each owning a
// bounded channel (the Go-idiomatic substitute for the original's
// per-thread ProducerConsumerQueue), round-robin dispatch, and a
// synchronous per-host resolve procedure built on net.DefaultResolver.
package dns

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/reactorcore/netaddr"
	"github.com/momentics/reactorcore/xstatus"
)

// Callback receives the outcome of an asynchronous resolve.
type Callback func(*HostInfo, xstatus.Status)

// Options enumerates the resolver's creation parameters.
type Options struct {
	NumThreads int
	QueueSize  int
	PutTimeout time.Duration
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{NumThreads: 4, QueueSize: 100, PutTimeout: time.Millisecond}
}

// SetNumThreads returns a copy of o with NumThreads set.
func (o Options) SetNumThreads(n int) Options { o.NumThreads = n; return o }

// SetQueueSize returns a copy of o with QueueSize set.
func (o Options) SetQueueSize(n int) Options { o.QueueSize = n; return o }

// SetPutTimeout returns a copy of o with PutTimeout set.
func (o Options) SetPutTimeout(d time.Duration) Options { o.PutTimeout = d; return o }

type resolveRequest struct {
	hostname string
	callback Callback
}

// Resolver is the worker-thread pool DNS resolver. Resolves are not
// cached.
type Resolver struct {
	opts  Options
	queues []chan resolveRequest
	index  atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds and starts a Resolver with opts (zero-value fields take the
// documented defaults).
func New(opts Options) *Resolver {
	if opts.NumThreads < 1 {
		opts.NumThreads = 4
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 100
	}
	if opts.PutTimeout <= 0 {
		opts.PutTimeout = time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Resolver{
		opts:   opts,
		queues: make([]chan resolveRequest, opts.NumThreads),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := range r.queues {
		r.queues[i] = make(chan resolveRequest, opts.QueueSize)
	}
	r.wg.Add(opts.NumThreads)
	for i := range r.queues {
		go r.runResolve(i)
	}
	return r
}

var (
	defaultOnce sync.Once
	defaultInst *Resolver
)

// Default returns the process-wide lazily constructed resolver.
func Default() *Resolver {
	defaultOnce.Do(func() { defaultInst = New(DefaultOptions()) })
	return defaultInst
}

func (r *Resolver) runResolve(index int) {
	defer r.wg.Done()
	q := r.queues[index]
	for {
		select {
		case <-r.ctx.Done():
			return
		case req, ok := <-q:
			if !ok {
				return
			}
			info, st := resolveHost(r.ctx, req.hostname)
			req.callback(info, st)
		}
	}
}

// Resolve performs a synchronous resolve on the calling goroutine.
func (r *Resolver) Resolve(hostname string) (*HostInfo, xstatus.Status) {
	return resolveHost(context.Background(), hostname)
}

// ResolveAsync enqueues hostname on a round-robin-selected worker queue and
// calls cb with the result on that worker's goroutine. If the queue is full
// for longer than PutTimeout, cb is invoked synchronously, on the caller's
// goroutine, with an internal error.
func (r *Resolver) ResolveAsync(hostname string, cb Callback) {
	idx := int(r.index.Add(1)-1) % len(r.queues)
	req := resolveRequest{hostname: hostname, callback: cb}
	select {
	case r.queues[idx] <- req:
		return
	default:
	}
	timer := time.NewTimer(r.opts.PutTimeout)
	defer timer.Stop()
	select {
	case r.queues[idx] <- req:
	case <-timer.C:
		cb(nil, xstatus.New(xstatus.Internal, "dns resolve queue %d full after %s", idx, r.opts.PutTimeout))
	}
}

// Close stops every worker goroutine and waits for them to exit. The
// Resolver must not be used afterward.
func (r *Resolver) Close() {
	r.cancel()
	r.wg.Wait()
}

func resolveHost(ctx context.Context, hostname string) (*HostInfo, xstatus.Status) {
	info := NewHostInfo(hostname)

	resolveName, st := ToDnsResolveName(hostname)
	if !st.Ok() {
		return nil, st
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, resolveName)
	if err != nil {
		return nil, lookupErrToStatus(err)
	}

	var v4, v6 []netaddr.IpAddress
	for _, a := range addrs {
		if ip4 := a.IP.To4(); ip4 != nil {
			v4 = append(v4, netaddr.IpAddressFromIPv4(ip4[0], ip4[1], ip4[2], ip4[3]))
			continue
		}
		var raw [16]byte
		copy(raw[:], a.IP.To16())
		v6 = append(v6, netaddr.IpAddressFromBytes(raw))
	}
	info.SetIpAddress(v4, v6)
	return info, xstatus.OkStatus
}

// lookupErrToStatus approximates the original's EAI_* mapping with the
// subset of failure information Go's resolver actually surfaces.
func lookupErrToStatus(err error) xstatus.Status {
	dnsErr, ok := err.(*net.DNSError)
	if !ok {
		return xstatus.New(xstatus.Internal, "%v", err)
	}
	switch {
	case dnsErr.IsTimeout:
		return xstatus.New(xstatus.Unavailable, "%v", dnsErr)
	case dnsErr.IsNotFound:
		return xstatus.New(xstatus.NotFound, "%v", dnsErr)
	case dnsErr.IsTemporary:
		return xstatus.New(xstatus.Unavailable, "%v", dnsErr)
	default:
		return xstatus.New(xstatus.Internal, "%v", dnsErr)
	}
}
