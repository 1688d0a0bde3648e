// File: cord/cord.go
//
// Package cord implements the chunked byte buffer shared by every
// connection's input/output path: cheap append, cheap prefix removal,
// and a scatter-gather view bounded by a byte cap for writev-style I/O.
package cord

// chunk is one borrowed or owned byte run plus an optional callback invoked
// once the chunk is fully consumed and dropped (for externally allocated
// blocks that must be released back to a pool).
type chunk struct {
	data   []byte
	off    int // bytes already consumed from the front
	onDrop func()
}

func (c *chunk) len() int { return len(c.data) - c.off }
func (c *chunk) bytes() []byte { return c.data[c.off:] }

// Cord is a FIFO sequence of byte chunks. It is not safe for concurrent use;
// callers confine it to a single reactor-owning goroutine, per the core's
// concurrency model.
type Cord struct {
	chunks []chunk
	size   int
}

// New returns an empty Cord.
func New() *Cord { return &Cord{} }

// Append copies b into a new chunk with no drop callback.
func (c *Cord) Append(b []byte) {
	if len(b) == 0 {
		return
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	c.AppendChunkWithDrop(cp, nil)
}

// AppendChunkWithDrop adopts b without copying; onDrop (if non-nil) is
// called exactly once, when the chunk has been fully removed by RemovePrefix
// or by Clear.
func (c *Cord) AppendChunkWithDrop(b []byte, onDrop func()) {
	if len(b) == 0 {
		if onDrop != nil {
			onDrop()
		}
		return
	}
	c.chunks = append(c.chunks, chunk{data: b, onDrop: onDrop})
	c.size += len(b)
}

// IsEmpty reports whether the cord has zero bytes.
func (c *Cord) IsEmpty() bool { return c.size == 0 }

// Size returns the total number of bytes still held.
func (c *Cord) Size() int { return c.size }

// Clear removes every chunk, invoking each chunk's drop callback.
func (c *Cord) Clear() {
	for i := range c.chunks {
		if c.chunks[i].onDrop != nil {
			c.chunks[i].onDrop()
		}
	}
	c.chunks = c.chunks[:0]
	c.size = 0
}

// RemovePrefix discards the first n bytes, dropping and calling onDrop for
// any chunk fully consumed in the process. n must not exceed Size().
func (c *Cord) RemovePrefix(n int) {
	if n <= 0 {
		return
	}
	if n > c.size {
		n = c.size
	}
	remaining := n
	i := 0
	for ; i < len(c.chunks) && remaining > 0; i++ {
		ch := &c.chunks[i]
		avail := ch.len()
		if remaining < avail {
			ch.off += remaining
			remaining = 0
			break
		}
		remaining -= avail
		if ch.onDrop != nil {
			ch.onDrop()
		}
	}
	c.chunks = c.chunks[i:]
	c.size -= n
}

// Chunks returns the current live byte slices, front to back. The returned
// slices alias internal storage and must not be retained past the next
// mutation of the Cord.
func (c *Cord) Chunks() [][]byte {
	out := make([][]byte, 0, len(c.chunks))
	for i := range c.chunks {
		if c.chunks[i].len() > 0 {
			out = append(out, c.chunks[i].bytes())
		}
	}
	return out
}

// SizeToWrite returns min(cap, c.Size()); a negative cap means unbounded.
func SizeToWrite(c *Cord, capBytes int) int {
	if capBytes < 0 || capBytes > c.Size() {
		return c.Size()
	}
	return capBytes
}

// ToIovec returns a scatter list of whole-or-truncated chunks covering at
// most capBytes bytes, plus the number of bytes actually covered. A
// negative cap means unbounded.
func ToIovec(c *Cord, capBytes int) ([][]byte, int) {
	limit := SizeToWrite(c, capBytes)
	out := make([][]byte, 0, len(c.chunks))
	covered := 0
	for i := range c.chunks {
		if covered >= limit {
			break
		}
		b := c.chunks[i].bytes()
		if len(b) == 0 {
			continue
		}
		remain := limit - covered
		if len(b) > remain {
			b = b[:remain]
		}
		out = append(out, b)
		covered += len(b)
	}
	return out, covered
}
