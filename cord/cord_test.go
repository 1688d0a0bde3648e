package cord

import "testing"

func TestAppendAndSize(t *testing.T) {
	c := New()
	c.Append([]byte("hello"))
	c.Append([]byte(" world"))
	if c.Size() != 11 {
		t.Fatalf("size = %d, want 11", c.Size())
	}
	if c.IsEmpty() {
		t.Fatalf("cord should not be empty")
	}
}

func TestRemovePrefixAcrossChunks(t *testing.T) {
	c := New()
	c.Append([]byte("abc"))
	c.Append([]byte("def"))
	c.RemovePrefix(4)
	if c.Size() != 2 {
		t.Fatalf("size = %d, want 2", c.Size())
	}
	chunks := c.Chunks()
	var got []byte
	for _, ch := range chunks {
		got = append(got, ch...)
	}
	if string(got) != "ef" {
		t.Fatalf("got %q, want %q", got, "ef")
	}
}

func TestAppendChunkWithDropCalledOnRemoval(t *testing.T) {
	c := New()
	dropped := false
	c.AppendChunkWithDrop([]byte("xyz"), func() { dropped = true })
	c.RemovePrefix(3)
	if !dropped {
		t.Fatalf("drop callback was not called")
	}
}

func TestClearCallsAllDrops(t *testing.T) {
	c := New()
	n := 0
	for i := 0; i < 3; i++ {
		c.AppendChunkWithDrop([]byte("a"), func() { n++ })
	}
	c.Clear()
	if n != 3 {
		t.Fatalf("drop count = %d, want 3", n)
	}
	if !c.IsEmpty() {
		t.Fatalf("cord should be empty after clear")
	}
}

func TestToIovecClampsToCap(t *testing.T) {
	c := New()
	c.Append([]byte("0123456789"))
	iov, covered := ToIovec(c, 4)
	if covered != 4 {
		t.Fatalf("covered = %d, want 4", covered)
	}
	var got []byte
	for _, b := range iov {
		got = append(got, b...)
	}
	if string(got) != "0123" {
		t.Fatalf("got %q, want %q", got, "0123")
	}
}

func TestToIovecUnboundedWithNegativeCap(t *testing.T) {
	c := New()
	c.Append([]byte("hello"))
	iov, covered := ToIovec(c, -1)
	if covered != 5 {
		t.Fatalf("covered = %d, want 5", covered)
	}
	if len(iov) != 1 {
		t.Fatalf("iov chunks = %d, want 1", len(iov))
	}
}
