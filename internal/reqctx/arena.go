// Package reqctx provides the per-request scoped context: a bump arena for
// all request-lifetime temporary allocations plus the string key/value side
// channel used by the middleware chain.
package reqctx

import (
	"sync"
	"unsafe"
)

// arenaChunkSize is the granularity the arena grows by. Allocations larger
// than a chunk get a dedicated block of exactly their size.
const arenaChunkSize = 4096

var chunkPool = sync.Pool{
	New: func() any {
		b := make([]byte, arenaChunkSize)
		return &b
	},
}

// Arena is a bump allocator owned by one request. It is not safe for
// concurrent use; a request's goroutine owns it exclusively for the
// request's lifetime. Release returns every chunk in one operation, which
// is why individual allocations need no matching free.
type Arena struct {
	chunks   [][]byte // chunks[len-1] is the active one
	offset   int      // bump offset into the active chunk
	released bool

	allocs int // number of Alloc calls, for release accounting
	bytes  int // total bytes handed out
}

// NewArena returns an empty arena. The first chunk is claimed lazily on
// first allocation so aborted requests that never allocate stay free.
func NewArena() *Arena {
	return &Arena{}
}

// Alloc returns an n-byte slice carved from the arena. The memory is valid
// until Release; it must not be referenced afterwards.
func (a *Arena) Alloc(n int) []byte {
	if a.released {
		panic("reqctx: Alloc after Release")
	}
	if n == 0 {
		return nil
	}
	a.allocs++
	a.bytes += n

	if n > arenaChunkSize {
		big := make([]byte, n)
		// Insert before the active chunk so the bump offset stays valid.
		if len(a.chunks) == 0 {
			a.chunks = append(a.chunks, big)
			a.offset = n
			return big
		}
		last := len(a.chunks) - 1
		a.chunks = append(a.chunks[:last], big, a.chunks[last])
		return big
	}

	if len(a.chunks) == 0 || a.offset+n > len(a.chunks[len(a.chunks)-1]) {
		a.chunks = append(a.chunks, *chunkPool.Get().(*[]byte))
		a.offset = 0
	}
	active := a.chunks[len(a.chunks)-1]
	b := active[a.offset : a.offset+n : a.offset+n]
	a.offset += n
	return b
}

// CopyString copies s into the arena and returns a string view over the
// arena-owned bytes. The result must not outlive the arena.
func (a *Arena) CopyString(s string) string {
	if s == "" {
		return ""
	}
	b := a.Alloc(len(s))
	copy(b, s)
	return unsafe.String(&b[0], len(b))
}

// CopyBytes copies b into the arena.
func (a *Arena) CopyBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	dst := a.Alloc(len(b))
	copy(dst, b)
	return dst
}

// Release returns all chunks in one operation. Idempotent; allocating
// after Release panics.
func (a *Arena) Release() {
	if a.released {
		return
	}
	a.released = true
	for i, c := range a.chunks {
		if len(c) == arenaChunkSize {
			c := c
			chunkPool.Put(&c)
		}
		a.chunks[i] = nil
	}
	a.chunks = nil
	a.offset = 0
}

// Released reports whether Release has run.
func (a *Arena) Released() bool { return a.released }

// Stats reports allocation counts for tests and diagnostics.
func (a *Arena) Stats() (allocs, bytes int) { return a.allocs, a.bytes }
