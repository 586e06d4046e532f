package buffers

import (
	"sync"
)

const (
	// MaxDatagramSize covers the largest UDP payload the relay accepts.
	// Race datagrams are far below it; anything larger is truncated by the kernel read.
	MaxDatagramSize = 2048
)

// Pool hands out fixed-size read buffers to the receive loop.
type Pool struct {
	pool sync.Pool
	size int
}

// NewPool creates a pool of size-byte buffers.
func NewPool(size int) *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() any {
				buf := make([]byte, size)
				return &buf
			},
		},
		size: size,
	}
}

func (p *Pool) Size() int { return p.size }

// Get returns a buffer of exactly Size bytes. Contents are not cleared.
func (p *Pool) Get() []byte {
	buf := *(p.pool.Get().(*[]byte))
	if cap(buf) < p.size {
		return make([]byte, p.size)
	}
	return buf[:p.size]
}

// Put gives a buffer back. Undersized buffers are dropped.
func (p *Pool) Put(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	buf = buf[:p.size]
	p.pool.Put(&buf)
}

// DatagramPool is shared by every relay receive loop.
var DatagramPool = NewPool(MaxDatagramSize)
