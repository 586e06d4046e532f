// Package reader provides a bounds-checked cursor over an immutable byte slice.
package reader

import (
	"errors"
	"fmt"
)

// ErrOutOfBounds is returned when an operation would move past either end of the buffer.
var ErrOutOfBounds = errors.New("reader: out of bounds")

// Reader walks a byte slice with a movable position.
// A failed operation never moves the cursor.
type Reader struct {
	data []byte
	pos  int
}

// New wraps data. The slice is not copied and must not be modified while in use.
func New(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) Position() int  { return r.pos }
func (r *Reader) Len() int       { return len(r.data) }
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// ReadByte returns the next byte and advances by one.
func (r *Reader) ReadByte() (byte, error) {
	if r.Remaining() < 1 {
		return 0, fmt.Errorf("%w: read 1 byte at position %d, length %d", ErrOutOfBounds, r.pos, len(r.data))
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes returns a copy of the next n bytes and advances by n.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("%w: read %d bytes at position %d, length %d", ErrOutOfBounds, n, r.pos, len(r.data))
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// Seek moves the cursor to offset, or by offset when relative is set.
// The target must lie in [0, Len()]; seeking to Len() leaves nothing to read.
func (r *Reader) Seek(offset int, relative bool) error {
	target := offset
	if relative {
		target = r.pos + offset
	}
	if target < 0 || target > len(r.data) {
		return fmt.Errorf("%w: seek to %d, length %d", ErrOutOfBounds, target, len(r.data))
	}
	r.pos = target
	return nil
}
