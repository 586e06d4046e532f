// Package protocol decodes race datagrams into their header and the sub-packets the
// relay cares about, and rebuilds forwardable datagrams from them.
//
// A datagram is a 10-byte opaque header followed by tag/length/payload records,
// terminated by the 0xFF end marker or by the end of the buffer. Only player-info and
// car-state records are retained; every other tag is skipped by its declared length.
package protocol

import (
	"errors"
	"fmt"

	"sbrw-mp-go/pkg/protocol/spec"
)

var (
	// ErrPacketTooSmall is returned for datagrams under spec.MinPacketSize.
	// It is recoverable: drop the datagram and carry on.
	ErrPacketTooSmall = errors.New("packet too small")
	// ErrTruncatedSubPacket means a record declares more bytes than the buffer holds.
	ErrTruncatedSubPacket = errors.New("truncated sub-packet")
	// ErrMissingCarState means a car-state record was present but could not be time-patched.
	ErrMissingCarState = errors.New("missing car-state")
)

// SubPacketError describes a record whose declared length overruns the buffer.
type SubPacketError struct {
	Tag      spec.SubPacketType
	Length   int
	Position int
	Total    int
}

func (e *SubPacketError) Error() string {
	return fmt.Sprintf("cannot read sub-packet 0x%02x (0x%02x bytes, position %d, length %d)",
		uint8(e.Tag), e.Length, e.Position, e.Total)
}

func (e *SubPacketError) Unwrap() error {
	return ErrTruncatedSubPacket
}

func tooSmall(n int) error {
	return fmt.Errorf("%w (%d bytes, required at least %d)", ErrPacketTooSmall, n, spec.MinPacketSize)
}
