package protocol

import (
	"bytes"
	"encoding/binary"

	"sbrw-mp-go/pkg/protocol/spec"
)

// timePatchOffset is where the 16-bit time delta sits inside a car-state record,
// i.e. the first two payload bytes after the tag/length prefix.
const timePatchOffset = spec.SubPacketPrefixSize

// assemble concatenates the header, the given records and the trailer.
func (p *Packet) assemble(records ...[]byte) []byte {
	size := len(p.Header) + spec.FooterSize
	for _, r := range records {
		size += len(r)
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))
	buf.Write(p.Header)
	for _, r := range records {
		buf.Write(r)
	}
	buf.Write(spec.Trailer())
	return buf.Bytes()
}

// StatePosPacket returns a copy of the car-state record with its first two payload
// bytes replaced by timeDiff truncated to a big-endian int16. It returns nil when no
// car-state was captured or its payload is too short to carry the delta.
func (p *Packet) StatePosPacket(timeDiff int64) []byte {
	if !p.IsCarStateOK() || len(p.CarState) < timePatchOffset+2 {
		return nil
	}
	patched := bytes.Clone(p.CarState)
	binary.BigEndian.PutUint16(patched[timePatchOffset:], uint16(int16(timeDiff)))
	return patched
}

// PlayerPacket rebuilds a full player datagram: header, player-info, time-patched
// car-state and trailer. It returns nil unless both records were captured.
func (p *Packet) PlayerPacket(timeDiff int64) []byte {
	if !p.IsOK() {
		return nil
	}
	return p.assemble(p.PlayerInfo, p.StatePosPacket(timeDiff))
}

// PlayerInfoPacket rebuilds a datagram carrying only the player-info record.
// timeDiff is accepted for symmetry; player-info is never time-patched.
func (p *Packet) PlayerInfoPacket(_ int64) []byte {
	if !p.IsPlayerInfoOK() {
		return nil
	}
	return p.assemble(p.PlayerInfo)
}

// CarStatePacket rebuilds a datagram carrying only the car-state record.
//
// The time-patched record is only computed as a presence check; the stored,
// unpatched record is what gets written.
func (p *Packet) CarStatePacket(timeDiff int64) ([]byte, error) {
	if !p.IsCarStateOK() {
		return nil, nil
	}
	if p.StatePosPacket(timeDiff) == nil {
		return nil, ErrMissingCarState
	}
	return p.assemble(p.CarState), nil
}
