package protocol

import (
	"sbrw-mp-go/pkg/log"
	"sbrw-mp-go/pkg/protocol/reader"
	"sbrw-mp-go/pkg/protocol/spec"
)

// Packet holds what Decode keeps from one datagram.
// PlayerInfo and CarState are stored with their 2-byte tag/length prefix.
type Packet struct {
	Header     []byte
	PlayerInfo []byte
	CarState   []byte
}

// SubPacket is a single tag/length/payload record as found on the wire.
type SubPacket struct {
	Type    spec.SubPacketType
	Offset  int
	Payload []byte
}

// Bytes returns the record with its tag/length prefix.
func (s SubPacket) Bytes() []byte {
	out := make([]byte, spec.SubPacketPrefixSize+len(s.Payload))
	out[0] = byte(s.Type)
	out[1] = byte(len(s.Payload))
	copy(out[spec.SubPacketPrefixSize:], s.Payload)
	return out
}

// scan walks the records after the header, stopping at the end marker or the end of
// the buffer. Recognized records, or all of them when all is set, are passed to fn;
// the rest are skipped by length. The reader is left at the footer.
func scan(r *reader.Reader, all bool, fn func(SubPacket)) error {
	for r.Remaining() > 0 {
		tagByte, err := r.ReadByte()
		if err != nil {
			return err
		}
		tag := spec.SubPacketType(tagByte)
		if tag == spec.TypeEndMarker {
			break
		}
		offset := r.Position() - 1

		lengthByte, err := r.ReadByte()
		if err != nil {
			return &SubPacketError{Tag: tag, Length: 0, Position: r.Position(), Total: r.Len()}
		}
		length := int(lengthByte)
		if r.Position()+length > r.Len() {
			return &SubPacketError{Tag: tag, Length: length, Position: r.Position(), Total: r.Len()}
		}

		log.Debug().
			Uint8("id", tagByte).
			Uint8("size", lengthByte).
			Msg("sub-packet")

		if !all && !tag.IsRecognized() {
			log.Debug().Msg("skipping sub-packet")
			if err := r.Seek(length, true); err != nil {
				return err
			}
			continue
		}
		payload, err := r.ReadBytes(length)
		if err != nil {
			return err
		}
		fn(SubPacket{Type: tag, Offset: offset, Payload: payload})
	}
	// the footer is a checksum slot we neither read nor validate
	return r.Seek(r.Len()-spec.FooterSize, false)
}

// Decode parses one datagram into a fresh Packet.
// It returns ErrPacketTooSmall for short datagrams and a *SubPacketError
// (matching ErrTruncatedSubPacket) when a record overruns the buffer.
func Decode(data []byte) (*Packet, error) {
	if len(data) < spec.MinPacketSize {
		return nil, tooSmall(len(data))
	}

	r := reader.New(data)
	header, err := r.ReadBytes(spec.HeaderSize)
	if err != nil {
		return nil, err
	}
	p := &Packet{Header: header}

	err = scan(r, false, func(s SubPacket) {
		switch s.Type {
		case spec.TypePlayerInfo:
			p.PlayerInfo = s.Bytes()
		case spec.TypeCarState:
			p.CarState = s.Bytes()
		}
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SubPackets returns every record of a datagram in wire order, unknown tags included.
func SubPackets(data []byte) ([]SubPacket, error) {
	if len(data) < spec.MinPacketSize {
		return nil, tooSmall(len(data))
	}
	r := reader.New(data)
	if err := r.Seek(spec.HeaderSize, false); err != nil {
		return nil, err
	}
	var records []SubPacket
	err := scan(r, true, func(s SubPacket) {
		records = append(records, s)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// IsOK reports whether both player-info and car-state were captured.
func (p *Packet) IsOK() bool {
	return p.IsPlayerInfoOK() && p.IsCarStateOK()
}

func (p *Packet) IsPlayerInfoOK() bool {
	return p != nil && p.PlayerInfo != nil
}

func (p *Packet) IsCarStateOK() bool {
	return p != nil && p.CarState != nil
}
