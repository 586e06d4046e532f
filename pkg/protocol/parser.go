package protocol

import (
	"errors"

	"sbrw-mp-go/pkg/log"
)

// Parser is the per-connection codec: it holds the last successfully decoded
// Packet and answers queries and encodes from it.
//
// A successful Parse replaces the held packet as a whole, so no field of an older
// datagram survives a newer one. Failed parses leave it untouched.
// Parser is not safe for concurrent use.
type Parser struct {
	packet *Packet
}

func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes data. ErrPacketTooSmall is logged and returned so the caller can drop
// the datagram; a truncated record is returned as a *SubPacketError.
func (p *Parser) Parse(data []byte) error {
	pkt, err := Decode(data)
	if err != nil {
		if errors.Is(err, ErrPacketTooSmall) {
			log.Error().Int("size", len(data)).Err(err).Msg("dropping datagram")
		}
		return err
	}
	p.packet = pkt
	return nil
}

// Packet returns the held packet, nil before the first successful Parse.
func (p *Parser) Packet() *Packet {
	return p.packet
}

func (p *Parser) IsOK() bool           { return p.packet.IsOK() }
func (p *Parser) IsPlayerInfoOK() bool { return p.packet.IsPlayerInfoOK() }
func (p *Parser) IsCarStateOK() bool   { return p.packet.IsCarStateOK() }

func (p *Parser) PlayerPacket(timeDiff int64) []byte {
	return p.packet.PlayerPacket(timeDiff)
}

func (p *Parser) PlayerInfoPacket(timeDiff int64) []byte {
	return p.packet.PlayerInfoPacket(timeDiff)
}

func (p *Parser) CarStatePacket(timeDiff int64) ([]byte, error) {
	return p.packet.CarStatePacket(timeDiff)
}

func (p *Parser) StatePosPacket(timeDiff int64) []byte {
	return p.packet.StatePosPacket(timeDiff)
}
