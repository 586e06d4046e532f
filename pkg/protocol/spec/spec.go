package spec

const (
	// HeaderSize is the opaque prefix shared by every datagram.
	HeaderSize = 10
	// MinPacketSize is the smallest inbound datagram worth decoding.
	MinPacketSize = 16
	// FooterSize is the trailing region (checksum slot) of inbound datagrams.
	FooterSize = 4
	// SubPacketPrefixSize covers the tag and length bytes of a record.
	SubPacketPrefixSize = 2
	// MaxSubPacketPayload is the largest payload a one-byte length can declare.
	MaxSubPacketPayload = 0xFF
)

var trailer = [FooterSize]byte{0x01, 0x02, 0x03, 0x04}

// Trailer returns the fixed checksum placeholder appended to outbound packets.
func Trailer() []byte {
	t := trailer
	return t[:]
}

// SubPacketType is the one-byte tag of a sub-packet record.
type SubPacketType uint8

const (
	TypePlayerInfo SubPacketType = 0x02
	TypeCarState   SubPacketType = 0x12
	TypeEndMarker  SubPacketType = 0xFF
)

// IsRecognized reports whether the tag is captured by the decoder.
func (t SubPacketType) IsRecognized() bool {
	return t == TypePlayerInfo || t == TypeCarState
}

// String returns a human-readable name for the sub-packet type
func (t SubPacketType) String() string {
	switch t {
	case TypePlayerInfo:
		return "PlayerInfo"
	case TypeCarState:
		return "CarState"
	case TypeEndMarker:
		return "EndMarker"
	default:
		return "Unknown"
	}
}
