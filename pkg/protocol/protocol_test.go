package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sbrw-mp-go/pkg/protocol/spec"
)

var (
	testHeader = []byte{0x01, 0x00, 0x00, 0x73, 0x00, 0x01, 0xff, 0xff, 0xff, 0xff}
	testInfo   = []byte{0x02, 0x03, 0x41, 0x42, 0x43}
	testState  = []byte{0x12, 0x04, 0xaa, 0xbb, 0xcc, 0xdd}
	testCRC    = []byte{0xb0, 0x8d, 0xc3, 0x30}
)

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func fullPacket() []byte {
	return concat(testHeader, testInfo, testState, []byte{0xff}, testCRC)
}

func TestDecodePlayerInfoOnly(t *testing.T) {
	data := []byte{0x01, 0x00, 0x00, 0x73, 0x00, 0x01, 0xff, 0xff, 0xff, 0xff, 0x02, 0x03, 0x41, 0x42, 0x43, 0xff}

	p, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(p.Header, data[:10]) {
		t.Errorf("Header = % x, expected % x", p.Header, data[:10])
	}
	if !bytes.Equal(p.PlayerInfo, testInfo) {
		t.Errorf("PlayerInfo = % x, expected % x", p.PlayerInfo, testInfo)
	}
	if !p.IsPlayerInfoOK() {
		t.Errorf("IsPlayerInfoOK should be true")
	}
	if p.IsCarStateOK() || p.IsOK() {
		t.Errorf("IsCarStateOK/IsOK should be false")
	}

	out := p.PlayerInfoPacket(0)
	expected := concat(data[:10], testInfo, []byte{0x01, 0x02, 0x03, 0x04})
	if len(out) != 18 {
		t.Fatalf("PlayerInfoPacket length = %d, expected 18", len(out))
	}
	if !bytes.Equal(out, expected) {
		t.Errorf("PlayerInfoPacket = % x, expected % x", out, expected)
	}
	if p.PlayerPacket(0) != nil {
		t.Errorf("PlayerPacket should be nil without car-state")
	}
}

func TestDecodeHeaderIsCopied(t *testing.T) {
	data := fullPacket()
	p, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	data[0] = 0xee
	data[12] = 0xee
	if p.Header[0] != 0x01 || p.PlayerInfo[2] != 0x41 {
		t.Errorf("decoded packet aliases the input buffer")
	}
}

func TestDecodeBothRecords(t *testing.T) {
	p, err := Decode(fullPacket())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !p.IsOK() {
		t.Fatalf("IsOK should be true")
	}
	expected := &Packet{Header: testHeader, PlayerInfo: testInfo, CarState: testState}
	if diff := cmp.Diff(expected, p); diff != "" {
		t.Errorf("Decode mismatch (-expected +got):\n%s", diff)
	}
}

func TestDecodeWithoutRecords(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"end marker then padding", concat(testHeader, []byte{0xff, 0, 0, 0, 0, 0})},
		{"unknown records only", concat(testHeader, []byte{0x05, 0x01, 0x99, 0x07, 0x00, 0xff}, testCRC)},
		{"zero length unknown to end", concat(testHeader, []byte{0x30, 0x00, 0x31, 0x00, 0x32, 0x00})},
	}

	for _, tc := range testCases {
		p, err := Decode(tc.data)
		if err != nil {
			t.Errorf("%s: Decode failed: %v", tc.name, err)
			continue
		}
		if !bytes.Equal(p.Header, testHeader) {
			t.Errorf("%s: Header = % x", tc.name, p.Header)
		}
		if p.IsOK() || p.IsPlayerInfoOK() || p.IsCarStateOK() {
			t.Errorf("%s: no record should be captured", tc.name)
		}
	}
}

func TestDecodeScansIntoFooterWithoutEndMarker(t *testing.T) {
	// without an end marker the footer bytes are scanned as a record: 0x01 0x02 skips 2 bytes
	data := concat(testHeader, testInfo, []byte{0x01, 0x02, 0x03, 0x04})
	p, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(p.PlayerInfo, testInfo) {
		t.Errorf("PlayerInfo = % x", p.PlayerInfo)
	}
}

func TestDecodeLastWriteWins(t *testing.T) {
	data := concat(testHeader, []byte{0x02, 0x01, 0xaa, 0x02, 0x01, 0xbb, 0xff}, testCRC)
	p, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	expected := []byte{0x02, 0x01, 0xbb}
	if !bytes.Equal(p.PlayerInfo, expected) {
		t.Errorf("PlayerInfo = % x, expected % x", p.PlayerInfo, expected)
	}
}

func TestDecodeTooSmall(t *testing.T) {
	for n := 0; n < spec.MinPacketSize; n++ {
		p, err := Decode(make([]byte, n))
		if !errors.Is(err, ErrPacketTooSmall) {
			t.Errorf("Decode(%d bytes): expected ErrPacketTooSmall, got %v", n, err)
		}
		if p != nil {
			t.Errorf("Decode(%d bytes) returned a packet", n)
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	data := concat(testHeader, []byte{0x12, 0x20, 0xaa, 0xbb, 0xff, 0xff})

	p, err := Decode(data)
	if p != nil {
		t.Errorf("Decode returned a packet for a truncated record")
	}
	if !errors.Is(err, ErrTruncatedSubPacket) {
		t.Fatalf("Expected ErrTruncatedSubPacket, got %v", err)
	}
	var spErr *SubPacketError
	if !errors.As(err, &spErr) {
		t.Fatalf("Expected *SubPacketError, got %T", err)
	}
	if spErr.Tag != spec.TypeCarState || spErr.Length != 0x20 || spErr.Position != 12 || spErr.Total != 16 {
		t.Errorf("Unexpected error detail: %+v", spErr)
	}
	if spErr.Error() != "cannot read sub-packet 0x12 (0x20 bytes, position 12, length 16)" {
		t.Errorf("Unexpected message: %q", spErr.Error())
	}
}

func TestDecodeMissingLengthByte(t *testing.T) {
	data := concat(testHeader, []byte{0x07, 0x04, 1, 2, 3, 4, 0x09})

	_, err := Decode(data)
	var spErr *SubPacketError
	if !errors.As(err, &spErr) {
		t.Fatalf("Expected *SubPacketError, got %v", err)
	}
	if spErr.Tag != 0x09 || spErr.Position != 17 || spErr.Total != 17 {
		t.Errorf("Unexpected error detail: %+v", spErr)
	}
}

func TestStatePosPacket(t *testing.T) {
	p, err := Decode(fullPacket())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	stored := bytes.Clone(p.CarState)

	testCases := []struct {
		timeDiff int64
		expected [2]byte
	}{
		{0x0102, [2]byte{0x01, 0x02}},
		{0, [2]byte{0x00, 0x00}},
		{-1, [2]byte{0xff, 0xff}},
		{0x12345, [2]byte{0x23, 0x45}},
		{0x7fff, [2]byte{0x7f, 0xff}},
	}

	for _, tc := range testCases {
		first := p.StatePosPacket(tc.timeDiff)
		second := p.StatePosPacket(tc.timeDiff)
		if !bytes.Equal(first, second) {
			t.Errorf("StatePosPacket(%d) is not stable: % x vs % x", tc.timeDiff, first, second)
		}
		if first[2] != tc.expected[0] || first[3] != tc.expected[1] {
			t.Errorf("StatePosPacket(%d) delta = % x, expected % x", tc.timeDiff, first[2:4], tc.expected)
		}
		if !bytes.Equal(first[:2], stored[:2]) || !bytes.Equal(first[4:], stored[4:]) {
			t.Errorf("StatePosPacket(%d) changed bytes outside the delta: % x", tc.timeDiff, first)
		}
		if !bytes.Equal(p.CarState, stored) {
			t.Fatalf("StatePosPacket(%d) mutated the stored car-state", tc.timeDiff)
		}
	}
}

func TestPlayerPacket(t *testing.T) {
	p, err := Decode(fullPacket())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	out := p.PlayerPacket(0x0102)
	patched := []byte{0x12, 0x04, 0x01, 0x02, 0xcc, 0xdd}
	expected := concat(testHeader, testInfo, patched, spec.Trailer())
	if !bytes.Equal(out, expected) {
		t.Errorf("PlayerPacket = % x, expected % x", out, expected)
	}
	if len(out) != len(testHeader)+len(testInfo)+len(testState)+spec.FooterSize {
		t.Errorf("PlayerPacket length = %d", len(out))
	}
}

func TestCarStatePacketWritesStoredRecord(t *testing.T) {
	p, err := Decode(fullPacket())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	out, err := p.CarStatePacket(0x0102)
	if err != nil {
		t.Fatalf("CarStatePacket failed: %v", err)
	}
	expected := concat(testHeader, testState, spec.Trailer())
	if !bytes.Equal(out, expected) {
		t.Errorf("CarStatePacket = % x, expected % x", out, expected)
	}
}

func TestEncodeWithoutRecords(t *testing.T) {
	p, err := Decode(concat(testHeader, []byte{0xff}, make([]byte, 5)))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p.PlayerPacket(1) != nil || p.PlayerInfoPacket(1) != nil || p.StatePosPacket(1) != nil {
		t.Errorf("encoders should produce nothing without records")
	}
	out, err := p.CarStatePacket(1)
	if out != nil || err != nil {
		t.Errorf("CarStatePacket = %v, %v; expected nil, nil", out, err)
	}

	var nilPacket *Packet
	if nilPacket.IsOK() || nilPacket.PlayerInfoPacket(0) != nil {
		t.Errorf("nil packet should report nothing")
	}
}

func TestShortCarStateCannotBePatched(t *testing.T) {
	data := concat(testHeader, testInfo, []byte{0x12, 0x01, 0x7e, 0xff}, testCRC)
	p, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !p.IsOK() {
		t.Fatalf("IsOK should be true")
	}
	if p.StatePosPacket(5) != nil {
		t.Errorf("StatePosPacket should be nil for a 1-byte payload")
	}
	if _, err := p.CarStatePacket(5); !errors.Is(err, ErrMissingCarState) {
		t.Errorf("Expected ErrMissingCarState, got %v", err)
	}
	expected := concat(testHeader, testInfo, spec.Trailer())
	if out := p.PlayerPacket(5); !bytes.Equal(out, expected) {
		t.Errorf("PlayerPacket = % x, expected % x", out, expected)
	}
}

func TestSubPackets(t *testing.T) {
	data := concat(testHeader, testInfo, []byte{0x40, 0x01, 0x99}, testState, []byte{0xff}, testCRC)
	records, err := SubPackets(data)
	if err != nil {
		t.Fatalf("SubPackets failed: %v", err)
	}
	expected := []SubPacket{
		{Type: spec.TypePlayerInfo, Offset: 10, Payload: testInfo[2:]},
		{Type: spec.SubPacketType(0x40), Offset: 15, Payload: []byte{0x99}},
		{Type: spec.TypeCarState, Offset: 18, Payload: testState[2:]},
	}
	if diff := cmp.Diff(expected, records); diff != "" {
		t.Fatalf("SubPackets mismatch (-expected +got):\n%s", diff)
	}
	if !bytes.Equal(records[2].Bytes(), testState) {
		t.Errorf("Bytes() = % x, expected % x", records[2].Bytes(), testState)
	}
}

func TestSubPacketTypeString(t *testing.T) {
	testCases := []struct {
		typ      spec.SubPacketType
		expected string
	}{
		{spec.TypePlayerInfo, "PlayerInfo"},
		{spec.TypeCarState, "CarState"},
		{spec.TypeEndMarker, "EndMarker"},
		{spec.SubPacketType(0x40), "Unknown"},
	}
	for _, tc := range testCases {
		if tc.typ.String() != tc.expected {
			t.Errorf("SubPacketType(0x%02x).String() = %q, expected %q", uint8(tc.typ), tc.typ.String(), tc.expected)
		}
	}
}

func TestTrailerIsACopy(t *testing.T) {
	tr := spec.Trailer()
	tr[0] = 0xee
	if spec.Trailer()[0] != 0x01 {
		t.Errorf("Trailer exposes shared state")
	}
}

func TestScanAllocationsDoNotGrowWithRecords(t *testing.T) {
	unknown := []byte{0x07, 0x01, 0x00}
	few := concat(testHeader, unknown, testInfo, testState, []byte{0xff}, testCRC)
	var many []byte
	many = append(many, testHeader...)
	for i := 0; i < 40; i++ {
		many = append(many, unknown...)
	}
	many = append(many, concat(testInfo, testState, []byte{0xff}, testCRC)...)

	allocs := func(data []byte) float64 {
		return testing.AllocsPerRun(100, func() {
			if _, err := Decode(data); err != nil {
				t.Fatal(err)
			}
		})
	}
	if a, b := allocs(few), allocs(many); a != b {
		t.Errorf("Decode allocs: %v with 1 skipped record, %v with 40", a, b)
	}
}

func BenchmarkDecode(b *testing.B) {
	data := fullPacket()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decode(data)
	}
}

func BenchmarkPlayerPacket(b *testing.B) {
	p, _ := Decode(fullPacket())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p.PlayerPacket(int64(i))
	}
}
