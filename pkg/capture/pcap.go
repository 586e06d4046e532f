package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapng files start with a section header block
const ngSectionHeader = 0x0A0D0D0A

type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

func openPacketSource(rd io.Reader) (packetSource, error) {
	br := bufio.NewReader(rd)
	head, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("pcap: failed to read file header: %w", err)
	}
	if binary.BigEndian.Uint32(head) == ngSectionHeader {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("pcapng: %w", err)
		}
		return ng, nil
	}
	r, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("pcap: %w", err)
	}
	return r, nil
}

// ReadPcap calls fn with the UDP payload of every packet in a pcap or pcapng stream.
// When port is non-zero only packets with that source or destination port are kept.
func ReadPcap(rd io.Reader, port uint16, fn func(Datagram) error) error {
	src, err := openPacketSource(rd)
	if err != nil {
		return err
	}
	for {
		data, ci, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pcap: failed to read packet: %w", err)
		}

		packet := gopacket.NewPacket(data, src.LinkType(), gopacket.Default)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)
		if port != 0 && uint16(udp.SrcPort) != port && uint16(udp.DstPort) != port {
			continue
		}

		d := Datagram{
			Time:   ci.Timestamp,
			Source: strconv.Itoa(int(udp.SrcPort)),
			Data:   append([]byte(nil), udp.Payload...),
		}
		if nl := packet.NetworkLayer(); nl != nil {
			d.Source = net.JoinHostPort(nl.NetworkFlow().Src().String(), d.Source)
		}
		if err := fn(d); err != nil {
			return err
		}
	}
}
