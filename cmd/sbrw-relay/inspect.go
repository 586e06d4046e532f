package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"sbrw-mp-go/pkg/capture"
	"sbrw-mp-go/pkg/protocol"
)

var inspectCommand = &cli.Command{
	Name:      "inspect",
	Usage:     "decode recorded race datagrams",
	UsageText: "sbrw-relay inspect (--capture FILE | --pcap FILE) [--port N] [--time-diff MS]",
	Description: `Prints the header, every sub-packet record, the status flags and the
datagrams the relay would forward for each recorded datagram.
--capture reads files written by "up --capture"; --pcap reads pcap and pcapng files.`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "capture",
			Usage: "Relay capture file `FILE`",
		},
		&cli.StringFlag{
			Name:  "pcap",
			Usage: "pcap or pcapng file `FILE`",
		},
		&cli.UintFlag{
			Name:  "port",
			Usage: "Only UDP packets to or from `PORT` (pcap only, 0 for all)",
			Value: 9998,
		},
		&cli.Int64Flag{
			Name:  "time-diff",
			Usage: "Time delta `MS` written into rebuilt car-state records",
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Stop after `NUMBER` datagrams (0 for all)",
		},
	},
	Action: inspectCmd,
}

// errLimitReached stops iteration once enough datagrams were printed.
var errLimitReached = errors.New("limit reached")

func inspectCmd(c *cli.Context) error {
	capPath, pcapPath := c.String("capture"), c.String("pcap")
	if (capPath == "") == (pcapPath == "") {
		return cli.Exit("Error: exactly one of --capture or --pcap is required.", 1)
	}
	if c.Uint("port") > 0xffff {
		return cli.Exit("Error: --port must be a valid UDP port.", 1)
	}

	timeDiff := c.Int64("time-diff")
	limit := c.Int("limit")
	out := c.App.Writer

	n := 0
	fn := func(d capture.Datagram) error {
		n++
		inspectDatagram(out, n, d, timeDiff)
		if limit > 0 && n >= limit {
			return errLimitReached
		}
		return nil
	}

	var err error
	if capPath != "" {
		var r *capture.Reader
		r, err = capture.OpenReader(capPath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
		}
		defer r.Close()
		err = r.Each(fn)
	} else {
		var f *os.File
		f, err = os.Open(pcapPath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
		}
		defer f.Close()
		err = capture.ReadPcap(f, uint16(c.Uint("port")), fn)
	}
	if err != nil && !errors.Is(err, errLimitReached) {
		return cli.Exit(fmt.Sprintf("Error reading datagrams: %v", err), 1)
	}

	fmt.Fprintf(out, "%d datagram(s)\n", n)
	return nil
}

func inspectDatagram(w io.Writer, n int, d capture.Datagram, timeDiff int64) {
	fmt.Fprintf(w, "#%d %s from %s, %d bytes\n", n, d.Time.Format("15:04:05.000000"), d.Source, len(d.Data))

	pkt, err := protocol.Decode(d.Data)
	if err != nil {
		fmt.Fprintf(w, "  error: %v\n\n", err)
		return
	}
	fmt.Fprintf(w, "  header      %s\n", hex.EncodeToString(pkt.Header))

	records, err := protocol.SubPackets(d.Data)
	if err != nil {
		fmt.Fprintf(w, "  error: %v\n", err)
	}
	for _, sp := range records {
		fmt.Fprintf(w, "  @%-3d %-10s 0x%02x len %-3d %s\n",
			sp.Offset, sp.Type, uint8(sp.Type), len(sp.Payload), hex.EncodeToString(sp.Payload))
	}

	fmt.Fprintf(w, "  status      ok=%t player-info=%t car-state=%t\n",
		pkt.IsOK(), pkt.IsPlayerInfoOK(), pkt.IsCarStateOK())

	if b := pkt.PlayerPacket(timeDiff); b != nil {
		fmt.Fprintf(w, "  player      %s\n", hex.EncodeToString(b))
	}
	if b := pkt.PlayerInfoPacket(timeDiff); b != nil {
		fmt.Fprintf(w, "  player-info %s\n", hex.EncodeToString(b))
	}
	if b, err := pkt.CarStatePacket(timeDiff); err != nil {
		fmt.Fprintf(w, "  car-state   error: %v\n", err)
	} else if b != nil {
		fmt.Fprintf(w, "  car-state   %s\n", hex.EncodeToString(b))
	}
	if b := pkt.StatePosPacket(timeDiff); b != nil {
		fmt.Fprintf(w, "  state-pos   %s\n", hex.EncodeToString(b))
	}
	fmt.Fprintln(w)
}
