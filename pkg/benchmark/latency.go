package benchmark

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"strconv"
	"time"

	"sbrw-mp-go/pkg/log"
	"sbrw-mp-go/pkg/protocol"
	"sbrw-mp-go/pkg/protocol/spec"
	"sbrw-mp-go/pkg/relay"
)

// LatencyResults holds the results of a latency benchmark
type LatencyResults struct {
	MinLatency    time.Duration
	MaxLatency    time.Duration
	AvgLatency    time.Duration
	MedianLatency time.Duration
	P95Latency    time.Duration
	P99Latency    time.Duration
	PacketsSent   int
	PacketsRecv   int
	TotalTime     time.Duration
	PacketSize    int
	Component     Component
}

// Component specifies which component to benchmark
type Component int

const (
	ComponentCodec   Component = iota // Decode + PlayerPacket rebuild
	ComponentUDPOnly                  // Loopback UDP echo, no relay
	ComponentRelay                    // Two clients talking through a relay on loopback
)

func (c Component) String() string {
	switch c {
	case ComponentCodec:
		return "Codec"
	case ComponentUDPOnly:
		return "UDP Socket"
	case ComponentRelay:
		return "Relay"
	default:
		return "Unknown"
	}
}

func ParseComponent(s string) (Component, error) {
	switch s {
	case "codec":
		return ComponentCodec, nil
	case "udp":
		return ComponentUDPOnly, nil
	case "relay":
		return ComponentRelay, nil
	default:
		return 0, fmt.Errorf("unknown component: %s", s)
	}
}

// BenchmarkOptions provides configuration for benchmarks
type BenchmarkOptions struct {
	Component  Component
	Iterations int
	// CarStateSize is the car-state payload length of the generated datagrams.
	CarStateSize int
	// ReadTimeout bounds every network read.
	ReadTimeout time.Duration
}

func DefaultBenchmarkOptions() *BenchmarkOptions {
	return &BenchmarkOptions{
		Component:    ComponentRelay,
		Iterations:   1000,
		CarStateSize: 40,
		ReadTimeout:  time.Second,
	}
}

// BuildDatagram returns a well-formed race datagram with a 3-byte player-info record
// and a car-state record of carStateSize payload bytes.
func BuildDatagram(carStateSize int) ([]byte, error) {
	if carStateSize < 2 || carStateSize > spec.MaxSubPacketPayload-1 {
		return nil, fmt.Errorf("car-state size must be in [2, %d], got %d", spec.MaxSubPacketPayload-1, carStateSize)
	}
	out := make([]byte, spec.HeaderSize, spec.HeaderSize+5+2+carStateSize+1+spec.FooterSize)
	for i := range out {
		out[i] = byte(i)
	}
	out = append(out, byte(spec.TypePlayerInfo), 3, 'S', 'B', 'R')
	out = append(out, byte(spec.TypeCarState), byte(carStateSize))
	for i := 0; i < carStateSize; i++ {
		out = append(out, byte(i%256))
	}
	out = append(out, byte(spec.TypeEndMarker))
	return append(out, spec.Trailer()...), nil
}

// BenchmarkLatency measures latency for a specific component
func BenchmarkLatency(ctx context.Context, opts *BenchmarkOptions) (*LatencyResults, error) {
	if opts.Iterations <= 0 {
		return nil, errors.New("iterations must be positive")
	}
	datagram, err := BuildDatagram(opts.CarStateSize)
	if err != nil {
		return nil, err
	}

	var results *LatencyResults
	switch opts.Component {
	case ComponentCodec:
		results, err = benchmarkCodec(opts, datagram)
	case ComponentUDPOnly:
		results, err = benchmarkUDPOnly(ctx, opts, datagram)
	case ComponentRelay:
		results, err = benchmarkRelay(ctx, opts, datagram)
	default:
		return nil, fmt.Errorf("unknown component: %d", opts.Component)
	}
	if err != nil {
		return nil, err
	}
	results.PacketSize = len(datagram)
	results.Component = opts.Component
	return results, nil
}

func benchmarkCodec(opts *BenchmarkOptions, datagram []byte) (*LatencyResults, error) {
	latencies := make([]time.Duration, 0, opts.Iterations)
	startTime := time.Now()

	for i := 0; i < opts.Iterations; i++ {
		iterStart := time.Now()
		pkt, err := protocol.Decode(datagram)
		if err != nil {
			return nil, err
		}
		if out := pkt.PlayerPacket(int64(i)); len(out) != len(datagram)-1 {
			return nil, fmt.Errorf("rebuilt packet is %d bytes, expected %d", len(out), len(datagram)-1)
		}
		latencies = append(latencies, time.Since(iterStart))
	}
	return calculateStats(latencies, opts.Iterations, time.Since(startTime)), nil
}

func listenLoopback() (*net.UDPConn, error) {
	return net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
}

// roundTrips sends datagram from src to dst and waits for one reply on recv per
// iteration. Lost datagrams count as sent but not received.
func roundTrips(ctx context.Context, opts *BenchmarkOptions, datagram []byte, src, recv *net.UDPConn, dst net.Addr) *LatencyResults {
	buf := make([]byte, 2048)
	latencies := make([]time.Duration, 0, opts.Iterations)
	startTime := time.Now()

	sent := 0
	for i := 0; i < opts.Iterations && ctx.Err() == nil; i++ {
		sendTime := time.Now()
		if _, err := src.WriteTo(datagram, dst); err != nil {
			log.Warn().Err(err).Msg("benchmark write failed")
			continue
		}
		sent++
		recv.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
		if _, _, err := recv.ReadFrom(buf); err != nil {
			log.Warn().Err(err).Int("iteration", i).Msg("benchmark read failed")
			continue
		}
		latencies = append(latencies, time.Since(sendTime))
	}
	return calculateStats(latencies, sent, time.Since(startTime))
}

func benchmarkUDPOnly(ctx context.Context, opts *BenchmarkOptions, datagram []byte) (*LatencyResults, error) {
	conn1, err := listenLoopback()
	if err != nil {
		return nil, fmt.Errorf("failed to listen on conn1: %w", err)
	}
	defer conn1.Close()
	conn2, err := listenLoopback()
	if err != nil {
		return nil, fmt.Errorf("failed to listen on conn2: %w", err)
	}
	defer conn2.Close()

	// echo everything back to the sender
	go func() {
		buf := make([]byte, 2048)
		for {
			n, addr, err := conn2.ReadFrom(buf)
			if err != nil {
				return
			}
			conn2.WriteTo(buf[:n], addr)
		}
	}()

	return roundTrips(ctx, opts, datagram, conn1, conn1, conn2.LocalAddr()), nil
}

func benchmarkRelay(ctx context.Context, opts *BenchmarkOptions, datagram []byte) (*LatencyResults, error) {
	relayConn, err := listenLoopback()
	if err != nil {
		return nil, fmt.Errorf("failed to listen for relay: %w", err)
	}
	cfg := relay.DefaultConfig()
	cfg.MaxSessionPlayers = 2
	r := relay.New(relayConn, cfg)
	defer r.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.Listen(ctx)

	sender, err := listenLoopback()
	if err != nil {
		return nil, fmt.Errorf("failed to listen for sender: %w", err)
	}
	defer sender.Close()
	receiver, err := listenLoopback()
	if err != nil {
		return nil, fmt.Errorf("failed to listen for receiver: %w", err)
	}
	defer receiver.Close()

	// join the receiver first so the sender's datagrams have somewhere to go
	if _, err := receiver.WriteTo(datagram, relayConn.LocalAddr()); err != nil {
		return nil, fmt.Errorf("failed to register receiver: %w", err)
	}
	deadline := time.Now().Add(opts.ReadTimeout)
	for r.Snapshot().Peers < 1 {
		if time.Now().After(deadline) {
			return nil, errors.New("relay did not register the receiver")
		}
		time.Sleep(time.Millisecond)
	}

	return roundTrips(ctx, opts, datagram, sender, receiver, relayConn.LocalAddr()), nil
}

// calculateStats calculates statistics from latency measurements
func calculateStats(latencies []time.Duration, sent int, totalTime time.Duration) *LatencyResults {
	if len(latencies) == 0 {
		return &LatencyResults{
			PacketsSent: sent,
			TotalTime:   totalTime,
		}
	}

	slices.Sort(latencies)

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	return &LatencyResults{
		MinLatency:    latencies[0],
		MaxLatency:    latencies[len(latencies)-1],
		AvgLatency:    sum / time.Duration(len(latencies)),
		MedianLatency: latencies[len(latencies)/2],
		P95Latency:    latencies[(len(latencies)*95)/100],
		P99Latency:    latencies[(len(latencies)*99)/100],
		PacketsSent:   sent,
		PacketsRecv:   len(latencies),
		TotalTime:     totalTime,
	}
}

// PrintResults prints the results of a latency benchmark
func PrintResults(w io.Writer, results *LatencyResults) {
	fmt.Fprintf(w, "=== Latency Benchmark: %s ===\n", results.Component)
	fmt.Fprintf(w, "Packet Size: %d bytes\n", results.PacketSize)
	fmt.Fprintf(w, "Packets Sent: %d\n", results.PacketsSent)
	fmt.Fprintf(w, "Packets Received: %d\n", results.PacketsRecv)

	if results.PacketsSent > 0 {
		lossPercent := 100.0 - (float64(results.PacketsRecv)/float64(results.PacketsSent))*100.0
		fmt.Fprintf(w, "Packet Loss: %.2f%%\n", lossPercent)
	}

	fmt.Fprintf(w, "Total Time: %v\n", results.TotalTime)
	fmt.Fprintf(w, "Min Latency: %v\n", results.MinLatency)
	fmt.Fprintf(w, "Avg Latency: %v\n", results.AvgLatency)
	fmt.Fprintf(w, "Median Latency: %v\n", results.MedianLatency)
	fmt.Fprintf(w, "95th Percentile: %v\n", results.P95Latency)
	fmt.Fprintf(w, "99th Percentile: %v\n", results.P99Latency)
	fmt.Fprintf(w, "Max Latency: %v\n", results.MaxLatency)
	fmt.Fprintln(w, "==========================================")
}

// WriteCSV writes one row per result, latencies in nanoseconds.
func WriteCSV(w io.Writer, results []*LatencyResults) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"Component", "PacketSize", "PacketsSent", "PacketsReceived",
		"MinLatency", "AvgLatency", "MedianLatency", "P95Latency", "P99Latency", "MaxLatency", "TotalTime"})

	ns := func(d time.Duration) string { return strconv.FormatInt(d.Nanoseconds(), 10) }
	for _, r := range results {
		cw.Write([]string{
			r.Component.String(),
			strconv.Itoa(r.PacketSize),
			strconv.Itoa(r.PacketsSent),
			strconv.Itoa(r.PacketsRecv),
			ns(r.MinLatency), ns(r.AvgLatency), ns(r.MedianLatency),
			ns(r.P95Latency), ns(r.P99Latency), ns(r.MaxLatency), ns(r.TotalTime),
		})
	}
	cw.Flush()
	return cw.Error()
}
