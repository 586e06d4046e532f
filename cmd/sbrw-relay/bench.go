package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"sbrw-mp-go/pkg/benchmark"
	"sbrw-mp-go/pkg/log"
)

var benchCommand = &cli.Command{
	Name:      "bench",
	Usage:     "measure codec and relay latency on loopback",
	UsageText: "sbrw-relay bench [--component codec|udp|relay | --all] [--iterations N] [--output results.csv]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "component",
			Usage: "Component to benchmark (codec, udp, relay)",
			Value: "relay",
		},
		&cli.BoolFlag{
			Name:  "all",
			Usage: "Benchmark every component",
		},
		&cli.IntFlag{
			Name:  "iterations",
			Usage: "Number of `ITERATIONS` to run",
			Value: 1000,
		},
		&cli.IntFlag{
			Name:  "car-state-size",
			Usage: "Car-state payload `BYTES` of the generated datagrams",
			Value: 40,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Per-read timeout",
			Value: time.Second,
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Write results as CSV to `FILE`",
		},
	},
	Action: benchCmd,
}

func benchCmd(c *cli.Context) error {
	log.SetStd(false)

	components := []benchmark.Component{benchmark.ComponentCodec, benchmark.ComponentUDPOnly, benchmark.ComponentRelay}
	if !c.Bool("all") {
		comp, err := benchmark.ParseComponent(c.String("component"))
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		components = []benchmark.Component{comp}
	}

	var results []*benchmark.LatencyResults
	for _, comp := range components {
		opts := benchmark.DefaultBenchmarkOptions()
		opts.Component = comp
		opts.Iterations = c.Int("iterations")
		opts.CarStateSize = c.Int("car-state-size")
		opts.ReadTimeout = c.Duration("timeout")

		log.Info().Str("component", comp.String()).Int("iterations", opts.Iterations).Msg("running benchmark")
		r, err := benchmark.BenchmarkLatency(c.Context, opts)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error benchmarking %s: %v", comp, err), 1)
		}
		benchmark.PrintResults(c.App.Writer, r)
		results = append(results, r)
	}

	if path := c.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
		}
		defer f.Close()
		if err := benchmark.WriteCSV(f, results); err != nil {
			return cli.Exit(fmt.Sprintf("Error writing results: %v", err), 1)
		}
	}
	return nil
}
