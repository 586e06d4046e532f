package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// set with -ldflags "-X main.Version=... -X main.BuildTime=..."
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func newApp() *cli.App {
	return &cli.App{
		Name:    "sbrw-relay",
		Usage:   "UDP race relay for SBRW multiplayer sessions",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Commands: []*cli.Command{
			upCommand,
			inspectCommand,
			logsCommand,
			benchCommand,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
