package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"sbrw-mp-go/pkg/capture"
	"sbrw-mp-go/pkg/log"
	"sbrw-mp-go/pkg/natclient"
	"sbrw-mp-go/pkg/relay"
)

var upCommand = &cli.Command{
	Name:      "up",
	Usage:     "start the race relay",
	UsageText: "sbrw-relay up [--config relay.yaml] [--debug]",
	Description: `Listens for race datagrams and forwards them between the players of a session.
Settings come from relay.yaml and SBRW_* environment variables; flags override both.`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the config file `PATH`",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Log every sub-packet and forwarded datagram",
		},
		&cli.StringFlag{
			Name:  "listen",
			Usage: "UDP listen address `ADDR` (overrides listen_address)",
		},
		&cli.StringFlag{
			Name:  "capture",
			Usage: "Record inbound datagrams to `FILE` (overrides capture_file)",
		},
	},
	Action: upCmd,
}

func upCmd(c *cli.Context) error {
	cfg, err := relay.LoadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
	if c.IsSet("listen") {
		cfg.ListenAddr = c.String("listen")
	}
	if c.IsSet("capture") {
		cfg.CaptureFile = c.String("capture")
	}
	return up(cfg)
}

func up(cfg *relay.Config) error {
	log.SetStd(cfg.Debug)

	dbPath := cfg.LogDB
	if dbPath == "" {
		dbPath = log.DefaultDBPath("sbrw-relay")
	}
	if err := log.Init(dbPath); err != nil {
		log.Warn().Err(err).Str("path", dbPath).Msg("log persistence disabled")
	} else {
		defer log.Close()
	}

	log.Info().Str("version", Version).Str("built", BuildTime).Msg("starting relay")
	if cfg.ConfigFile != "" {
		log.Info().Str("path", cfg.ConfigFile).Msg("using config file")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", cfg.ListenAddr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}
	if cfg.UDPBufferSize > 0 {
		if err := conn.SetReadBuffer(cfg.UDPBufferSize); err != nil {
			log.Warn().Err(err).Int("size", cfg.UDPBufferSize).Msg("cannot set udp read buffer")
		}
	}

	r := relay.New(conn, cfg)
	defer r.Close()

	if cfg.CaptureFile != "" {
		rec, err := capture.CreateRecorder(cfg.CaptureFile)
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close capture file")
			}
			log.Info().Uint64("datagrams", rec.Count()).Str("path", cfg.CaptureFile).Msg("capture closed")
		}()
		r.SetRecorder(rec)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.EnableNAT {
		port := uint16(conn.LocalAddr().(*net.UDPAddr).Port)
		m, err := natclient.MapUDPPort(port, cfg.NATLifetime)
		if err != nil {
			log.Warn().Err(err).Msg("NAT-PMP mapping failed, continuing without it")
		} else {
			go m.KeepAlive(ctx, cfg.NATLifetime)
			defer m.Close()
		}
	}

	var api *relay.RelayApi
	if cfg.APIListenAddr != "" {
		api = relay.NewRelayApi(r)
		go func() {
			if err := api.Run(cfg.APIListenAddr); err != nil {
				log.Error().Err(err).Msg("management api stopped")
			}
		}()
	}

	err = r.Listen(ctx)
	log.Info().Msg("shutting down")

	if api != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := api.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("management api shutdown")
		}
	}

	s := r.Snapshot()
	log.Info().
		Uint64("received", s.DatagramsReceived).
		Uint64("forwarded", s.PacketsForwarded).
		Uint64("dropped", s.DatagramsDropped).
		Uint64("corrupt", s.DatagramsCorrupt).
		Msg("relay stats")
	return err
}
