// Command bls-blueprintd runs one party's side of the BLS threshold signing
// service: it opens this party's key-share store, loads its libp2p identity,
// joins the party-set transport, starts the metrics server, and then blocks
// until interrupted. No job dispatcher is attached here, so this binary does
// not run keygen or signing jobs itself. Structured the
// way drand's own cmd/drand/main.go wires a urfave/cli app around its daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/tangle-network/bls-blueprint/common/log"
	"github.com/tangle-network/bls-blueprint/common/metrics"
	"github.com/tangle-network/bls-blueprint/internal/config"
	"github.com/tangle-network/bls-blueprint/internal/store"
	"github.com/tangle-network/bls-blueprint/internal/transport"
)

var version = "dev"

var configFlag = &cli.StringFlag{
	Name:     "config",
	Aliases:  []string{"c"},
	Usage:    "path to the bls-blueprintd TOML config file",
	Required: true,
}

var metricsFlag = &cli.StringFlag{
	Name:  "metrics",
	Usage: "address (host:port or bare port) to serve Prometheus metrics on",
	Value: "9090",
}

func main() {
	app := &cli.App{
		Name:    "bls-blueprintd",
		Usage:   "distributed BLS threshold signing party process",
		Version: version,
		Commands: []*cli.Command{
			runCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "bls-blueprintd:", err)
		os.Exit(1)
	}
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "start this party's daemon: load identity and key shares, join the transport, and wait for jobs",
	Flags: []cli.Flag{configFlag, metricsFlag},
	Action: func(c *cli.Context) error {
		return run(c.Context, c.String("config"), c.String("metrics"))
	},
}

func run(parentCtx context.Context, configPath, metricsAddr string) error {
	logger := log.DefaultLogger()

	env, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(env.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	st, err := store.Open(env.DataDir + "/bls.json")
	if err != nil {
		return err
	}

	priv, err := transport.LoadOrCreateIdentity(env.DataDir + "/identity.key")
	if err != nil {
		return err
	}

	h, err := transport.NewHost(priv, env.ListenAddr, nil, logger)
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck // best-effort shutdown

	if l := metrics.Start(logger, metricsAddr); l != nil {
		defer l.Close() //nolint:errcheck // best-effort shutdown
	}

	logger.Infow("bls-blueprintd started",
		"blueprint_id", env.BlueprintID,
		"service_id", env.ServiceID,
		"listen_addr", env.ListenAddr,
		"peer_id", h.LocalPeerID().Label,
	)
	_ = st // wired to the keygen/signing drivers once a JobDispatcher is attached

	ctx, cancel := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	<-ctx.Done()
	logger.Infow("bls-blueprintd shutting down")
	return nil
}
