package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/unkn0wn-root/precache/internal/config"
	"github.com/urfave/cli/v3"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "precache",
		Usage: "precache a generation of assets and serve it in front of an origin",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				Sources: cli.NewValueSourceChain(cli.EnvVar(config.EnvPrefix + "CONFIG")),
			},
			&cli.StringFlag{Name: "listen", Usage: "address to serve on"},
			&cli.StringFlag{Name: "origin", Usage: "absolute origin URL, e.g. https://example.com"},
			&cli.StringFlag{Name: "origin-host", Usage: "Host header and TLS server name sent to the origin"},
			&cli.StringFlag{Name: "generation", Aliases: []string{"g"}, Usage: "cache generation name, e.g. cache-v3"},
			&cli.StringSliceFlag{Name: "asset", Aliases: []string{"a"}, Usage: "asset URL to precache (repeatable)"},
			&cli.StringFlag{Name: "provider", Usage: "bigcache, ristretto, redis or sqlite"},
			&cli.StringFlag{Name: "codec", Usage: "proto, json, cbor or msgpack"},
			&cli.StringFlag{Name: "logger", Usage: "zap, zerolog, logrus, slog or apex"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "metrics-path", Usage: "path serving Prometheus metrics; empty disables"},
			&cli.BoolFlag{Name: "wait-for-clients", Usage: "keep a new worker waiting while clients use the old one"},
			&cli.BoolFlag{Name: "disable-claim", Usage: "do not take over existing clients on activation"},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "install the generation and serve intercepted requests",
				Action: serveAction,
			},
			{
				Name:   "warm",
				Usage:  "install and activate the generation, then exit",
				Action: warmAction,
			},
		},
	}
}

// loadConfig reads the config file and environment, then applies the flags
// that were set explicitly.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	strs := map[string]*string{
		"listen":       &cfg.Listen,
		"origin":       &cfg.Origin,
		"origin-host":  &cfg.OriginHost,
		"generation":   &cfg.Generation,
		"provider":     &cfg.Provider,
		"codec":        &cfg.Codec,
		"logger":       &cfg.Logger,
		"log-level":    &cfg.LogLevel,
		"metrics-path": &cfg.MetricsPath,
	}
	for name, dst := range strs {
		if cmd.IsSet(name) {
			*dst = cmd.String(name)
		}
	}
	if cmd.IsSet("asset") {
		cfg.Assets = cmd.StringSlice("asset")
	}
	if cmd.IsSet("wait-for-clients") {
		cfg.WaitForClients = cmd.Bool("wait-for-clients")
	}
	if cmd.IsSet("disable-claim") {
		cfg.DisableClaim = cmd.Bool("disable-claim")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func warmAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rt, err := build(ctx, cfg, cmd.Root().ErrWriter)
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))

	if _, err := rt.register(ctx); err != nil {
		return err
	}
	c, err := rt.storage.Open(ctx, cfg.Generation)
	if err != nil {
		return err
	}
	recs, err := c.Records(ctx)
	if err != nil {
		return err
	}
	var size uint64
	for _, r := range recs {
		size += uint64(len(r.Body))
	}
	fmt.Fprintf(cmd.Root().Writer, "%s: %d assets precached (%s)\n", cfg.Generation, len(recs), humanize.Bytes(size))
	return nil
}
