// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package workplannerd runs the workplanner daemon: the REST service
// over a workplan store, plus the prometheus metrics observer.  It is
// purely a server-side daemon; workers poll it through the restclient
// package and do their actual work elsewhere.
package main

import (
	"fmt"
	"os"

	"github.com/diffeo/go-workplanner/backend"
	"github.com/diffeo/go-workplanner/planner"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

func main() {
	storage := backend.Backend{Implementation: "memory"}

	app := cli.NewApp()
	app.Name = "workplannerd"
	app.Usage = "schedule and track recurring workplans"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "host",
			Usage: "IP address to listen on",
		},
		cli.IntFlag{
			Name:  "port",
			Value: 5990,
			Usage: "TCP port for the HTTP REST interface",
		},
		cli.GenericFlag{
			Name:  "backend",
			Value: &storage,
			Usage: "impl[:address] of the storage backend",
		},
		cli.StringFlag{
			Name:  "config",
			Usage: "daemon configuration YAML file",
		},
		cli.StringFlag{
			Name:  "loglevel",
			Value: "info",
			Usage: "minimum level of log messages (debug, info, warn, error)",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "log at debug level with full timestamps",
		},
		cli.BoolFlag{
			Name:  "log-requests",
			Usage: "log all HTTP requests",
		},
		cli.BoolFlag{
			Name:  "reclaim-lost",
			Usage: "reset in-flight workplans left over from a previous run",
		},
	}
	app.Action = func(c *cli.Context) error {
		return run(c, &storage)
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("workplannerd failed")
	}
}

func run(c *cli.Context, storage *backend.Backend) error {
	cfg := defaultConfig()
	if path := c.String("config"); path != "" {
		if err := cfg.Load(path); err != nil {
			return fmt.Errorf("could not load configuration %q: %v", path, err)
		}
	}
	if err := cfg.Override(c, storage); err != nil {
		return err
	}

	if err := setupLogging(cfg); err != nil {
		return err
	}

	store, err := storage.Store()
	if err != nil {
		return err
	}
	p := planner.New(store)

	if cfg.ReclaimLost {
		reclaimed, err := p.ClearLost()
		if err != nil {
			return err
		}
		logrus.WithField("count", len(reclaimed)).Info("Reclaimed lost workplans")
	}

	go observe(store)

	h := &HTTP{
		Planner:     p,
		Store:       store,
		Laddr:       fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		LogRequests: cfg.LogRequests,
	}
	logrus.WithFields(logrus.Fields{
		"laddr":   h.Laddr,
		"backend": storage.String(),
	}).Info("Serving workplanner REST API")
	return h.Serve()
}

func setupLogging(cfg Config) error {
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return nil
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	return nil
}
