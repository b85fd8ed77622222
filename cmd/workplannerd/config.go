// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package main

import (
	"io/ioutil"

	"github.com/diffeo/go-workplanner/backend"
	"github.com/mitchellh/mapstructure"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v2"
)

// Config holds the daemon settings.  Values come from the YAML
// configuration file, if one is given; explicitly set command-line
// flags win over both the file and the defaults.
type Config struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Backend     string `mapstructure:"backend"`
	LogLevel    string `mapstructure:"loglevel"`
	Debug       bool   `mapstructure:"debug"`
	LogRequests bool   `mapstructure:"log_requests"`
	ReclaimLost bool   `mapstructure:"reclaim_lost"`
}

func defaultConfig() Config {
	return Config{
		Port:     5990,
		LogLevel: "info",
	}
}

// Load reads a YAML file into the configuration.  The file is parsed
// into a generic map first and then decoded with mapstructure, so
// unknown keys are tolerated.
func (cfg *Config) Load(filename string) error {
	bytes, err := ioutil.ReadFile(filename)
	if err != nil {
		return err
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(bytes, &raw); err != nil {
		return err
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: cfg,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

// Override applies explicitly set command-line flags on top of the
// configuration, including a backend named in the file but not on the
// command line.
func (cfg *Config) Override(c *cli.Context, storage *backend.Backend) error {
	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("loglevel") {
		cfg.LogLevel = c.String("loglevel")
	}
	if c.IsSet("debug") {
		cfg.Debug = true
	}
	if c.IsSet("log-requests") {
		cfg.LogRequests = true
	}
	if c.IsSet("reclaim-lost") {
		cfg.ReclaimLost = true
	}
	if !c.IsSet("backend") && cfg.Backend != "" {
		return storage.Set(cfg.Backend)
	}
	return nil
}
