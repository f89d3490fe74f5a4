package main

import (
	"errors"
	"flag"
	"fmt"

	dslog "github.com/grafana/dskit/log"

	"github.com/grafana/ppl/pkg/pplclient"
	"github.com/grafana/ppl/pkg/querymanager"
)

// Config is the root configuration of pplcli.
type Config struct {
	LogLevel  dslog.Level `yaml:"log_level"`
	LogFormat string      `yaml:"log_format"`

	QueryManager querymanager.Config `yaml:"query_manager"`
	Client       pplclient.Config    `yaml:"client"`
	Server       ServerConfig        `yaml:"server"`
}

// ServerConfig configures the analyzer server started by `pplcli serve`.
type ServerConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// RegisterFlags registers flags.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	c.LogLevel.RegisterFlags(f)
	f.StringVar(&c.LogFormat, "log.format", "logfmt", "Output log messages in the given format. Valid formats: [logfmt, json]")

	c.QueryManager.RegisterFlags(f)
	c.Client.RegisterFlags(f)
	f.StringVar(&c.Server.ListenAddress, "server.listen-address", ":3101", "Address the analyzer server listens on.")
}

// Validate validates the Config.
func (c *Config) Validate() error {
	var errs []error
	if c.LogFormat != "logfmt" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("invalid log format %q", c.LogFormat))
	}
	if err := c.QueryManager.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid query manager config: %w", err))
	}
	if err := c.Client.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid client config: %w", err))
	}
	return errors.Join(errs...)
}
