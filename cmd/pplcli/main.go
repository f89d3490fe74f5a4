package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/ppl/pkg/cfg"
	"github.com/grafana/ppl/pkg/querymanager"
	util_log "github.com/grafana/ppl/pkg/util/log"
)

const (
	configFileFlag = "config.file"
	expandEnvFlag  = "config.expand-env"
)

// app holds what every command needs once flags are parsed.
type app struct {
	cfg      Config
	logger   log.Logger
	registry *prometheus.Registry
	manager  *querymanager.Manager

	configPath string
	expandEnv  bool

	stdin  io.Reader
	stdout io.Writer
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		exitWithErr(err)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	a := &app{
		registry: prometheus.NewRegistry(),
		stdin:    stdin,
		stdout:   stdout,
	}

	fs := flag.NewFlagSet("pplcli", flag.ContinueOnError)
	a.configPath = cfg.FileFromArgs(args, configFileFlag)
	a.expandEnv = cfg.BoolFromArgs(args, expandEnvFlag)
	if err := cfg.Unmarshal(&a.cfg, cfg.Defaults(fs), cfg.YAMLFile(a.configPath, a.expandEnv)); err != nil {
		return err
	}

	ka := kingpin.New("pplcli", "A command-line tool to parse, format and run PPL queries.")
	ka.Flag(configFileFlag, "YAML file to load the configuration from. Flags override its values.").String()
	ka.Flag(expandEnvFlag, "Expands ${var} in the config file according to the values of the environment variables.").Bool()
	cfg.RegisterKingpin(fs, ka)
	ka.PreAction(a.init)

	addParseCommand(ka, a)
	addTokensCommand(ka, a)
	addFmtCommand(ka, a)
	addQueryCommand(ka, a)
	addServeCommand(ka, a)

	_, err := ka.Parse(args)
	return err
}

func (a *app) init(_ *kingpin.ParseContext) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	a.logger = util_log.InitLogger(os.Stderr, a.cfg.LogFormat, a.cfg.LogLevel, a.registry)

	m, err := querymanager.New(a.cfg.QueryManager, a.logger, a.registry)
	if err != nil {
		return err
	}
	a.manager = m
	return nil
}

// reloadLogLevel applies the log level of the config file. Other settings
// need a restart.
func (a *app) reloadLogLevel() {
	var c Config
	fs := flag.NewFlagSet("reload", flag.ContinueOnError)
	if err := cfg.Unmarshal(&c, cfg.Defaults(fs), cfg.YAMLFile(a.configPath, a.expandEnv)); err != nil {
		level.Warn(a.logger).Log("msg", "failed to reload config file", "path", a.configPath, "err", err)
		return
	}
	util_log.SetLevel(&a.cfg.LogLevel, c.LogLevel)
	level.Info(a.logger).Log("msg", "reloaded log level", "path", a.configPath, "level", c.LogLevel.String())
}

// readQuery returns arg, or stdin when arg is "-".
func (a *app) readQuery(arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	b, err := io.ReadAll(a.stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read query from stdin: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func exitWithErr(err error) {
	fmt.Fprintln(os.Stderr, color.RedString("error: %s", err))
	os.Exit(1)
}
