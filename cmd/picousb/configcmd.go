package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ardnew/picousb/pkg/config"
)

var configCommand = &cli.Command{
	Name:   "config",
	Usage:  "Print the effective configuration as TOML",
	Action: dumpConfig,
	Description: `Prints the configuration every other command runs with: the built-in
defaults, overlaid with the file given by --config and the clock and
logging flags.`,
}

func dumpConfig(ctx *cli.Context) error {
	return config.Write(os.Stdout, cfg)
}
