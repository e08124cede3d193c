// Command picousb runs the RP2040 USB transfer engine against simulated
// controllers: the device role against a scripted host, the host role
// enumerating a simulated device, and both roles bridged in a loopback.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/config"
	"github.com/ardnew/picousb/pkg/prof"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "TOML configuration file",
	}
	verboseFlag = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "log at debug level",
	}
	jsonFlag = &cli.BoolFlag{
		Name:  "json",
		Usage: "log records as JSON",
	}
	traceFlag = &cli.BoolFlag{
		Name:  "trace",
		Usage: "print every controller register and DPRAM write",
	}
	sysClockFlag = &cli.StringFlag{
		Name:  "sys-clock",
		Usage: "override clk_sys, e.g. 125MHz",
	}
	usbClockFlag = &cli.StringFlag{
		Name:  "usb-clock",
		Usage: "override clk_usb, e.g. 48MHz",
	}
	cpuProfileFlag = &cli.StringFlag{
		Name:  "cpuprofile",
		Usage: "write a CPU profile to `FILE`",
	}
	memProfileFlag = &cli.StringFlag{
		Name:  "memprofile",
		Usage: "write a heap profile to `FILE` on exit",
	}
)

var (
	// cfg is the effective configuration, loaded before any command runs.
	cfg config.Config

	profile *prof.Session
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "picousb",
		Usage: "RP2040 USB transfer engine on simulated hardware",
		Flags: []cli.Flag{
			configFlag,
			verboseFlag,
			jsonFlag,
			traceFlag,
			sysClockFlag,
			usbClockFlag,
			cpuProfileFlag,
			memProfileFlag,
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			deviceCommand,
			hostCommand,
			loopbackCommand,
			configCommand,
		},
	}
}

// setup loads the configuration, applies the flag overrides and
// configures logging.
func setup(ctx *cli.Context) error {
	var err error
	if path := ctx.String(configFlag.Name); path != "" {
		if cfg, err = config.Load(path); err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}

	if s := ctx.String(sysClockFlag.Name); s != "" {
		if err := cfg.Clocks.Sys.UnmarshalText([]byte(s)); err != nil {
			return err
		}
	}
	if s := ctx.String(usbClockFlag.Name); s != "" {
		if err := cfg.Clocks.USB.UnmarshalText([]byte(s)); err != nil {
			return err
		}
	}
	if ctx.Bool(verboseFlag.Name) {
		cfg.Log.Level = "debug"
	}
	if ctx.Bool(jsonFlag.Name) {
		cfg.Log.Format = "json"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ApplyLogging(os.Stderr); err != nil {
		return err
	}
	pkg.LogDebug(pkg.ComponentConfig, "effective configuration",
		"clocks", cfg.HALClocks().String(), "level", pkg.GetLogLevel().String())

	profile, err = prof.Start(prof.Options{
		CPU:  ctx.String(cpuProfileFlag.Name),
		Heap: ctx.String(memProfileFlag.Name),
	})
	return err
}

func teardown(*cli.Context) error {
	if profile == nil {
		return nil
	}
	err := profile.Stop()
	profile = nil
	return err
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
