package main

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/usbid"
)

var asyncFlag = &cli.BoolFlag{
	Name:  "async",
	Usage: "run the bus and the host task loop on separate goroutines",
}

var usbIDsFlag = &cli.StringFlag{
	Name:  "usb-ids",
	Usage: "usb.ids database used to name vendors, products and classes",
}

var hostCommand = &cli.Command{
	Name:   "host",
	Usage:  "Enumerate a simulated device with the host engine",
	Action: runHost,
	Flags:  []cli.Flag{asyncFlag, usbIDsFlag},
	Description: `Attaches a device engine built from the [device] configuration to a
simulated host-mode controller, lets the host engine enumerate it and
prints what the host learned.`,
}

var loopbackCommand = &cli.Command{
	Name:   "loopback",
	Usage:  "Enumerate a simulated device and echo data through it",
	Action: runLoopback,
	Flags:  []cli.Flag{asyncFlag, payloadFlag, countFlag},
	Description: `Runs both roles: the host engine enumerates the device engine, then
writes --payload to the first bulk OUT endpoint and reads it back from
the first bulk IN endpoint, --count times.`,
}

func runHost(ctx *cli.Context) error {
	r, err := newRig(cfg, ctx.Bool(traceFlag.Name))
	if err != nil {
		return err
	}
	d, err := r.enumerate(ctx.Context, ctx.Bool(asyncFlag.Name))
	if err != nil {
		return err
	}
	printDevice(os.Stdout, d, openUSBIDs(ctx.String(usbIDsFlag.Name)))
	if ctx.Bool(traceFlag.Name) {
		printTrace(os.Stdout, "host controller", r.hostSim.Trace())
	}
	return nil
}

// openUSBIDs returns the database at path, or the first one found in the
// usual locations when path is empty. It returns nil when none loads.
func openUSBIDs(path string) *usbid.Database {
	paths := usbid.DefaultPaths
	if path != "" {
		paths = []string{path}
	}
	db, err := usbid.Open(paths...)
	if err != nil {
		pkg.LogDebug(pkg.ComponentConfig, "no USB ID database", "error", err)
		return nil
	}
	return db
}

func runLoopback(ctx *cli.Context) error {
	async := ctx.Bool(asyncFlag.Name)
	r, err := newRig(cfg, ctx.Bool(traceFlag.Name))
	if err != nil {
		return err
	}
	d, err := r.enumerate(ctx.Context, async)
	if err != nil {
		return err
	}
	outAddr, inAddr, err := echoPair(cfg.Device)
	if err != nil {
		return err
	}
	out, ok := d.Endpoint(outAddr)
	if !ok {
		return fmt.Errorf("%w: 0x%02x", pkg.ErrEndpointNotFound, outAddr)
	}
	in, ok := d.Endpoint(inAddr)
	if !ok {
		return fmt.Errorf("%w: 0x%02x", pkg.ErrEndpointNotFound, inAddr)
	}

	payload := []byte(ctx.String(payloadFlag.Name))
	mps := int(min(out.MaxPacketSize(), in.MaxPacketSize()))
	t := newTable(os.Stdout, "Round", "OUT", "IN", "Bytes", "Match")
	var failed error
	for round := 1; round <= ctx.Int(countFlag.Name) && failed == nil; round++ {
		for off := 0; off < len(payload) || off == 0; off += mps {
			chunk := payload[off:min(off+mps, len(payload))]
			outPID, inPID := out.NextPID(), in.NextPID()
			got, err := r.echo(ctx.Context, async, out, in, chunk)
			if err != nil {
				failed = fmt.Errorf("round %d: %w", round, err)
				break
			}
			t.Append([]string{
				strconv.Itoa(round),
				fmt.Sprintf("0x%02x DATA%d", outAddr, outPID),
				fmt.Sprintf("0x%02x DATA%d", inAddr, inPID),
				strconv.Itoa(len(got)),
				strconv.FormatBool(bytes.Equal(got, chunk)),
			})
			if !bytes.Equal(got, chunk) {
				failed = fmt.Errorf("round %d: echoed %q, want %q", round, got, chunk)
				break
			}
			if len(payload) == 0 {
				break
			}
		}
	}
	t.Render()
	if ctx.Bool(traceFlag.Name) {
		printTrace(os.Stdout, "host controller", r.hostSim.Trace())
	}
	return failed
}
