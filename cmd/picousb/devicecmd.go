package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/ardnew/picousb/device"
	"github.com/ardnew/picousb/hal/sim"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/config"
	"github.com/ardnew/picousb/pkg/usb"
)

var (
	payloadFlag = &cli.StringFlag{
		Name:  "payload",
		Usage: "data written to the echo endpoints",
		Value: "hello from the bus",
	}
	countFlag = &cli.IntFlag{
		Name:  "count",
		Usage: "number of echo rounds",
		Value: 2,
	}
)

var deviceCommand = &cli.Command{
	Name:   "device",
	Usage:  "Run the device engine against a scripted host",
	Action: runDevice,
	Flags:  []cli.Flag{payloadFlag, countFlag},
	Description: `Drives a simulated controller in device mode through a standard
enumeration (SET_ADDRESS, the device, configuration and string
descriptors, SET_CONFIGURATION) and then echoes --payload through the
first bulk endpoint pair --count times.`,
}

// hostScript plays the host side of the cable for a device engine.
type hostScript struct {
	sim  *sim.Controller
	mps0 int
	rows [][]string
	err  error
}

func (s *hostScript) record(name string, data string, err error) {
	result := "ok"
	if err != nil {
		result = err.Error()
		if s.err == nil {
			s.err = fmt.Errorf("%s: %w", name, err)
		}
	}
	s.rows = append(s.rows, []string{strconv.Itoa(len(s.rows) + 1), name, result, data})
}

// controlRead runs a control transfer with an IN data stage.
func (s *hostScript) controlRead(setup usb.SetupPacket) ([]byte, error) {
	if err := s.sim.SendSetup(setup); err != nil {
		return nil, err
	}
	var got []byte
	pid := uint8(1)
	for len(got) < int(setup.Length) {
		pkt, err := s.sim.In(0)
		if err != nil {
			return got, err
		}
		if pkt.PID != pid {
			return got, fmt.Errorf("%w: data stage DATA%d", pkg.ErrDataSequence, pkt.PID)
		}
		pid ^= 1
		got = append(got, pkt.Data...)
		if len(pkt.Data) < s.mps0 {
			break
		}
	}
	return got, s.sim.Out(0, 1, nil)
}

// controlWrite runs a control transfer without a data stage.
func (s *hostScript) controlWrite(setup usb.SetupPacket) error {
	if err := s.sim.SendSetup(setup); err != nil {
		return err
	}
	pkt, err := s.sim.In(0)
	if err != nil {
		return err
	}
	if len(pkt.Data) != 0 || pkt.PID != 1 {
		return fmt.Errorf("%w: status stage DATA%d with %d bytes",
			pkg.ErrDataSequence, pkt.PID, len(pkt.Data))
	}
	return nil
}

func (s *hostScript) read(name string, setup usb.SetupPacket, decode func([]byte) string) {
	data, err := s.controlRead(setup)
	s.record(name, decode(data), err)
}

func hexString(b []byte) string { return hex.EncodeToString(b) }

func stringDescriptor(b []byte) string {
	str, err := usb.ParseStringDescriptor(b)
	if err != nil {
		return hexString(b)
	}
	return strconv.Quote(str)
}

func newDeviceEngine(c config.Config, ds *sim.Controller) (*device.Device, error) {
	dev, err := device.NewFromConfig(ds, c.Device)
	if err != nil {
		return nil, err
	}
	out, in, err := echoPair(c.Device)
	if err != nil {
		return nil, err
	}
	if err := dev.Echo(out, in); err != nil {
		return nil, err
	}
	return dev, nil
}

func runDevice(ctx *cli.Context) error {
	ds := sim.New()
	ds.EnableTrace(ctx.Bool(traceFlag.Name))
	dev, err := newDeviceEngine(cfg, ds)
	if err != nil {
		return err
	}
	s := &hostScript{sim: ds, mps0: int(cfg.Device.MaxPacketSize0)}
	dev.SetFaultHandler(func(err error) { s.record("interrupt", "", err) })
	ds.SetInterruptHandler(dev.HandleInterrupt)
	dev.Reset()

	ds.BusReset()
	s.record("bus reset", dev.State().String(), nil)
	s.record("SET_ADDRESS", strconv.Itoa(int(cfg.Host.Address)),
		s.controlWrite(usb.SetAddressSetup(cfg.Host.Address)))
	s.read("GET_DESCRIPTOR device",
		usb.GetDescriptorSetup(usb.DescriptorTypeDevice, 0, 0, usb.DeviceDescriptorSize), hexString)
	s.read("GET_DESCRIPTOR configuration",
		usb.GetDescriptorSetup(usb.DescriptorTypeConfiguration, 0, 0, 255), hexString)
	s.read("GET_DESCRIPTOR string 0",
		usb.GetDescriptorSetup(usb.DescriptorTypeString, 0, 0, 255), hexString)
	for i := uint8(1); i <= 3; i++ {
		s.read(fmt.Sprintf("GET_DESCRIPTOR string %d", i),
			usb.GetDescriptorSetup(usb.DescriptorTypeString, i, usb.LangIDUSEnglish, 255), stringDescriptor)
	}
	s.record("SET_CONFIGURATION", dev.State().String(),
		s.controlWrite(usb.SetConfigurationSetup(1)))

	if s.err == nil {
		s.echo(dev, []byte(ctx.String(payloadFlag.Name)), ctx.Int(countFlag.Name))
	}

	t := newTable(os.Stdout, "#", "Request", "Result", "Data")
	t.AppendBulk(s.rows)
	t.Render()
	if ctx.Bool(traceFlag.Name) {
		printTrace(os.Stdout, "device controller", ds.Trace())
	}
	return s.err
}

// echo sends payload through the echo endpoints in packets of at most
// the OUT endpoint's max packet size.
func (s *hostScript) echo(dev *device.Device, payload []byte, count int) {
	outAddr, inAddr, _ := echoPair(cfg.Device)
	out, ok := dev.Endpoint(outAddr)
	if !ok {
		s.record("echo", "", fmt.Errorf("%w: 0x%02x", pkg.ErrEndpointNotFound, outAddr))
		return
	}
	mps := int(out.MaxPacketSize())
	var pid uint8
	for round := 0; round < count; round++ {
		for off := 0; off < len(payload) || off == 0; off += mps {
			chunk := payload[off:min(off+mps, len(payload))]
			name := fmt.Sprintf("echo %d OUT 0x%02x DATA%d", round+1, outAddr, pid)
			if err := s.sim.Out(out.Number(), pid, chunk); err != nil {
				s.record(name, "", err)
				return
			}
			s.record(name, strconv.Quote(string(chunk)), nil)
			pid ^= 1

			pkt, err := s.sim.In(inAddr & usb.EndpointNumberMask)
			name = fmt.Sprintf("echo %d IN 0x%02x DATA%d", round+1, inAddr, pkt.PID)
			s.record(name, strconv.Quote(string(pkt.Data)), err)
			if err != nil {
				return
			}
			if len(payload) == 0 {
				break
			}
		}
	}
}
