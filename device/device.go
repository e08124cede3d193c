package device

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/config"
	"github.com/ardnew/picousb/pkg/usb"
)

// Device states (USB 2.0 Section 9.1). Attached and Powered are never
// observed: the controller is only enabled once VBUS is forced present.
const (
	StateDefault    State = 0 // reset, answering at address 0
	StateAddress    State = 1 // unique address assigned
	StateConfigured State = 2 // configuration selected
)

// State represents the USB device state.
type State uint8

func (s State) String() string {
	switch s {
	case StateDefault:
		return "Default"
	case StateAddress:
		return "Address"
	case StateConfigured:
		return "Configured"
	default:
		return fmt.Sprintf("Unknown State (%d)", s)
	}
}

// Device is the device-role transfer engine. It is driven by
// HandleInterrupt; every method other than State, Configured and
// WaitConfigured must run in interrupt context or with the USB interrupt
// masked.
type Device struct {
	bus   hal.Bus
	table Table
	reg   *Registry

	ep0in  *Endpoint
	ep0out *Endpoint

	// Precomputed descriptor responses
	deviceDesc [usb.DeviceDescriptorSize]byte
	configBlob []byte
	strings    [][]byte

	address        uint8
	pendingAddress bool
	configuration  uint8
	altSetting     uint8
	remoteWakeup   bool
	state          atomic.Uint32
	notify         chan struct{}

	ctl    control
	strict bool
	rx     [hal.MaxPacketSize]byte

	fault        func(error)
	onReset      func()
	onConfigured func(value uint8)
}

// New creates a device engine for table on bus. Data endpoints discard
// what they receive until a handler is installed with SetHandler.
func New(bus hal.Bus, table Table) (*Device, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	reg, err := NewRegistry(table.Endpoints)
	if err != nil {
		return nil, err
	}
	d := &Device{
		bus:    bus,
		table:  table,
		reg:    reg,
		notify: make(chan struct{}, 1),
		fault:  pkg.Abort,
	}

	var ok bool
	if d.ep0out, ok = reg.Get(0x00); !ok {
		return nil, fmt.Errorf("%w: table has no EP0 OUT", pkg.ErrInvalidEndpoint)
	}
	if d.ep0in, ok = reg.Get(0x80); !ok {
		return nil, fmt.Errorf("%w: table has no EP0 IN", pkg.ErrInvalidEndpoint)
	}
	if d.ep0in.MaxPacketSize() != uint16(table.Device.MaxPacketSize0) {
		return nil, fmt.Errorf("%w: EP0 max packet size %d, bMaxPacketSize0 %d",
			pkg.ErrInvalidParameter, d.ep0in.MaxPacketSize(), table.Device.MaxPacketSize0)
	}
	for i := 0; i < reg.Len(); i++ {
		reg.At(i).handler = Discard{}
	}
	d.ep0in.handler = controlIn{}
	d.ep0out.handler = controlOut{}

	table.Device.MarshalTo(d.deviceDesc[:])
	d.configBlob = table.ConfigurationBlob()
	d.strings = table.stringDescriptors()
	return d, nil
}

// NewFromConfig creates a device engine from the [device] configuration
// section.
func NewFromConfig(bus hal.Bus, cfg config.Device) (*Device, error) {
	table, err := TableFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	d, err := New(bus, table)
	if err != nil {
		return nil, err
	}
	d.strict = cfg.StrictRequests
	return d, nil
}

// Reset brings the controller up in device mode and connects to the bus
// by enabling the D+ pull-up.
func (d *Device) Reset() {
	hal.ClearRAM(d.bus)
	d.bus.Set(hal.USBMuxing, hal.USBMuxingToPHY|hal.USBMuxingSoftCon)
	d.bus.Set(hal.USBPwr, hal.USBPwrVBUSDetect|hal.USBPwrVBUSDetectOverrideEn)
	d.bus.Set(hal.MainCtrl, hal.MainCtrlControllerEn)
	d.bus.Set(hal.SIECtrl, hal.SIECtrlEP0Int1Buf)
	d.bus.Set(hal.Inte, hal.IntBusReset|hal.IntSetupReq|hal.IntBuffStatus)
	d.resetState()
	d.bus.SetBits(hal.SIECtrl, hal.SIECtrlPullupEn)
	pkg.LogInfo(pkg.ComponentDevice, "connected",
		"vid", d.table.Device.VendorID, "pid", d.table.Device.ProductID)
}

// resetState returns to the Default state with every endpoint configured
// and DATA0.
func (d *Device) resetState() {
	d.address = 0
	d.pendingAddress = false
	d.configuration = 0
	d.altSetting = 0
	d.remoteWakeup = false
	d.ctl.stage = stageIdle
	d.state.Store(uint32(StateDefault))
	for i := 0; i < d.reg.Len(); i++ {
		d.reg.Configure(d.bus, d.reg.At(i))
	}
}

func (d *Device) busReset() {
	d.bus.Set(hal.AddrEndp, 0)
	d.resetState()
	pkg.LogInfo(pkg.ComponentDevice, "bus reset")
	if d.onReset != nil {
		d.onReset()
	}
}

// State returns the current device state.
func (d *Device) State() State { return State(d.state.Load()) }

// Configured reports whether the host has selected a configuration.
func (d *Device) Configured() bool { return d.State() == StateConfigured }

// WaitConfigured blocks until the device is configured or ctx is done.
func (d *Device) WaitConfigured(ctx context.Context) error {
	for !d.Configured() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.notify:
		}
	}
	return nil
}

// Address returns the device address in effect.
func (d *Device) Address() uint8 {
	if d.pendingAddress {
		return 0
	}
	return d.address
}

// Configuration returns the selected configuration value, 0 if none.
func (d *Device) Configuration() uint8 { return d.configuration }

// Table returns the descriptor table.
func (d *Device) Table() *Table { return &d.table }

// Registry returns the endpoint registry.
func (d *Device) Registry() *Registry { return d.reg }

// Endpoint returns the enabled endpoint with the given address.
func (d *Device) Endpoint(addr uint8) (*Endpoint, bool) { return d.reg.Lookup(addr) }

// SetHandler installs h on the data endpoint with the given address.
func (d *Device) SetHandler(addr uint8, h Handler) error {
	ep, ok := d.reg.Get(addr)
	if !ok {
		return fmt.Errorf("%w: 0x%02x", pkg.ErrEndpointNotFound, addr)
	}
	if ep.Number() == 0 {
		return fmt.Errorf("%w: endpoint 0 is reserved for control transfers",
			pkg.ErrInvalidEndpoint)
	}
	ep.handler = h
	return nil
}

// Echo installs an Echo handler on the OUT endpoint out and the IN
// endpoint in.
func (d *Device) Echo(out, in uint8) error {
	if out&usb.EndpointDirIn != 0 || in&usb.EndpointDirIn == 0 {
		return fmt.Errorf("%w: echo 0x%02x -> 0x%02x", pkg.ErrInvalidEndpoint, out, in)
	}
	h := Echo{Out: out, In: in}
	if err := d.SetHandler(out, h); err != nil {
		return err
	}
	return d.SetHandler(in, h)
}

// SetStrictRequests selects whether unsupported requests stall endpoint 0
// instead of being acknowledged with a zero-length packet.
func (d *Device) SetStrictRequests(strict bool) { d.strict = strict }

// SetFaultHandler sets the function called with a *pkg.FatalError when the
// interrupt handler finds status it cannot handle. The default is
// pkg.Abort.
func (d *Device) SetFaultHandler(fn func(error)) {
	if fn == nil {
		fn = pkg.Abort
	}
	d.fault = fn
}

// SetOnReset sets the callback run after a bus reset.
func (d *Device) SetOnReset(fn func()) { d.onReset = fn }

// SetOnConfigured sets the callback run after SET_CONFIGURATION.
func (d *Device) SetOnConfigured(fn func(value uint8)) { d.onConfigured = fn }
