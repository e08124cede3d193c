package device

import (
	"encoding/binary"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/usb"
)

// MaxControlOut is the largest OUT data stage kept; longer data stages
// are consumed and truncated.
const MaxControlOut = 256

type stage uint8

const (
	stageIdle stage = iota
	stageDataIn
	stageDataOut
	stageStatusIn
	stageStatusOut
)

func (s stage) String() string {
	switch s {
	case stageIdle:
		return "idle"
	case stageDataIn:
		return "data-in"
	case stageDataOut:
		return "data-out"
	case stageStatusIn:
		return "status-in"
	case stageStatusOut:
		return "status-out"
	}
	return "unknown"
}

// control tracks the control transfer on endpoint 0.
type control struct {
	setup usb.SetupPacket
	stage stage

	data     []byte // IN data stage response
	sent     int    // IN bytes acknowledged, or OUT bytes received
	inflight int    // bytes in the packet currently armed
	zlp      bool   // IN data stage ends with a zero-length packet
	want     int    // OUT data stage length

	scratch [2]byte
	out     [MaxControlOut]byte
}

// ControlData returns the OUT data stage of the last control request.
func (d *Device) ControlData() []byte {
	if d.ctl.setup.IsIn() {
		return nil
	}
	n := d.ctl.sent
	if n > len(d.ctl.out) {
		n = len(d.ctl.out)
	}
	return d.ctl.out[:n]
}

func (d *Device) maxPacket0() int { return int(d.table.Device.MaxPacketSize0) }

// handleSetup starts a new control transfer from the SETUP packet in DPRAM.
// A new SETUP aborts whatever transfer was in progress.
func (d *Device) handleSetup() {
	var raw [usb.SetupPacketSize]byte
	d.bus.ReadRAM(hal.SetupPacketOffset, raw[:])

	c := &d.ctl
	c.stage = stageIdle
	c.data = nil
	c.sent, c.inflight, c.want = 0, 0, 0
	c.zlp = false
	c.setup = usb.SetupPacketFrom(raw)
	s := &c.setup

	// Both halves of endpoint 0 start every data and status stage at DATA1.
	d.ep0in.pid = 1
	d.ep0out.pid = 1

	pkg.LogDebug(pkg.ComponentControl, "setup", "request", s.String())
	if s.IsStandard() && d.standardRequest(s) {
		return
	}
	d.unsupported(s)
}

func (d *Device) standardRequest(s *usb.SetupPacket) bool {
	switch s.Request {
	case usb.RequestSetAddress:
		if s.IsIn() || s.Recipient() != usb.RequestRecipientDevice || s.Value > 127 {
			return false
		}
		// The new address applies once the status stage completes.
		d.address = uint8(s.Value)
		d.pendingAddress = true
		d.statusIn()
		return true

	case usb.RequestGetDescriptor:
		return d.getDescriptor(s)

	case usb.RequestGetConfiguration:
		if !s.IsIn() {
			return false
		}
		d.ctl.scratch[0] = d.configuration
		d.dataIn(d.ctl.scratch[:1])
		return true

	case usb.RequestSetConfiguration:
		v := uint8(s.Value)
		if s.IsIn() || (v != 0 && v != d.table.Configuration.ConfigurationValue) {
			return false
		}
		d.setConfiguration(v)
		d.statusIn()
		return true

	case usb.RequestGetStatus:
		return d.getStatus(s)

	case usb.RequestClearFeature, usb.RequestSetFeature:
		return d.feature(s)

	case usb.RequestGetInterface:
		if !s.IsIn() || !d.Configured() || s.Index != uint16(d.table.Interface.InterfaceNumber) {
			return false
		}
		d.ctl.scratch[0] = d.altSetting
		d.dataIn(d.ctl.scratch[:1])
		return true

	case usb.RequestSetInterface:
		if s.IsIn() || !d.Configured() ||
			s.Index != uint16(d.table.Interface.InterfaceNumber) || s.Value != 0 {
			return false
		}
		d.altSetting = 0
		d.statusIn()
		return true
	}
	return false
}

func (d *Device) getDescriptor(s *usb.SetupPacket) bool {
	if !s.IsIn() {
		return false
	}
	switch s.DescriptorType() {
	case usb.DescriptorTypeDevice:
		d.dataIn(d.deviceDesc[:])
	case usb.DescriptorTypeConfiguration:
		if s.DescriptorIndex() != 0 {
			return false
		}
		// wLength 9 gets the configuration descriptor alone; anything
		// longer gets the whole blob up to wLength.
		d.dataIn(d.configBlob)
	case usb.DescriptorTypeString:
		i := int(s.DescriptorIndex())
		if i >= len(d.strings) {
			return false
		}
		d.dataIn(d.strings[i])
	default:
		return false
	}
	return true
}

func (d *Device) getStatus(s *usb.SetupPacket) bool {
	if !s.IsIn() || s.Value != 0 {
		return false
	}
	var status uint16
	switch s.Recipient() {
	case usb.RequestRecipientDevice:
		if d.table.Configuration.Attributes&usb.ConfigAttrSelfPowered != 0 {
			status |= 1
		}
		if d.remoteWakeup {
			status |= 2
		}
	case usb.RequestRecipientInterface:
		if !d.Configured() || s.Index != uint16(d.table.Interface.InterfaceNumber) {
			return false
		}
	case usb.RequestRecipientEndpoint:
		ep, ok := d.reg.Lookup(uint8(s.Index))
		if !ok {
			return false
		}
		if ep.halted {
			status |= 1
		}
	default:
		return false
	}
	binary.LittleEndian.PutUint16(d.ctl.scratch[:], status)
	d.dataIn(d.ctl.scratch[:2])
	return true
}

func (d *Device) feature(s *usb.SetupPacket) bool {
	if s.IsIn() {
		return false
	}
	set := s.Request == usb.RequestSetFeature
	switch s.Recipient() {
	case usb.RequestRecipientDevice:
		if s.Value != usb.FeatureDeviceRemoteWakeup {
			return false
		}
		d.remoteWakeup = set
	case usb.RequestRecipientEndpoint:
		if s.Value != usb.FeatureEndpointHalt {
			return false
		}
		ep, ok := d.reg.Lookup(uint8(s.Index))
		if !ok {
			return false
		}
		d.SetHalt(ep, set)
	default:
		return false
	}
	d.statusIn()
	return true
}

// setConfiguration selects configuration v, or returns to the Address
// state when v is 0. Data endpoints restart at DATA0.
func (d *Device) setConfiguration(v uint8) {
	d.configuration = v
	d.altSetting = 0
	if v == 0 {
		d.state.Store(uint32(StateAddress))
		return
	}
	for i := 0; i < d.reg.Len(); i++ {
		if ep := d.reg.At(i); ep.Number() != 0 {
			ep.pid = 0
			ep.halted = false
		}
	}
	d.state.Store(uint32(StateConfigured))
	select {
	case d.notify <- struct{}{}:
	default:
	}
	pkg.LogInfo(pkg.ComponentDevice, "configured", "value", v)

	for i := 0; i < d.reg.Len(); i++ {
		if ep := d.reg.At(i); ep.Number() != 0 && ep.enabled {
			ep.handler.configured(d, ep)
		}
	}
	if d.onConfigured != nil {
		d.onConfigured(v)
	}
}

// unsupported answers a request the device does not implement: a stall in
// strict mode, otherwise a zero-length acknowledgement with no effect.
func (d *Device) unsupported(s *usb.SetupPacket) {
	pkg.LogDebug(pkg.ComponentControl, "unsupported request", "request", s.String())
	if d.strict {
		d.stallControl()
		return
	}
	switch {
	case s.IsIn():
		d.dataIn(nil)
	case s.Length > 0:
		d.dataOut()
	default:
		d.statusIn()
	}
}

// dataIn starts an IN data stage sending resp truncated to wLength. A
// response shorter than wLength that fills its last packet is terminated
// with a zero-length packet.
func (d *Device) dataIn(resp []byte) {
	c := &d.ctl
	n := len(resp)
	if n > int(c.setup.Length) {
		n = int(c.setup.Length)
	}
	c.data = resp[:n]
	c.sent = 0
	c.zlp = n > 0 && n < int(c.setup.Length) && n%d.maxPacket0() == 0
	c.stage = stageDataIn
	d.sendControlPacket()
}

func (d *Device) sendControlPacket() {
	c := &d.ctl
	chunk := c.data[c.sent:]
	if len(chunk) > d.maxPacket0() {
		chunk = chunk[:d.maxPacket0()]
	}
	c.inflight = len(chunk)
	if err := d.StartTransfer(d.ep0in, chunk, len(chunk)); err != nil {
		pkg.LogError(pkg.ComponentControl, "data stage failed", "error", err)
	}
}

// dataOut starts an OUT data stage of wLength bytes.
func (d *Device) dataOut() {
	c := &d.ctl
	c.stage = stageDataOut
	c.want = int(c.setup.Length)
	c.sent = 0
	d.receiveControlPacket()
}

func (d *Device) receiveControlPacket() {
	n := d.ctl.want - d.ctl.sent
	if n > d.maxPacket0() {
		n = d.maxPacket0()
	}
	if err := d.StartTransfer(d.ep0out, nil, n); err != nil {
		pkg.LogError(pkg.ComponentControl, "data stage failed", "error", err)
	}
}

// statusIn sends the zero-length DATA1 status packet of a request without
// an IN data stage.
func (d *Device) statusIn() {
	d.ctl.stage = stageStatusIn
	d.ep0in.pid = 1
	if err := d.SendZLP(d.ep0in); err != nil {
		pkg.LogError(pkg.ComponentControl, "status stage failed", "error", err)
	}
}

// statusOut accepts the zero-length DATA1 status packet after an IN data
// stage.
func (d *Device) statusOut() {
	d.ctl.stage = stageStatusOut
	d.ep0out.pid = 1
	if err := d.StartTransfer(d.ep0out, nil, 0); err != nil {
		pkg.LogError(pkg.ComponentControl, "status stage failed", "error", err)
	}
}

// controlIn handles completions on EP0 IN.
type controlIn struct{}

func (controlIn) transferDone(d *Device, _ *Endpoint, _ []byte) {
	c := &d.ctl
	switch c.stage {
	case stageDataIn:
		c.sent += c.inflight
		switch {
		case c.sent < len(c.data):
			d.sendControlPacket()
		case c.zlp:
			c.zlp = false
			c.inflight = 0
			if err := d.SendZLP(d.ep0in); err != nil {
				pkg.LogError(pkg.ComponentControl, "data stage failed", "error", err)
			}
		default:
			d.statusOut()
		}

	case stageStatusIn:
		c.stage = stageIdle
		if d.pendingAddress {
			d.pendingAddress = false
			d.bus.Set(hal.AddrEndp, uint32(d.address))
			if d.address == 0 {
				d.state.Store(uint32(StateDefault))
			} else if !d.Configured() {
				d.state.Store(uint32(StateAddress))
			}
			pkg.LogInfo(pkg.ComponentDevice, "address set", "address", d.address)
		}

	default:
		pkg.LogDebug(pkg.ComponentControl, "unexpected EP0 IN completion", "stage", c.stage)
	}
}

func (controlIn) configured(*Device, *Endpoint) {}

// controlOut handles completions on EP0 OUT.
type controlOut struct{}

func (controlOut) transferDone(d *Device, _ *Endpoint, data []byte) {
	c := &d.ctl
	switch c.stage {
	case stageDataOut:
		if c.sent < len(c.out) {
			copy(c.out[c.sent:], data)
		}
		c.sent += len(data)
		if c.sent < c.want && len(data) == d.maxPacket0() {
			d.receiveControlPacket()
			return
		}
		d.statusIn()

	case stageStatusOut:
		c.stage = stageIdle

	default:
		pkg.LogDebug(pkg.ComponentControl, "unexpected EP0 OUT completion", "stage", c.stage)
	}
}

func (controlOut) configured(*Device, *Endpoint) {}
