package sim

import (
	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/usb"
)

// Packet is a data packet seen on the bus.
type Packet struct {
	PID  uint8 // 0 for DATA0, 1 for DATA1
	Data []byte
}

// The methods in this file act as the host on the other end of the cable
// when the controller runs in device mode. Each one completes a bus
// transaction the way the serial interface engine would and then raises
// the interrupt.

func (c *Controller) deviceReady() error {
	if !c.enabled() || c.hostMode() || c.regs[hal.SIECtrl/4]&hal.SIECtrlPullupEn == 0 {
		return ErrNotAttached
	}
	return nil
}

// BusReset drives a bus reset.
func (c *Controller) BusReset() {
	c.mu.Lock()
	c.regs[hal.SIEStatus/4] |= hal.SIEStatusBusReset
	c.regs[hal.EPStallArm/4] = 0
	c.mu.Unlock()
	c.raise()
}

// SendSetup delivers a SETUP packet to endpoint 0.
func (c *Controller) SendSetup(setup usb.SetupPacket) error {
	return c.sendSetupBytes(setup.Bytes())
}

func (c *Controller) sendSetupBytes(setup [usb.SetupPacketSize]byte) error {
	c.mu.Lock()
	if err := c.deviceReady(); err != nil {
		c.mu.Unlock()
		return err
	}
	copy(c.ram[hal.SetupPacketOffset:], setup[:])
	c.regs[hal.SIEStatus/4] |= hal.SIEStatusSetupRec
	// A SETUP always clears a protocol stall on endpoint 0.
	c.regs[hal.EPStallArm/4] = 0
	c.mu.Unlock()
	c.raise()
	return nil
}

// stalled reports whether endpoint number/direction answers with STALL.
func (c *Controller) stalled(number uint8, in bool, bcr uint32) bool {
	if bcr&hal.BufferStall == 0 {
		return false
	}
	if number != 0 {
		return true
	}
	arm := uint32(hal.EPStallArmEP0Out)
	if in {
		arm = hal.EPStallArmEP0In
	}
	return c.regs[hal.EPStallArm/4]&arm != 0
}

// deviceBuffer returns the data buffer of an endpoint, or false if the
// endpoint is not enabled.
func (c *Controller) deviceBuffer(number uint8, in bool) (uint16, bool) {
	if number == 0 {
		return hal.EP0BufferA, true
	}
	ecr := c.load(hal.DeviceEndpointControl(number, in))
	if ecr&hal.EndpointEnable == 0 {
		return 0, false
	}
	return uint16(ecr & hal.EndpointBufferMask), true
}

// In reads one packet from an IN endpoint. It returns pkg.ErrNAK if no
// buffer is armed, pkg.ErrStall if the endpoint is halted, and
// pkg.ErrTimeout if the endpoint is not enabled.
func (c *Controller) In(number uint8) (Packet, error) {
	c.mu.Lock()
	if err := c.deviceReady(); err != nil {
		c.mu.Unlock()
		return Packet{}, err
	}
	buf, ok := c.deviceBuffer(number, true)
	if !ok {
		c.mu.Unlock()
		return Packet{}, pkg.ErrTimeout
	}
	off := hal.DeviceBufferControl(number, true)
	bcr := c.load(off)
	if c.stalled(number, true, bcr) {
		c.mu.Unlock()
		return Packet{}, pkg.ErrStall
	}
	if bcr&hal.BufferAvailable == 0 {
		c.mu.Unlock()
		return Packet{}, pkg.ErrNAK
	}
	n := int(bcr & hal.BufferLengthMask)
	pkt := Packet{PID: hal.BufferPID(bcr), Data: make([]byte, n)}
	copy(pkt.Data, c.ram[buf:int(buf)+n])
	c.store(off, bcr&^(hal.BufferAvailable|hal.BufferFull))
	c.regs[hal.BuffStatus/4] |= 1 << (2 * uint32(number))
	c.mu.Unlock()
	c.raise()
	return pkt, nil
}

// Out writes one packet with the given DATA PID to an OUT endpoint. A PID
// that differs from the one the endpoint expects is rejected with
// pkg.ErrDataSequence and the data is not consumed.
func (c *Controller) Out(number, pid uint8, data []byte) error {
	c.mu.Lock()
	if err := c.deviceReady(); err != nil {
		c.mu.Unlock()
		return err
	}
	buf, ok := c.deviceBuffer(number, false)
	if !ok {
		c.mu.Unlock()
		return pkg.ErrTimeout
	}
	off := hal.DeviceBufferControl(number, false)
	bcr := c.load(off)
	switch {
	case c.stalled(number, false, bcr):
		c.mu.Unlock()
		return pkg.ErrStall
	case bcr&hal.BufferAvailable == 0:
		c.mu.Unlock()
		return pkg.ErrNAK
	case len(data) > int(bcr&hal.BufferLengthMask):
		c.mu.Unlock()
		return ErrOverflow
	case pid != hal.BufferPID(bcr):
		c.mu.Unlock()
		return pkg.ErrDataSequence
	}
	copy(c.ram[buf:], data)
	bcr &^= hal.BufferAvailable | hal.BufferLengthMask
	c.store(off, bcr|hal.BufferFull|uint32(len(data)))
	c.regs[hal.BuffStatus/4] |= 1 << (2*uint32(number) + 1)
	c.mu.Unlock()
	c.raise()
	return nil
}
