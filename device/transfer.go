package device

import (
	"fmt"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
)

// StartTransfer arms ep for a single-buffer transfer of n bytes. For an IN
// endpoint the first n bytes of buf are copied to the endpoint buffer; for
// an OUT endpoint n is the largest packet accepted and buf is unused.
//
// The buffer-control word, with the endpoint's next PID, is written in one
// store so AVAILABLE is never observed with a stale length. The PID then
// flips for the following transfer.
func (d *Device) StartTransfer(ep *Endpoint, buf []byte, n int) error {
	if n < 0 || n > hal.MaxPacketSize || n > int(ep.MaxPacketSize()) {
		return fmt.Errorf("%w: %d bytes on %s", pkg.ErrTransferTooLarge, n, ep)
	}
	if !ep.enabled {
		return fmt.Errorf("%w: %s", pkg.ErrEndpointDisabled, ep)
	}

	in := ep.IsIn()
	if in {
		if len(buf) < n {
			return fmt.Errorf("%w: %d bytes for %d byte transfer",
				pkg.ErrBufferTooSmall, len(buf), n)
		}
		d.bus.WriteRAM(ep.buffer, buf[:n])
	}
	val := hal.BufferControl(n, in, ep.pid) | hal.BufferAvailable
	pkg.LogDebug(pkg.ComponentTransfer, "start",
		"endpoint", ep.String(), "len", n, "pid", ep.pid)
	ep.pid ^= 1
	d.bus.Store(ep.bufCtrl, val)
	return nil
}

// SendZLP arms a zero-length packet on ep.
func (d *Device) SendZLP(ep *Endpoint) error {
	return d.StartTransfer(ep, nil, 0)
}

// Receive arms the OUT endpoint ep for one packet of up to its maximum
// packet size.
func (d *Device) Receive(ep *Endpoint) error {
	if ep.IsIn() {
		return fmt.Errorf("%w: receive on %s", pkg.ErrInvalidEndpoint, ep)
	}
	return d.StartTransfer(ep, nil, int(ep.MaxPacketSize()))
}

// SetHalt sets or clears the halt feature of a data endpoint. A halted
// endpoint answers every transaction with STALL. Clearing the halt resets
// the endpoint to DATA0 and gives it back to its handler.
func (d *Device) SetHalt(ep *Endpoint, halt bool) {
	if ep.Number() == 0 {
		return
	}
	ep.halted = halt
	if halt {
		d.bus.Store(ep.bufCtrl, hal.BufferStall)
		pkg.LogDebug(pkg.ComponentEndpoint, "halted", "endpoint", ep.String())
		return
	}
	ep.pid = 0
	d.bus.Store(ep.bufCtrl, 0)
	pkg.LogDebug(pkg.ComponentEndpoint, "halt cleared", "endpoint", ep.String())
	if d.Configured() {
		ep.handler.configured(d, ep)
	}
}

// stallControl answers the current control request with a protocol
// stall. The stall lasts until the next SETUP.
func (d *Device) stallControl() {
	d.bus.SetBits(hal.EPStallArm, hal.EPStallArmEP0In|hal.EPStallArmEP0Out)
	d.bus.Store(d.ep0in.bufCtrl, hal.BufferStall)
	d.bus.Store(d.ep0out.bufCtrl, hal.BufferStall)
	d.ctl.stage = stageIdle
}

// transferDone completes the transfer on ep reported by BUFF_STATUS.
func (d *Device) transferDone(ep *Endpoint) {
	n := int(d.bus.Load(ep.bufCtrl) & hal.BufferLengthMask)
	if n > len(d.rx) {
		n = len(d.rx)
	}
	ep.length = uint16(n)

	var data []byte
	if !ep.IsIn() {
		data = d.rx[:n]
		d.bus.ReadRAM(ep.buffer, data)
	}
	pkg.LogDebug(pkg.ComponentTransfer, "done", "endpoint", ep.String(), "len", n)
	ep.handler.transferDone(d, ep, data)
}
