package device

import (
	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/usb"
)

// HandleInterrupt services the USB interrupt. It handles bus reset, then
// SETUP, then completed buffers, acknowledging each source in
// hardware before acting on it. Any other enabled source is a fatal
// desynchronization reported to the fault handler.
func (d *Device) HandleInterrupt() {
	status := d.bus.Get(hal.Ints)
	handled := uint32(0)

	if status&hal.IntBusReset != 0 {
		handled |= hal.IntBusReset
		d.bus.ClearBits(hal.SIEStatus, hal.SIEStatusBusReset)
		d.busReset()
	}

	if status&hal.IntSetupReq != 0 {
		handled |= hal.IntSetupReq
		d.bus.ClearBits(hal.SIEStatus, hal.SIEStatusSetupRec)
		d.handleSetup()
	}

	if status&hal.IntBuffStatus != 0 {
		handled |= hal.IntBuffStatus
		d.handleBufferStatus()
	}

	if rem := status &^ handled; rem != 0 {
		d.fault(&pkg.FatalError{
			Component: pkg.ComponentDevice,
			Status:    rem,
			Err:       pkg.ErrUnhandledInterrupt,
		})
	}
}

// handleBufferStatus completes every endpoint flagged in BUFF_STATUS. Bit
// 2n is EPn IN and bit 2n+1 is EPn OUT.
func (d *Device) handleBufferStatus() {
	status := d.bus.Get(hal.BuffStatus)
	for bit := uint(0); status != 0; bit++ {
		mask := uint32(1) << bit
		if status&mask == 0 {
			continue
		}
		status &^= mask
		d.bus.ClearBits(hal.BuffStatus, mask)

		addr := usb.EndpointAddress(uint8(bit>>1), bit&1 == 0)
		ep, ok := d.reg.Lookup(addr)
		if !ok {
			pkg.LogWarn(pkg.ComponentIRQ, "buffer status for unknown endpoint", "address", addr)
			continue
		}
		d.transferDone(ep)
	}
}
