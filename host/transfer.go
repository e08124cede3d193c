package host

import (
	"fmt"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/usb"
)

// epxBusy reports whether EPX has a transaction in flight.
func (h *Host) epxBusy() bool {
	return h.ctl.stage != controlIdle || h.epx != nil
}

// armSetup sends a SETUP packet to endpoint 0 of the device at addr.
func (h *Host) armSetup(addr uint8, setup usb.SetupPacket) {
	raw := setup.Bytes()
	h.bus.Set(hal.AddrEndp, hal.AddrEndpValue(addr, 0))
	h.bus.Store(hal.HostEPXControl, hal.EndpointControl(usb.TransferTypeControl, hal.HostEPXData))
	h.bus.WriteRAM(hal.SetupPacketOffset, raw[:])
	h.started = h.opts.Now()
	h.opts.Clocks.Start(h.cpu, hal.RegWord{Bus: h.bus, Reg: hal.SIECtrl},
		hal.SIECtrlHostBase|hal.SIECtrlSendSetup|hal.SIECtrlStartTrans)
	pkg.LogDebug(pkg.ComponentTransfer, "setup", "dev", addr, "request", setup.String())
}

// armEPX starts one data packet on EPX. For OUT, data is copied to the
// EPX buffer; for IN, n is the largest packet accepted. Both the buffer
// control and SIE_CTRL writes are staged.
func (h *Host) armEPX(addr, number, xferType uint8, in bool, pid uint8, data []byte, n int) {
	h.bus.Set(hal.AddrEndp, hal.AddrEndpValue(addr, number))
	h.bus.Store(hal.HostEPXControl, hal.EndpointControl(xferType, hal.HostEPXData))

	sie := uint32(hal.SIECtrlHostBase | hal.SIECtrlStartTrans)
	if in {
		sie |= hal.SIECtrlReceiveData
	} else {
		h.bus.WriteRAM(hal.HostEPXData, data[:n])
		sie |= hal.SIECtrlSendData
	}
	h.started = h.opts.Now()
	h.opts.Clocks.Arm(h.cpu, hal.RAMWord{Bus: h.bus, Offset: hal.HostEPXBufferControl},
		hal.BufferControl(n, !in, pid)|hal.BufferLast)
	h.opts.Clocks.Start(h.cpu, hal.RegWord{Bus: h.bus, Reg: hal.SIECtrl}, sie)
	pkg.LogDebug(pkg.ComponentTransfer, "start",
		"dev", addr, "ep", usb.EndpointAddress(number, in), "len", n, "pid", pid)
}

// armSlot arms the buffer of an interrupt endpoint slot. The controller
// polls the endpoint on its own once AVAILABLE is set.
func (h *Host) armSlot(ep *Endpoint, data []byte, n int) {
	if !ep.IsIn() {
		h.bus.WriteRAM(ep.buffer(), data[:n])
	}
	h.opts.Clocks.Arm(h.cpu, hal.RAMWord{Bus: h.bus, Offset: hal.HostBufferControl(ep.slot)},
		hal.BufferControl(n, !ep.IsIn(), ep.pid)|hal.BufferLast)
	pkg.LogDebug(pkg.ComponentTransfer, "start",
		"endpoint", ep.String(), "slot", ep.slot, "len", n, "pid", ep.pid)
}

// stopEPX abandons the EPX transaction in flight.
func (h *Host) stopEPX() {
	h.bus.SetBits(hal.SIECtrl, hal.SIECtrlStopTrans)
	h.bus.Store(hal.HostEPXBufferControl, 0)
}

// Transfer starts a single-packet transfer on a data endpoint of the
// configured device. For an IN endpoint buf receives up to len(buf) bytes;
// for OUT all of buf is sent. done runs in task context with the result.
func (h *Host) Transfer(ep *Endpoint, buf []byte, done func(Result)) error {
	switch {
	case h.dev == nil || ep.dev != h.dev:
		return pkg.ErrNoDevice
	case !h.dev.Configured():
		return pkg.ErrNotConfigured
	case len(buf) > hal.MaxPacketSize || len(buf) > int(ep.MaxPacketSize()):
		return fmt.Errorf("%w: %d bytes on %s", pkg.ErrTransferTooLarge, len(buf), ep)
	case ep.busy:
		return fmt.Errorf("%w: %s", pkg.ErrBusy, ep)
	case ep.slot == 0 && h.epxBusy():
		return fmt.Errorf("%w: EPX", pkg.ErrBusy)
	}

	ep.busy = true
	ep.buf = buf
	ep.done = done
	if ep.slot != 0 {
		h.armSlot(ep, buf, len(buf))
		return nil
	}
	h.epx = ep
	h.armEPX(h.dev.Address, ep.Number(), ep.TransferType(), ep.IsIn(), ep.pid, buf, len(buf))
	return nil
}

// endpointDone completes the transfer in flight on ep. The DATA PID
// advances only on success.
func (h *Host) endpointDone(ep *Endpoint, status pkg.TransferStatus, n int) {
	buf := ep.buf
	if status == pkg.TransferStatusSuccess {
		if n > len(buf) {
			n = len(buf)
		}
		if ep.IsIn() {
			h.bus.ReadRAM(ep.buffer(), buf[:n])
		}
		ep.pid ^= 1
	} else {
		n = 0
	}

	done := ep.done
	ep.busy = false
	ep.buf = nil
	ep.done = nil
	if h.epx == ep {
		h.epx = nil
	}
	pkg.LogDebug(pkg.ComponentTransfer, "done", "endpoint", ep.String(), "status", status, "len", n)
	if done != nil {
		done(Result{Status: status, Data: buf[:n]})
	}
}
