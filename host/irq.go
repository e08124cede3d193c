package host

import (
	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/usb"
)

// HandleInterrupt services the USB interrupt in host mode. It acknowledges
// each source before reading the state it reports and turns it into an
// Event for Task; it never touches transfer state. A data sequence error,
// or any enabled source without a handler, goes to the fault handler.
func (h *Host) HandleInterrupt() {
	status := h.bus.Get(hal.Ints)
	handled := uint32(0)

	if status&hal.IntHostConnDis != 0 {
		handled |= hal.IntHostConnDis
		speed := hal.SpeedOf(h.bus.Get(hal.SIEStatus))
		h.bus.ClearBits(hal.SIEStatus, hal.SIEStatusSpeed)
		h.push(Event{Kind: EventConnection, Speed: speed})
	}

	if status&hal.IntStall != 0 {
		handled |= hal.IntStall
		h.bus.ClearBits(hal.SIEStatus, hal.SIEStatusStallRec)
		h.push(h.epxEvent(pkg.TransferStatusStall))
	}

	if status&hal.IntBuffStatus != 0 {
		handled |= hal.IntBuffStatus
		h.handleBufferStatus()
	}

	if status&hal.IntTransComplete != 0 {
		handled |= hal.IntTransComplete
		h.bus.ClearBits(hal.SIEStatus, hal.SIEStatusTransComplete|hal.SIEStatusACKRec)
		h.push(h.epxEvent(pkg.TransferStatusSuccess))
	}

	if status&hal.IntErrorRxTimeout != 0 {
		handled |= hal.IntErrorRxTimeout
		h.bus.ClearBits(hal.SIEStatus, hal.SIEStatusRxTimeout|hal.SIEStatusRxOverflow)
		h.push(h.epxEvent(pkg.TransferStatusTimeout))
	}

	if status&hal.IntErrorDataSeq != 0 {
		handled |= hal.IntErrorDataSeq
		h.bus.ClearBits(hal.SIEStatus, hal.SIEStatusDataSeqError)
		h.fault(&pkg.FatalError{
			Component: pkg.ComponentHost,
			Status:    hal.IntErrorDataSeq,
			Err:       pkg.ErrDataSequence,
		})
	}

	if status&hal.IntHostResume != 0 {
		handled |= hal.IntHostResume
		h.bus.ClearBits(hal.SIEStatus, hal.SIEStatusResume)
		pkg.LogDebug(pkg.ComponentIRQ, "resume")
	}

	if rem := status &^ handled; rem != 0 {
		h.fault(&pkg.FatalError{
			Component: pkg.ComponentHost,
			Status:    rem,
			Err:       pkg.ErrUnhandledInterrupt,
		})
	}
}

// epxEvent describes the EPX transaction that just ended.
func (h *Host) epxEvent(result pkg.TransferStatus) Event {
	ae := h.bus.Get(hal.AddrEndp)
	in := h.bus.Get(hal.SIECtrl)&hal.SIECtrlReceiveData != 0
	number := uint8((ae & hal.AddrEndpEndpointMask) >> hal.AddrEndpEndpointLSB)
	return Event{
		Kind:    EventTransfer,
		DevAddr: uint8(ae & hal.AddrEndpAddressMask),
		EPAddr:  usb.EndpointAddress(number, in),
		Result:  result,
		Len:     uint16(h.bus.Load(hal.HostEPXBufferControl) & hal.BufferLengthMask),
	}
}

// handleBufferStatus acknowledges every completed buffer. The EPX bits
// are covered by TRANS_COMPLETE; interrupt endpoint slots report here
// only. Bit 2n is slot n IN and bit 2n+1 slot n OUT.
func (h *Host) handleBufferStatus() {
	status := h.bus.Get(hal.BuffStatus)
	h.bus.ClearBits(hal.BuffStatus, status)
	for slot := 1; slot <= hal.HostInterruptSlots; slot++ {
		bits := status >> (2 * slot) & 3
		if bits == 0 {
			continue
		}
		ae := h.bus.Get(hal.AddrEndpN(slot))
		number := uint8((ae & hal.AddrEndpEndpointMask) >> hal.AddrEndpEndpointLSB)
		h.push(Event{
			Kind:    EventTransfer,
			DevAddr: uint8(ae & hal.AddrEndpAddressMask),
			EPAddr:  usb.EndpointAddress(number, ae&hal.AddrEndpIntEPDir == 0),
			Slot:    uint8(slot),
			Result:  pkg.TransferStatusSuccess,
			Len:     uint16(h.bus.Load(hal.HostBufferControl(slot)) & hal.BufferLengthMask),
		})
	}
}

// push queues ev, logging a drop.
func (h *Host) push(ev Event) {
	if err := h.queue.Push(ev); err != nil {
		pkg.LogWarn(pkg.ComponentQueue, "event dropped", "event", ev.String(), "dropped", h.queue.Dropped())
	}
}
