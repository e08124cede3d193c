package host

import (
	"fmt"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/usb"
)

// Result is the outcome of a transfer, passed to its completion callback.
// Data aliases the caller's buffer and holds the bytes transferred.
type Result struct {
	Status pkg.TransferStatus
	Data   []byte
}

// Err returns the error for a failed transfer, nil on success.
func (r Result) Err() error { return r.Status.Error() }

// Len returns the number of bytes transferred.
func (r Result) Len() int { return len(r.Data) }

// Endpoint is a data endpoint of the attached device. Bulk endpoints share
// the EPX hardware endpoint; interrupt endpoints get a polled slot.
type Endpoint struct {
	desc usb.EndpointDescriptor
	dev  *Device
	slot int // interrupt endpoint slot 1-15, 0 for EPX
	pid  uint8

	busy bool
	buf  []byte
	done func(Result)
}

// Address returns the endpoint address including the direction bit.
func (e *Endpoint) Address() uint8 { return e.desc.EndpointAddress }

// Number returns the endpoint number.
func (e *Endpoint) Number() uint8 { return e.desc.Number() }

// IsIn reports whether the endpoint carries data to the host.
func (e *Endpoint) IsIn() bool { return e.desc.IsIn() }

// TransferType returns the endpoint transfer type.
func (e *Endpoint) TransferType() uint8 { return e.desc.TransferType() }

// MaxPacketSize returns wMaxPacketSize.
func (e *Endpoint) MaxPacketSize() uint16 { return e.desc.MaxPacketSize }

// Descriptor returns the endpoint descriptor read during enumeration.
func (e *Endpoint) Descriptor() usb.EndpointDescriptor { return e.desc }

// Slot returns the interrupt endpoint slot, 0 for endpoints on EPX.
func (e *Endpoint) Slot() int { return e.slot }

// NextPID returns the DATA PID the next transfer will use.
func (e *Endpoint) NextPID() uint8 { return e.pid }

// Busy reports whether a transfer is in flight.
func (e *Endpoint) Busy() bool { return e.busy }

func (e *Endpoint) String() string {
	return fmt.Sprintf("dev%d/0x%02x", e.dev.Address, e.Address())
}

// buffer returns the DPRAM data buffer of the endpoint.
func (e *Endpoint) buffer() uint16 {
	if e.slot == 0 {
		return hal.HostEPXData
	}
	return hal.DataBuffer(e.slot)
}

// addEndpoint creates the host endpoint for desc. Interrupt endpoints are
// bound to a free polling slot; bulk endpoints use EPX.
func (h *Host) addEndpoint(d *Device, desc usb.EndpointDescriptor) (*Endpoint, error) {
	if desc.MaxPacketSize == 0 || desc.MaxPacketSize > hal.MaxPacketSize {
		return nil, fmt.Errorf("%w: endpoint 0x%02x max packet size %d",
			pkg.ErrTransferTooLarge, desc.EndpointAddress, desc.MaxPacketSize)
	}
	ep := &Endpoint{desc: desc, dev: d}
	switch desc.TransferType() {
	case usb.TransferTypeBulk:
	case usb.TransferTypeInterrupt:
		slot := 0
		for i := 1; i < len(h.slots); i++ {
			if h.slots[i] == nil {
				slot = i
				break
			}
		}
		if slot == 0 {
			return nil, fmt.Errorf("%w: no free interrupt endpoint slot", pkg.ErrInvalidEndpoint)
		}
		ep.slot = slot
		h.slots[slot] = ep
		h.configureSlot(ep)
	default:
		return nil, fmt.Errorf("%w: endpoint 0x%02x transfer type %d",
			pkg.ErrInvalidEndpoint, desc.EndpointAddress, desc.TransferType())
	}
	d.endpoints = append(d.endpoints, ep)
	pkg.LogDebug(pkg.ComponentEndpoint, "allocated", "endpoint", ep.String(), "slot", ep.slot)
	return ep, nil
}

// configureSlot programs an interrupt endpoint slot: its address register,
// endpoint-control word with polling interval, and the INT_EP_CTRL enable.
func (h *Host) configureSlot(ep *Endpoint) {
	addr := hal.AddrEndpValue(ep.dev.Address, ep.Number())
	if !ep.IsIn() {
		addr |= hal.AddrEndpIntEPDir
	}
	interval := uint32(ep.desc.Interval)
	if interval > 0 {
		interval--
	}
	h.bus.Set(hal.AddrEndpN(ep.slot), addr)
	h.bus.Store(hal.HostEndpointControl(ep.slot),
		hal.EndpointControl(usb.TransferTypeInterrupt, ep.buffer())|interval<<hal.EndpointIntervalLSB)
	h.bus.Store(hal.HostBufferControl(ep.slot), 0)
	h.bus.SetBits(hal.IntEPCtrl, 1<<ep.slot)
}

// freeSlot disables the interrupt endpoint slot of ep.
func (h *Host) freeSlot(ep *Endpoint) {
	if ep.slot == 0 {
		return
	}
	h.bus.ClearBits(hal.IntEPCtrl, 1<<ep.slot)
	h.bus.Store(hal.HostEndpointControl(ep.slot), 0)
	h.bus.Store(hal.HostBufferControl(ep.slot), 0)
	h.bus.Set(hal.AddrEndpN(ep.slot), 0)
	h.slots[ep.slot] = nil
	ep.slot = 0
}
