package device

import (
	"fmt"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/usb"
)

// Endpoint is the runtime state of one endpoint direction.
type Endpoint struct {
	desc usb.EndpointDescriptor

	// DPRAM offsets
	ctrl    uint16 // endpoint-control word, 0 for endpoint 0
	bufCtrl uint16
	buffer  uint16

	pid     uint8 // PID of the next packet armed on this endpoint
	enabled bool
	halted  bool
	length  uint16 // length of the last completed transfer

	handler Handler
}

// Address returns the endpoint address including the direction bit.
func (e *Endpoint) Address() uint8 { return e.desc.EndpointAddress }

// Number returns the endpoint number (0-15).
func (e *Endpoint) Number() uint8 { return e.desc.Number() }

// IsIn reports whether the endpoint sends data to the host.
func (e *Endpoint) IsIn() bool { return e.desc.IsIn() }

// TransferType returns the endpoint transfer type.
func (e *Endpoint) TransferType() uint8 { return e.desc.TransferType() }

// MaxPacketSize returns wMaxPacketSize.
func (e *Endpoint) MaxPacketSize() uint16 { return e.desc.MaxPacketSize }

// Descriptor returns the endpoint descriptor.
func (e *Endpoint) Descriptor() usb.EndpointDescriptor { return e.desc }

// NextPID returns the DATA PID (0 or 1) the next transfer will use.
func (e *Endpoint) NextPID() uint8 { return e.pid }

// Enabled reports whether the endpoint has been configured.
func (e *Endpoint) Enabled() bool { return e.enabled }

// Halted reports whether the endpoint halt feature is set.
func (e *Endpoint) Halted() bool { return e.halted }

// Len returns the byte count of the last completed transfer.
func (e *Endpoint) Len() int { return int(e.length) }

// BufferControl returns the DPRAM offset of the buffer-control word.
func (e *Endpoint) BufferControl() uint16 { return e.bufCtrl }

// Buffer returns the DPRAM offset of the data buffer.
func (e *Endpoint) Buffer() uint16 { return e.buffer }

func (e *Endpoint) String() string {
	dir := "OUT"
	if e.IsIn() {
		dir = "IN"
	}
	return fmt.Sprintf("EP%d_%s", e.Number(), dir)
}

// endpointIndex maps an address to a registry index: OUT endpoints use
// 0-15 and IN endpoints 16-31.
func endpointIndex(addr uint8) int {
	idx := int(addr & usb.EndpointNumberMask)
	if addr&usb.EndpointDirIn != 0 {
		idx += hal.NumEndpoints
	}
	return idx
}

// Registry holds every endpoint of the device. Its storage is fixed at
// construction so endpoint pointers stay valid.
type Registry struct {
	eps   []Endpoint
	index [2 * hal.NumEndpoints]int8
}

// NewRegistry lays out the endpoints in DPRAM. Endpoint 0 uses the fixed
// EP0 buffer; every other endpoint gets the next free 64-byte buffer in
// table order.
func NewRegistry(descs []usb.EndpointDescriptor) (*Registry, error) {
	r := &Registry{eps: make([]Endpoint, len(descs))}
	for i := range r.index {
		r.index[i] = -1
	}

	slot := 0
	for i, desc := range descs {
		idx := endpointIndex(desc.EndpointAddress)
		if desc.EndpointAddress&^(usb.EndpointDirIn|usb.EndpointNumberMask) != 0 {
			return nil, fmt.Errorf("%w: 0x%02x", pkg.ErrInvalidEndpoint, desc.EndpointAddress)
		}
		if r.index[idx] >= 0 {
			return nil, fmt.Errorf("%w: duplicate endpoint 0x%02x",
				pkg.ErrInvalidEndpoint, desc.EndpointAddress)
		}
		if (desc.Number() == 0) != (desc.TransferType() == usb.TransferTypeControl) {
			return nil, fmt.Errorf("%w: endpoint 0x%02x type %d",
				pkg.ErrInvalidEndpoint, desc.EndpointAddress, desc.TransferType())
		}
		if desc.MaxPacketSize == 0 || desc.MaxPacketSize > hal.MaxPacketSize {
			return nil, fmt.Errorf("%w: endpoint 0x%02x max packet size %d",
				pkg.ErrTransferTooLarge, desc.EndpointAddress, desc.MaxPacketSize)
		}

		ep := &r.eps[i]
		ep.desc = desc
		ep.bufCtrl = hal.DeviceBufferControl(desc.Number(), desc.IsIn())
		if desc.Number() == 0 {
			ep.buffer = hal.EP0BufferA
		} else {
			if slot >= hal.DataBufferSlots {
				return nil, fmt.Errorf("%w: out of DPRAM buffers", pkg.ErrInvalidParameter)
			}
			ep.ctrl = hal.DeviceEndpointControl(desc.Number(), desc.IsIn())
			ep.buffer = hal.DataBuffer(slot)
			slot++
		}
		r.index[idx] = int8(i)
	}
	return r, nil
}

// Lookup returns the enabled endpoint with the given address.
func (r *Registry) Lookup(addr uint8) (*Endpoint, bool) {
	if addr&^(usb.EndpointDirIn|usb.EndpointNumberMask) != 0 {
		return nil, false
	}
	i := r.index[endpointIndex(addr)]
	if i < 0 || !r.eps[i].enabled {
		return nil, false
	}
	return &r.eps[i], true
}

// Get returns the endpoint with the given address whether or not it is
// enabled.
func (r *Registry) Get(addr uint8) (*Endpoint, bool) {
	if addr&^(usb.EndpointDirIn|usb.EndpointNumberMask) != 0 {
		return nil, false
	}
	i := r.index[endpointIndex(addr)]
	if i < 0 {
		return nil, false
	}
	return &r.eps[i], true
}

// Len returns the number of endpoints.
func (r *Registry) Len() int { return len(r.eps) }

// At returns the i-th endpoint in table order.
func (r *Registry) At(i int) *Endpoint { return &r.eps[i] }

// Configure enables ep with DATA0 and an idle buffer. Endpoints other than
// 0 also get their endpoint-control word; endpoint 0 is controlled through
// SIE_CTRL.
func (r *Registry) Configure(bus hal.Bus, ep *Endpoint) {
	ep.enabled = true
	ep.halted = false
	ep.pid = 0
	ep.length = 0
	bus.Store(ep.bufCtrl, 0)
	if ep.Number() != 0 {
		bus.Store(ep.ctrl, hal.EndpointControl(ep.TransferType(), ep.buffer))
	}
	pkg.LogDebug(pkg.ComponentEndpoint, "configured",
		"endpoint", ep.String(), "buffer", ep.buffer)
}
