package host

import (
	"fmt"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg/usb"
)

// EnumState is the progress of enumerating the attached device.
type EnumState uint8

// Enumeration states, in order.
const (
	EnumBusReset      EnumState = iota // waiting for the bus reset to finish
	EnumDeviceHeader                   // reading bMaxPacketSize0 at address 0
	EnumSetAddress                     // assigning the device address
	EnumDevice                         // reading the full device descriptor
	EnumConfigHeader                   // reading wTotalLength
	EnumConfiguration                  // reading the full configuration
	EnumStrings                        // reading string descriptors
	EnumSetConfiguration               // selecting the configuration
	EnumConfigured                     // ready for data transfers
	EnumFailed                         // a step failed; the device is unusable
)

func (s EnumState) String() string {
	switch s {
	case EnumBusReset:
		return "bus-reset"
	case EnumDeviceHeader:
		return "device-header"
	case EnumSetAddress:
		return "set-address"
	case EnumDevice:
		return "device"
	case EnumConfigHeader:
		return "config-header"
	case EnumConfiguration:
		return "configuration"
	case EnumStrings:
		return "strings"
	case EnumSetConfiguration:
		return "set-configuration"
	case EnumConfigured:
		return "configured"
	case EnumFailed:
		return "failed"
	}
	return fmt.Sprintf("enum(%d)", uint8(s))
}

// MaxConfigurationSize is the largest configuration descriptor set read
// during enumeration.
const MaxConfigurationSize = 512

// Device is the host's view of the attached device.
type Device struct {
	Address       uint8
	Speed         hal.Speed
	Descriptor    usb.DeviceDescriptor
	Configuration usb.ConfigurationDescriptor
	Interfaces    []usb.InterfaceDescriptor
	LangID        uint16

	Manufacturer string
	Product      string
	SerialNumber string

	state      EnumState
	maxPacket0 uint8
	strStep    int // next string to read: 0 language IDs, then 1-3
	endpoints  []*Endpoint
	buf        [MaxConfigurationSize]byte
}

// State returns the enumeration state.
func (d *Device) State() EnumState { return d.state }

// Configured reports whether enumeration completed.
func (d *Device) Configured() bool { return d.state == EnumConfigured }

// MaxPacketSize0 returns the control endpoint packet size in use.
func (d *Device) MaxPacketSize0() uint8 { return d.maxPacket0 }

// Endpoints returns the data endpoints found during enumeration.
func (d *Device) Endpoints() []*Endpoint { return d.endpoints }

// Endpoint returns the data endpoint with the given address.
func (d *Device) Endpoint(addr uint8) (*Endpoint, bool) {
	for _, ep := range d.endpoints {
		if ep.Address() == addr {
			return ep, true
		}
	}
	return nil, false
}

func (d *Device) String() string {
	return fmt.Sprintf("%04x:%04x addr=%d speed=%s state=%s",
		d.Descriptor.VendorID, d.Descriptor.ProductID, d.Address, d.Speed, d.state)
}
