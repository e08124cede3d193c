package usb

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/picousb/pkg"
)

// Standard request codes (USB 2.0 Table 9-4).
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestSetDescriptor    = 0x07
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
	RequestGetInterface     = 0x0A
	RequestSetInterface     = 0x0B
	RequestSynchFrame       = 0x0C
)

// Feature selectors (USB 2.0 Table 9-6).
const (
	FeatureEndpointHalt       = 0x00
	FeatureDeviceRemoteWakeup = 0x01
	FeatureTestMode           = 0x02
)

// bmRequestType fields (USB 2.0 Table 9-2).
const (
	RequestTypeDirectionMask = 0x80
	RequestTypeTypeMask      = 0x60
	RequestTypeRecipientMask = 0x1F

	RequestDirectionOut = 0x00 // Host to device
	RequestDirectionIn  = 0x80 // Device to host

	RequestTypeStandard = 0x00
	RequestTypeClass    = 0x20
	RequestTypeVendor   = 0x40

	RequestRecipientDevice    = 0x00
	RequestRecipientInterface = 0x01
	RequestRecipientEndpoint  = 0x02
	RequestRecipientOther     = 0x03
)

// SetupPacketSize is the size of a SETUP packet in bytes.
const SetupPacketSize = 8

// SetupPacket is the 8-byte header that starts every control transfer.
type SetupPacket struct {
	RequestType uint8  // bmRequestType: direction, type, recipient
	Request     uint8  // bRequest
	Value       uint16 // wValue
	Index       uint16 // wIndex
	Length      uint16 // wLength: bytes expected in the data stage
}

// ParseSetupPacket decodes a setup packet from data into out.
func ParseSetupPacket(data []byte, out *SetupPacket) error {
	if len(data) < SetupPacketSize {
		return pkg.ErrSetupPacketTooShort
	}
	*out = SetupPacketFrom([SetupPacketSize]byte(data[:SetupPacketSize]))
	return nil
}

// SetupPacketFrom decodes a setup packet from its 8-byte wire form.
func SetupPacketFrom(b [SetupPacketSize]byte) SetupPacket {
	return SetupPacket{
		RequestType: b[0],
		Request:     b[1],
		Value:       binary.LittleEndian.Uint16(b[2:4]),
		Index:       binary.LittleEndian.Uint16(b[4:6]),
		Length:      binary.LittleEndian.Uint16(b[6:8]),
	}
}

// MarshalTo encodes the setup packet into buf and returns the number of
// bytes written, or 0 if buf is shorter than 8 bytes.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	binary.LittleEndian.PutUint16(buf[2:4], s.Value)
	binary.LittleEndian.PutUint16(buf[4:6], s.Index)
	binary.LittleEndian.PutUint16(buf[6:8], s.Length)
	return SetupPacketSize
}

// Bytes returns the wire encoding of the setup packet.
func (s SetupPacket) Bytes() [SetupPacketSize]byte {
	var b [SetupPacketSize]byte
	s.MarshalTo(b[:])
	return b
}

// IsIn reports whether the data stage (if any) runs device to host.
func (s *SetupPacket) IsIn() bool {
	return s.RequestType&RequestTypeDirectionMask == RequestDirectionIn
}

// Type returns the request type bits (standard, class, vendor).
func (s *SetupPacket) Type() uint8 {
	return s.RequestType & RequestTypeTypeMask
}

// IsStandard reports whether this is a standard request.
func (s *SetupPacket) IsStandard() bool {
	return s.Type() == RequestTypeStandard
}

// Recipient returns the recipient bits.
func (s *SetupPacket) Recipient() uint8 {
	return s.RequestType & RequestTypeRecipientMask
}

// DescriptorType returns the descriptor type of a GET_DESCRIPTOR request.
func (s *SetupPacket) DescriptorType() uint8 {
	return uint8(s.Value >> 8)
}

// DescriptorIndex returns the descriptor index of a GET_DESCRIPTOR request.
func (s *SetupPacket) DescriptorIndex() uint8 {
	return uint8(s.Value)
}

func (s SetupPacket) String() string {
	return fmt.Sprintf("{type:0x%02x req:0x%02x value:0x%04x index:0x%04x len:%d}",
		s.RequestType, s.Request, s.Value, s.Index, s.Length)
}

// GetDescriptorSetup builds a standard GET_DESCRIPTOR request.
func GetDescriptorSetup(descType, index uint8, langID, length uint16) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionIn | RequestTypeStandard | RequestRecipientDevice,
		Request:     RequestGetDescriptor,
		Value:       uint16(descType)<<8 | uint16(index),
		Index:       langID,
		Length:      length,
	}
}

// SetAddressSetup builds a standard SET_ADDRESS request.
func SetAddressSetup(address uint8) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionOut | RequestTypeStandard | RequestRecipientDevice,
		Request:     RequestSetAddress,
		Value:       uint16(address & 0x7F),
	}
}

// SetConfigurationSetup builds a standard SET_CONFIGURATION request.
func SetConfigurationSetup(value uint8) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionOut | RequestTypeStandard | RequestRecipientDevice,
		Request:     RequestSetConfiguration,
		Value:       uint16(value),
	}
}

// GetConfigurationSetup builds a standard GET_CONFIGURATION request.
func GetConfigurationSetup() SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionIn | RequestTypeStandard | RequestRecipientDevice,
		Request:     RequestGetConfiguration,
		Length:      1,
	}
}

// GetStatusSetup builds a standard GET_STATUS request for recipient.
func GetStatusSetup(recipient uint8, index uint16) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionIn | RequestTypeStandard | recipient&RequestTypeRecipientMask,
		Request:     RequestGetStatus,
		Index:       index,
		Length:      2,
	}
}

// FeatureSetup builds a SET_FEATURE or CLEAR_FEATURE request.
func FeatureSetup(set bool, recipient uint8, feature, index uint16) SetupPacket {
	req := uint8(RequestClearFeature)
	if set {
		req = RequestSetFeature
	}
	return SetupPacket{
		RequestType: RequestDirectionOut | RequestTypeStandard | recipient&RequestTypeRecipientMask,
		Request:     req,
		Value:       feature,
		Index:       index,
	}
}
