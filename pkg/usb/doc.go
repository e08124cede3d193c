// Package usb defines the USB 2.0 wire formats shared by the device and
// host roles: the 8-byte setup packet, the standard request codes, and the
// device, configuration, interface, endpoint and string descriptors.
//
// Encoders follow the MarshalTo(buf) int convention and decoders take an
// output parameter, so descriptor tables can be built into fixed arrays:
//
//	var buf [usb.DeviceDescriptorSize]byte
//	n := desc.MarshalTo(buf[:])
//
// String descriptor bodies are UTF-16LE, encoded and decoded with
// golang.org/x/text/encoding/unicode.
package usb
