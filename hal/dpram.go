package hal

// DPRAM geometry.
const (
	// DPRAMBase is the bus address of the dual-port RAM on the RP2040.
	DPRAMBase = 0x50100000
	// DPRAMSize is the size of the dual-port RAM in bytes.
	DPRAMSize = 4096
	// MaxPacketSize is the size of one hardware data buffer, and the
	// largest single transfer the engine issues.
	MaxPacketSize = 64
	// NumEndpoints is the number of endpoint numbers (0-15).
	NumEndpoints = 16
)

// Offsets shared by both modes.
const (
	SetupPacketOffset = 0x000
	DataBufferBase    = 0x180
)

// Device-mode DPRAM layout.
const (
	deviceEPCtrlBase  = 0x008 // ep_ctrl[n-1]: IN at +0, OUT at +4
	deviceBufCtrlBase = 0x080 // ep_buf_ctrl[n]: IN at +0, OUT at +4

	EP0BufferA = 0x100 // shared by EP0 IN and EP0 OUT
	EP0BufferB = 0x140
)

// DeviceEndpointControl returns the DPRAM offset of the endpoint-control
// word for endpoint number 1-15. Endpoint 0 has none and yields 0.
func DeviceEndpointControl(number uint8, in bool) uint16 {
	if number == 0 || number >= NumEndpoints {
		return 0
	}
	off := uint16(deviceEPCtrlBase + 8*(uint16(number)-1))
	if !in {
		off += 4
	}
	return off
}

// DeviceBufferControl returns the DPRAM offset of the buffer-control word
// for endpoint number 0-15.
func DeviceBufferControl(number uint8, in bool) uint16 {
	off := uint16(deviceBufCtrlBase + 8*uint16(number&0xF))
	if !in {
		off += 4
	}
	return off
}

// DataBuffer returns the DPRAM offset of the slot-th 64-byte data buffer.
func DataBuffer(slot int) uint16 {
	return uint16(DataBufferBase + slot*MaxPacketSize)
}

// DataBufferSlots is the number of 64-byte data buffers after DataBufferBase.
const DataBufferSlots = (DPRAMSize - DataBufferBase) / MaxPacketSize

// Host-mode DPRAM layout.
const (
	hostIntEPCtrlBase    = 0x008 // int_ep_ctrl[n-1]
	HostEPXBufferControl = 0x080
	hostIntEPBufCtrlBase = 0x088 // int_ep_buffer_ctrl[n-1]
	HostEPXControl       = 0x100
	HostEPXData          = DataBufferBase

	// HostInterruptSlots is the number of hardware polled endpoints.
	HostInterruptSlots = 15
)

// HostEndpointControl returns the endpoint-control offset of interrupt
// endpoint slot n (1-15).
func HostEndpointControl(n int) uint16 {
	return uint16(hostIntEPCtrlBase + 8*(n-1))
}

// HostBufferControl returns the buffer-control offset of interrupt
// endpoint slot n (1-15).
func HostBufferControl(n int) uint16 {
	return uint16(hostIntEPBufCtrlBase + 8*(n-1))
}

// Buffer-control word fields.
const (
	BufferLengthMask = 0x3FF
	BufferAvailable  = 1 << 10
	BufferStall      = 1 << 11
	BufferReset      = 1 << 12 // buffer select reset (ping-pong)
	BufferDataPID    = 1 << 13 // DATA1 when set, DATA0 when clear
	BufferLast       = 1 << 14
	BufferFull       = 1 << 15
)

// BufferControl builds a single-buffer control word. The AVAILABLE bit is
// not included; callers arm the buffer by adding it, possibly staged.
func BufferControl(length int, full bool, pid uint8) uint32 {
	v := uint32(length) & BufferLengthMask
	if full {
		v |= BufferFull
	}
	if pid != 0 {
		v |= BufferDataPID
	}
	return v
}

// BufferPID returns the DATA PID (0 or 1) encoded in a buffer-control word.
func BufferPID(word uint32) uint8 {
	if word&BufferDataPID != 0 {
		return 1
	}
	return 0
}

// Endpoint-control word fields.
const (
	EndpointEnable             = 1 << 31
	EndpointDoubleBuffered     = 1 << 30
	EndpointInterruptPerBuffer = 1 << 29
	EndpointInterruptPerDouble = 1 << 28
	EndpointTypeLSB            = 26
	EndpointIntervalLSB        = 16 // host interrupt endpoints only
	EndpointBufferMask         = 0xFFC0
)

// EndpointControl builds an endpoint-control word for a single-buffered
// endpoint of transfer type xferType whose buffer starts at DPRAM offset
// buffer. buffer is the hardware's "pointer XOR base" offset.
func EndpointControl(xferType uint8, buffer uint16) uint32 {
	return EndpointEnable | EndpointInterruptPerBuffer |
		uint32(xferType&3)<<EndpointTypeLSB |
		uint32(buffer)&EndpointBufferMask
}

// BufferOffset returns the DPRAM offset of a bus address inside DPRAM.
func BufferOffset(addr uintptr) uint16 {
	return uint16(addr ^ DPRAMBase)
}
