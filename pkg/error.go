package pkg

import (
	"errors"
	"fmt"
)

// Transfer engine errors.
var (
	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrNAK indicates a NAK response (peer busy).
	ErrNAK = errors.New("NAK received")

	// ErrTimeout indicates a transfer timeout.
	ErrTimeout = errors.New("transfer timeout")

	// ErrCancelled indicates a cancelled transfer.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrProtocol indicates a protocol error.
	ErrProtocol = errors.New("protocol error")

	// ErrNoDevice indicates the device is not present.
	ErrNoDevice = errors.New("device not present")

	// ErrNotConfigured indicates the device is not configured.
	ErrNotConfigured = errors.New("device not configured")

	// ErrInvalidEndpoint indicates an invalid endpoint address.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrEndpointNotFound indicates no enabled endpoint matches an address.
	ErrEndpointNotFound = errors.New("endpoint not found")

	// ErrEndpointDisabled indicates a transfer on an endpoint that is not enabled.
	ErrEndpointDisabled = errors.New("endpoint disabled")

	// ErrTransferTooLarge indicates a single buffer transfer longer than
	// the hardware buffer.
	ErrTransferTooLarge = errors.New("transfer exceeds buffer size")

	// ErrBusy indicates a transfer on an endpoint that already has one in flight.
	ErrBusy = errors.New("endpoint busy")

	// ErrControlBusy indicates a control transfer is already outstanding.
	ErrControlBusy = errors.New("control transfer in progress")

	// ErrInvalidRequest indicates an invalid or unsupported request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrDescriptorTooShort indicates the descriptor data is too short.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates the descriptor type does not match expected.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrQueueFull indicates an event was dropped because the queue is full.
	ErrQueueFull = errors.New("event queue full")

	// ErrEnumerationFailed indicates the host could not enumerate the device.
	ErrEnumerationFailed = errors.New("enumeration failed")

	// ErrUnhandledInterrupt indicates an interrupt status bit no handler claimed.
	ErrUnhandledInterrupt = errors.New("unhandled interrupt")

	// ErrDataSequence indicates a DATA0/DATA1 sequence error on the bus.
	ErrDataSequence = errors.New("data sequence error")
)

// FatalError reports a hardware desynchronization. The controller state
// can no longer be trusted once one is raised.
type FatalError struct {
	Component Component
	Status    uint32 // interrupt status bits involved
	Err       error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v (status 0x%08x)", e.Component, e.Err, e.Status)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Abort is the default fault handler. It panics with err.
func Abort(err error) {
	LogError(ComponentIRQ, "fatal", "error", err)
	panic(err)
}

// TransferStatus represents the completion status of a transfer.
type TransferStatus int

// Transfer status values.
const (
	TransferStatusSuccess   TransferStatus = iota // Transfer completed successfully
	TransferStatusError                           // Transfer failed
	TransferStatusStall                           // Endpoint stalled
	TransferStatusTimeout                         // Transfer timed out
	TransferStatusInvalid                         // Transfer was malformed or had no owner
	TransferStatusCancelled                       // Transfer was cancelled
)

// String returns a string representation of the transfer status.
func (s TransferStatus) String() string {
	switch s {
	case TransferStatusSuccess:
		return "success"
	case TransferStatusError:
		return "error"
	case TransferStatusStall:
		return "stall"
	case TransferStatusTimeout:
		return "timeout"
	case TransferStatusInvalid:
		return "invalid"
	case TransferStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the transfer status.
func (s TransferStatus) Error() error {
	switch s {
	case TransferStatusSuccess:
		return nil
	case TransferStatusStall:
		return ErrStall
	case TransferStatusTimeout:
		return ErrTimeout
	case TransferStatusInvalid:
		return ErrInvalidRequest
	case TransferStatusCancelled:
		return ErrCancelled
	default:
		return ErrProtocol
	}
}
