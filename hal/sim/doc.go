// Package sim is a software model of the RP2040 USB controller. A
// [Controller] implements [hal.Bus] and [hal.CPU] over an in-memory
// register file and DPRAM, so the device and host engines run unchanged
// on a workstation.
//
// In device mode the test (or a host-mode controller, through
// [DevicePeer]) plays the host: [Controller.BusReset],
// [Controller.SendSetup], [Controller.In] and [Controller.Out] each
// complete one transaction and raise the interrupt. In host mode,
// [Controller.Step] executes the transaction the engine started through
// SIE_CTRL against an attached [Peer].
//
// The model keeps the register semantics the engines depend on: set and
// clear aliases, write-1-to-clear SIE_STATUS and BUFF_STATUS, INTR derived
// from status bits, INTS = (INTR | INTF) & INTE, and interrupts held back
// while the CPU has them masked. It does not model timing, SOF, suspend or
// double buffering.
package sim
