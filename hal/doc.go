// Package hal describes the hardware the transfer engine drives: the
// RP2040 USB controller register block, its dual-port buffer RAM (DPRAM),
// and the CPU primitives needed for cycle-counted writes.
//
// The [Bus] and [CPU] interfaces are implemented by the TinyGo binding in
// hal/rp2040 and by the simulated controller in hal/sim. Everything else in
// this package is layout: register offsets and bit fields, DPRAM offsets
// for device and host mode, and builders for the endpoint-control and
// buffer-control words.
//
// # Staged writes
//
// The controller samples buffer-control and SIE_CTRL words in the 48 MHz
// USB clock domain. A word that sets AVAILABLE or START_TRANS together with
// its other fields may be sampled half-written, so [StageWrite] writes the
// word without the trigger bit, waits, and writes it again with the bit:
//
//	hal.StageWrite(cpu, hal.RAMWord{Bus: bus, Offset: bcr}, value,
//		hal.BufferAvailable, clocks.AvailableDelay())
//
// The wait is derived from [Clocks]: at least one USB clock before
// AVAILABLE and two before START_TRANS, converted to system clock cycles.
package hal
