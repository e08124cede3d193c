package hal

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// Clocks holds the two clock domains a staged write crosses.
type Clocks struct {
	Sys physic.Frequency // clk_sys, the CPU clock
	USB physic.Frequency // clk_usb, the controller clock (48 MHz)
}

// DefaultClocks are the RP2040 reset-default frequencies.
var DefaultClocks = Clocks{
	Sys: 133 * physic.MegaHertz,
	USB: 48 * physic.MegaHertz,
}

// Validate reports whether both frequencies are usable.
func (c Clocks) Validate() error {
	if c.USB <= 0 || c.Sys <= 0 {
		return fmt.Errorf("clocks must be positive: sys=%s usb=%s", c.Sys, c.USB)
	}
	if c.Sys < c.USB {
		return fmt.Errorf("clk_sys %s slower than clk_usb %s", c.Sys, c.USB)
	}
	return nil
}

// SysCycles converts n USB clock cycles into the smallest number of system
// clock cycles that covers them.
func (c Clocks) SysCycles(n uint32) uint32 {
	if c.USB <= 0 {
		return n
	}
	num := int64(n) * int64(c.Sys)
	den := int64(c.USB)
	return uint32((num + den - 1) / den)
}

// AvailableDelay is the wait before setting a buffer's AVAILABLE bit:
// one USB clock.
func (c Clocks) AvailableDelay() uint32 { return c.SysCycles(1) }

// StartDelay is the wait before setting SIE_CTRL.START_TRANS: two USB
// clocks.
func (c Clocks) StartDelay() uint32 { return c.SysCycles(2) }

func (c Clocks) String() string {
	return fmt.Sprintf("sys=%s usb=%s", c.Sys, c.USB)
}
