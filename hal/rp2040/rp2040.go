//go:build tinygo && rp2040

// Package rp2040 binds the transfer engine to the RP2040 USB controller.
//
// [Controller] implements [hal.Bus] over the memory-mapped register block
// at 0x50110000 and the DPRAM at 0x50100000, and [hal.CPU] over the
// Cortex-M0+ interrupt mask and SysTick. SetBits and ClearBits write the
// atomic set and clear aliases of the register block.
//
// DelayCycles counts SysTick, which Configure starts free-running from
// the processor clock, so staged writes wait real clk_sys cycles however
// the loop compiles.
//
// Typical device-mode setup:
//
//	dev, _ := device.New(rp2040.USB, device.DefaultTable())
//	rp2040.USB.Configure(dev.HandleInterrupt)
//	dev.Reset()
//
// Configure claims USBCTRL_IRQ, which TinyGo's USB-CDC console also
// registers. Programs using this package must build with a non-USB
// serial console, for example -serial=uart or -serial=none.
package rp2040

import (
	"device/arm"
	"device/rp"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"github.com/ardnew/picousb/hal"
)

const (
	regsBase uintptr = 0x50110000

	systickMask = 0xFFFFFF
)

// Controller is the RP2040 USB controller.
type Controller struct {
	intr    interrupt.Interrupt
	handler func()
}

// USB is the single USB controller of the RP2040.
var USB = &Controller{}

func reg(r hal.Register, alias uintptr) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(regsBase + alias + uintptr(r)))
}

func ram(off uint16) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(uintptr(hal.DPRAMBase) + uintptr(off)))
}

func dpram() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(hal.DPRAMBase))), hal.DPRAMSize)
}

// Configure resets the controller, clears DPRAM and routes USBCTRL_IRQ to
// handler. The engine's Reset enables the controller afterwards.
func (c *Controller) Configure(handler func()) {
	rp.RESETS.RESET.SetBits(rp.RESETS_RESET_USBCTRL)
	rp.RESETS.RESET.ClearBits(rp.RESETS_RESET_USBCTRL)
	for !rp.RESETS.RESET_DONE.HasBits(rp.RESETS_RESET_USBCTRL) {
	}
	c.ClearRAM()

	arm.SYST.SYST_RVR.Set(systickMask)
	arm.SYST.SYST_CVR.Set(0)
	arm.SYST.SYST_CSR.Set(arm.SYST_CSR_ENABLE_Msk | arm.SYST_CSR_CLKSOURCE_Msk)

	c.handler = handler
	c.intr = interrupt.New(rp.IRQ_USBCTRL_IRQ, handleInterrupt)
	c.intr.SetPriority(0x00)
	c.intr.Enable()
}

func handleInterrupt(interrupt.Interrupt) {
	if USB.handler != nil {
		USB.handler()
	}
}

// Get reads a controller register.
func (c *Controller) Get(r hal.Register) uint32 { return reg(r, 0).Get() }

// Set writes a controller register.
func (c *Controller) Set(r hal.Register, v uint32) { reg(r, 0).Set(v) }

// SetBits sets mask through the set alias.
func (c *Controller) SetBits(r hal.Register, mask uint32) { reg(r, hal.AliasSet).Set(mask) }

// ClearBits clears mask through the clear alias.
func (c *Controller) ClearBits(r hal.Register, mask uint32) { reg(r, hal.AliasClr).Set(mask) }

// Load reads a DPRAM word.
func (c *Controller) Load(off uint16) uint32 { return ram(off).Get() }

// Store writes a DPRAM word.
func (c *Controller) Store(off uint16, v uint32) { ram(off).Set(v) }

// ReadRAM copies out of DPRAM.
func (c *Controller) ReadRAM(off uint16, p []byte) { copy(p, dpram()[off:]) }

// WriteRAM copies into DPRAM.
func (c *Controller) WriteRAM(off uint16, p []byte) { copy(dpram()[off:], p) }

// ClearRAM zeroes DPRAM a word at a time.
func (c *Controller) ClearRAM() {
	for off := uint16(0); off < hal.DPRAMSize; off += 4 {
		ram(off).Set(0)
	}
}

// DelayCycles spins until SysTick has counted at least n system clock
// cycles. n must be below 2^24.
func (c *Controller) DelayCycles(n uint32) {
	start := arm.SYST.SYST_CVR.Get()
	for (start-arm.SYST.SYST_CVR.Get())&systickMask < n {
	}
}

// DisableInterrupts masks interrupts on this core.
func (c *Controller) DisableInterrupts() uintptr { return arm.DisableInterrupts() }

// RestoreInterrupts restores the mask returned by DisableInterrupts.
func (c *Controller) RestoreInterrupts(state uintptr) { arm.EnableInterrupts(state) }
