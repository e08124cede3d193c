package hal

// Bus is the register interface of the USB controller: the memory-mapped
// register block and the 4 KiB dual-port RAM shared with the controller.
//
// SetBits and ClearBits must be single atomic writes (the hardware set and
// clear aliases), never a read-modify-write.
type Bus interface {
	// Get reads a controller register.
	Get(reg Register) uint32
	// Set writes a controller register.
	Set(reg Register, value uint32)
	// SetBits sets mask in reg through the set alias.
	SetBits(reg Register, mask uint32)
	// ClearBits clears mask in reg through the clear alias.
	ClearBits(reg Register, mask uint32)

	// Load reads the 32-bit word at a DPRAM offset.
	Load(offset uint16) uint32
	// Store writes the 32-bit word at a DPRAM offset.
	Store(offset uint16, value uint32)
	// ReadRAM copies len(p) bytes out of DPRAM starting at offset.
	ReadRAM(offset uint16, p []byte)
	// WriteRAM copies p into DPRAM starting at offset.
	WriteRAM(offset uint16, p []byte)
}

// CPU is the processor surface needed for cycle-counted register writes.
type CPU interface {
	// DelayCycles busy-waits for at least n system clock cycles.
	DelayCycles(n uint32)
	// DisableInterrupts masks interrupts and returns the previous state.
	DisableInterrupts() uintptr
	// RestoreInterrupts restores a state returned by DisableInterrupts.
	RestoreInterrupts(state uintptr)
}

// Word is a single 32-bit control word, either a register or a word of DPRAM.
type Word interface {
	Get() uint32
	Set(value uint32)
}

// RegWord addresses a controller register as a Word.
type RegWord struct {
	Bus Bus
	Reg Register
}

// Get reads the register.
func (w RegWord) Get() uint32 { return w.Bus.Get(w.Reg) }

// Set writes the register.
func (w RegWord) Set(value uint32) { w.Bus.Set(w.Reg, value) }

// RAMWord addresses a DPRAM word (endpoint or buffer control) as a Word.
type RAMWord struct {
	Bus    Bus
	Offset uint16
}

// Get reads the DPRAM word.
func (w RAMWord) Get() uint32 { return w.Bus.Load(w.Offset) }

// Set writes the DPRAM word.
func (w RAMWord) Set(value uint32) { w.Bus.Store(w.Offset, value) }

// ClearRAM zeroes the whole DPRAM. A Bus with its own ClearRAM method
// (a bulk memset) is used directly.
func ClearRAM(b Bus) {
	if c, ok := b.(interface{ ClearRAM() }); ok {
		c.ClearRAM()
		return
	}
	for off := uint16(0); off < DPRAMSize; off += 4 {
		b.Store(off, 0)
	}
}
