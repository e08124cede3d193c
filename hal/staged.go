package hal

// StageWrite writes value to w in two steps with interrupts masked: first
// without trigger, then, after at least cycles system clocks, with trigger
// set. The controller never observes trigger together with stale fields.
func StageWrite(cpu CPU, w Word, value, trigger, cycles uint32) {
	state := cpu.DisableInterrupts()
	w.Set(value &^ trigger)
	cpu.DelayCycles(cycles)
	w.Set(value | trigger)
	cpu.RestoreInterrupts(state)
}

// Arm stages a buffer-control word: AVAILABLE after AvailableDelay.
func (c Clocks) Arm(cpu CPU, w Word, value uint32) {
	StageWrite(cpu, w, value, BufferAvailable, c.AvailableDelay())
}

// Start stages a SIE_CTRL word: START_TRANS after StartDelay.
func (c Clocks) Start(cpu CPU, w Word, value uint32) {
	StageWrite(cpu, w, value, SIECtrlStartTrans, c.StartDelay())
}
