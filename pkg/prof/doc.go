// Package prof wraps [runtime/pprof] for the command-line simulations.
//
// A [Session] collects the profiles named in [Options] for the lifetime of
// one run:
//
//	s, err := prof.Start(prof.Options{CPU: "cpu.prof", Heap: "heap.prof"})
//	if err != nil {
//		return err
//	}
//	defer s.Stop()
//
// Only one CPU profile can be active per process; a second Start with CPU
// set returns [ErrCPUProfileActive].
package prof
