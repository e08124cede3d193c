package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
)

// Profiling errors.
var (
	// ErrCPUProfileActive indicates CPU profiling is already active.
	ErrCPUProfileActive = errors.New("cpu profile already active")

	// ErrInvalidProfile indicates an unknown snapshot profile.
	ErrInvalidProfile = errors.New("invalid profile")
)

// Profile names a pprof snapshot profile.
type Profile string

// Snapshot profiles.
const (
	ProfileHeap      Profile = "heap"
	ProfileAllocs    Profile = "allocs"
	ProfileGoroutine Profile = "goroutine"
	ProfileBlock     Profile = "block"
	ProfileMutex     Profile = "mutex"
)

// Options selects what a Session records. Empty paths are skipped.
type Options struct {
	CPU   string // CPU profile, streamed while the session runs
	Heap  string // heap snapshot written by Stop
	Block string // blocking profile written by Stop
	Mutex string // mutex contention profile written by Stop
}

// Session is a running set of profiles.
type Session struct {
	opts Options
	cpu  *os.File
}

var (
	cpuMu     sync.Mutex
	cpuActive bool
)

// Start begins profiling.
func Start(opts Options) (*Session, error) {
	s := &Session{opts: opts}
	if opts.CPU != "" {
		cpuMu.Lock()
		defer cpuMu.Unlock()
		if cpuActive {
			return nil, ErrCPUProfileActive
		}
		f, err := os.Create(opts.CPU)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, err
		}
		s.cpu = f
		cpuActive = true
	}
	if opts.Block != "" {
		runtime.SetBlockProfileRate(1)
	}
	if opts.Mutex != "" {
		runtime.SetMutexProfileFraction(1)
	}
	return s, nil
}

// Stop ends the CPU profile and writes the snapshot profiles. It may be
// called more than once.
func (s *Session) Stop() error {
	var errs []error
	if s.cpu != nil {
		cpuMu.Lock()
		pprof.StopCPUProfile()
		cpuActive = false
		cpuMu.Unlock()
		errs = append(errs, s.cpu.Close())
		s.cpu = nil
	}
	if s.opts.Heap != "" {
		runtime.GC()
		errs = append(errs, Write(ProfileHeap, s.opts.Heap))
	}
	if s.opts.Block != "" {
		errs = append(errs, Write(ProfileBlock, s.opts.Block))
		runtime.SetBlockProfileRate(0)
	}
	if s.opts.Mutex != "" {
		errs = append(errs, Write(ProfileMutex, s.opts.Mutex))
		runtime.SetMutexProfileFraction(0)
	}
	s.opts = Options{}
	return errors.Join(errs...)
}

// Write writes a snapshot profile to path.
func Write(profile Profile, path string) error {
	p := pprof.Lookup(string(profile))
	if p == nil {
		return fmt.Errorf("%w: %q", ErrInvalidProfile, profile)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.WriteTo(f, 0); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
