package host

import (
	"fmt"
	"time"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/config"
)

// Options configures a Host.
type Options struct {
	// Address is assigned to the device during enumeration.
	Address uint8
	// QueueDepth is the capacity of the interrupt-to-task event queue.
	QueueDepth int
	// TransferTimeout bounds a single EPX transaction. Zero disables the
	// watchdog.
	TransferTimeout time.Duration
	// Clocks sets the staged-write delays.
	Clocks hal.Clocks
	// Now returns the current time; tests replace it.
	Now func() time.Time
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Address:         1,
		QueueDepth:      64,
		TransferTimeout: time.Second,
		Clocks:          hal.DefaultClocks,
		Now:             time.Now,
	}
}

// OptionsFromConfig returns options from the [host] and [clocks] sections.
func OptionsFromConfig(cfg config.Config) Options {
	opts := DefaultOptions()
	opts.Address = cfg.Host.Address
	opts.QueueDepth = cfg.Host.QueueDepth
	opts.TransferTimeout = cfg.Host.TransferTimeout.Duration
	opts.Clocks = cfg.HALClocks()
	return opts
}

func (o *Options) validate() error {
	if o.Address == 0 || o.Address > 127 {
		return fmt.Errorf("%w: device address %d", pkg.ErrInvalidParameter, o.Address)
	}
	if o.QueueDepth < 1 {
		return fmt.Errorf("%w: queue depth %d", pkg.ErrInvalidParameter, o.QueueDepth)
	}
	if o.TransferTimeout < 0 {
		return fmt.Errorf("%w: negative transfer timeout", pkg.ErrInvalidParameter)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o.Clocks.Validate()
}

// Host is the host-role transfer engine for a single directly attached
// device.
//
// HandleInterrupt runs in interrupt context and only reads the controller
// and queues events. Every other method belongs to the task context: call
// them from the goroutine running Task or Run, or from callbacks it
// invokes.
type Host struct {
	bus   hal.Bus
	cpu   hal.CPU
	opts  Options
	queue *Queue
	fault func(error)

	dev     *Device
	ctl     control
	epx     *Endpoint // data endpoint with a transaction on EPX
	started time.Time // when the current EPX transaction was armed
	slots   [hal.HostInterruptSlots + 1]*Endpoint

	onConfigured func(*Device)
	onDisconnect func(*Device)
	onError      func(error)
}

// New creates a host engine on bus. cpu provides the cycle delays and
// interrupt masking of the staged register writes.
func New(bus hal.Bus, cpu hal.CPU, opts Options) (*Host, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Host{
		bus:   bus,
		cpu:   cpu,
		opts:  opts,
		queue: NewQueue(opts.QueueDepth),
		fault: pkg.Abort,
	}, nil
}

// Reset brings the controller up in host mode, powering VBUS and waiting
// for a device to connect.
func (h *Host) Reset() {
	hal.ClearRAM(h.bus)
	h.bus.Set(hal.USBMuxing, hal.USBMuxingToPHY|hal.USBMuxingSoftCon)
	h.bus.Set(hal.USBPwr, hal.USBPwrVBUSDetect|hal.USBPwrVBUSDetectOverrideEn)
	h.bus.Set(hal.MainCtrl, hal.MainCtrlControllerEn|hal.MainCtrlHostNDevice)
	h.bus.Set(hal.SIECtrl, hal.SIECtrlHostBase)
	h.bus.Set(hal.Inte, hal.IntHostConnDis|hal.IntStall|hal.IntBuffStatus|
		hal.IntTransComplete|hal.IntHostResume|hal.IntErrorDataSeq|hal.IntErrorRxTimeout)
	h.bus.Store(hal.HostEPXControl, hal.EndpointControl(0, hal.HostEPXData))

	h.dev = nil
	h.ctl = control{}
	h.epx = nil
	h.slots = [hal.HostInterruptSlots + 1]*Endpoint{}
	pkg.LogInfo(pkg.ComponentHost, "reset", "clocks", h.opts.Clocks.String())
}

// Queue returns the event queue.
func (h *Host) Queue() *Queue { return h.queue }

// Device returns the attached device, or nil.
func (h *Host) Device() *Device { return h.dev }

// Endpoint returns the endpoint of the attached device with the given
// address.
func (h *Host) Endpoint(addr uint8) (*Endpoint, bool) {
	if h.dev == nil {
		return nil, false
	}
	return h.dev.Endpoint(addr)
}

// SetFaultHandler sets the function called with a *pkg.FatalError when
// the interrupt handler detects a desynchronized controller. The default
// is pkg.Abort.
func (h *Host) SetFaultHandler(fn func(error)) {
	if fn == nil {
		fn = pkg.Abort
	}
	h.fault = fn
}

// SetOnConfigured sets the callback run when enumeration completes.
func (h *Host) SetOnConfigured(fn func(*Device)) { h.onConfigured = fn }

// SetOnDisconnect sets the callback run when the device detaches.
func (h *Host) SetOnDisconnect(fn func(*Device)) { h.onDisconnect = fn }

// SetOnError sets the callback run when enumeration fails.
func (h *Host) SetOnError(fn func(error)) { h.onError = fn }
