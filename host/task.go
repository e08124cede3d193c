package host

import (
	"context"
	"runtime"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
)

// Task runs one iteration of the host task loop. After enforcing the EPX
// transfer timeout it either starts enumeration behind a finished bus
// reset or handles at most one queued event. It reports whether it did.
func (h *Host) Task() bool {
	h.checkTimeout()
	if h.checkBusReset() {
		return true
	}
	ev, ok := h.queue.Pop()
	if !ok {
		return false
	}
	h.dispatch(ev)
	return true
}

// Run calls Task until ctx is done.
func (h *Host) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !h.Task() {
			runtime.Gosched()
		}
	}
}

// Defer queues fn to be called with arg from the task loop.
func (h *Host) Defer(fn func(any), arg any) error {
	return h.queue.Push(Event{Kind: EventFunction, Func: fn, Arg: arg})
}

func (h *Host) dispatch(ev Event) {
	pkg.LogDebug(pkg.ComponentHost, "event", "event", ev.String())
	switch ev.Kind {
	case EventConnection:
		if h.dev != nil {
			h.detach()
		}
		if ev.Speed != hal.SpeedDisconnected {
			h.attach(ev.Speed)
		}

	case EventTransfer:
		if ev.Slot != 0 {
			ep := h.slots[ev.Slot]
			if ep == nil || !ep.busy {
				pkg.LogWarn(pkg.ComponentHost, "stray event", "event", ev.String())
				return
			}
			h.endpointDone(ep, ev.Result, int(ev.Len))
			return
		}
		switch {
		case h.ctl.stage != controlIdle:
			h.controlDone(ev.Result, int(ev.Len))
		case h.epx != nil:
			h.endpointDone(h.epx, ev.Result, int(ev.Len))
		default:
			pkg.LogWarn(pkg.ComponentHost, "stray event", "event", ev.String())
		}

	case EventFunction:
		if ev.Func != nil {
			ev.Func(ev.Arg)
		}
	}
}

// checkTimeout aborts the EPX transaction if it has been pending longer
// than the transfer timeout. Interrupt endpoints are polled by the
// controller and have no timeout.
func (h *Host) checkTimeout() {
	if h.opts.TransferTimeout <= 0 || !h.epxBusy() {
		return
	}
	if h.opts.Now().Sub(h.started) < h.opts.TransferTimeout {
		return
	}
	pkg.LogWarn(pkg.ComponentTransfer, "timeout", "after", h.opts.TransferTimeout)
	h.stopEPX()
	if h.ctl.stage != controlIdle {
		h.controlDone(pkg.TransferStatusTimeout, 0)
		return
	}
	h.endpointDone(h.epx, pkg.TransferStatusTimeout, 0)
}

// detach cancels everything in flight on the device and forgets it.
func (h *Host) detach() {
	d := h.dev
	if d == nil {
		return
	}
	h.dev = nil
	if h.ctl.stage != controlIdle {
		h.stopEPX()
		h.finishControl(pkg.TransferStatusCancelled)
	}
	if h.epx != nil {
		h.stopEPX()
		h.endpointDone(h.epx, pkg.TransferStatusCancelled, 0)
	}
	for _, ep := range d.endpoints {
		if ep.busy {
			h.endpointDone(ep, pkg.TransferStatusCancelled, 0)
		}
		h.freeSlot(ep)
	}
	pkg.LogInfo(pkg.ComponentHost, "disconnected", "device", d.String())
	if h.onDisconnect != nil {
		h.onDisconnect(d)
	}
}
