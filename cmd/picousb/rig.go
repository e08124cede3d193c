package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/picousb/device"
	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/hal/sim"
	"github.com/ardnew/picousb/host"
	"github.com/ardnew/picousb/pkg"
	"github.com/ardnew/picousb/pkg/config"
	"github.com/ardnew/picousb/pkg/usb"
)

const (
	// maxSteps bounds a synchronous run that keeps making progress.
	maxSteps = 100000

	// stepIdle is how long the asynchronous bus goroutine sleeps after a
	// step that found nothing to do.
	stepIdle = 20 * time.Microsecond
)

var (
	errStalled  = errors.New("bus idle before the operation finished")
	errFinished = errors.New("finished")
)

// phase is one operation the rig waits for. It finishes once.
type phase struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newPhase() *phase { return &phase{done: make(chan struct{})} }

func (p *phase) finish(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

func (p *phase) finished() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// rig connects a host engine to a device engine through two simulated
// controllers: the host controller's peer forwards every transaction to
// the device controller.
type rig struct {
	hostSim *sim.Controller
	devSim  *sim.Controller
	host    *host.Host
	dev     *device.Device

	timeout time.Duration
	current *phase
}

// echoPair returns the first bulk OUT and bulk IN endpoint addresses of
// the device configuration.
func echoPair(cfg config.Device) (out, in uint8, err error) {
	for _, ep := range cfg.Endpoints {
		t, err := ep.TransferType()
		if err != nil {
			return 0, 0, err
		}
		if t != usb.TransferTypeBulk {
			continue
		}
		switch {
		case ep.Address&usb.EndpointDirIn != 0 && in == 0:
			in = ep.Address
		case ep.Address&usb.EndpointDirIn == 0 && out == 0:
			out = ep.Address
		}
	}
	if out == 0 || in == 0 {
		return 0, 0, fmt.Errorf("%w: echo needs a bulk OUT and a bulk IN endpoint",
			pkg.ErrInvalidParameter)
	}
	return out, in, nil
}

func newRig(cfg config.Config, trace bool) (*rig, error) {
	r := &rig{
		hostSim: sim.New(),
		devSim:  sim.New(),
		timeout: 5 * time.Second,
		current: newPhase(),
	}
	if d := cfg.Host.TransferTimeout.Duration; d > 0 {
		r.timeout = 5 * d
	}

	dev, err := newDeviceEngine(cfg, r.devSim)
	if err != nil {
		return nil, err
	}
	dev.SetFaultHandler(r.fail)
	r.devSim.SetInterruptHandler(dev.HandleInterrupt)
	dev.Reset()
	r.dev = dev

	h, err := host.New(r.hostSim, r.hostSim, host.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	h.SetFaultHandler(r.fail)
	h.SetOnError(r.fail)
	h.SetOnConfigured(func(d *host.Device) {
		pkg.LogInfo(pkg.ComponentHost, "device configured", "device", d.String())
		r.current.finish(nil)
	})
	h.SetOnDisconnect(func(d *host.Device) {
		pkg.LogInfo(pkg.ComponentHost, "device disconnected", "device", d.String())
	})
	r.hostSim.SetInterruptHandler(h.HandleInterrupt)
	r.hostSim.EnableTrace(trace)
	h.Reset()
	r.host = h
	return r, nil
}

func (r *rig) fail(err error) { r.current.finish(err) }

// enumerate connects the device and waits for the host to configure it.
func (r *rig) enumerate(ctx context.Context, async bool) (*host.Device, error) {
	p := newPhase()
	r.current = p
	r.hostSim.Attach(sim.DevicePeer{Device: r.devSim}, hal.SpeedFull)
	if err := r.run(ctx, async, p); err != nil {
		return nil, fmt.Errorf("enumerate: %w", err)
	}
	return r.host.Device(), nil
}

// echo writes payload to out and reads the echoed packet back from in.
func (r *rig) echo(ctx context.Context, async bool, out, in *host.Endpoint, payload []byte) ([]byte, error) {
	p := newPhase()
	r.current = p
	var got []byte
	buf := make([]byte, in.MaxPacketSize())
	err := r.host.Transfer(out, payload, func(res host.Result) {
		if err := res.Err(); err != nil {
			p.finish(fmt.Errorf("OUT %s: %w", out, err))
			return
		}
		err := r.host.Transfer(in, buf, func(res host.Result) {
			got = append([]byte(nil), res.Data...)
			if err := res.Err(); err != nil {
				p.finish(fmt.Errorf("IN %s: %w", in, err))
				return
			}
			p.finish(nil)
		})
		if err != nil {
			p.finish(err)
		}
	})
	if err != nil {
		return nil, err
	}
	if err := r.run(ctx, async, p); err != nil {
		return nil, err
	}
	return got, nil
}

// run drives the host task loop and the bus until p finishes. In async
// mode the bus and the task loop run on separate goroutines the way the
// interrupt and the main loop run on hardware.
func (r *rig) run(ctx context.Context, async bool, p *phase) error {
	if !async {
		for i := 0; i < maxSteps && !p.finished(); i++ {
			task := r.host.Task()
			step := r.hostSim.Step()
			if !task && !step {
				break
			}
		}
		if !p.finished() {
			return errStalled
		}
		return p.err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.hostSim.Run(gctx, stepIdle) })
	g.Go(func() error { return r.host.Run(gctx) })
	g.Go(func() error {
		select {
		case <-p.done:
			return errFinished
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	if err := g.Wait(); !errors.Is(err, errFinished) {
		return err
	}
	return p.err
}
