// Package host implements the host role of the RP2040 USB transfer engine
// for one directly attached full- or low-speed device.
//
// Work is split between two contexts. [Host.HandleInterrupt] runs as the
// USBCTRL_IRQ handler; it acknowledges the controller and queues an
// [Event]. [Host.Task], or [Host.Run] in its own goroutine, drains the
// queue and does everything else: enumeration, control transfer stages,
// data toggles and completion callbacks.
//
//	h, err := host.New(bus, cpu, host.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	h.SetOnConfigured(func(d *host.Device) {
//		ep, _ := d.Endpoint(0x82)
//		h.Transfer(ep, make([]byte, 64), func(r host.Result) { ... })
//	})
//	bus.SetInterruptHandler(h.HandleInterrupt)
//	h.Reset()
//	h.Run(ctx)
//
// Bulk endpoints and control transfers share the EPX hardware endpoint,
// so only one of them is in flight at a time. Interrupt endpoints are
// bound to the controller's polled endpoint slots.
package host
