package device

import "github.com/ardnew/picousb/pkg"

// Handler receives transfer completions for an endpoint. The set of
// handlers is closed: Echo and Discard for data endpoints, and the
// control handlers the device installs on endpoint 0.
type Handler interface {
	// transferDone runs when a transfer on ep completes. data holds what
	// an OUT endpoint received and is only valid during the call.
	transferDone(d *Device, ep *Endpoint, data []byte)
	// configured runs when the endpoint becomes usable after
	// SET_CONFIGURATION or a cleared halt.
	configured(d *Device, ep *Endpoint)
}

// Echo sends every packet received on Out back to the host on In. Out is
// re-armed once the echoed packet has been collected.
type Echo struct {
	Out uint8
	In  uint8
}

func (e Echo) transferDone(d *Device, ep *Endpoint, data []byte) {
	if ep.IsIn() {
		if out, ok := d.reg.Lookup(e.Out); ok && !out.halted {
			if err := d.Receive(out); err != nil {
				pkg.LogWarn(pkg.ComponentEndpoint, "echo re-arm failed", "error", err)
			}
		}
		return
	}
	in, ok := d.reg.Lookup(e.In)
	if !ok || in.halted {
		pkg.LogWarn(pkg.ComponentEndpoint, "echo dropped",
			"endpoint", ep.String(), "len", len(data))
		return
	}
	n := len(data)
	if n > int(in.MaxPacketSize()) {
		n = int(in.MaxPacketSize())
	}
	if err := d.StartTransfer(in, data, n); err != nil {
		pkg.LogWarn(pkg.ComponentEndpoint, "echo failed", "error", err)
	}
}

func (e Echo) configured(d *Device, ep *Endpoint) {
	if ep.IsIn() {
		return
	}
	if err := d.Receive(ep); err != nil {
		pkg.LogWarn(pkg.ComponentEndpoint, "arm failed", "endpoint", ep.String(), "error", err)
	}
}

// Discard accepts and drops everything received on an OUT endpoint.
type Discard struct{}

func (Discard) transferDone(d *Device, ep *Endpoint, _ []byte) {
	if !ep.IsIn() {
		Discard{}.configured(d, ep)
	}
}

func (Discard) configured(d *Device, ep *Endpoint) {
	if ep.IsIn() {
		return
	}
	if err := d.Receive(ep); err != nil {
		pkg.LogWarn(pkg.ComponentEndpoint, "arm failed", "endpoint", ep.String(), "error", err)
	}
}
