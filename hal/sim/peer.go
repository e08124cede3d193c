package sim

import "github.com/ardnew/picousb/pkg"

// DevicePeer connects a host-mode controller to a device-mode controller,
// so the host and device engines can run against each other. Transactions
// addressed to anything but the device's current address time out.
type DevicePeer struct {
	Device *Controller
}

// Reset implements Peer.
func (p DevicePeer) Reset() { p.Device.BusReset() }

// Setup implements Peer.
func (p DevicePeer) Setup(address, endpoint uint8, setup [8]byte) error {
	if address != p.Device.Address() || endpoint != 0 {
		return pkg.ErrTimeout
	}
	return p.Device.sendSetupBytes(setup)
}

// In implements Peer.
func (p DevicePeer) In(address, endpoint uint8) (uint8, []byte, error) {
	if address != p.Device.Address() {
		return 0, nil, pkg.ErrTimeout
	}
	pkt, err := p.Device.In(endpoint)
	return pkt.PID, pkt.Data, err
}

// Out implements Peer.
func (p DevicePeer) Out(address, endpoint, pid uint8, data []byte) error {
	if address != p.Device.Address() {
		return pkg.ErrTimeout
	}
	return p.Device.Out(endpoint, pid, data)
}
