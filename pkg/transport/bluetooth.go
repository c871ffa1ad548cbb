package transport

import "context"

// l2capDialer opens an L2CAP channel to a Bluetooth peer. No ecosystem
// library in the retrieved corpus implements L2CAP for this platform
// target, so production code is wired to stubL2CAPDialer, which always
// reports ErrBluetoothUnavailable. The interface exists so a real backend
// can be substituted without changing callers.
type l2capDialer interface {
	dial(ctx context.Context, addr string) (Transport, error)
	listen(addr string) (l2capListener, error)
}

// l2capListener mirrors Listener for the Bluetooth backend.
type l2capListener interface {
	accept(ctx context.Context) (Transport, error)
	close() error
}

type stubL2CAPDialer struct{}

func (stubL2CAPDialer) dial(ctx context.Context, addr string) (Transport, error) {
	return nil, ErrBluetoothUnavailable
}

func (stubL2CAPDialer) listen(addr string) (l2capListener, error) {
	return nil, ErrBluetoothUnavailable
}

// defaultL2CAPDialer is the dialer production code uses. Tests may
// substitute a fake satisfying l2capDialer to exercise Manager's
// Bluetooth-path selection logic without a real adapter.
var defaultL2CAPDialer l2capDialer = stubL2CAPDialer{}
