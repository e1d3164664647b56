package device

import (
	"context"

	"github.com/hupe1980/bcache/resource"
)

type throttled struct {
	Device
	rc *resource.Controller
}

// Throttled bounds the transfer throughput of d by the I/O budget of rc.
// Each transfer is charged one block. A nil controller leaves d unthrottled.
func Throttled(d Device, rc *resource.Controller) Device {
	if rc == nil {
		return d
	}
	return &throttled{Device: d, rc: rc}
}

func (t *throttled) ReadBlock(ctx context.Context, block uint32, p []byte) error {
	if err := t.rc.AcquireIO(ctx, len(p)); err != nil {
		return err
	}
	return t.Device.ReadBlock(ctx, block, p)
}

func (t *throttled) WriteBlock(ctx context.Context, block uint32, p []byte) error {
	if err := t.rc.AcquireIO(ctx, len(p)); err != nil {
		return err
	}
	return t.Device.WriteBlock(ctx, block, p)
}

// Sync forwards to the wrapped device.
func (t *throttled) Sync() error {
	return Sync(t.Device)
}

// Unwrap returns the wrapped device.
func (t *throttled) Unwrap() Device {
	return t.Device
}
