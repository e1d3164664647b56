package device

import (
	"context"
	"errors"
	"sync"
)

// ErrInjected is the default error of a Faulty device.
var ErrInjected = errors.New("device: injected fault")

// Fault defines specific failure behavior.
type Fault struct {
	FailReads  int // Fail the next n reads. -1 fails every read.
	FailWrites int // Fail the next n writes. -1 fails every write.
	FailOnSync bool
	Err        error // Returned for injected failures; ErrInjected if nil.
}

// Faulty wraps a Device and injects errors, per block or for all blocks.
type Faulty struct {
	Device

	mu      sync.Mutex
	rules   map[uint32]Fault
	Default Fault
}

// NewFaulty wraps d. Without rules it passes everything through.
func NewFaulty(d Device) *Faulty {
	return &Faulty{
		Device: d,
		rules:  make(map[uint32]Fault),
	}
}

// AddRule sets the fault for one block. It replaces the default for that
// block.
func (f *Faulty) AddRule(block uint32, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[block] = fault
}

// SetDefault sets the fault for blocks without a rule.
func (f *Faulty) SetDefault(fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Default = fault
}

func (f *Faulty) ReadBlock(ctx context.Context, block uint32, p []byte) error {
	if err := f.take(block, func(ft *Fault) *int { return &ft.FailReads }); err != nil {
		return err
	}
	return f.Device.ReadBlock(ctx, block, p)
}

func (f *Faulty) WriteBlock(ctx context.Context, block uint32, p []byte) error {
	if err := f.take(block, func(ft *Fault) *int { return &ft.FailWrites }); err != nil {
		return err
	}
	return f.Device.WriteBlock(ctx, block, p)
}

// Sync fails if the default fault says so and forwards otherwise.
func (f *Faulty) Sync() error {
	f.mu.Lock()
	fault := f.Default
	f.mu.Unlock()

	if fault.FailOnSync {
		return fault.err()
	}
	return Sync(f.Device)
}

// Unwrap returns the wrapped device.
func (f *Faulty) Unwrap() Device {
	return f.Device
}

// take consumes one failure from the counter picked by field and returns
// the injected error, or nil if the transfer should go through.
func (f *Faulty) take(block uint32, field func(*Fault) *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault, ok := f.rules[block]
	if !ok {
		fault = f.Default
	}

	n := field(&fault)
	switch {
	case *n == 0:
		return nil
	case *n > 0:
		*n--
	}

	if ok {
		f.rules[block] = fault
	} else {
		f.Default = fault
	}
	return fault.err()
}

func (ft Fault) err() error {
	if ft.Err != nil {
		return ft.Err
	}
	return ErrInjected
}
