// Package resource bounds the memory and I/O bandwidth a block cache may use.
//
//   - Memory: the payload arena of a cache is reserved once at construction
//     (non-blocking, fail-fast with ErrMemoryLimitExceeded).
//   - IO: a token bucket limits device transfer throughput in bytes per second;
//     see device.Throttled.
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes:   64 << 20,
//	    IOLimitBytesPerSec: 32 << 20,
//	})
//
// All methods are safe for concurrent use, and a nil *Controller is valid:
// every method becomes a no-op.
package resource
