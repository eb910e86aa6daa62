package gpu

import (
	"github.com/gogpu/gpucontext"
)

// DeviceHandle provides GPU device access from a host application.
//
// A host that already owns a device (a windowing framework, another
// renderer) implements this and passes it to NewWithProvider, so the
// Mandelbrot kernel dispatches on the shared device instead of creating
// its own.
//
// DeviceHandle is an alias for gpucontext.DeviceProvider, keeping full
// compatibility with the gpucontext ecosystem.
type DeviceHandle = gpucontext.DeviceProvider
