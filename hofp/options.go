package hofp

import (
	"context"
	"runtime"
)

// Options encapsulates the available options which can be used when creating a worker pool.
type Options struct {
	// Context used by the worker pool, this context being cancelled tears the pool down.
	Context context.Context

	// Size dictates the number of goroutines created to process incoming functions. Defaults to the number of vCPUs.
	Size int

	// BufferMultiplier is the multiplier used when determining the buffered function channel size. Defaults to one,
	// meaning 'Size' functions may be queued without blocking.
	BufferMultiplier int

	// LogPrefix is the prefix used when logging errors which occur once teardown has already begun. Defaults to
	// '(HOFP)'.
	LogPrefix string
}

func (o *Options) defaults() {
	if o.Context == nil {
		o.Context = context.Background()
	}

	if o.Size == 0 {
		o.Size = runtime.NumCPU()
	}

	if o.BufferMultiplier == 0 {
		o.BufferMultiplier = 1
	}

	if o.LogPrefix == "" {
		o.LogPrefix = "(HOFP)"
	}
}
