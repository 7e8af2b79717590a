package sim

import (
	"context"
	"sync/atomic"
)

// Aborter is polled by long-running computations. Once ShouldAbort returns
// true the computation stops at its next check and reports StatusAborted.
type Aborter interface {
	ShouldAbort() bool
}

// FlagAborter is an Aborter that can be tripped from any goroutine.
type FlagAborter struct {
	flag atomic.Bool
}

// Abort requests cancellation.
func (a *FlagAborter) Abort() { a.flag.Store(true) }

func (a *FlagAborter) ShouldAbort() bool { return a.flag.Load() }

// ShouldStop reports whether the context is done or the aborter (which may
// be nil) asks to stop.
func ShouldStop(ctx context.Context, aborter Aborter) bool {
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	return aborter != nil && aborter.ShouldAbort()
}
