// Package clock provides wall-clock and simulated implementations of the
// protocol.Clock contract.
package clock

import (
	"context"
	"time"

	"github.com/barela/flowdeck/pkg/protocol"
)

// Real is the wall-clock implementation backed by the time package.
type Real struct{}

// NewReal creates a wall-clock Clock.
func NewReal() *Real {
	return &Real{}
}

func (Real) Now() time.Time {
	return time.Now().UTC()
}

func (Real) AfterFunc(d time.Duration, fn func()) protocol.Timer {
	return time.AfterFunc(d, fn)
}

func (Real) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
