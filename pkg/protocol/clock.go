package protocol

import (
	"context"
	"time"
)

// Timer is a pending callback armed through a Clock.
type Timer interface {
	// Stop cancels the pending callback. It reports whether the callback was
	// prevented from firing.
	Stop() bool
}

// Clock abstracts the wall clock and timer arming so schedulers and the
// engine's step waits can be tested with simulated time instead of sleeping.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer

	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration)
}
