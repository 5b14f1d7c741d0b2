package monitor

import (
	"context"
	"time"
)

// Clock abstracts time so tests can drive cycles without real delays.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is cancelled, whichever comes first.
	Sleep(ctx context.Context, d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
