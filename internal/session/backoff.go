package session

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// linearBackOff waits step, 2*step, 3*step and so on, never longer than
// ceiling. A ceiling equal to step gives a fixed delay.
type linearBackOff struct {
	step    time.Duration
	ceiling time.Duration
	n       int
}

var _ backoff.BackOff = (*linearBackOff)(nil)

func newLinearBackOff(step, ceiling time.Duration) *linearBackOff {
	if ceiling < step {
		ceiling = step
	}
	return &linearBackOff{step: step, ceiling: ceiling}
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	d := b.step * time.Duration(b.n)
	if d > b.ceiling || d < 0 {
		return b.ceiling
	}
	return d
}

func (b *linearBackOff) Reset() { b.n = 0 }
