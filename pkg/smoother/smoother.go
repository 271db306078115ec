// Package smoother implements a first-order low-pass filter used by the
// capture scheduler to estimate round-trip capture delay.
package smoother

import (
	"math"
	"time"
)

// Delay is a first-order IIR smoother: y <- y + (x - y) * (1 - exp(-dt/tau)).
// It converges toward the input with a time constant of tau, so a single
// noisy round-trip sample doesn't whipsaw the scheduler's notion of delay.
type Delay struct {
	tau   time.Duration
	value time.Duration
}

// New returns a Delay smoother with the given time constant, starting from
// a zero estimate. A tau of zero or less makes every Update an immediate
// jump to the new sample (no smoothing), which is a valid, if degenerate,
// configuration.
func New(tau time.Duration) *Delay {
	return &Delay{tau: tau}
}

// Update feeds a new sample and returns the smoothed value. The filter
// starts at zero, so the very first sample is itself filtered rather than
// taken as the initial value: a single slow outlier right after startup
// gets pulled toward zero by the same weight as any later sample, instead
// of setting the baseline the scheduler measures every later delay against.
func (d *Delay) Update(sample time.Duration) time.Duration {
	if d.tau <= 0 {
		d.value = sample
		return d.value
	}

	// y += (x - y) * (1 - exp(-dt/tau)). dt is the elapsed time since the
	// last capture cycle; the scheduler calls Update once per cycle with
	// dt == the round-trip it just measured, so sample doubles as both the
	// input and the interval.
	weight := 1 - math.Exp(-float64(sample)/float64(d.tau))
	delta := float64(sample - d.value)
	d.value += time.Duration(delta * weight)
	return d.value
}

// Value returns the current smoothed estimate without feeding a new sample.
func (d *Delay) Value() time.Duration {
	return d.value
}
