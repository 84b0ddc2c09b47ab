package sleeper

import (
	"time"
)

// exponentialBackoffSleeper doubles the sleep duration on every Sleep,
// never exceeding the maximum.
type exponentialBackoffSleeper struct {
	initial       time.Duration
	max           time.Duration
	sleepDuration time.Duration

	sleep func(time.Duration)
}

// NewExponentialSleeper creates a sleeper starting at initial and capped at max.
// A max below initial disables the cap.
func NewExponentialSleeper(initial, max time.Duration) (*exponentialBackoffSleeper, error) {
	return &exponentialBackoffSleeper{
		initial:       initial,
		max:           max,
		sleepDuration: initial,
		sleep:         time.Sleep,
	}, nil
}

// Sleep
func (e *exponentialBackoffSleeper) Sleep() {
	e.sleep(e.sleepDuration)

	e.sleepDuration += e.sleepDuration
	if e.max >= e.initial && e.sleepDuration > e.max {
		e.sleepDuration = e.max
	}
}

// Reset
func (e *exponentialBackoffSleeper) Reset() {
	e.sleepDuration = e.initial
}
