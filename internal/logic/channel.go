package logic

import "time"

// Channel is a conditioned analog input: a filter feeding a comparator,
// sampled on its own cadence.
type Channel struct {
	filter   *Filter
	band     *Hysteresis
	interval time.Duration
	last     time.Time
	invert   bool
}

// NewChannel builds a channel seeded with first at time now.
// When invert is set the comparator sees the negated value, so "above"
// means the reading fell below lower and "below" that it rose above upper.
func NewChannel(window int, lower, upper float64, interval time.Duration, invert bool, first float64, now time.Time) *Channel {
	c := &Channel{
		filter:   NewFilter(window, first),
		interval: interval,
		last:     now,
		invert:   invert,
	}
	if invert {
		c.band = NewHysteresis(-upper, -lower, -first)
	} else {
		c.band = NewHysteresis(lower, upper, first)
	}
	return c
}

// Due reports whether more than one interval has elapsed since the last update.
func (c *Channel) Due(now time.Time) bool {
	return now.Sub(c.last) > c.interval
}

// Update filters sample, re-evaluates the band and returns its level.
func (c *Channel) Update(sample float64, now time.Time) bool {
	c.last = now
	v := c.filter.Update(sample)
	if c.invert {
		v = -v
	}
	return c.band.Update(v)
}

// Value returns the smoothed reading.
func (c *Channel) Value() float64 {
	return c.filter.Value()
}

// Above returns the current band level.
func (c *Channel) Above() bool {
	return c.band.Level()
}
