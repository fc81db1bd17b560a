package session

import "time"

// clock maps wall time onto game time. With dilation 1 it is just the wall
// clock; above 1 the game clock runs faster, which lets an operator compress
// the five-minute turn cadence for demos without touching any rule.
type clock struct {
	base     time.Time
	dilation float64
}

func newClock(dilation float64) clock {
	if dilation <= 0 {
		dilation = 1
	}
	return clock{base: time.Now(), dilation: dilation}
}

func (c clock) Now() time.Time {
	if c.dilation == 1 {
		return time.Now()
	}
	return c.base.Add(time.Duration(float64(time.Since(c.base)) * c.dilation))
}

// scaledInterval shrinks the tick period to match the dilated clock so
// alert release and timer cadence keep their resolution in game time.
func scaledInterval(interval time.Duration, dilation float64) time.Duration {
	if dilation <= 1 {
		return interval
	}
	scaled := time.Duration(float64(interval) / dilation)
	if scaled < 50*time.Millisecond {
		scaled = 50 * time.Millisecond
	}
	return scaled
}
