package graphics

import "time"

// FrameLimiter caps the frame rate.
type FrameLimiter struct {
	next time.Time
}

// Wait blocks until the next frame is due at limit frames per second. A
// limit of zero or less disables the cap. It sleeps most of the interval
// and spins for the last 200µs.
func (f *FrameLimiter) Wait(limit int) {
	if limit <= 0 {
		f.next = time.Time{}
		return
	}
	target := time.Second / time.Duration(limit)
	if f.next.IsZero() {
		f.next = time.Now().Add(target)
	} else {
		f.next = f.next.Add(target)
	}

	for {
		remaining := time.Until(f.next)
		if remaining <= 0 {
			break
		}
		if remaining > 200*time.Microsecond {
			time.Sleep(remaining - 200*time.Microsecond)
		}
	}

	// resync after a hitch instead of rushing to catch up
	if late := -time.Until(f.next); late > target {
		f.next = time.Now().Add(target)
	}
}
