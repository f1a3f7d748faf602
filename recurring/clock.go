package recurring

import "time"

// =============================================================================
// CLOCK - Injected time source
// =============================================================================

// Clock supplies the current instant. Every operation needing "today" takes
// a Clock instead of reading ambient system time, so the engine is
// deterministically testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }
