// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package timespec provides signed seconds+nanoseconds arithmetic with
// saturating add/sub and double-precision multiply/divide, matching the
// sign-consistency rules a recorded session's delay and position math
// depends on.
package timespec

import "time"

const nsPerSec = int64(1e9)

// Timespec is a signed seconds+nanoseconds duration or point in time.
// Sign consistency holds: Sec and Nsec are both non-negative, both
// non-positive, or one of them is zero. Nsec is always in (-1e9, 1e9).
type Timespec struct {
	Sec  int64
	Nsec int64
}

// Zero is the zero-value Timespec.
var Zero = Timespec{}

// Max and Min bound the range the rest of this package saturates to,
// matching the original delay range: INT32_MAX seconds + .999s.
var (
	Max = Timespec{Sec: 2147483647, Nsec: 999000000}
	Min = Timespec{Sec: -2147483647, Nsec: -999000000}
)

// normalize restores sign-consistency and the |Nsec| < 1e9 invariant
// after raw arithmetic may have violated either.
func normalize(sec, nsec int64) Timespec {
	if nsec >= nsPerSec {
		sec += nsec / nsPerSec
		nsec %= nsPerSec
	} else if nsec <= -nsPerSec {
		sec += nsec / nsPerSec
		nsec %= nsPerSec
	}
	if sec > 0 && nsec < 0 {
		sec--
		nsec += nsPerSec
	} else if sec < 0 && nsec > 0 {
		sec++
		nsec -= nsPerSec
	}
	return Timespec{Sec: sec, Nsec: nsec}
}

// FromTime converts a time.Time's wall-clock value (seconds since the
// Unix epoch, plus its nanosecond remainder) to a Timespec.
func FromTime(t time.Time) Timespec {
	return Timespec{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// ToTime is the inverse of FromTime.
func (ts Timespec) ToTime() time.Time {
	return time.Unix(ts.Sec, ts.Nsec).UTC()
}

// Add returns the exact sum, without saturating.
func Add(a, b Timespec) Timespec {
	return normalize(a.Sec+b.Sec, a.Nsec+b.Nsec)
}

// Sub returns the exact difference a - b, without saturating.
func Sub(a, b Timespec) Timespec {
	return normalize(a.Sec-b.Sec, a.Nsec-b.Nsec)
}

// clamp saturates ts into [Min, Max].
func clamp(ts Timespec) Timespec {
	if Less(ts, Min) {
		return Min
	}
	if Less(Max, ts) {
		return Max
	}
	return ts
}

// AddSaturate is Add, capped at Min/Max instead of overflowing.
func AddSaturate(a, b Timespec) Timespec {
	return clamp(Add(a, b))
}

// SubSaturate is Sub, capped at Min/Max instead of overflowing.
func SubSaturate(a, b Timespec) Timespec {
	return clamp(Sub(a, b))
}

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func Cmp(a, b Timespec) int {
	switch {
	case a.Sec < b.Sec:
		return -1
	case a.Sec > b.Sec:
		return 1
	case a.Nsec < b.Nsec:
		return -1
	case a.Nsec > b.Nsec:
		return 1
	default:
		return 0
	}
}

// Less reports whether a < b.
func Less(a, b Timespec) bool { return Cmp(a, b) < 0 }

// IsZero reports whether ts is the zero timespec.
func (ts Timespec) IsZero() bool { return ts.Sec == 0 && ts.Nsec == 0 }

// toFloat converts to a double-precision seconds value, for the
// multiply/divide operations where exact integer arithmetic would
// overflow or lose the fractional part. Per the open question recorded
// in DESIGN.md, this floating conversion happens only at the edges
// (here, and when a rate limiter schedules a sleep) - not as the
// primary storage representation.
func (ts Timespec) toFloat() float64 {
	return float64(ts.Sec) + float64(ts.Nsec)/float64(nsPerSec)
}

func fromFloat(f float64) Timespec {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(nsPerSec))
	return clamp(normalize(sec, nsec))
}

// MulDouble returns ts * factor, computed in double precision and
// saturated to [Min, Max].
func MulDouble(ts Timespec, factor float64) Timespec {
	return fromFloat(ts.toFloat() * factor)
}

// DivDouble returns ts / divisor, computed in double precision and
// saturated to [Min, Max]. Divisor == 0 returns Max (or Min if ts is
// negative), mirroring a saturating divide-by-zero rather than
// panicking.
func DivDouble(ts Timespec, divisor float64) Timespec {
	if divisor == 0 {
		if ts.Sec < 0 || (ts.Sec == 0 && ts.Nsec < 0) {
			return Min
		}
		return Max
	}
	return fromFloat(ts.toFloat() / divisor)
}

// Milliseconds returns ts rounded down to whole milliseconds,
// truncating any sub-millisecond remainder. Used when formatting a
// timing DSL "+N" delay token; callers that need the full precision
// keep the original Timespec around instead of reconstructing it from
// this value.
func (ts Timespec) Milliseconds() int64 {
	msec := ts.Sec * 1000
	msec += ts.Nsec / 1000000
	return msec
}

// FromMilliseconds builds a Timespec from a millisecond count (used for
// integer "pos" fields and "+N" delay tokens when reading messages).
func FromMilliseconds(ms int64) Timespec {
	sec := ms / 1000
	rem := ms % 1000
	return Timespec{Sec: sec, Nsec: rem * 1000000}
}
