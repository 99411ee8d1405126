// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package timespec

import "testing"

func TestAddSub(t *testing.T) {
	a := Timespec{Sec: 1, Nsec: 500000000}
	b := Timespec{Sec: 0, Nsec: 700000000}
	sum := Add(a, b)
	if sum.Sec != 2 || sum.Nsec != 200000000 {
		t.Fatalf("Add carried wrong: got %+v", sum)
	}
	diff := Sub(a, b)
	if diff.Sec != 0 || diff.Nsec != 800000000 {
		t.Fatalf("Sub borrowed wrong: got %+v", diff)
	}
}

func TestSubNegativeBorrow(t *testing.T) {
	a := Timespec{Sec: 1, Nsec: 100000000}
	b := Timespec{Sec: 0, Nsec: 900000000}
	diff := Sub(a, b)
	if diff.Sec != 0 || diff.Nsec != 200000000 {
		t.Fatalf("expected 0.2s, got %+v", diff)
	}
}

func TestSaturation(t *testing.T) {
	got := AddSaturate(Max, Timespec{Sec: 1})
	if got != Max {
		t.Fatalf("expected saturation at Max, got %+v", got)
	}
	got = SubSaturate(Min, Timespec{Sec: 1})
	if got != Min {
		t.Fatalf("expected saturation at Min, got %+v", got)
	}
}

func TestCmp(t *testing.T) {
	a := Timespec{Sec: 1, Nsec: 0}
	b := Timespec{Sec: 1, Nsec: 1}
	if !Less(a, b) {
		t.Fatalf("expected a < b")
	}
	if Cmp(a, a) != 0 {
		t.Fatalf("expected equal")
	}
}

func TestMulDivDouble(t *testing.T) {
	ts := Timespec{Sec: 10, Nsec: 0}
	half := MulDouble(ts, 0.5)
	if half.Sec != 5 {
		t.Fatalf("expected 5s, got %+v", half)
	}
	doubled := DivDouble(ts, 0.5)
	if doubled.Sec != 20 {
		t.Fatalf("expected 20s, got %+v", doubled)
	}
}

func TestMillisecondsRoundTrip(t *testing.T) {
	ts := FromMilliseconds(1234)
	if ts.Sec != 1 || ts.Nsec != 234000000 {
		t.Fatalf("unexpected decomposition: %+v", ts)
	}
	if ts.Milliseconds() != 1234 {
		t.Fatalf("expected 1234ms round-trip, got %d", ts.Milliseconds())
	}
}

func TestMillisecondsTruncatesSubMillisecondRemainder(t *testing.T) {
	ts := Timespec{Sec: 0, Nsec: 1999999}
	if ts.Milliseconds() != 1 {
		t.Fatalf("expected floor to 1ms, got %d", ts.Milliseconds())
	}
}
