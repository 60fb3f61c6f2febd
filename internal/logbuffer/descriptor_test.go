package logbuffer

import "testing"

func TestPositionRoundTrip(t *testing.T) {
	const termLength = 64 * 1024
	shift := PositionBitsToShift(termLength)
	if shift != 16 {
		t.Fatalf("shift for 64KiB: got %d", shift)
	}

	cases := []struct {
		initialTermID int32
		termID        int32
		termOffset    int32
	}{
		{0, 0, 0},
		{0, 0, 1024},
		{0, 5, 4096},
		{100, 103, 32 * 1024},
		{-5, -3, 64},
		{2147480000, 2147480002, 128},
	}
	for _, c := range cases {
		pos := ComputePosition(c.termID, c.termOffset, shift, c.initialTermID)
		if got := ComputeTermIDFromPosition(pos, shift, c.initialTermID); got != c.termID {
			t.Fatalf("termID round trip: initial=%d termID=%d got %d", c.initialTermID, c.termID, got)
		}
		if got := ComputeTermOffsetFromPosition(pos, shift); got != c.termOffset {
			t.Fatalf("termOffset round trip: termOffset=%d got %d", c.termOffset, got)
		}
	}
}

func TestComputeTermBeginPosition(t *testing.T) {
	shift := PositionBitsToShift(64 * 1024)
	if got := ComputeTermBeginPosition(3, shift, 1); got != 2*64*1024 {
		t.Fatalf("term begin position: got %d", got)
	}
}

func TestCheckTermLength(t *testing.T) {
	if err := CheckTermLength(64 * 1024); err != nil {
		t.Fatalf("64KiB should be valid: %v", err)
	}
	if err := CheckTermLength(32 * 1024); err == nil {
		t.Fatalf("below minimum should be rejected")
	}
	if err := CheckTermLength(65 * 1024); err == nil {
		t.Fatalf("non power of two should be rejected")
	}
	if err := CheckTermLength(1 << 30); err != nil {
		t.Fatalf("1GiB should be valid: %v", err)
	}
}

func TestIndexByTerm(t *testing.T) {
	if got := IndexByTerm(7, 7); got != 0 {
		t.Fatalf("same term: got %d", got)
	}
	if got := IndexByTerm(7, 8); got != 1 {
		t.Fatalf("next term: got %d", got)
	}
	if got := IndexByTerm(7, 10); got != 0 {
		t.Fatalf("wrap after three: got %d", got)
	}
	if got := NextPartitionIndex(2); got != 0 {
		t.Fatalf("next partition wraps: got %d", got)
	}
}

func TestTailUnpacking(t *testing.T) {
	rawTail := int64(9)<<32 | 4096
	if got := TailTermID(rawTail); got != 9 {
		t.Fatalf("tail term id: got %d", got)
	}
	if got := TailTermOffset(rawTail, 64*1024); got != 4096 {
		t.Fatalf("tail offset: got %d", got)
	}
	overflowed := int64(9)<<32 | (64*1024 + 512)
	if got := TailTermOffset(overflowed, 64*1024); got != 64*1024 {
		t.Fatalf("tail offset should clamp to term length: got %d", got)
	}
}

func TestLogLengthRoundTrip(t *testing.T) {
	const termLength = 128 * 1024
	logLength := ComputeLogLength(termLength)
	if got := ComputeTermLength(logLength); got != termLength {
		t.Fatalf("term length round trip: got %d", got)
	}
}

func TestAlign(t *testing.T) {
	if got := Align(33, 32); got != 64 {
		t.Fatalf("align 33: got %d", got)
	}
	if got := Align(64, 32); got != 64 {
		t.Fatalf("align exact: got %d", got)
	}
	if got := Align(0, 32); got != 0 {
		t.Fatalf("align zero: got %d", got)
	}
}
