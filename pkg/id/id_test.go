package id

import "testing"

func TestCorrelationIDsStrictlyIncrease(t *testing.T) {
	g := NewGenerator()
	prev := g.NextCorrelationID()
	for i := 0; i < 10_000; i++ {
		next := g.NextCorrelationID()
		if next <= prev {
			t.Fatalf("ids must strictly increase: %d then %d", prev, next)
		}
		prev = next
	}
}

func TestCorrelationIDsSurviveClockStall(t *testing.T) {
	saved := NowMs
	defer func() { NowMs = saved }()
	NowMs = func() int64 { return 1_000 }

	g := NewGenerator()
	a := g.NextCorrelationID()
	b := g.NextCorrelationID()
	if b <= a {
		t.Fatalf("stalled clock must not repeat ids: %d then %d", a, b)
	}
}

func TestSessionIDsDistinct(t *testing.T) {
	g := NewGenerator()
	seen := map[int32]bool{}
	for i := 0; i < 100; i++ {
		s := g.NextSessionID()
		if seen[s] {
			t.Fatalf("duplicate session id %d", s)
		}
		seen[s] = true
	}
}
