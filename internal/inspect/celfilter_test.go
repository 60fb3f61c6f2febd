package inspect

import (
	"testing"

	"github.com/rzbill/strand/internal/logbuffer"
)

func TestFilterDisabledMatchesEverything(t *testing.T) {
	f, err := NewFilter("   ")
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}
	if !f.Eval(FrameInfo{}) {
		t.Fatalf("disabled filter should match")
	}
}

func TestFilterRejectsBadExpression(t *testing.T) {
	if _, err := NewFilter("stream_position +"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := NewFilter("no_such_field > 0"); err == nil {
		t.Fatalf("expected check error for unknown variable")
	}
}

func TestFilterOverFrameFields(t *testing.T) {
	frame := FrameInfo{
		Frame: logbuffer.Frame{
			FrameLength:   132,
			Flags:         logbuffer.FlagsUnfragmented,
			Type:          logbuffer.TypeData,
			SessionID:     100,
			StreamID:      7,
			TermID:        5,
			TermOffset:    64,
			ReservedValue: 0xDEAD,
			Payload:       []byte("order accepted"),
		},
		StreamPosition: 64,
	}

	cases := []struct {
		expr string
		want bool
	}{
		{"stream_id == 7 && session_id == 100", true},
		{"reserved_value == 57005", true},
		{"is_pad", false},
		{"stream_position >= 64 && length > 128", true},
		{"text.contains('accepted')", true},
		{"flags == 192", true},
		{"term_id == 4", false},
	}
	for _, tc := range cases {
		f, err := NewFilter(tc.expr)
		if err != nil {
			t.Fatalf("compile %q: %v", tc.expr, err)
		}
		if got := f.Eval(frame); got != tc.want {
			t.Fatalf("eval %q = %v, want %v", tc.expr, got, tc.want)
		}
	}
}
