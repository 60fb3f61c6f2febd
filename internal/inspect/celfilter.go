package inspect

import (
	"strings"

	"github.com/google/cel-go/cel"
)

// Filter wraps a compiled CEL program evaluated per frame. When the
// expression is empty the filter is disabled and Eval always returns true.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// NewFilter compiles expr against the frame header fields.
func NewFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		// "type" is a built-in CEL identifier, so the frame type is exposed as
		// frame_type.
		cel.Variable("frame_type", cel.IntType),
		cel.Variable("flags", cel.IntType),
		cel.Variable("term_id", cel.IntType),
		cel.Variable("term_offset", cel.IntType),
		cel.Variable("session_id", cel.IntType),
		cel.Variable("stream_id", cel.IntType),
		cel.Variable("stream_position", cel.IntType),
		cel.Variable("length", cel.IntType),
		cel.Variable("reserved_value", cel.IntType),
		cel.Variable("is_pad", cel.BoolType),
		// Payload as text for substring filters
		cel.Variable("text", cel.StringType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Eval evaluates the expression against one frame. When disabled, returns
// true. Evaluation errors count as no-match.
func (f Filter) Eval(frame FrameInfo) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"frame_type":      int64(frame.Type),
		"flags":           int64(frame.Flags),
		"term_id":         int64(frame.TermID),
		"term_offset":     int64(frame.TermOffset),
		"session_id":      int64(frame.SessionID),
		"stream_id":       int64(frame.StreamID),
		"stream_position": frame.StreamPosition,
		"length":          int64(frame.FrameLength),
		"reserved_value":  frame.ReservedValue,
		"is_pad":          frame.IsPadding(),
		"text":            string(frame.Payload),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
