// Package logbuffer implements the shared log-buffer append protocol.
//
// # Overview
//
// A log is one contiguous region holding three equal power-of-two term
// buffers followed by a metadata section. Producers reserve space in the
// active term with an atomic fetch-add on that term's tail counter, stamp a
// frame header from the driver-supplied template, and publish the frame by
// storing its length with release semantics. Consumers observe frame lengths
// with acquire loads and treat zero as not-yet-visible. No locks, no
// syscalls on the append path.
//
// Layout
//
//	+----------------------------+
//	|           Term 0           |
//	+----------------------------+
//	|           Term 1           |
//	+----------------------------+
//	|           Term 2           |
//	+----------------------------+
//	|        Log Meta Data       |
//	+----------------------------+
//
// The pieces:
//   - frame.go: data frame header layout and alignment helpers
//   - descriptor.go: metadata section layout, accessors, position arithmetic
//   - buffers.go: mapping a log file into term buffers plus metadata
//   - header_writer.go: stamping headers from the default template
//   - appender.go: per-term atomic reservation, write, pad, fragmentation
//   - claim.go: zero-copy claim handles with commit/abort
//   - scanner.go: read-side frame iteration for tools and tests
package logbuffer
