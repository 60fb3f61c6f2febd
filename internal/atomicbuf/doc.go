// Package atomicbuf provides typed and atomic access to raw byte regions.
//
// # Overview
//
// A Buffer wraps a []byte (heap-allocated or mmap-backed) and exposes plain
// little-endian accessors alongside atomic variants with acquire/release
// semantics. It is the substrate the log-buffer protocol is written against:
// tail counters are mutated with GetAndAddInt64/CompareAndSetInt64, frame
// lengths are published with PutInt32Ordered and observed with
// GetInt32Volatile.
//
// Atomic accessors require naturally aligned offsets (4 bytes for 32-bit,
// 8 bytes for 64-bit). Multi-byte plain accessors use little-endian byte
// order, matching the on-disk and on-wire frame layout; atomic accessors use
// native order and therefore assume a little-endian target (amd64/arm64),
// the same assumption the shared-memory layout itself makes.
package atomicbuf
