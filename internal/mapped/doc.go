// Package mapped creates and opens shared memory-mapped files.
//
// A File pairs an os.File with its mmap'd region. CreateFile sizes a new file
// and maps it read-write shared; OpenFile maps an existing one. Regions are
// shared between processes that map the same path, which is how log buffers
// and the counters file are exchanged with the driver. Unsupported platforms
// return ErrUnsupported from both constructors.
package mapped
