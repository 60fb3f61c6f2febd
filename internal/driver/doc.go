// Package driver implements the embedded shared-memory driver.
//
// # Overview
//
// The driver owns the lifecycle of every log: it creates and initialises log
// files, allocates counters, advances publication limits ahead of the slowest
// subscriber, stamps status-message timestamps that publishers use for
// liveness, and zeroes the partition two ahead after a rotation. Publishers
// only ever touch the shared regions; all control-plane traffic lands here.
//
// Registrations persist in a Pebble store so a restarted driver re-attaches
// to the logs it created. The admin servers (internal/server) read their
// state through ListPublications and CountersSnapshot.
//
// Network transport is out of scope; this driver serves same-host publishers
// and subscribers over mapped files.
package driver
