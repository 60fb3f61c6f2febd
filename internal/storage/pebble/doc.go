// Package pebblestore wraps Pebble for the driver's registration store.
//
// The driver persists publication registrations here so a restarted driver
// re-attaches to the logs it created. Keys are small and scanned rarely; the
// wrapper keeps the fsync policy in one place and copies values out of
// Pebble's internal buffers.
package pebblestore
