// Package id generates correlation and session identifiers.
//
// Correlation ids are 64-bit, time-prefixed and strictly increasing per
// process; the driver uses them to key registrations. Session ids are 32-bit
// values derived from the same generator, distinct per driver run.
package id
