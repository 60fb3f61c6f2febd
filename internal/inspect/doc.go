// Package inspect decodes log buffer files offline: it walks every
// partition, yields published frames in stream order and filters them with
// CEL expressions over the frame header fields. Used by the `strand log
// scan` command and by tests that need a subscriber's view of a log.
package inspect
