// Package counters manages the shared counters file.
//
// The file is an array of fixed 64-byte slots, one counter value per slot so
// concurrent writers never share a cache line. Slot 0 is a header holding the
// allocation cursor. The driver allocates slots (publication limits, consumer
// positions); clients read them through Position with acquire semantics and
// the driver advances them with release stores.
package counters
