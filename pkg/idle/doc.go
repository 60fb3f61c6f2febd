// Package idle provides idle strategies for callers spinning on transient
// append results (back-pressure, admin action). The append path itself never
// blocks; publishers loop on the returned sentinel and idle between attempts.
package idle
