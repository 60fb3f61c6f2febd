// Package client implements the publisher side of the data plane: the
// Publication append API over a shared log, and the Conductor that mediates
// between publications and the driver.
//
// A Publication is safe for any number of concurrent goroutines; producers
// synchronise only through the log's tail counters and active partition
// index. Offer and TryClaim never block and never log: they return a new
// stream position or a negative sentinel (see errors.go), and the caller
// chooses an idle strategy around retries. Precondition violations surface as
// Go errors, never as sentinels.
package client
