// Package client provides the `strand` command-line client.
//
// The CLI talks to the driver's admin gRPC endpoint, decodes log buffer
// files offline, and runs a local publisher benchmark. It is primarily
// intended for developers and operators.
//
// # Address configuration
//
// The gRPC address is read from the STRAND_GRPC environment variable
// (default 127.0.0.1:50051).
//
// Usage
//
//	strand admin pubs
//	strand admin counters
//
//	strand log scan /dev/shm/strand/logs/123.logbuffer
//	strand log scan 123.logbuffer --filter "stream_id == 7 && !is_pad"
//	strand log scan 123.logbuffer --filter "text.contains('order')"
//
//	strand bench pub --messages 1000000 --length 256 --term-length 16M
package client
