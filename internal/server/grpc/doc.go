// Package grpcserver hosts the driver's admin gRPC service: health check,
// publication listing and counter snapshots.
//
// Messages are structpb.Struct values rather than generated types, so the
// service descriptor is registered by hand and protojson renders responses
// directly in the CLI.
//
// Example:
//
//	drv, _ := driver.Open(driver.Options{Dir: "./data"})
//	s := grpcserver.New(drv)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":50051")
package grpcserver
