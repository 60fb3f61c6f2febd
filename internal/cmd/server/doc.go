// Package serverrun exposes a shared Run entrypoint used by the CLI to start
// the strand driver with its admin gRPC and HTTP servers, handling lifecycle
// and shutdown.
//
// Example:
//
//	opts := serverrun.Options{Dir: "./data", GRPCAddr: ":50051", HTTPAddr: ":8080", Config: config.Default()}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, opts)
package serverrun
