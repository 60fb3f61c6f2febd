package client

import (
	"context"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// grpcAddrFromEnv returns the admin gRPC address from STRAND_GRPC or a
// default.
func grpcAddrFromEnv() string {
	if addr := os.Getenv("STRAND_GRPC"); addr != "" {
		return addr
	}
	return "127.0.0.1:50051"
}

// dialGRPCContext dials the admin endpoint with insecure transport for
// local/dev use.
func dialGRPCContext(ctx context.Context) (*grpc.ClientConn, error) {
	return grpc.DialContext(ctx, grpcAddrFromEnv(),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
}
