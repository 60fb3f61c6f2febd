package grpcserver

import (
	"context"
	"net"

	"google.golang.org/grpc"

	"github.com/rzbill/strand/internal/driver"
)

// Server owns the gRPC server instance hosting the admin service.
type Server struct {
	drv  *driver.Driver
	grpc *grpc.Server
	lis  net.Listener
}

// New constructs a gRPC server and registers the admin service.
func New(drv *driver.Driver, opts ...grpc.ServerOption) *Server {
	s := &Server{drv: drv, grpc: grpc.NewServer(opts...)}
	s.grpc.RegisterService(&adminServiceDesc, &adminSvc{drv: drv})
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
