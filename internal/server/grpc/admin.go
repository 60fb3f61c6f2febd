package grpcserver

import (
	"context"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rzbill/strand/internal/driver"
)

// AdminServiceName is the fully qualified gRPC service name.
const AdminServiceName = "strand.v1.Admin"

// Admin message bodies are structpb.Struct values, so the service needs no
// generated code and protojson renders responses directly in the CLI.
type adminServer interface {
	Check(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListPublications(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetCounters(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type adminSvc struct {
	drv *driver.Driver
}

func (s *adminSvc) Check(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"status": "ok"})
}

func (s *adminSvc) ListPublications(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	pubs := s.drv.ListPublications()
	list := make([]any, 0, len(pubs))
	for _, p := range pubs {
		dests := make([]any, 0, len(p.Destinations))
		for _, d := range p.Destinations {
			dests = append(dests, d)
		}
		// Registration ids exceed float64 precision, so they travel as
		// strings like protojson renders int64 fields.
		list = append(list, map[string]any{
			"registrationId": strconv.FormatInt(p.RegistrationID, 10),
			"channel":        p.Channel,
			"streamId":       p.StreamID,
			"sessionId":      p.SessionID,
			"initialTermId":  p.InitialTermID,
			"logFileName":    p.LogFileName,
			"position":       p.Position,
			"limit":          p.Limit,
			"connected":      p.Connected,
			"subscribers":    p.Subscribers,
			"destinations":   dests,
		})
	}
	return structpb.NewStruct(map[string]any{"publications": list})
}

func (s *adminSvc) GetCounters(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	snapshot := s.drv.CountersSnapshot()
	counters := make(map[string]any, len(snapshot))
	for regID, limit := range snapshot {
		counters[strconv.FormatInt(regID, 10)] = limit
	}
	return structpb.NewStruct(map[string]any{"counters": counters})
}

func adminUnaryHandler(
	method func(adminServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
	fullMethod string,
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(adminServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv.(adminServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*adminServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Check",
			Handler:    adminUnaryHandler(adminServer.Check, "/"+AdminServiceName+"/Check"),
		},
		{
			MethodName: "ListPublications",
			Handler:    adminUnaryHandler(adminServer.ListPublications, "/"+AdminServiceName+"/ListPublications"),
		},
		{
			MethodName: "GetCounters",
			Handler:    adminUnaryHandler(adminServer.GetCounters, "/"+AdminServiceName+"/GetCounters"),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "strand/v1/admin.proto",
}

// AdminClient invokes the admin service over an established connection.
type AdminClient struct {
	conn grpc.ClientConnInterface
}

// NewAdminClient wraps conn.
func NewAdminClient(conn grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{conn: conn}
}

func (c *AdminClient) invoke(ctx context.Context, method string) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+AdminServiceName+"/"+method, &structpb.Struct{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Check reports server health.
func (c *AdminClient) Check(ctx context.Context) (*structpb.Struct, error) {
	return c.invoke(ctx, "Check")
}

// ListPublications snapshots every live registration.
func (c *AdminClient) ListPublications(ctx context.Context) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListPublications")
}

// GetCounters reports the limit counter value per registration.
func (c *AdminClient) GetCounters(ctx context.Context) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetCounters")
}
