package client

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	grpcserver "github.com/rzbill/strand/internal/server/grpc"
)

// NewAdminCommand constructs the `admin` command group.
func NewAdminCommand() *cobra.Command {
	adminCmd := &cobra.Command{Use: "admin", Short: "Driver admin operations"}
	adminCmd.AddCommand(
		newAdminPubsCommand(),
		newAdminCountersCommand(),
		newAdminCheckCommand(),
	)
	return adminCmd
}

func withAdminClient(fn func(ctx context.Context, c *grpcserver.AdminClient) (*structpb.Struct, error)) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := dialGRPCContext(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	res, err := fn(ctx, grpcserver.NewAdminClient(conn))
	if err != nil {
		return err
	}
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(res)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func newAdminPubsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pubs",
		Short: "List live publications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAdminClient(func(ctx context.Context, c *grpcserver.AdminClient) (*structpb.Struct, error) {
				return c.ListPublications(ctx)
			})
		},
	}
}

func newAdminCountersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "counters",
		Short: "Show publication limit counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAdminClient(func(ctx context.Context, c *grpcserver.AdminClient) (*structpb.Struct, error) {
				return c.GetCounters(ctx)
			})
		},
	}
}

func newAdminCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check driver health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAdminClient(func(ctx context.Context, c *grpcserver.AdminClient) (*structpb.Struct, error) {
				return c.Check(ctx)
			})
		},
	}
}
