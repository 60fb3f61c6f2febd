package client

import (
	"fmt"
	"os"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cobra"

	strandclient "github.com/rzbill/strand/internal/client"
	"github.com/rzbill/strand/internal/config"
	"github.com/rzbill/strand/internal/driver"
	"github.com/rzbill/strand/pkg/idle"
)

// NewBenchCommand constructs the `bench` command group.
func NewBenchCommand() *cobra.Command {
	benchCmd := &cobra.Command{Use: "bench", Short: "Benchmarks"}
	benchCmd.AddCommand(newBenchPubCommand())
	return benchCmd
}

func newBenchPubCommand() *cobra.Command {
	pubCmd := &cobra.Command{
		Use:   "pub",
		Short: "Throughput loop against an in-process driver",
		RunE: func(cmd *cobra.Command, _ []string) error {
			messages, _ := cmd.Flags().GetInt("messages")
			length, _ := cmd.Flags().GetInt("length")
			termFlag, _ := cmd.Flags().GetString("term-length")
			mtuFlag, _ := cmd.Flags().GetString("mtu")

			cfg := config.Default()
			if termFlag != "" {
				n, err := bytefmt.ToBytes(termFlag)
				if err != nil {
					return fmt.Errorf("invalid --term-length: %w", err)
				}
				cfg.TermLength = int32(n)
			}
			if mtuFlag != "" {
				n, err := bytefmt.ToBytes(mtuFlag)
				if err != nil {
					return fmt.Errorf("invalid --mtu: %w", err)
				}
				cfg.MTULength = int32(n)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runBenchPub(messages, length, cfg)
		},
	}
	pubCmd.Flags().Int("messages", 1_000_000, "Messages to publish")
	pubCmd.Flags().Int("length", 256, "Payload length in bytes")
	pubCmd.Flags().String("term-length", "16M", "Term buffer length (suffixed: 64K, 16M)")
	pubCmd.Flags().String("mtu", "4K", "MTU including the frame header")
	return pubCmd
}

func runBenchPub(messages, length int, cfg config.Config) error {
	dir, err := os.MkdirTemp("", "strand-bench-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	drv, err := driver.Open(driver.Options{Dir: dir, Config: cfg})
	if err != nil {
		return err
	}
	defer drv.Close()

	conductor, err := strandclient.NewConductor(drv, strandclient.Options{})
	if err != nil {
		return err
	}
	defer conductor.Close()

	pub, err := conductor.AddPublication("strand:shm?endpoint=bench", 1)
	if err != nil {
		return err
	}
	subPos, err := drv.AddSubscriberPosition(pub.RegistrationID())
	if err != nil {
		return err
	}

	// Simulated subscriber: keep the consumer position at the producer's
	// tail so the driver holds the limit window open.
	done := make(chan struct{})
	consumerStopped := make(chan struct{})
	go func() {
		defer close(consumerStopped)
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if pos := pub.Position(); pos >= 0 {
					subPos.SetOrdered(pos)
				}
			}
		}
	}()
	defer func() {
		close(done)
		<-consumerStopped
	}()

	payload := make([]byte, length)
	strategy := idle.NewBackoff()
	start := time.Now()
	sent := 0
	for sent < messages {
		result, err := pub.Offer(payload, nil)
		if err != nil {
			return err
		}
		if result >= 0 {
			sent++
			strategy.Reset()
			continue
		}
		switch result {
		case strandclient.BackPressured, strandclient.NotConnected, strandclient.AdminAction:
			strategy.Idle()
		default:
			return fmt.Errorf("bench: offer failed: %s", strandclient.ResultDescription(result))
		}
	}
	elapsed := time.Since(start)

	rate := float64(sent) / elapsed.Seconds()
	mb := float64(sent) * float64(length) / (1 << 20) / elapsed.Seconds()
	fmt.Printf("published %d x %d B in %s: %.0f msgs/s, %.1f MiB/s\n",
		sent, length, elapsed.Round(time.Millisecond), rate, mb)
	return nil
}
