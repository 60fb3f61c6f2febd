package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cfgpkg "github.com/rzbill/strand/internal/config"
	"github.com/rzbill/strand/internal/driver"
	grpcserver "github.com/rzbill/strand/internal/server/grpc"
	httpserver "github.com/rzbill/strand/internal/server/http"
	pebblestore "github.com/rzbill/strand/internal/storage/pebble"
	logpkg "github.com/rzbill/strand/pkg/log"
)

// Options configures a driver run.
type Options struct {
	// Dir is the driver data directory (registry + counters file).
	Dir string

	// LogsDir holds log buffer files. Empty means Dir/logs.
	LogsDir string

	// GRPCAddr and HTTPAddr are the admin listen addresses. Empty disables
	// the respective server.
	GRPCAddr string
	HTTPAddr string

	// Fsync selects the registry durability mode.
	Fsync pebblestore.FsyncMode

	// Config carries term/MTU/window/timeout settings.
	Config cfgpkg.Config

	// Logger for driver and server events.
	Logger logpkg.Logger
}

// Run starts the driver and its admin servers and blocks until ctx is
// cancelled.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so direct callers
	// get clean shutdown even without their own signal handling.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Dir == "" {
		opts.Dir = cfgpkg.DefaultDataDir()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}

	drv, err := driver.Open(driver.Options{
		Dir:     opts.Dir,
		LogsDir: opts.LogsDir,
		Fsync:   opts.Fsync,
		Config:  opts.Config,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer drv.Close()

	logger.Info("starting strand driver",
		logpkg.Str("dir", opts.Dir),
		logpkg.Str("grpc", opts.GRPCAddr),
		logpkg.Str("http", opts.HTTPAddr))

	var wg sync.WaitGroup
	if opts.GRPCAddr != "" {
		gsrv := grpcserver.New(drv)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gsrv.ListenAndServe(sctx, opts.GRPCAddr); err != nil && sctx.Err() == nil {
				logger.Error("grpc server failed", logpkg.Err(err))
			}
		}()
	}
	if opts.HTTPAddr != "" {
		hsrv := httpserver.New(drv)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
				logger.Error("http server failed", logpkg.Err(err))
			}
		}()
	}

	<-sctx.Done()
	wg.Wait()
	return nil
}
