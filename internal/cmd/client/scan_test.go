package client

import (
	"testing"

	"github.com/rzbill/strand/internal/config"
	"github.com/rzbill/strand/internal/driver"
)

func TestLogScanCommand(t *testing.T) {
	cfg := config.Default()
	cfg.TermLength = 64 * 1024
	cfg.MTULength = 4096
	cfg.CounterSlots = 64
	drv, err := driver.Open(driver.Options{Dir: t.TempDir(), Config: cfg})
	if err != nil {
		t.Fatalf("open driver: %v", err)
	}
	defer drv.Close()

	details, err := drv.AddPublication("strand:shm?endpoint=scan", 7)
	if err != nil {
		t.Fatalf("add publication: %v", err)
	}

	cmd := newLogScanCommand()
	cmd.SetArgs([]string{details.LogFileName, "--filter", "stream_id == 7 && !is_pad"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	cmd = newLogScanCommand()
	cmd.SetArgs([]string{details.LogFileName, "--filter", "not valid ("})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected filter error")
	}
}

func TestPayloadPreviewTruncatesAndHexesBinary(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}
	if got := payloadPreview(long); len(got) != 51 {
		t.Fatalf("preview length = %d, want 51", len(got))
	}
	if got := payloadPreview([]byte{0xff, 0xfe}); got != "fffe" {
		t.Fatalf("binary preview = %q, want hex", got)
	}
}
