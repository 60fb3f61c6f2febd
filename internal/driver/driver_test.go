package driver

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/rzbill/strand/internal/client"
	"github.com/rzbill/strand/internal/config"
	"github.com/rzbill/strand/internal/logbuffer"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.TermLength = 64 * 1024
	cfg.MTULength = 4096
	cfg.CounterSlots = 64
	cfg.LimitUpdateIntervalMs = 1
	return cfg
}

func openTestDriver(t *testing.T, dir string) *Driver {
	t.Helper()
	d, err := Open(Options{Dir: dir, Config: testConfig()})
	if err != nil {
		t.Fatalf("open driver: %v", err)
	}
	return d
}

func TestAddPublicationInitialisesLog(t *testing.T) {
	d := openTestDriver(t, t.TempDir())
	defer d.Close()

	details, err := d.AddPublication("strand:shm?endpoint=orders", 7)
	if err != nil {
		t.Fatalf("add publication: %v", err)
	}
	if details.StreamID != 7 || details.Channel != "strand:shm?endpoint=orders" {
		t.Fatalf("details mismatch: %+v", details)
	}

	lb, err := logbuffer.MapExisting(details.LogFileName)
	if err != nil {
		t.Fatalf("map log: %v", err)
	}
	defer lb.Close()

	meta := lb.Meta()
	if meta.MTULength() != 4096 {
		t.Fatalf("mtu = %d, want 4096", meta.MTULength())
	}
	if meta.TermLength() != 64*1024 {
		t.Fatalf("term length = %d, want 64K", meta.TermLength())
	}
	if got := meta.ActivePartitionIndex(); got != 0 {
		t.Fatalf("active partition = %d, want 0", got)
	}
	rawTail := meta.RawTailVolatile(0)
	if logbuffer.TailTermID(rawTail) != meta.InitialTermID() {
		t.Fatalf("tail term id = %d, want initial %d", logbuffer.TailTermID(rawTail), meta.InitialTermID())
	}
	if off := rawTail & 0xFFFFFFFF; off != 0 {
		t.Fatalf("tail offset = %d, want 0", off)
	}

	tpl := meta.DefaultFrameHeader()
	want := logbuffer.DefaultHeaderTemplate(details.SessionID, details.StreamID)
	if !bytes.Equal(tpl.Bytes(), want) {
		t.Fatalf("header template mismatch")
	}
}

func TestRegistrationSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	d := openTestDriver(t, dir)
	details, err := d.AddPublication("strand:shm?endpoint=trades", 3)
	if err != nil {
		t.Fatalf("add publication: %v", err)
	}
	if err := d.AddDestination(details.RegistrationID, "host-b:4040"); err != nil {
		t.Fatalf("add destination: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close driver: %v", err)
	}

	d2 := openTestDriver(t, dir)
	defer d2.Close()

	pubs := d2.ListPublications()
	if len(pubs) != 1 {
		t.Fatalf("got %d publications after reopen, want 1", len(pubs))
	}
	got := pubs[0]
	if got.RegistrationID != details.RegistrationID || got.StreamID != 3 {
		t.Fatalf("re-attached publication mismatch: %+v", got)
	}
	if len(got.Destinations) != 1 || got.Destinations[0] != "host-b:4040" {
		t.Fatalf("destinations not persisted: %v", got.Destinations)
	}
}

func TestReattachDropsStaleRegistration(t *testing.T) {
	dir := t.TempDir()
	d := openTestDriver(t, dir)
	details, err := d.AddPublication("strand:shm?endpoint=gone", 1)
	if err != nil {
		t.Fatalf("add publication: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close driver: %v", err)
	}
	if err := os.Remove(details.LogFileName); err != nil {
		t.Fatalf("remove log: %v", err)
	}

	d2 := openTestDriver(t, dir)
	defer d2.Close()
	if pubs := d2.ListPublications(); len(pubs) != 0 {
		t.Fatalf("stale registration survived: %+v", pubs)
	}
}

func TestReleaseRemovesLog(t *testing.T) {
	d := openTestDriver(t, t.TempDir())
	defer d.Close()

	details, err := d.AddPublication("strand:shm?endpoint=tmp", 9)
	if err != nil {
		t.Fatalf("add publication: %v", err)
	}
	if err := d.ReleasePublication(details.RegistrationID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(details.LogFileName); !os.IsNotExist(err) {
		t.Fatalf("log file still present after release: %v", err)
	}
	if err := d.ReleasePublication(details.RegistrationID); err == nil {
		t.Fatalf("second release should fail")
	}
}

func TestLimitFollowsSubscriber(t *testing.T) {
	d := openTestDriver(t, t.TempDir())
	defer d.Close()

	conductor, err := client.NewConductor(d, client.Options{})
	if err != nil {
		t.Fatalf("new conductor: %v", err)
	}
	defer conductor.Close()

	pub, err := conductor.AddPublication("strand:shm?endpoint=live", 5)
	if err != nil {
		t.Fatalf("add publication: %v", err)
	}

	// No subscriber yet: the limit stays at zero and the driver reports the
	// publication disconnected.
	if result, err := pub.Offer([]byte("early"), nil); err != nil {
		t.Fatalf("offer: %v", err)
	} else if result != client.NotConnected {
		t.Fatalf("offer before subscriber = %d, want NotConnected", result)
	}

	if _, err := d.AddSubscriberPosition(pub.RegistrationID()); err != nil {
		t.Fatalf("add subscriber position: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for pub.PublicationLimit() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("limit never advanced")
		}
		time.Sleep(time.Millisecond)
	}
	if !pub.IsConnected() {
		t.Fatalf("publication should be connected once status messages flow")
	}

	result, err := pub.Offer([]byte("hello subscribers"), nil)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if result <= 0 {
		t.Fatalf("offer after limit advance = %d, want position > 0", result)
	}
}
