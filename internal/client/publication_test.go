package client

import (
	"bytes"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/rzbill/strand/internal/atomicbuf"
	"github.com/rzbill/strand/internal/counters"
	"github.com/rzbill/strand/internal/logbuffer"
	logpkg "github.com/rzbill/strand/pkg/log"
)

const (
	testTermLength    int32 = 64 * 1024
	testMTU           int32 = 4096
	testSessionID     int32 = 200
	testStreamID      int32 = 10
	testInitialTermID int32 = 1
)

type stubDriver struct {
	mu       sync.Mutex
	released []int64
	dests    []string
}

func (d *stubDriver) AddPublication(string, int32) (PublicationDetails, error) {
	return PublicationDetails{}, errors.New("not used")
}

func (d *stubDriver) ReleasePublication(registrationID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = append(d.released, registrationID)
	return nil
}

func (d *stubDriver) AddDestination(_ int64, endpoint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dests = append(d.dests, endpoint)
	return nil
}

func (d *stubDriver) RemoveDestination(_ int64, endpoint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range d.dests {
		if e == endpoint {
			d.dests = append(d.dests[:i], d.dests[i+1:]...)
			break
		}
	}
	return nil
}

func (d *stubDriver) CountersFileName() string { return "" }

type pubFixture struct {
	pub       *Publication
	lb        *logbuffer.LogBuffers
	limit     *counters.Position
	connected bool
	driver    *stubDriver
	releaseCh chan releaseRequest
}

func newPubFixture(t *testing.T, initialTermID int32, debugClaims bool) *pubFixture {
	t.Helper()

	lb, err := logbuffer.WrapSlice(make([]byte, logbuffer.ComputeLogLength(testTermLength)))
	if err != nil {
		t.Fatalf("wrap log: %v", err)
	}
	meta := lb.Meta()
	meta.SetInitialTermID(initialTermID)
	meta.SetMTULength(testMTU)
	meta.SetTermLength(testTermLength)
	meta.SetDefaultFrameHeader(logbuffer.DefaultHeaderTemplate(testSessionID, testStreamID))
	meta.SetRawTail(0, int64(initialTermID)<<32)
	meta.SetActivePartitionIndexOrdered(0)

	countersBuf := atomicbuf.Wrap(make([]byte, 4*counters.SlotLength))
	countersBuf.PutInt64(0, 1)
	cf := counters.Wrap(countersBuf)
	limitID, err := cf.Allocate()
	if err != nil {
		t.Fatalf("allocate limit counter: %v", err)
	}
	limit := cf.Position(limitID)

	f := &pubFixture{
		lb:        lb,
		limit:     limit,
		connected: true,
		driver:    &stubDriver{},
		releaseCh: make(chan releaseRequest, 8),
	}
	f.pub = newPublication(publicationConfig{
		registrationID: 77,
		channel:        "strand:shm?endpoint=test",
		streamID:       testStreamID,
		sessionID:      testSessionID,
		lb:             lb,
		limit:          limit,
		connected:      func(int64) bool { return f.connected },
		releaseCh:      f.releaseCh,
		driver:         f.driver,
		debugClaims:    debugClaims,
		log:            logpkg.NewNopLogger(),
	})
	return f
}

func TestInitialPositionIsZero(t *testing.T) {
	f := newPubFixture(t, testInitialTermID, false)
	if got := f.pub.Position(); got != 0 {
		t.Fatalf("initial position: got %d", got)
	}
}

func TestOfferReturnsNewPosition(t *testing.T) {
	f := newPubFixture(t, testInitialTermID, false)
	f.limit.SetOrdered(int64(testTermLength))

	payload := bytes.Repeat([]byte{1}, 100)
	pos, err := f.pub.Offer(payload, nil)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	want := int64(logbuffer.Align(100+logbuffer.HeaderLength, logbuffer.FrameAlignment))
	if pos != want {
		t.Fatalf("offer position: got %d want %d", pos, want)
	}
	if got := f.pub.Position(); got != want {
		t.Fatalf("position after offer: got %d want %d", got, want)
	}
}

func TestOfferBackPressuredAtLimit(t *testing.T) {
	f := newPubFixture(t, testInitialTermID, false)
	f.limit.SetOrdered(0)

	pos, err := f.pub.Offer([]byte("x"), nil)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if pos != BackPressured {
		t.Fatalf("want BackPressured, got %d", pos)
	}

	// The driver advancing the limit unblocks the next attempt.
	f.limit.SetOrdered(4096)
	pos, err = f.pub.Offer(bytes.Repeat([]byte{2}, 4000), nil)
	if err != nil {
		t.Fatalf("offer after limit advance: %v", err)
	}
	if pos != int64(logbuffer.Align(4000+logbuffer.HeaderLength, logbuffer.FrameAlignment)) {
		t.Fatalf("position after limit advance: got %d", pos)
	}
}

func TestOfferNotConnectedWithoutLiveSubscriber(t *testing.T) {
	f := newPubFixture(t, testInitialTermID, false)
	f.limit.SetOrdered(0)
	f.connected = false

	pos, err := f.pub.Offer([]byte("x"), nil)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if pos != NotConnected {
		t.Fatalf("want NotConnected, got %d", pos)
	}
}

func TestOfferTripRotatesAndRetrySucceeds(t *testing.T) {
	f := newPubFixture(t, testInitialTermID, false)
	f.limit.SetOrdered(math.MaxInt64)

	// Park the tail 4 KiB short of the term end, then offer 5 KiB.
	startOffset := testTermLength - 4096
	f.lb.Meta().SetRawTail(0, int64(testInitialTermID)<<32|int64(startOffset))
	if got := f.pub.Position(); got != int64(startOffset) {
		t.Fatalf("parked position: got %d", got)
	}

	payload := bytes.Repeat([]byte{3}, 5*1024)
	pos, err := f.pub.Offer(payload, nil)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if pos != AdminAction {
		t.Fatalf("want AdminAction on trip, got %d", pos)
	}

	// The pad fills the term tail and the log rotated to partition 1.
	// Nothing was written below the parked tail, so scan from startOffset.
	frames := logbuffer.ScanTerm(f.lb.Term(0).Slice(startOffset, testTermLength-startOffset), 0)
	last := frames[len(frames)-1]
	if !last.IsPadding() || last.TermOffset != startOffset || last.FrameLength != 4096 {
		t.Fatalf("pad frame: %+v", last)
	}
	if got := f.lb.Meta().ActivePartitionIndex(); got != 1 {
		t.Fatalf("active partition after rotation: got %d", got)
	}
	if got := f.lb.Meta().RawTailVolatile(1); got != int64(testInitialTermID+1)<<32 {
		t.Fatalf("next term tail: got %#x", got)
	}

	// The retried offer lands at offset 0 of the next term.
	pos, err = f.pub.Offer(payload, nil)
	if err != nil {
		t.Fatalf("retry offer: %v", err)
	}
	fragments := logbuffer.ScanTerm(f.lb.Term(1), 0)
	if len(fragments) == 0 || fragments[0].TermOffset != 0 {
		t.Fatalf("retried frame should start the next term: %+v", fragments)
	}
	// 5 KiB splits into one full MTU frame plus the remainder frame.
	maxPayload := testMTU - logbuffer.HeaderLength
	required := testMTU + logbuffer.Align(5*1024-maxPayload+logbuffer.HeaderLength, logbuffer.FrameAlignment)
	if want := int64(testTermLength) + int64(required); pos != want {
		t.Fatalf("position after rotation: got %d want %d", pos, want)
	}
}

func TestOfferFragmentsLargePayload(t *testing.T) {
	f := newPubFixture(t, testInitialTermID, false)
	f.limit.SetOrdered(int64(testTermLength))

	maxPayload := testMTU - logbuffer.HeaderLength
	payload := make([]byte, 5000)
	pos, err := f.pub.Offer(payload, nil)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if pos <= 0 {
		t.Fatalf("fragmented offer: got %d", pos)
	}
	frames := logbuffer.ScanTerm(f.lb.Term(0), 0)
	if len(frames) != 2 {
		t.Fatalf("want 2 fragments, got %d", len(frames))
	}
	if frames[0].Flags != logbuffer.FlagBeginFragment || frames[1].Flags != logbuffer.FlagEndFragment {
		t.Fatalf("fragment flags: %#x %#x", frames[0].Flags, frames[1].Flags)
	}
	if int32(len(frames[0].Payload)) != maxPayload {
		t.Fatalf("first fragment payload: %d", len(frames[0].Payload))
	}
}

func TestOfferReservedValueSupplier(t *testing.T) {
	f := newPubFixture(t, testInitialTermID, false)
	f.limit.SetOrdered(int64(testTermLength))

	const want = int64(0xDEADBEEFCAFE)
	_, err := f.pub.Offer(make([]byte, 100), func(*atomicbuf.Buffer, int32, int32) int64 { return want })
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	frames := logbuffer.ScanTerm(f.lb.Term(0), 0)
	if frames[0].ReservedValue != want {
		t.Fatalf("reserved value: got %#x", frames[0].ReservedValue)
	}
}

func TestOfferRejectsOversizeMessage(t *testing.T) {
	f := newPubFixture(t, testInitialTermID, false)
	f.limit.SetOrdered(math.MaxInt64)

	tooLong := make([]byte, int(f.pub.MaxMessageLength())+1)
	if _, err := f.pub.Offer(tooLong, nil); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("want ErrMessageTooLong, got %v", err)
	}
	// The publication stays usable after the fault.
	if pos, err := f.pub.Offer([]byte("ok"), nil); err != nil || pos <= 0 {
		t.Fatalf("offer after fault: pos=%d err=%v", pos, err)
	}
}

func TestTryClaimCommitPublishes(t *testing.T) {
	f := newPubFixture(t, testInitialTermID, false)
	f.limit.SetOrdered(int64(testTermLength))

	var claim logbuffer.Claim
	pos, err := f.pub.TryClaim(128, &claim)
	if err != nil {
		t.Fatalf("tryClaim: %v", err)
	}
	if pos <= 0 {
		t.Fatalf("tryClaim position: got %d", pos)
	}
	if len(logbuffer.ScanTerm(f.lb.Term(0), 0)) != 0 {
		t.Fatalf("claimed frame visible before commit")
	}
	copy(claim.Data(), bytes.Repeat([]byte{9}, 128))
	if err := claim.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	frames := logbuffer.ScanTerm(f.lb.Term(0), 0)
	if len(frames) != 1 || frames[0].SessionID != testSessionID {
		t.Fatalf("after commit: %+v", frames)
	}
}

func TestTryClaimFaults(t *testing.T) {
	f := newPubFixture(t, testInitialTermID, false)
	f.limit.SetOrdered(int64(testTermLength))

	var claim logbuffer.Claim
	if _, err := f.pub.TryClaim(-1, &claim); !errors.Is(err, ErrNegativeLength) {
		t.Fatalf("negative length: got %v", err)
	}
	if _, err := f.pub.TryClaim(f.pub.MaxPayloadLength()+1, &claim); !errors.Is(err, ErrClaimTooLong) {
		t.Fatalf("oversize claim: got %v", err)
	}
}

func TestClosedIsTerminal(t *testing.T) {
	f := newPubFixture(t, testInitialTermID, false)
	f.limit.SetOrdered(int64(testTermLength))

	if err := f.pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !f.pub.IsClosed() {
		t.Fatalf("IsClosed after close")
	}
	if pos, _ := f.pub.Offer([]byte("x"), nil); pos != PublicationClosed {
		t.Fatalf("offer after close: got %d", pos)
	}
	var claim logbuffer.Claim
	if pos, _ := f.pub.TryClaim(8, &claim); pos != PublicationClosed {
		t.Fatalf("tryClaim after close: got %d", pos)
	}
	if pos := f.pub.Position(); pos != PublicationClosed {
		t.Fatalf("position after close: got %d", pos)
	}

	// Close posted a release request for the conductor.
	select {
	case req := <-f.releaseCh:
		if req.registrationID != 77 {
			t.Fatalf("release registration id: got %d", req.registrationID)
		}
	default:
		t.Fatalf("expected a queued release request")
	}
}

func TestMaxPositionExceeded(t *testing.T) {
	f := newPubFixture(t, 0, false)
	f.limit.SetOrdered(math.MaxInt64)

	// Park the stream at its maximum possible position.
	f.lb.Meta().SetRawTail(0, int64(math.MaxInt32)<<32|int64(testTermLength))

	pos, err := f.pub.Offer([]byte("x"), nil)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if pos != MaxPositionExceeded {
		t.Fatalf("want MaxPositionExceeded, got %d", pos)
	}
}

func TestCloseAbortsOutstandingDebugClaims(t *testing.T) {
	f := newPubFixture(t, testInitialTermID, true)
	f.limit.SetOrdered(int64(testTermLength))

	var claim logbuffer.Claim
	if pos, err := f.pub.TryClaim(64, &claim); err != nil || pos <= 0 {
		t.Fatalf("tryClaim: pos=%d err=%v", pos, err)
	}
	if err := f.pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !claim.Released() {
		t.Fatalf("close should abort outstanding claims in debug mode")
	}
	frames := logbuffer.ScanTerm(f.lb.Term(0), 0)
	if len(frames) != 1 || !frames[0].IsPadding() {
		t.Fatalf("aborted claim should scan as padding: %+v", frames)
	}
}

func TestDestinationsRoundTripToDriver(t *testing.T) {
	f := newPubFixture(t, testInitialTermID, false)
	if err := f.pub.AddDestination("shm:peer-a"); err != nil {
		t.Fatalf("add destination: %v", err)
	}
	if err := f.pub.RemoveDestination("shm:peer-a"); err != nil {
		t.Fatalf("remove destination: %v", err)
	}
	if len(f.driver.dests) != 0 {
		t.Fatalf("destinations should be empty: %v", f.driver.dests)
	}
}

func TestConcurrentOffersLinearise(t *testing.T) {
	f := newPubFixture(t, testInitialTermID, false)
	f.limit.SetOrdered(math.MaxInt64)

	const goroutines = 4
	const offersPer = 100
	const payloadLength = 20
	alignedLength := int64(logbuffer.Align(payloadLength+logbuffer.HeaderLength, logbuffer.FrameAlignment))

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev := int64(-1)
			for j := 0; j < offersPer; j++ {
				pos, err := f.pub.Offer(make([]byte, payloadLength), nil)
				if err != nil || pos <= 0 {
					t.Errorf("offer: pos=%d err=%v", pos, err)
					return
				}
				if pos <= prev {
					t.Errorf("positions must increase per producer: %d then %d", prev, pos)
					return
				}
				prev = pos
			}
		}()
	}
	wg.Wait()

	want := int64(goroutines*offersPer) * alignedLength
	if got := f.pub.Position(); got != want {
		t.Fatalf("final position: got %d want %d", got, want)
	}
	frames := logbuffer.ScanTerm(f.lb.Term(0), 0)
	if len(frames) != goroutines*offersPer {
		t.Fatalf("frame count: got %d", len(frames))
	}
	seen := map[int32]bool{}
	for _, fr := range frames {
		if seen[fr.TermOffset] {
			t.Fatalf("two frames share term offset %d", fr.TermOffset)
		}
		seen[fr.TermOffset] = true
	}
}
