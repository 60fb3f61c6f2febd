package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rzbill/strand/internal/client"
	"github.com/rzbill/strand/internal/config"
	"github.com/rzbill/strand/internal/counters"
	"github.com/rzbill/strand/internal/logbuffer"
	pebblestore "github.com/rzbill/strand/internal/storage/pebble"
	"github.com/rzbill/strand/pkg/id"
	logpkg "github.com/rzbill/strand/pkg/log"
)

// Options configures a driver instance.
type Options struct {
	// Dir is the root for the registry and counters file.
	Dir string

	// LogsDir holds the log buffer files. Empty means Dir/logs; pass a
	// /dev/shm path for cross-process use.
	LogsDir string

	// Fsync selects the registry durability mode.
	Fsync pebblestore.FsyncMode

	// Config carries term/MTU/window/timeout settings.
	Config config.Config

	// Logger for driver events. Defaults to a nop logger.
	Logger logpkg.Logger

	// NowMs overrides the clock. Tests only.
	NowMs func() int64
}

// publication is the driver-side state of one registered publication.
type publication struct {
	record    registration
	lb        *logbuffer.LogBuffers
	limit     *counters.Position
	subs      []*counters.Position
	lastIndex int32
}

// Driver is the embedded media driver: same-host only, shared files as the
// data plane. It implements the conductor's DriverProxy contract.
type Driver struct {
	opts  Options
	cfg   config.Config
	log   logpkg.Logger
	nowMs func() int64

	db    *pebblestore.DB
	cf    *counters.File
	cfp   string
	idgen *id.Generator

	mu     sync.Mutex
	pubs   map[int64]*publication
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

// Open starts a driver: opens the registry, creates or reopens the counters
// file, re-attaches surviving registrations and starts the limit loop.
func Open(opts Options) (*Driver, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("driver: Options.Dir is required")
	}
	if opts.LogsDir == "" {
		opts.LogsDir = filepath.Join(opts.Dir, "logs")
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.NowMs == nil {
		opts.NowMs = func() int64 { return time.Now().UnixMilli() }
	}
	cfg := opts.Config
	if cfg == (config.Config{}) {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.LogsDir, 0o755); err != nil {
		return nil, err
	}

	db, err := pebblestore.Open(pebblestore.Options{DataDir: filepath.Join(opts.Dir, "registry"), Fsync: opts.Fsync})
	if err != nil {
		return nil, err
	}

	cfp := filepath.Join(opts.Dir, "counters.dat")
	cf, err := counters.OpenFile(cfp)
	if err != nil {
		cf, err = counters.CreateFile(cfp, cfg.CounterSlots)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	d := &Driver{
		opts:  opts,
		cfg:   cfg,
		log:   opts.Logger.WithComponent("driver"),
		nowMs: opts.NowMs,
		db:    db,
		cf:    cf,
		cfp:   cfp,
		idgen: id.NewGenerator(),
		pubs:  make(map[int64]*publication),
		done:  make(chan struct{}),
	}
	if err := d.reattach(); err != nil {
		d.cf.Close()
		d.db.Close()
		return nil, err
	}

	d.wg.Add(1)
	go d.limitLoop()
	d.log.Info("driver started",
		logpkg.Str("dir", opts.Dir),
		logpkg.Str("logs", opts.LogsDir),
		logpkg.Int32("termLength", cfg.TermLength),
		logpkg.Int32("mtu", cfg.MTULength))
	return d, nil
}

// CountersFileName returns the shared counters file path.
func (d *Driver) CountersFileName() string { return d.cfp }

// AddPublication creates the log for a channel/stream pair and registers it.
func (d *Driver) AddPublication(channel string, streamID int32) (client.PublicationDetails, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return client.PublicationDetails{}, fmt.Errorf("driver: closed")
	}

	registrationID := d.idgen.NextCorrelationID()
	sessionID := d.idgen.NextSessionID()
	initialTermID := d.idgen.NextSessionID()
	logPath := filepath.Join(d.opts.LogsDir, fmt.Sprintf("%d.logbuffer", registrationID))

	lb, err := logbuffer.MapNew(logPath, d.cfg.TermLength)
	if err != nil {
		return client.PublicationDetails{}, err
	}
	meta := lb.Meta()
	meta.SetCorrelationID(registrationID)
	meta.SetInitialTermID(initialTermID)
	meta.SetMTULength(d.cfg.MTULength)
	meta.SetTermLength(d.cfg.TermLength)
	meta.SetDefaultFrameHeader(logbuffer.DefaultHeaderTemplate(sessionID, streamID))
	meta.SetRawTail(0, int64(initialTermID)<<32)
	meta.SetActivePartitionIndexOrdered(0)

	limitID, err := d.cf.Allocate()
	if err != nil {
		lb.Close()
		os.Remove(logPath)
		return client.PublicationDetails{}, err
	}

	record := registration{
		RegistrationID: registrationID,
		Channel:        channel,
		StreamID:       streamID,
		SessionID:      sessionID,
		InitialTermID:  initialTermID,
		LogFileName:    logPath,
		LimitCounterID: limitID,
	}
	if err := d.saveRegistration(record); err != nil {
		lb.Close()
		os.Remove(logPath)
		return client.PublicationDetails{}, err
	}

	d.pubs[registrationID] = &publication{
		record: record,
		lb:     lb,
		limit:  d.cf.Position(limitID),
	}
	d.log.Info("publication registered",
		logpkg.Str("channel", channel),
		logpkg.Int32("streamID", streamID),
		logpkg.Int32("sessionID", sessionID),
		logpkg.Int64("registrationID", registrationID))
	return record.details(d.cfg), nil
}

// ReleasePublication drops a registration, closes its log and removes the
// file. Counter slots are not reclaimed.
func (d *Driver) ReleasePublication(registrationID int64) error {
	d.mu.Lock()
	pub := d.pubs[registrationID]
	delete(d.pubs, registrationID)
	d.mu.Unlock()

	if pub == nil {
		return fmt.Errorf("driver: unknown registration %d", registrationID)
	}
	if err := d.deleteRegistration(registrationID); err != nil {
		return err
	}
	_ = pub.lb.Close()
	_ = os.Remove(pub.record.LogFileName)
	d.log.Info("publication released", logpkg.Int64("registrationID", registrationID))
	return nil
}

// AddDestination records a destination endpoint for a publication.
func (d *Driver) AddDestination(registrationID int64, endpoint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	pub := d.pubs[registrationID]
	if pub == nil {
		return fmt.Errorf("driver: unknown registration %d", registrationID)
	}
	for _, e := range pub.record.Destinations {
		if e == endpoint {
			return nil
		}
	}
	pub.record.Destinations = append(pub.record.Destinations, endpoint)
	return d.saveRegistration(pub.record)
}

// RemoveDestination removes a previously added destination endpoint.
func (d *Driver) RemoveDestination(registrationID int64, endpoint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	pub := d.pubs[registrationID]
	if pub == nil {
		return fmt.Errorf("driver: unknown registration %d", registrationID)
	}
	for i, e := range pub.record.Destinations {
		if e == endpoint {
			pub.record.Destinations = append(pub.record.Destinations[:i], pub.record.Destinations[i+1:]...)
			return d.saveRegistration(pub.record)
		}
	}
	return nil
}

// AddSubscriberPosition allocates a consumer position counter for a
// publication, seeded at the current producer position (join at tail). The
// limit loop follows the slowest subscriber.
func (d *Driver) AddSubscriberPosition(registrationID int64) (*counters.Position, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pub := d.pubs[registrationID]
	if pub == nil {
		return nil, fmt.Errorf("driver: unknown registration %d", registrationID)
	}
	counterID, err := d.cf.Allocate()
	if err != nil {
		return nil, err
	}
	pos := d.cf.Position(counterID)
	pos.SetOrdered(producerPosition(pub.lb))
	pub.subs = append(pub.subs, pos)
	return pos, nil
}

// PublicationInfo is a read-only snapshot for the admin surfaces.
type PublicationInfo struct {
	RegistrationID int64
	Channel        string
	StreamID       int32
	SessionID      int32
	InitialTermID  int32
	LogFileName    string
	Position       int64
	Limit          int64
	Connected      bool
	Subscribers    int
	Destinations   []string
}

// ListPublications snapshots every live registration.
func (d *Driver) ListPublications() []PublicationInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]PublicationInfo, 0, len(d.pubs))
	for _, pub := range d.pubs {
		out = append(out, PublicationInfo{
			RegistrationID: pub.record.RegistrationID,
			Channel:        pub.record.Channel,
			StreamID:       pub.record.StreamID,
			SessionID:      pub.record.SessionID,
			InitialTermID:  pub.record.InitialTermID,
			LogFileName:    pub.record.LogFileName,
			Position:       producerPosition(pub.lb),
			Limit:          pub.limit.GetVolatile(),
			Connected:      pub.lb.Meta().IsConnected(),
			Subscribers:    len(pub.subs),
			Destinations:   append([]string(nil), pub.record.Destinations...),
		})
	}
	return out
}

// CountersSnapshot reports the limit counter value per registration id.
func (d *Driver) CountersSnapshot() map[int64]int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[int64]int64, len(d.pubs))
	for regID, pub := range d.pubs {
		out[regID] = pub.limit.GetVolatile()
	}
	return out
}

// Close stops the limit loop and releases every resource. Log files of live
// registrations stay on disk for the next driver run.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	pubs := d.pubs
	d.pubs = make(map[int64]*publication)
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()

	for _, pub := range pubs {
		_ = pub.lb.Close()
	}
	err := d.cf.Close()
	if cerr := d.db.Close(); err == nil {
		err = cerr
	}
	d.log.Info("driver stopped")
	return err
}

// reattach remaps logs recorded in the registry. Entries whose log file is
// gone are dropped.
func (d *Driver) reattach() error {
	records, err := d.loadRegistrations()
	if err != nil {
		return err
	}
	for _, record := range records {
		lb, err := logbuffer.MapExisting(record.LogFileName)
		if err != nil {
			d.log.Warn("dropping stale registration",
				logpkg.Int64("registrationID", record.RegistrationID), logpkg.Err(err))
			_ = d.deleteRegistration(record.RegistrationID)
			continue
		}
		d.pubs[record.RegistrationID] = &publication{
			record: record,
			lb:     lb,
			limit:  d.cf.Position(record.LimitCounterID),
		}
		d.log.Info("publication re-attached",
			logpkg.Int64("registrationID", record.RegistrationID),
			logpkg.Str("log", record.LogFileName))
	}
	return nil
}

func (d *Driver) limitWindow() int64 {
	if d.cfg.LimitWindow > 0 {
		return int64(d.cfg.LimitWindow)
	}
	return int64(d.cfg.TermLength / 2)
}

// limitLoop advances publication limits ahead of the slowest subscriber,
// stamps liveness and cleans the partition two ahead after rotations.
func (d *Driver) limitLoop() {
	defer d.wg.Done()
	ticker := time.NewTicker(time.Duration(d.cfg.LimitUpdateIntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Driver) tick() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.nowMs()
	window := d.limitWindow()
	for _, pub := range d.pubs {
		meta := pub.lb.Meta()

		if len(pub.subs) > 0 {
			minSub := pub.subs[0].GetVolatile()
			for _, s := range pub.subs[1:] {
				if v := s.GetVolatile(); v < minSub {
					minSub = v
				}
			}
			pub.limit.ProposeMaxOrdered(minSub + window)
			meta.SetTimeOfLastStatusMessageOrdered(now)
			meta.SetIsConnectedOrdered(true)
		} else {
			meta.SetIsConnectedOrdered(false)
		}

		// After a rotation, zero the partition two ahead of the retired one
		// so the next cycle starts from a clean term.
		index := meta.ActivePartitionIndex()
		if index != pub.lastIndex {
			clean := logbuffer.NextPartitionIndex(int(index))
			pub.lb.Term(clean).SetMemory(0, pub.lb.TermLength(), 0)
			pub.lastIndex = index
		}
	}
}

// producerPosition derives the stream position from the active tail.
func producerPosition(lb *logbuffer.LogBuffers) int64 {
	meta := lb.Meta()
	index := int(meta.ActivePartitionIndex())
	rawTail := meta.RawTailVolatile(index)
	termLength := lb.TermLength()
	termID := logbuffer.TailTermID(rawTail)
	termOffset := logbuffer.TailTermOffset(rawTail, termLength)
	shift := logbuffer.PositionBitsToShift(termLength)
	return logbuffer.ComputeTermBeginPosition(termID, shift, meta.InitialTermID()) + int64(termOffset)
}
