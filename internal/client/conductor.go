package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/rzbill/strand/internal/counters"
	"github.com/rzbill/strand/internal/logbuffer"
	logpkg "github.com/rzbill/strand/pkg/log"
)

// PublicationDetails is the driver's answer to an add-publication request.
type PublicationDetails struct {
	RegistrationID    int64
	SessionID         int32
	StreamID          int32
	Channel           string
	LogFileName       string
	LimitCounterID    int32
	ConnectionTimeout time.Duration
}

// DriverProxy is the control-plane surface the conductor needs from the
// driver. The embedded driver implements it directly; a remote proxy would
// carry the same contract over its own transport.
type DriverProxy interface {
	AddPublication(channel string, streamID int32) (PublicationDetails, error)
	ReleasePublication(registrationID int64) error
	AddDestination(registrationID int64, endpoint string) error
	RemoveDestination(registrationID int64, endpoint string) error
	CountersFileName() string
}

// releaseRequest is posted by a closing publication onto the conductor's
// bounded release queue.
type releaseRequest struct {
	registrationID int64
}

const releaseQueueLength = 64

// Options configures a Conductor.
type Options struct {
	// Logger for control-plane events. Defaults to a nop logger.
	Logger logpkg.Logger

	// DebugClaims arms the per-publication claim registry so Close can abort
	// claims that were neither committed nor aborted.
	DebugClaims bool

	// NowMs overrides the clock used for the liveness window. Tests only.
	NowMs func() int64
}

// Conductor owns the driver proxy and every publication added through it. It
// drains release requests in the background so closing a publication never
// blocks on the driver.
type Conductor struct {
	driver       DriverProxy
	countersFile *counters.File
	log          logpkg.Logger
	debugClaims  bool
	nowMs        func() int64

	releaseCh chan releaseRequest
	done      chan struct{}
	wg        sync.WaitGroup

	mu     sync.Mutex
	pubs   map[int64]*Publication
	closed bool
}

// NewConductor connects to the driver's counters file and starts the release
// loop.
func NewConductor(driver DriverProxy, opts Options) (*Conductor, error) {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.NowMs == nil {
		opts.NowMs = func() int64 { return time.Now().UnixMilli() }
	}
	cf, err := counters.OpenFile(driver.CountersFileName())
	if err != nil {
		return nil, fmt.Errorf("client: open counters file: %w", err)
	}
	c := &Conductor{
		driver:       driver,
		countersFile: cf,
		log:          opts.Logger.WithComponent("conductor"),
		debugClaims:  opts.DebugClaims,
		nowMs:        opts.NowMs,
		releaseCh:    make(chan releaseRequest, releaseQueueLength),
		done:         make(chan struct{}),
		pubs:         make(map[int64]*Publication),
	}
	c.wg.Add(1)
	go c.releaseLoop()
	return c, nil
}

// AddPublication registers a publication with the driver, maps its log and
// returns the ready-to-use handle.
func (c *Conductor) AddPublication(channel string, streamID int32) (*Publication, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConductorClosed
	}
	c.mu.Unlock()

	details, err := c.driver.AddPublication(channel, streamID)
	if err != nil {
		return nil, err
	}
	lb, err := logbuffer.MapExisting(details.LogFileName)
	if err != nil {
		_ = c.driver.ReleasePublication(details.RegistrationID)
		return nil, fmt.Errorf("client: map log %s: %w", details.LogFileName, err)
	}

	timeoutMs := details.ConnectionTimeout.Milliseconds()
	pub := newPublication(publicationConfig{
		registrationID: details.RegistrationID,
		channel:        details.Channel,
		streamID:       details.StreamID,
		sessionID:      details.SessionID,
		lb:             lb,
		limit:          c.countersFile.Position(details.LimitCounterID),
		connected: func(timeOfLastSMms int64) bool {
			return timeOfLastSMms+timeoutMs > c.nowMs()
		},
		releaseCh:   c.releaseCh,
		driver:      c.driver,
		debugClaims: c.debugClaims,
		log:         c.log,
	})

	c.mu.Lock()
	c.pubs[pub.RegistrationID()] = pub
	c.mu.Unlock()

	c.log.Info("publication added",
		logpkg.Str("channel", details.Channel),
		logpkg.Int32("streamID", details.StreamID),
		logpkg.Int32("sessionID", details.SessionID),
		logpkg.Int64("registrationID", details.RegistrationID))
	return pub, nil
}

// Close closes every publication and stops the release loop.
func (c *Conductor) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pubs := make([]*Publication, 0, len(c.pubs))
	for _, p := range c.pubs {
		pubs = append(pubs, p)
	}
	c.mu.Unlock()

	for _, p := range pubs {
		_ = p.Close()
	}
	close(c.done)
	c.wg.Wait()
	return c.countersFile.Close()
}

func (c *Conductor) releaseLoop() {
	defer c.wg.Done()
	for {
		select {
		case req := <-c.releaseCh:
			c.release(req.registrationID)
		case <-c.done:
			// Drain what is already queued, then stop.
			for {
				select {
				case req := <-c.releaseCh:
					c.release(req.registrationID)
				default:
					return
				}
			}
		}
	}
}

func (c *Conductor) release(registrationID int64) {
	c.mu.Lock()
	pub := c.pubs[registrationID]
	delete(c.pubs, registrationID)
	c.mu.Unlock()

	if pub != nil {
		_ = pub.lb.Close()
	}
	if err := c.driver.ReleasePublication(registrationID); err != nil {
		c.log.Warn("release publication failed",
			logpkg.Int64("registrationID", registrationID), logpkg.Err(err))
		return
	}
	c.log.Debug("publication released", logpkg.Int64("registrationID", registrationID))
}
