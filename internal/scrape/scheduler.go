// Package scrape runs the single-flight periodic scrape loop: acquire a
// browser session, navigate to the dashboard, extract, publish to the cache.
// Every failure is contained within its cycle; the previous snapshot always
// survives a failed cycle.
package scrape

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/courtside/linefeed/internal/browser"
	"github.com/courtside/linefeed/internal/cache"
	"github.com/courtside/linefeed/internal/extract"
	"github.com/courtside/linefeed/internal/feed"
)

// State is the scheduler's position within a cycle, exposed on /status.
type State string

const (
	StateIdle       State = "idle"
	StateAcquiring  State = "acquiring"
	StateNavigating State = "navigating"
	StateExtracting State = "extracting"
	StatePublishing State = "publishing"
)

// Acquirer opens browser sessions; satisfied by *browser.Acquirer.
type Acquirer interface {
	Acquire(ctx context.Context) (browser.Session, string, error)
}

// Persister durably stores the latest snapshot; satisfied by *store.Store.
type Persister interface {
	SaveLatest(ctx context.Context, s *feed.Snapshot) error
}

// ArtifactWriter records failure captures; satisfied by *ArtifactDir.
type ArtifactWriter interface {
	Write(ts time.Time, doc, screenshot []byte) error
}

// Config configures the scheduler.
type Config struct {
	// TargetURL is the dashboard page to scrape.
	TargetURL string
	// Interval between cycle starts. A tick firing while a cycle is still
	// running is skipped, never queued.
	Interval time.Duration
	// NavigationTimeout bounds the page load; a session that exceeds it is
	// discarded.
	NavigationTimeout time.Duration
	// ExtractionTimeout is the budget for parsing after navigation; the
	// whole cycle is abandoned past NavigationTimeout+ExtractionTimeout.
	ExtractionTimeout time.Duration
	// AcquireRetries is the number of extra engine-acquisition attempts per
	// cycle. Default: 2.
	AcquireRetries int
	// RetryBackoff is the first retry delay, doubled per attempt. Default: 500ms.
	RetryBackoff time.Duration
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 3 * time.Second
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.ExtractionTimeout <= 0 {
		c.ExtractionTimeout = 15 * time.Second
	}
	if c.AcquireRetries < 0 {
		c.AcquireRetries = 0
	} else if c.AcquireRetries == 0 {
		c.AcquireRetries = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
}

// Status is a point-in-time view of the scheduler for the status endpoint.
type Status struct {
	State     State  `json:"state"`
	Cycles    uint64 `json:"cycles"`
	Failures  uint64 `json:"failures"`
	LastError string `json:"last_error,omitempty"`
}

// Scheduler owns the scrape loop. Exactly one instance exists per process,
// enforced at startup by the lock file.
type Scheduler struct {
	acquire Acquirer
	extract func([]byte) (*extract.Result, error)
	cache   *cache.Cache
	store   Persister
	debug   ArtifactWriter
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	inFlight atomic.Bool

	mu       sync.Mutex
	baseCtx  context.Context
	state    State
	lastErr  string
	cycles   uint64
	failures uint64
}

// New creates a Scheduler. Persistence and artifact capture are attached with
// SetStore and SetArtifacts; both are optional.
func New(acquire Acquirer, c *cache.Cache, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		acquire: acquire,
		extract: extract.Extract,
		cache:   c,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		state:   StateIdle,
		baseCtx: context.Background(),
	}
}

// SetStore attaches best-effort snapshot persistence.
func (s *Scheduler) SetStore(p Persister) { s.store = p }

// SetArtifacts attaches the failure-capture sink.
func (s *Scheduler) SetArtifacts(w ArtifactWriter) { s.debug = w }

// Run executes the scrape loop until ctx is cancelled. One cycle runs
// immediately on start.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Trigger starts one cycle immediately unless one is already in flight.
// Returns false when the trigger was dropped. The cycle runs on the
// scheduler's own lifetime context, never the caller's: an HTTP handler that
// triggers a refresh returns long before the cycle finishes, and its request
// context is canceled the moment it does.
func (s *Scheduler) Trigger() bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		return false
	}
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	go func() {
		defer s.inFlight.Store(false)
		s.runCycle(ctx)
	}()
	return true
}

// Status reports the current cycle phase and counters.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{State: s.state, Cycles: s.cycles, Failures: s.failures, LastError: s.lastErr}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("scrape: cycle still running, tick skipped")
		return
	}
	defer s.inFlight.Store(false)
	s.runCycle(ctx)
}

// runCycle performs one acquire → navigate → extract → publish pass.
// The in-flight token is held by the caller.
func (s *Scheduler) runCycle(ctx context.Context) {
	start := s.now()

	cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout+s.cfg.ExtractionTimeout)
	defer cancel()

	s.setState(StateAcquiring)
	sess, engine, err := s.acquireWithRetry(cycleCtx)
	if err != nil {
		s.fail(err, nil, nil)
		return
	}
	defer sess.Close()

	s.setState(StateNavigating)
	navCtx, navCancel := context.WithTimeout(cycleCtx, s.cfg.NavigationTimeout)
	doc, err := sess.Navigate(navCtx, s.cfg.TargetURL)
	navCancel()
	if err != nil {
		s.fail(err, sess, nil)
		return
	}

	s.setState(StateExtracting)
	res, err := s.extract(doc)
	if err != nil {
		s.fail(err, sess, doc)
		return
	}
	if res.Skipped > 0 {
		s.logger.Warn("scrape: sections skipped", "skipped", res.Skipped)
	}

	s.setState(StatePublishing)
	snap := &feed.Snapshot{
		Live:       res.Live,
		Upcoming:   res.Upcoming,
		Leagues:    res.Leagues,
		CapturedAt: s.now(),
		Engine:     engine,
		Duration:   s.now().Sub(start),
	}
	s.cache.Put(snap)

	if s.store != nil {
		saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.SaveLatest(saveCtx, snap); err != nil {
			s.logger.Warn("scrape: persist snapshot", "error", err)
		}
		saveCancel()
	}

	s.mu.Lock()
	s.state = StateIdle
	s.lastErr = ""
	s.cycles++
	s.mu.Unlock()

	s.logger.Info("scrape: cycle complete",
		"engine", engine,
		"live", len(snap.Live),
		"upcoming", len(snap.Upcoming),
		"leagues", len(snap.Leagues),
		"duration", snap.Duration)
}

// acquireWithRetry attempts session acquisition with exponential backoff.
// The retry budget resets every cycle.
func (s *Scheduler) acquireWithRetry(ctx context.Context) (browser.Session, string, error) {
	backoff := s.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		sess, engine, err := s.acquire.Acquire(ctx)
		if err == nil {
			return sess, engine, nil
		}
		if attempt >= s.cfg.AcquireRetries {
			return nil, "", err
		}
		s.logger.Warn("scrape: acquire failed, retrying",
			"attempt", attempt+1, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// fail records the cycle failure and writes a debug artifact when the error
// class warrants one. The cache keeps the previous snapshot untouched.
func (s *Scheduler) fail(err error, sess browser.Session, doc []byte) {
	s.mu.Lock()
	s.state = StateIdle
	s.lastErr = err.Error()
	s.failures++
	s.mu.Unlock()

	switch {
	case errors.Is(err, extract.ErrSchemaMismatch),
		errors.Is(err, extract.ErrParseFailure),
		errors.Is(err, browser.ErrNavigationTimeout):
		s.capture(sess, doc)
		s.logger.Error("scrape: cycle failed", "error", err)
	case errors.Is(err, browser.ErrEngineUnavailable):
		s.logger.Error("scrape: no engine available, cycle skipped", "error", err)
	default:
		s.logger.Error("scrape: cycle failed", "error", err)
	}
}

// capture writes a best-effort debug artifact. Never escalates.
func (s *Scheduler) capture(sess browser.Session, doc []byte) {
	if s.debug == nil {
		return
	}

	var shot []byte
	if sess != nil {
		shotCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if b, err := sess.Capture(shotCtx); err == nil {
			shot = b
		}
		cancel()
	}
	if doc == nil && shot == nil {
		return
	}

	if err := s.debug.Write(s.now(), doc, shot); err != nil {
		s.logger.Warn("scrape: debug artifact write", "error", err)
	}
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
