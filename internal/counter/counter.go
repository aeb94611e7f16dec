// Package counter keeps a live people and vehicle tally per session from the
// camera's line-crossing event stream.
package counter

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"go.uber.org/zap"
)

// Publisher receives count updates for live subscribers.
type Publisher interface {
	Publish(msg model.Message)
}

// CountStore appends count snapshots.
type CountStore interface {
	CreateCountSnapshot(ctx context.Context, sessionID string, people, vehicle int) error
}

// State of one counting job.
type State int32

const (
	StateStopped State = iota
	StateConnecting
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	default:
		return "stopped"
	}
}

// Counts is a cumulative tally.
type Counts struct {
	People  int `json:"people"`
	Vehicle int `json:"vehicle"`
}

type job struct {
	sessionID string
	creds     model.Credentials
	cancel    context.CancelFunc
	state     atomic.Int32

	mu     sync.Mutex
	counts Counts
}

// Counter runs one event-counting job per session.
type Counter struct {
	feed     Feed
	store    CountStore
	pub      Publisher
	delay    time.Duration
	boundary string
	log      *zap.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

// NewCounter creates a counter. delay is the fixed pause between reconnects.
func NewCounter(feed Feed, store CountStore, pub Publisher, delay time.Duration, log *zap.Logger) *Counter {
	if delay <= 0 {
		delay = 3 * time.Second
	}
	return &Counter{
		feed:     feed,
		store:    store,
		pub:      pub,
		delay:    delay,
		boundary: DefaultBoundary,
		log:      log,
		jobs:     make(map[string]*job),
	}
}

// Start begins counting for a session; no-op if a job already runs or the
// camera has no credentials.
func (c *Counter) Start(sessionID string, creds model.Credentials) bool {
	if !creds.HasAuth() {
		c.log.Debug("event counting skipped: no credentials",
			zap.Int("camera_id", creds.CameraID), zap.String("session_id", sessionID))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.jobs[sessionID]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		sessionID: sessionID,
		creds:     creds,
		cancel:    cancel,
	}
	c.jobs[sessionID] = j
	go c.loop(ctx, j)

	c.log.Info("event counting started",
		zap.Int("camera_id", creds.CameraID), zap.String("session_id", sessionID))
	return true
}

// Stop cancels the job of a session, aborting any open stream or pending
// reconnect. No-op if absent.
func (c *Counter) Stop(sessionID string) {
	c.mu.Lock()
	j, ok := c.jobs[sessionID]
	delete(c.jobs, sessionID)
	c.mu.Unlock()
	if !ok {
		return
	}
	j.cancel()
	c.log.Info("event counting stopped", zap.String("session_id", sessionID))
}

// StopAll cancels every job.
func (c *Counter) StopAll() {
	for _, id := range c.Active() {
		c.Stop(id)
	}
}

// Active returns session ids with a running job.
func (c *Counter) Active() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.jobs))
	for id := range c.jobs {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Counts returns the tally of a session.
func (c *Counter) Counts(sessionID string) (Counts, bool) {
	j := c.get(sessionID)
	if j == nil {
		return Counts{}, false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.counts, true
}

// State returns the job state of a session, StateStopped when absent.
func (c *Counter) State(sessionID string) State {
	j := c.get(sessionID)
	if j == nil {
		return StateStopped
	}
	return State(j.state.Load())
}

func (c *Counter) get(sessionID string) *job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jobs[sessionID]
}

func (c *Counter) loop(ctx context.Context, j *job) {
	defer j.state.Store(int32(StateStopped))

	log := c.log.With(zap.Int("camera_id", j.creds.CameraID), zap.String("session_id", j.sessionID))
	for {
		if ctx.Err() != nil {
			return
		}
		j.state.Store(int32(StateConnecting))

		body, err := c.feed.Open(ctx, j.creds)
		if err == nil {
			j.state.Store(int32(StateStreaming))
			log.Info("event stream connected")
			err = c.consume(ctx, j, body)
			_ = body.Close()
		}
		if ctx.Err() != nil {
			return
		}
		log.Warn("event stream lost, reconnecting", zap.Error(err), zap.Duration("delay", c.delay))

		timer := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// consume reads until the stream ends. A clean EOF is reported as
// io.ErrUnexpectedEOF since the camera never ends the stream on its own.
func (c *Counter) consume(ctx context.Context, j *job, body io.Reader) error {
	splitter := NewPartSplitter(c.boundary)
	buf := make([]byte, 4<<10)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, part := range splitter.Feed(buf[:n]) {
				c.handle(ctx, j, part)
			}
		}
		if err != nil {
			if err == io.EOF {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
}

func (c *Counter) handle(ctx context.Context, j *job, part string) {
	ev, ok := ParsePart(part)
	if !ok || !ev.IsLineCrossingStart() {
		return
	}
	class := ev.Class()
	if class == ClassOther {
		return
	}

	j.mu.Lock()
	switch class {
	case ClassPeople:
		j.counts.People++
	case ClassVehicle:
		j.counts.Vehicle++
	}
	snap := j.counts
	j.mu.Unlock()

	if err := c.store.CreateCountSnapshot(ctx, j.sessionID, snap.People, snap.Vehicle); err != nil && ctx.Err() == nil {
		c.log.Warn("persist count snapshot", zap.String("session_id", j.sessionID), zap.Error(err))
	}
	if ctx.Err() != nil {
		return
	}
	people, vehicle := snap.People, snap.Vehicle
	c.pub.Publish(model.Message{
		Type:      model.CategoryCount,
		CameraID:  j.creds.CameraID,
		SessionID: j.sessionID,
		Timestamp: time.Now(),
		People:    &people,
		Vehicle:   &vehicle,
	})
}
