package sensor

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"go.uber.org/zap"
)

// Publisher receives sensor updates for live subscribers.
type Publisher interface {
	Publish(msg model.Message)
}

// ReadingStore appends sensor readings.
type ReadingStore interface {
	CreateSensorReading(ctx context.Context, sessionID string, temperature, humidity float64, at time.Time) error
}

// Entities names the temperature and humidity sources of a camera.
type Entities struct {
	Temperature string
	Humidity    string
}

func (e Entities) complete() bool { return e.Temperature != "" && e.Humidity != "" }

type job struct {
	sessionID string
	cameraID  int
	entities  Entities
	cancel    context.CancelFunc
	busy      atomic.Bool
}

// Poller runs one polling job per session.
type Poller struct {
	source   Source
	store    ReadingStore
	pub      Publisher
	interval time.Duration
	defaults Entities
	log      *zap.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

// NewPoller creates a poller. defaults apply to cameras without their own entities.
func NewPoller(source Source, store ReadingStore, pub Publisher, interval time.Duration, defaults Entities, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		source:   source,
		store:    store,
		pub:      pub,
		interval: interval,
		defaults: defaults,
		log:      log,
		jobs:     make(map[string]*job),
	}
}

// resolve picks the camera entities, falling back to the process defaults.
func (p *Poller) resolve(creds model.Credentials) Entities {
	e := Entities{Temperature: creds.TemperatureEntity, Humidity: creds.HumidityEntity}
	if e.Temperature == "" {
		e.Temperature = p.defaults.Temperature
	}
	if e.Humidity == "" {
		e.Humidity = p.defaults.Humidity
	}
	return e
}

// Start begins polling for a session. It is a no-op when a job already runs
// for sessionID or when no sensor entities are configured; the return value
// reports whether a new job was started.
func (p *Poller) Start(sessionID string, creds model.Credentials) bool {
	entities := p.resolve(creds)
	if !entities.complete() || p.source == nil {
		p.log.Debug("sensor polling skipped: no entities",
			zap.Int("camera_id", creds.CameraID), zap.String("session_id", sessionID))
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.jobs[sessionID]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		sessionID: sessionID,
		cameraID:  creds.CameraID,
		entities:  entities,
		cancel:    cancel,
	}
	p.jobs[sessionID] = j
	go p.loop(ctx, j)

	p.log.Info("sensor polling started",
		zap.Int("camera_id", j.cameraID),
		zap.String("session_id", sessionID),
		zap.Duration("interval", p.interval))
	return true
}

// Stop cancels the job of a session. No-op if absent.
func (p *Poller) Stop(sessionID string) {
	p.mu.Lock()
	j, ok := p.jobs[sessionID]
	delete(p.jobs, sessionID)
	p.mu.Unlock()
	if !ok {
		return
	}
	j.cancel()
	p.log.Info("sensor polling stopped", zap.String("session_id", sessionID))
}

// StopAll cancels every job.
func (p *Poller) StopAll() {
	for _, id := range p.Active() {
		p.Stop(id)
	}
}

// Active returns session ids with a running job.
func (p *Poller) Active() []string {
	p.mu.Lock()
	ids := make([]string, 0, len(p.jobs))
	for id := range p.jobs {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (p *Poller) loop(ctx context.Context, j *job) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// a slow fetch makes later ticks skip instead of queueing
			if !j.busy.CompareAndSwap(false, true) {
				continue
			}
			go func() {
				defer j.busy.Store(false)
				p.tick(ctx, j)
			}()
		}
	}
}

func (p *Poller) tick(ctx context.Context, j *job) {
	log := p.log.With(zap.Int("camera_id", j.cameraID), zap.String("session_id", j.sessionID))

	var (
		wg                    sync.WaitGroup
		temperature, humidity float64
		tErr, hErr            error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		temperature, tErr = p.source.Read(ctx, j.entities.Temperature)
	}()
	go func() {
		defer wg.Done()
		humidity, hErr = p.source.Read(ctx, j.entities.Humidity)
	}()
	wg.Wait()

	if ctx.Err() != nil {
		return
	}
	if tErr != nil || hErr != nil {
		log.Warn("sensor fetch failed", zap.NamedError("temperature", tErr), zap.NamedError("humidity", hErr))
		return
	}

	now := time.Now()
	if err := p.store.CreateSensorReading(ctx, j.sessionID, temperature, humidity, now); err != nil {
		log.Warn("persist sensor reading", zap.Error(err))
	}
	if ctx.Err() != nil {
		return
	}
	p.pub.Publish(model.Message{
		Type:        model.CategorySensor,
		CameraID:    j.cameraID,
		SessionID:   j.sessionID,
		Timestamp:   now,
		Temperature: &temperature,
		Humidity:    &humidity,
	})
}
