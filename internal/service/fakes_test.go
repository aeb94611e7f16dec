package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/errs"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/transcoder"
)

// memSessions is an in-memory SessionStore with no uniqueness constraint.
type memSessions struct {
	mu      sync.Mutex
	rows    map[string]*model.Session
	seq     int
	failNew error
}

func newMemSessions() *memSessions {
	return &memSessions{rows: make(map[string]*model.Session)}
}

func (m *memSessions) Create(_ context.Context, cameraID int, start time.Time) (*model.Session, error) {
	if m.failNew != nil {
		return nil, m.failNew
	}
	// widen the check-then-act window
	time.Sleep(time.Millisecond)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	s := &model.Session{ID: fmt.Sprintf("s-%d", m.seq), CameraID: cameraID, StartTime: start}
	m.rows[s.ID] = s
	cp := *s
	return &cp, nil
}

func (m *memSessions) FindOpen(_ context.Context, cameraID int) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.CameraID == cameraID && s.EndTime == nil {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memSessions) Close(_ context.Context, id string, end time.Time) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, errs.ErrSessionNotFound
	}
	s.EndTime = &end
	cp := *s
	return &cp, nil
}

func (m *memSessions) Get(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, errs.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) ListByCamera(_ context.Context, cameraID int, limit int) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Session
	for _, s := range m.rows {
		if s.CameraID == cameraID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memSessions) OpenCameraIDs(_ context.Context) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int]bool)
	var ids []int
	for _, s := range m.rows {
		if s.EndTime == nil && !seen[s.CameraID] {
			seen[s.CameraID] = true
			ids = append(ids, s.CameraID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (m *memSessions) openCount(cameraID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.rows {
		if s.CameraID == cameraID && s.EndTime == nil {
			n++
		}
	}
	return n
}

type memCameras struct {
	mu   sync.Mutex
	rows map[int]*model.Camera
	seq  int
}

func newMemCameras(cams ...*model.Camera) *memCameras {
	m := &memCameras{rows: make(map[int]*model.Camera)}
	for _, c := range cams {
		m.rows[c.ID] = c
		if c.ID > m.seq {
			m.seq = c.ID
		}
	}
	return m
}

func (m *memCameras) Get(_ context.Context, id int) (*model.Camera, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, errs.ErrCameraNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCameras) FindByCredentials(_ context.Context, ip string, port int, username, password string) (*model.Camera, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.IP == ip && c.Port == port && c.Username == username && c.Password == password {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memCameras) Create(_ context.Context, cam *model.Camera) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	cam.ID = m.seq
	cp := *cam
	m.rows[cam.ID] = &cp
	return nil
}

func (m *memCameras) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// fakeJob records job starts and stops by session id.
type fakeJob struct {
	mu      sync.Mutex
	running map[string]int // session -> camera
	starts  int
}

func newFakeJob() *fakeJob { return &fakeJob{running: make(map[string]int)} }

func (j *fakeJob) Start(sessionID string, creds model.Credentials) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.running[sessionID]; ok {
		return false
	}
	j.running[sessionID] = creds.CameraID
	j.starts++
	return true
}

func (j *fakeJob) Stop(sessionID string) {
	j.mu.Lock()
	delete(j.running, sessionID)
	j.mu.Unlock()
}

func (j *fakeJob) StopAll() {
	j.mu.Lock()
	j.running = make(map[string]int)
	j.mu.Unlock()
}

func (j *fakeJob) isRunning(sessionID string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.running[sessionID]
	return ok
}

// fakeConnector hands out a fixed outcome and registers the camera in
// workers on success.
type fakeConnector struct {
	url     string
	err     error
	workers *fakeWorkers

	mu    sync.Mutex
	calls int
}

func (f *fakeConnector) ConnectWithFallback(_ context.Context, creds model.Credentials) (*transcoder.Connection, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.workers != nil {
		f.workers.markActive(creds.CameraID, f.url)
	}
	return &transcoder.Connection{URL: f.url}, nil
}

// fakeWorkers tracks camera ids without processes.
type fakeWorkers struct {
	mu     sync.Mutex
	active map[int]string
	onExit func(int, error)
}

func newFakeWorkers() *fakeWorkers { return &fakeWorkers{active: make(map[int]string)} }

func (f *fakeWorkers) Start(cameraID int, url string) (*transcoder.Worker, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.active[cameraID]
	f.active[cameraID] = url
	return nil, ok, nil
}

func (f *fakeWorkers) Stop(cameraID int) {
	f.mu.Lock()
	delete(f.active, cameraID)
	f.mu.Unlock()
}

func (f *fakeWorkers) StopAll() {
	f.mu.Lock()
	f.active = make(map[int]string)
	f.mu.Unlock()
}

func (f *fakeWorkers) ListActive() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int, 0, len(f.active))
	for id := range f.active {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (f *fakeWorkers) Stats() []transcoder.WorkerStats { return nil }

func (f *fakeWorkers) OnExit(fn func(int, error)) { f.onExit = fn }

// markActive simulates a connector that registered a worker.
func (f *fakeWorkers) markActive(cameraID int, url string) {
	f.mu.Lock()
	f.active[cameraID] = url
	f.mu.Unlock()
}

// gatedWorkers blocks Stop until release is closed.
type gatedWorkers struct {
	*fakeWorkers
	stopping chan struct{}
	release  chan struct{}
	once     sync.Once
}

func newGatedWorkers() *gatedWorkers {
	return &gatedWorkers{
		fakeWorkers: newFakeWorkers(),
		stopping:    make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (g *gatedWorkers) Stop(cameraID int) {
	g.once.Do(func() { close(g.stopping) })
	<-g.release
	g.fakeWorkers.Stop(cameraID)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
