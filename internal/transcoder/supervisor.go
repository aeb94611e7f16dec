package transcoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/errs"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/keyed"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"go.uber.org/zap"
)

// FrameSink receives every frame a worker produces.
type FrameSink interface {
	Publish(msg model.Message)
}

// CommandFunc builds the transcoder process for a stream URL. It must use
// exec.CommandContext with ctx so the supervisor can stop the process.
type CommandFunc func(ctx context.Context, streamURL string) *exec.Cmd

// FFmpegCommand returns a CommandFunc emitting MJPEG frames on stdout.
func FFmpegCommand(path string, quality, fps int) CommandFunc {
	return func(ctx context.Context, streamURL string) *exec.Cmd {
		args := []string{
			"-hide_banner", "-loglevel", "error",
			"-rtsp_transport", "tcp",
			"-i", streamURL,
			"-an",
		}
		if fps > 0 {
			args = append(args, "-r", fmt.Sprint(fps))
		}
		args = append(args,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", fmt.Sprint(quality),
			"-",
		)
		return exec.CommandContext(ctx, path, args...)
	}
}

// CheckInstallation verifies the transcoder binary runs.
func CheckInstallation(path string) error {
	if err := exec.Command(path, "-version").Run(); err != nil {
		return fmt.Errorf("%s is not installed or not in PATH: %w", path, err)
	}
	return nil
}

// WorkerStats is a snapshot of one worker.
type WorkerStats struct {
	CameraID  int       `json:"camera_id"`
	URL       string    `json:"url"`
	SessionID string    `json:"session_id,omitempty"`
	Frames    uint64    `json:"frames"`
	StartedAt time.Time `json:"started_at"`
	LastFrame time.Time `json:"last_frame,omitempty"`
}

// Worker is one running transcoder process for a camera.
type Worker struct {
	CameraID  int
	URL       string
	StartedAt time.Time

	cmd      *exec.Cmd
	cancel   context.CancelFunc
	stopping atomic.Bool
	exited   bool // guarded by Supervisor.mu

	session   atomic.Value // string
	frames    atomic.Uint64
	lastFrame atomic.Int64

	firstFrame chan struct{}
	firstOnce  sync.Once
	failed     chan string
	failOnce   sync.Once
	done       chan struct{}
	exitErr    error
	stderr     *tail
}

// Alive reports whether the process has not exited yet.
func (w *Worker) Alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Done is closed when the process has exited and its output is drained.
func (w *Worker) Done() <-chan struct{} { return w.done }

// SetSession tags subsequent frames with a session id.
func (w *Worker) SetSession(id string) { w.session.Store(id) }

func (w *Worker) sessionID() string {
	id, _ := w.session.Load().(string)
	return id
}

// Stats returns a snapshot of the worker counters.
func (w *Worker) Stats() WorkerStats {
	st := WorkerStats{
		CameraID:  w.CameraID,
		URL:       redact(w.URL),
		SessionID: w.sessionID(),
		Frames:    w.frames.Load(),
		StartedAt: w.StartedAt,
	}
	if ns := w.lastFrame.Load(); ns > 0 {
		st.LastFrame = time.Unix(0, ns)
	}
	return st
}

// Supervisor owns at most one transcoder worker per camera.
type Supervisor struct {
	mu      sync.Mutex
	workers map[int]*Worker
	cameras keyed.Mutex[int]

	command   CommandFunc
	sink      FrameSink
	stopGrace time.Duration
	log       *zap.Logger

	onExit func(cameraID int, err error)
}

// NewSupervisor creates a supervisor publishing frames to sink.
func NewSupervisor(command CommandFunc, sink FrameSink, stopGrace time.Duration, log *zap.Logger) *Supervisor {
	if stopGrace <= 0 {
		stopGrace = 3 * time.Second
	}
	return &Supervisor{
		workers:   make(map[int]*Worker),
		command:   command,
		sink:      sink,
		stopGrace: stopGrace,
		log:       log,
	}
}

// OnExit registers a hook called when a registered worker exits without Stop.
func (s *Supervisor) OnExit(fn func(cameraID int, err error)) { s.onExit = fn }

// lockCamera serializes start/probe/stop for one camera only.
func (s *Supervisor) lockCamera(cameraID int) func() {
	return s.cameras.Lock(cameraID)
}

// alive returns the registered live worker of a camera.
func (s *Supervisor) alive(cameraID int) *Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[cameraID]; ok && w.Alive() {
		return w
	}
	return nil
}

// register stores w unless it already exited. Reports whether it was stored.
func (s *Supervisor) register(w *Worker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.exited {
		return false
	}
	s.workers[w.CameraID] = w
	return true
}

// Start runs a worker in attached mode: the URL is assumed good and the
// process is expected to run until stopped. Reuses a live worker.
func (s *Supervisor) Start(cameraID int, streamURL string) (*Worker, bool, error) {
	unlock := s.lockCamera(cameraID)
	defer unlock()

	if w := s.alive(cameraID); w != nil {
		return w, true, nil
	}
	w, err := s.spawn(cameraID, streamURL)
	if err != nil {
		return nil, false, err
	}
	s.register(w)
	s.log.Info("transcoder started",
		zap.Int("camera_id", cameraID),
		zap.String("url", redact(streamURL)))
	return w, false, nil
}

// probe spawns an unregistered worker and waits for its first frame. On
// success the worker is registered; otherwise it is killed. Callers hold the
// camera lock.
func (s *Supervisor) probe(ctx context.Context, cameraID int, streamURL string, timeout time.Duration) (*Worker, error) {
	w, err := s.spawn(cameraID, streamURL)
	if err != nil {
		return nil, err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	fail := func(cause error) (*Worker, error) {
		s.kill(w)
		return nil, cause
	}
	select {
	case <-w.firstFrame:
	case pattern := <-w.failed:
		return fail(fmt.Errorf("%s: %s", pattern, w.stderr.String()))
	case <-w.done:
		select {
		case <-w.firstFrame:
		default:
			return nil, &errs.ProcessExitError{CameraID: cameraID, Err: w.exitErr, Stderr: w.stderr.String()}
		}
	case <-timer.C:
		return fail(fmt.Errorf("no frame within %s", timeout))
	case <-ctx.Done():
		return fail(ctx.Err())
	}
	s.register(w)
	return w, nil
}

func (s *Supervisor) spawn(cameraID int, streamURL string) (*Worker, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := s.command(ctx, streamURL)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = s.stopGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start transcoder: %w", err)
	}

	w := &Worker{
		CameraID:   cameraID,
		URL:        streamURL,
		StartedAt:  time.Now(),
		cmd:        cmd,
		cancel:     cancel,
		firstFrame: make(chan struct{}),
		failed:     make(chan string, 1),
		done:       make(chan struct{}),
		stderr:     newTail(8),
	}
	go s.run(w, stdout, stderr)
	return w, nil
}

// run drains the process output until exit, then unregisters the worker.
const maxStderrLine = 1 << 20

func (s *Supervisor) run(w *Worker, stdout, stderr io.Reader) {
	log := s.log.With(zap.Int("camera_id", w.CameraID))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(stderr)
		sc.Buffer(make([]byte, 0, 64*1024), maxStderrLine)
		for sc.Scan() {
			line := sc.Text()
			w.stderr.add(line)
			log.Debug("transcoder stderr", zap.String("line", line))
			if p := matchFailure(line); p != "" {
				w.failOnce.Do(func() { w.failed <- p })
			}
		}
		if err := sc.Err(); err != nil {
			log.Debug("transcoder stderr scan", zap.Error(err))
		}
		// keep the pipe drained so the process never blocks on stderr
		_, _ = io.Copy(io.Discard, stderr)
	}()

	var splitter FrameSplitter
	buf := make([]byte, 64*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			for _, frame := range splitter.Feed(buf[:n]) {
				s.emit(w, frame)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !w.stopping.Load() {
				log.Debug("transcoder stdout read", zap.Error(err))
			}
			break
		}
	}
	wg.Wait()
	w.exitErr = w.cmd.Wait()
	w.cancel()

	s.mu.Lock()
	w.exited = true
	registered := s.workers[w.CameraID] == w
	if registered {
		delete(s.workers, w.CameraID)
	}
	s.mu.Unlock()
	close(w.done)

	if w.stopping.Load() {
		log.Info("transcoder stopped", zap.Uint64("frames", w.frames.Load()))
		return
	}
	if !registered {
		return
	}
	exitErr := &errs.ProcessExitError{CameraID: w.CameraID, Err: w.exitErr, Stderr: w.stderr.String()}
	log.Warn("transcoder exited", zap.Uint64("frames", w.frames.Load()), zap.Error(exitErr))
	if s.onExit != nil {
		s.onExit(w.CameraID, exitErr)
	}
}

func (s *Supervisor) emit(w *Worker, frame []byte) {
	seq := w.frames.Add(1)
	now := time.Now()
	w.lastFrame.Store(now.UnixNano())
	w.firstOnce.Do(func() { close(w.firstFrame) })
	if s.sink == nil {
		return
	}
	s.sink.Publish(model.Message{
		Type:      model.CategoryFrame,
		CameraID:  w.CameraID,
		SessionID: w.sessionID(),
		Timestamp: now,
		Seq:       seq,
		Data:      frame,
	})
}

// kill requests termination; SIGTERM first, SIGKILL after the grace period.
func (s *Supervisor) kill(w *Worker) {
	w.stopping.Store(true)
	w.cancel()
}

// Stop terminates the worker of a camera. No-op if none is running. It does
// not wait for the process to exit.
func (s *Supervisor) Stop(cameraID int) {
	unlock := s.lockCamera(cameraID)
	defer unlock()

	s.mu.Lock()
	w, ok := s.workers[cameraID]
	if ok {
		delete(s.workers, cameraID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.kill(w)
	s.log.Info("transcoder stop requested", zap.Int("camera_id", cameraID))
}

// StopAll terminates every tracked worker.
func (s *Supervisor) StopAll() {
	for _, id := range s.ListActive() {
		s.Stop(id)
	}
}

// ListActive returns the camera ids with a live worker, ascending.
func (s *Supervisor) ListActive() []int {
	s.mu.Lock()
	ids := make([]int, 0, len(s.workers))
	for id, w := range s.workers {
		if w.Alive() {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()
	sort.Ints(ids)
	return ids
}

// Worker returns the live worker of a camera, if any.
func (s *Supervisor) Worker(cameraID int) (*Worker, bool) {
	w := s.alive(cameraID)
	return w, w != nil
}

// Stats returns snapshots of every live worker.
func (s *Supervisor) Stats() []WorkerStats {
	s.mu.Lock()
	out := make([]WorkerStats, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w.Stats())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}
