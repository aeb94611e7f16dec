package transcoder

import (
	"context"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/errs"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	threeFrames   = `printf '\377\330AAA\377\331\377\330BB\377\331\377\330C\377\331'`
	silentForever = `exec sleep 30`
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []model.Message
}

func (r *recordingSink) Publish(msg model.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recordingSink) frames() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Message(nil), r.msgs...)
}

// scriptCommand runs the shell script mapped to each URL and counts spawns.
type scriptCommand struct {
	scripts map[string]string
	spawned atomic.Int32
}

func (c *scriptCommand) fn(ctx context.Context, streamURL string) *exec.Cmd {
	c.spawned.Add(1)
	script, ok := c.scripts[streamURL]
	if !ok {
		script = "exit 1"
	}
	return exec.CommandContext(ctx, "sh", "-c", script)
}

func newTestSupervisor(t *testing.T, scripts map[string]string) (*Supervisor, *scriptCommand, *recordingSink) {
	t.Helper()
	cmd := &scriptCommand{scripts: scripts}
	sink := &recordingSink{}
	sup := NewSupervisor(cmd.fn, sink, 500*time.Millisecond, zap.NewNop())
	t.Cleanup(sup.StopAll)
	return sup, cmd, sink
}

func TestStartIsIdempotent(t *testing.T) {
	sup, cmd, _ := newTestSupervisor(t, map[string]string{"rtsp://cam": silentForever})

	w1, reused1, err := sup.Start(7, "rtsp://cam")
	require.NoError(t, err)
	w2, reused2, err := sup.Start(7, "rtsp://cam")
	require.NoError(t, err)

	assert.False(t, reused1)
	assert.True(t, reused2)
	assert.Same(t, w1, w2)
	assert.Equal(t, int32(1), cmd.spawned.Load())
	assert.Equal(t, []int{7}, sup.ListActive())
}

func TestConcurrentStartSpawnsOnce(t *testing.T) {
	sup, cmd, _ := newTestSupervisor(t, map[string]string{"rtsp://cam": silentForever})

	var wg sync.WaitGroup
	workers := make([]*Worker, 16)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, _, err := sup.Start(7, "rtsp://cam")
			assert.NoError(t, err)
			workers[i] = w
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), cmd.spawned.Load())
	for _, w := range workers {
		assert.Same(t, workers[0], w)
	}
}

func TestWorkerPublishesFramesInOrderAndUnregistersOnExit(t *testing.T) {
	sup, _, sink := newTestSupervisor(t, map[string]string{
		"rtsp://cam": threeFrames + "; sleep 0.2",
	})
	exited := make(chan error, 1)
	sup.OnExit(func(cameraID int, err error) {
		assert.Equal(t, 7, cameraID)
		exited <- err
	})

	w, _, err := sup.Start(7, "rtsp://cam")
	require.NoError(t, err)

	select {
	case err := <-exited:
		assert.ErrorIs(t, err, errs.ErrProcessExit)
	case <-time.After(3 * time.Second):
		t.Fatal("exit hook not called")
	}
	<-w.Done()
	assert.Empty(t, sup.ListActive())

	got := sink.frames()
	require.Len(t, got, 3)
	want := [][]byte{
		{0xFF, 0xD8, 'A', 'A', 'A', 0xFF, 0xD9},
		{0xFF, 0xD8, 'B', 'B', 0xFF, 0xD9},
		{0xFF, 0xD8, 'C', 0xFF, 0xD9},
	}
	for i, msg := range got {
		assert.Equal(t, model.CategoryFrame, msg.Type)
		assert.Equal(t, 7, msg.CameraID)
		assert.Equal(t, uint64(i+1), msg.Seq)
		assert.Equal(t, want[i], msg.Data)
	}
}

func TestOversizedStderrLineDoesNotStallFrames(t *testing.T) {
	// one stderr line twice the scanner limit, written before any frame
	longLine := `head -c 2097152 /dev/zero | tr '\0' x >&2; echo >&2`
	sup, _, sink := newTestSupervisor(t, map[string]string{
		"rtsp://cam": longLine + "; " + threeFrames + "; sleep 0.2",
	})
	exited := make(chan error, 1)
	sup.OnExit(func(_ int, err error) { exited <- err })

	_, _, err := sup.Start(7, "rtsp://cam")
	require.NoError(t, err)

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("transcoder blocked on stderr")
	}
	assert.Len(t, sink.frames(), 3)
}

func TestStopTerminatesAndIsIdempotent(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, map[string]string{"rtsp://cam": silentForever})
	var hookCalled atomic.Bool
	sup.OnExit(func(int, error) { hookCalled.Store(true) })

	w, _, err := sup.Start(3, "rtsp://cam")
	require.NoError(t, err)

	sup.Stop(3)
	sup.Stop(3)
	sup.Stop(99)

	select {
	case <-w.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not exit after stop")
	}
	assert.Empty(t, sup.ListActive())
	assert.False(t, hookCalled.Load(), "explicit stop is not an unexpected exit")
}

func TestStartAfterStopSpawnsFreshWorker(t *testing.T) {
	sup, cmd, _ := newTestSupervisor(t, map[string]string{"rtsp://cam": silentForever})

	w1, _, err := sup.Start(3, "rtsp://cam")
	require.NoError(t, err)
	sup.Stop(3)
	w2, reused, err := sup.Start(3, "rtsp://cam")
	require.NoError(t, err)

	assert.False(t, reused)
	assert.NotSame(t, w1, w2)
	assert.Equal(t, int32(2), cmd.spawned.Load())
	assert.Equal(t, []int{3}, sup.ListActive())
}

func TestStopAll(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, map[string]string{"rtsp://cam": silentForever})
	for _, id := range []int{1, 2, 3} {
		_, _, err := sup.Start(id, "rtsp://cam")
		require.NoError(t, err)
	}
	assert.Equal(t, []int{1, 2, 3}, sup.ListActive())

	sup.StopAll()
	assert.Empty(t, sup.ListActive())
}
