// Package eventsink forwards sensor and count updates to external brokers
// alongside the in-process hub.
package eventsink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"go.uber.org/zap"
)

// Sink delivers one message to an external system.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg model.Message, payload []byte) error
	Close() error
}

// Publisher is the local live channel, usually the stream hub.
type Publisher interface {
	Publish(msg model.Message)
}

// RoutingKey is the topic-exchange key of msg, e.g. "count.camera.7".
func RoutingKey(msg model.Message) string {
	return fmt.Sprintf("%s.camera.%d", msg.Type, msg.CameraID)
}

// Topic is the MQTT topic of msg under prefix, e.g. "village/cameras/7/sensor".
func Topic(prefix string, msg model.Message) string {
	if prefix == "" {
		return fmt.Sprintf("cameras/%d/%s", msg.CameraID, msg.Type)
	}
	return fmt.Sprintf("%s/cameras/%d/%s", prefix, msg.CameraID, msg.Type)
}

// FanoutStats counts broker deliveries.
type FanoutStats struct {
	Forwarded uint64 `json:"forwarded"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// Fanout publishes every message locally and queues sensor and count
// messages for the configured sinks. Frames never leave the process.
type Fanout struct {
	local   Publisher
	sinks   []Sink
	timeout time.Duration
	log     *zap.Logger

	queue     chan model.Message
	done      chan struct{}
	closeOnce sync.Once

	forwarded atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewFanout starts the delivery loop. With no sinks it only forwards locally.
func NewFanout(local Publisher, sinks []Sink, log *zap.Logger) *Fanout {
	f := &Fanout{
		local:   local,
		sinks:   sinks,
		timeout: 5 * time.Second,
		log:     log,
		queue:   make(chan model.Message, 256),
		done:    make(chan struct{}),
	}
	go f.run()
	return f
}

// Publish never blocks the caller; a full broker queue drops the message.
func (f *Fanout) Publish(msg model.Message) {
	if f.local != nil {
		f.local.Publish(msg)
	}
	if len(f.sinks) == 0 || msg.Type == model.CategoryFrame {
		return
	}
	select {
	case <-f.done:
		return
	default:
	}
	select {
	case f.queue <- msg:
	default:
		f.dropped.Add(1)
	}
}

func (f *Fanout) run() {
	for {
		select {
		case <-f.done:
			return
		case msg := <-f.queue:
			f.deliver(msg)
		}
	}
}

func (f *Fanout) deliver(msg model.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		f.log.Error("marshal event", zap.Error(err))
		return
	}
	for _, s := range f.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		err := s.Send(ctx, msg, payload)
		cancel()
		if err != nil {
			f.failed.Add(1)
			f.log.Warn("forward event",
				zap.String("sink", s.Name()),
				zap.String("type", string(msg.Type)),
				zap.Int("camera_id", msg.CameraID),
				zap.Error(err))
			continue
		}
		f.forwarded.Add(1)
	}
}

// Stats returns delivery counters.
func (f *Fanout) Stats() FanoutStats {
	return FanoutStats{
		Forwarded: f.forwarded.Load(),
		Failed:    f.failed.Load(),
		Dropped:   f.dropped.Load(),
	}
}

// Close stops delivery and closes every sink. Queued messages are discarded.
func (f *Fanout) Close() error {
	var firstErr error
	f.closeOnce.Do(func() {
		close(f.done)
		for _, s := range f.sinks {
			if err := s.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close %s: %w", s.Name(), err)
			}
		}
	})
	return firstErr
}
