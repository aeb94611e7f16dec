package service

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Publisher accepts live messages. Implementations must not block the caller.
type Publisher interface {
	Publish(msg model.Message)
}

// Subscriber is one live connection registered for a single category.
type Subscriber struct {
	ID       uint64
	Category model.Category
	CameraID int // 0 = every camera
	Send     chan []byte

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// Dropped returns how many messages were discarded for this subscriber.
func (s *Subscriber) Dropped() uint64 { return atomic.LoadUint64(&s.dropped) }

// deliver queues data, evicting the oldest queued message when full.
func (s *Subscriber) deliver(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.Send <- data:
		return
	default:
	}
	select {
	case <-s.Send:
		atomic.AddUint64(&s.dropped, 1)
	default:
	}
	select {
	case s.Send <- data:
	default:
		atomic.AddUint64(&s.dropped, 1)
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.Send)
	}
}

// HubStats is a point-in-time view of the hub.
type HubStats struct {
	Published   map[model.Category]uint64 `json:"published"`
	Subscribers map[model.Category]int    `json:"subscribers"`
}

// StreamHub fans live messages out to subscribers, scoped by category.
type StreamHub struct {
	mu          sync.RWMutex
	subscribers map[model.Category]map[uint64]*Subscriber
	nextID      uint64
	published   map[model.Category]*uint64
	sendBuffer  int
	upgrader    websocket.Upgrader
	log         *zap.Logger
}

// NewStreamHub creates a hub; sendBuffer is the per-subscriber queue length.
func NewStreamHub(sendBuffer, readBuf, writeBuf int, log *zap.Logger) *StreamHub {
	if sendBuffer <= 0 {
		sendBuffer = 16
	}
	h := &StreamHub{
		subscribers: make(map[model.Category]map[uint64]*Subscriber),
		published:   make(map[model.Category]*uint64),
		sendBuffer:  sendBuffer,
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			// Dashboard is served from another origin; CORS is enforced at the router.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, c := range model.Categories {
		h.subscribers[c] = make(map[uint64]*Subscriber)
		h.published[c] = new(uint64)
	}
	return h
}

// Subscribe registers a subscriber and returns it with its cleanup function.
func (h *StreamHub) Subscribe(category model.Category, cameraID int) (*Subscriber, func()) {
	s := &Subscriber{
		ID:       atomic.AddUint64(&h.nextID, 1),
		Category: category,
		CameraID: cameraID,
		Send:     make(chan []byte, h.sendBuffer),
	}
	h.mu.Lock()
	h.subscribers[category][s.ID] = s
	h.mu.Unlock()

	h.log.Debug("subscriber registered",
		zap.Uint64("subscriber_id", s.ID),
		zap.String("category", string(category)),
		zap.Int("camera_id", cameraID))
	return s, func() { h.Unsubscribe(s) }
}

// Unsubscribe removes s and closes its queue. Safe to call more than once.
func (h *StreamHub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	if m, ok := h.subscribers[s.Category]; ok {
		delete(m, s.ID)
	}
	h.mu.Unlock()
	s.close()
	h.log.Debug("subscriber unregistered",
		zap.Uint64("subscriber_id", s.ID),
		zap.String("category", string(s.Category)),
		zap.Uint64("dropped", s.Dropped()))
}

// Publish encodes msg once and delivers it to every matching subscriber.
func (h *StreamHub) Publish(msg model.Message) {
	if !msg.Type.Valid() {
		h.log.Warn("publish with unknown category", zap.String("type", string(msg.Type)))
		return
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn("encode live message", zap.Error(err))
		return
	}
	atomic.AddUint64(h.published[msg.Type], 1)

	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subscribers[msg.Type]))
	for _, s := range h.subscribers[msg.Type] {
		if s.CameraID == 0 || s.CameraID == msg.CameraID {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.deliver(raw)
	}
}

// CloseAll unregisters every subscriber (used on shutdown).
func (h *StreamHub) CloseAll() {
	h.mu.Lock()
	var all []*Subscriber
	for c, m := range h.subscribers {
		for _, s := range m {
			all = append(all, s)
		}
		h.subscribers[c] = make(map[uint64]*Subscriber)
	}
	h.mu.Unlock()
	for _, s := range all {
		s.close()
	}
}

// Stats returns publish counters and subscriber counts per category.
func (h *StreamHub) Stats() HubStats {
	st := HubStats{
		Published:   make(map[model.Category]uint64, len(model.Categories)),
		Subscribers: make(map[model.Category]int, len(model.Categories)),
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range model.Categories {
		st.Published[c] = atomic.LoadUint64(h.published[c])
		st.Subscribers[c] = len(h.subscribers[c])
	}
	return st
}

// Upgrader returns the WebSocket upgrader for HTTP handlers.
func (h *StreamHub) Upgrader() *websocket.Upgrader {
	return &h.upgrader
}
