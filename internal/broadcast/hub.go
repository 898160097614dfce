package broadcast

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/chrisdamba/urbansim/internal/models"
	"github.com/chrisdamba/urbansim/internal/observability"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	defaultWriteTimeout = 10 * time.Second

	// sendBufferSize is how many messages may wait for one subscriber before
	// it is considered stuck and dropped.
	sendBufferSize = 16
)

type subscriber struct {
	id           string
	conn         *websocket.Conn
	mu           sync.Mutex
	writeTimeout time.Duration

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscriber(id string, conn *websocket.Conn, writeTimeout time.Duration) *subscriber {
	return &subscriber{
		id:           id,
		conn:         conn,
		writeTimeout: writeTimeout,
		send:         make(chan []byte, sendBufferSize),
		done:         make(chan struct{}),
	}
}

// WriteMessage sends one frame guarded by the subscriber's mutex and write
// deadline.
func (s *subscriber) WriteMessage(messageType int, data []byte) error {
	if s == nil || s.conn == nil {
		return errors.New("subscriber closed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

// enqueue hands payload to the writer goroutine without blocking. It reports
// false when the queue is full.
func (s *subscriber) enqueue(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Hub is the set of open live-update connections. Each subscriber has its own
// writer goroutine, so publishing never waits on a slow client.
type Hub struct {
	mu           sync.RWMutex
	subscribers  map[string]*subscriber
	writeTimeout time.Duration
	metrics      *observability.Metrics
	now          func() time.Time
}

type HubOption func(*Hub)

func WithHubClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		h.now = now
	}
}

// NewHub returns an empty hub. metrics may be nil.
func NewHub(writeTimeout time.Duration, metrics *observability.Metrics, opts ...HubOption) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	h := &Hub{
		subscribers:  make(map[string]*subscriber),
		writeTimeout: writeTimeout,
		metrics:      metrics,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// add registers s and starts its writer.
func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subscribers[s.id] = s
	h.mu.Unlock()
	h.metrics.SubscriberAdded()
	log.WithField("subscriber", s.id).Debug("subscriber joined")

	go h.writeLoop(s)
}

// writeLoop drains the subscriber's queue. A failed write drops the
// subscriber for good.
func (h *Hub) writeLoop(s *subscriber) {
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.send:
			if err := s.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.WithError(err).WithField("subscriber", s.id).Warn("dropping subscriber after failed write")
				h.remove(s.id)
				return
			}
		}
	}
}

// remove unregisters and closes a subscriber. Safe to call more than once.
func (h *Hub) remove(id string) {
	h.mu.Lock()
	s, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	s.close()
	h.metrics.SubscriberRemoved()
	log.WithField("subscriber", id).Debug("subscriber left")
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.subscribers))
	for id := range h.subscribers {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.remove(id)
	}
}

// Len reports the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast queues payload for every subscriber and returns immediately. A
// subscriber whose queue is full is skipped and dropped; it is never retried.
func (h *Hub) Broadcast(payload []byte) (delivered, failed int) {
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(payload) {
			log.WithField("subscriber", s.id).Warn("dropping subscriber with a full send queue")
			h.remove(s.id)
			failed++
			continue
		}
		delivered++
	}
	return delivered, failed
}

func (h *Hub) BroadcastJSON(v any) (delivered, failed int, err error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, 0, err
	}
	delivered, failed = h.Broadcast(payload)
	return delivered, failed, nil
}

// Notify pushes an application event such as scenario_created to all
// subscribers.
func (h *Hub) Notify(eventType string, data any) {
	delivered, failed, err := h.BroadcastJSON(models.NewEnvelope(eventType, data, h.now()))
	if err != nil {
		log.WithError(err).WithField("type", eventType).Error("encoding event")
		return
	}
	log.WithFields(log.Fields{
		"type":      eventType,
		"delivered": delivered,
		"failed":    failed,
	}).Debug("event queued")
}
