package bus

import (
	"log"
	"sync"
	"time"
)

type MsgType string

const (
	MsgQuerySent         MsgType = "query.sent"
	MsgQueryCompleted    MsgType = "query.completed"
	MsgQueryRejected     MsgType = "query.rejected"
	MsgJobStatusChanged  MsgType = "job.status_changed"
	MsgResponseEnqueued  MsgType = "response.enqueued"
	MsgResponseDelivered MsgType = "response.delivered"
	MsgConfigChanged     MsgType = "config.changed"
)

const wildcard MsgType = "*"

type Message struct {
	Type    MsgType     `json:"type"`
	JobID   string      `json:"job_id,omitempty"`
	Turn    *int        `json:"turn,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	Time    time.Time   `json:"time"`
}

type Handler func(msg Message)

type handlerEntry struct {
	id uint64
	h  Handler
}

type MessageBus struct {
	mu       sync.RWMutex
	handlers map[MsgType][]handlerEntry
	nextID   uint64
	history  []Message
	maxHist  int
}

// Subscription removes its handler from the bus when Unsubscribe is called.
type Subscription struct {
	bus     *MessageBus
	msgType MsgType
	id      uint64
	once    sync.Once
}

// Unsubscribe detaches the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.msgType, s.id)
	})
}

func New(maxHistory int) *MessageBus {
	if maxHistory <= 0 {
		maxHistory = 10000
	}
	return &MessageBus{
		handlers: make(map[MsgType][]handlerEntry),
		maxHist:  maxHistory,
	}
}

func (b *MessageBus) Subscribe(msgType MsgType, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[msgType] = append(b.handlers[msgType], handlerEntry{id: b.nextID, h: h})
	return &Subscription{bus: b, msgType: msgType, id: b.nextID}
}

func (b *MessageBus) SubscribeAll(h Handler) *Subscription {
	return b.Subscribe(wildcard, h)
}

func (b *MessageBus) remove(msgType MsgType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[msgType]
	for i, e := range entries {
		if e.id == id {
			kept := make([]handlerEntry, 0, len(entries)-1)
			kept = append(kept, entries[:i]...)
			kept = append(kept, entries[i+1:]...)
			b.handlers[msgType] = kept
			return
		}
	}
}

// Publish records msg and calls matching handlers synchronously on the
// caller's goroutine. A panicking handler does not affect the others.
func (b *MessageBus) Publish(msg Message) {
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}

	b.mu.Lock()
	b.history = append(b.history, msg)
	if len(b.history) > b.maxHist {
		// Copy to a new slice to release the old backing array
		trimmed := make([]Message, b.maxHist)
		copy(trimmed, b.history[len(b.history)-b.maxHist:])
		b.history = trimmed
	}
	// Copy handlers under lock
	specific := make([]handlerEntry, len(b.handlers[msg.Type]))
	copy(specific, b.handlers[msg.Type])
	all := make([]handlerEntry, len(b.handlers[wildcard]))
	copy(all, b.handlers[wildcard])
	b.mu.Unlock()

	for _, e := range specific {
		b.dispatch(e.h, msg, "Handler")
	}
	for _, e := range all {
		b.dispatch(e.h, msg, "Wildcard handler")
	}
}

func (b *MessageBus) dispatch(h Handler, msg Message, kind string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[MessageBus] %s panicked for message type %s: %v", kind, msg.Type, r)
		}
	}()
	h(msg)
}

func (b *MessageBus) History(n int) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 || n > len(b.history) {
		n = len(b.history)
	}
	start := len(b.history) - n
	result := make([]Message, n)
	copy(result, b.history[start:])
	return result
}
