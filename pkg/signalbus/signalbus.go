// Package signalbus carries time-stamped scalar observations from the
// external face-landmark extractor to whatever inside the engine cares
// to listen — in practice the gesture catalogue.
//
// The bus is single-producer: one face processor pushes signals, and any
// number of handlers may subscribe. It does not buffer or reorder; a
// publish call invokes every handler synchronously, in subscription
// order, on the caller's goroutine.
package signalbus

import (
	"sync"
	"time"
)

// Signal is one observation of one facial dimension: a blendshape
// activation or a head-pose component. It is addressed either by a
// numeric Index or by a string Key, never both — Index is a pointer so
// that index 0 is distinguishable from "no index set".
type Signal struct {
	Key   string
	Index *int
	Value float64
	At    time.Time
}

// ByKey builds a key-addressed signal.
func ByKey(key string, value float64, at time.Time) Signal {
	return Signal{Key: key, Value: value, At: at}
}

// ByIndex builds an index-addressed signal.
func ByIndex(index int, value float64, at time.Time) Signal {
	return Signal{Index: &index, Value: value, At: at}
}

// Handler receives every signal published on the bus it subscribed to.
type Handler func(Signal)

// Bus fans out signals from a single producer to any number of
// subscribed handlers.
type Bus struct {
	mu       sync.Mutex
	handlers []Handler
}

// New creates an empty signal bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a handler. Handlers are invoked in subscription
// order on every Publish call.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers a single signal to every subscribed handler.
func (b *Bus) Publish(s Signal) {
	b.mu.Lock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	for _, h := range handlers {
		h(s)
	}
}

// PublishIndex publishes a single index-addressed observation.
func (b *Bus) PublishIndex(index int, value float64, at time.Time) {
	b.Publish(ByIndex(index, value, at))
}

// PublishKey publishes a single key-addressed observation.
func (b *Bus) PublishKey(key string, value float64, at time.Time) {
	b.Publish(ByKey(key, value, at))
}

// PublishBatch publishes a map of key-addressed observations sharing one
// timestamp, as the face processor does for a whole frame's blendshapes.
func (b *Bus) PublishBatch(values map[string]float64, at time.Time) {
	for key, value := range values {
		b.PublishKey(key, value, at)
	}
}
