package playback

import (
	"sync"
)

// Listener is called synchronously after every committed transition,
// on the goroutine holding the manager's turn. Listeners must return
// quickly; commands issued from a listener are queued, not applied
// re-entrantly.
type Listener func(Snapshot)

type listenerEntry struct {
	id       uint64
	listener Listener
}

// Subscribe registers a listener and returns its unsubscribe function.
// Unsubscribing is idempotent and may be done from inside the listener.
func (m *Manager) Subscribe(listener Listener) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	m.listenerSeq++
	id := m.listenerSeq
	m.listeners = append(m.listeners, listenerEntry{id: id, listener: listener})

	var once sync.Once
	return func() {
		once.Do(func() { m.unsubscribe(id) })
	}
}

func (m *Manager) unsubscribe(id uint64) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	for i, entry := range m.listeners {
		if entry.id == id {
			m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
			return
		}
	}
}

// broadcast delivers snap to every listener in subscription order
// (must be called while holding the turn)
func (m *Manager) broadcast(snap Snapshot) {
	m.listenersMu.Lock()
	entries := make([]listenerEntry, len(m.listeners))
	copy(entries, m.listeners)
	m.listenersMu.Unlock()

	for _, entry := range entries {
		m.notify(entry, snap)
	}
}

func (m *Manager) notify(entry listenerEntry, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithField("listener", entry.id).WithField("panic", r).Error("Playback listener panicked")
		}
	}()
	entry.listener(snap.clone())
}

// Watch returns a buffered channel fed with the current snapshot and
// then every committed one, for consumers that prefer channels over
// callbacks. A consumer that lets the buffer fill up is dropped and its
// channel closed. The returned function cancels the watch.
func (m *Manager) Watch(buffer int) (<-chan Snapshot, func()) {
	if buffer <= 0 {
		buffer = 10
	}

	w := &watcher{ch: make(chan Snapshot, buffer)}

	w.mu.Lock()
	w.unsubscribe = m.Subscribe(w.deliver)
	w.ch <- m.State()
	w.mu.Unlock()

	return w.ch, w.cancel
}

type watcher struct {
	mu          sync.Mutex
	ch          chan Snapshot
	closed      bool
	unsubscribe func()
}

func (w *watcher) deliver(snap Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	select {
	case w.ch <- snap:
	default:
		// Channel is full, drop the consumer
		w.closed = true
		close(w.ch)
		w.unsubscribe()
	}
}

func (w *watcher) cancel() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()

	w.unsubscribe()
}
