package playback

import (
	"sync"
	"sync/atomic"
	"time"

	"radyo/pkg/models"

	"github.com/sirupsen/logrus"
)

// Snapshot is an immutable copy of the playback session. Every commit
// produces a fresh value; readers may keep it as long as they like.
type Snapshot struct {
	Station   *models.Station `json:"station,omitempty"`
	Phase     Phase           `json:"phase"`
	LastError *ErrorInfo      `json:"lastError,omitempty"`
	Epoch     uint64          `json:"epoch"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// clone copies the pointed-to station and error so the copy shares no
// memory with s
func (s Snapshot) clone() Snapshot {
	if s.Station != nil {
		station := *s.Station
		s.Station = &station
	}
	if s.LastError != nil {
		info := *s.LastError
		s.LastError = &info
	}
	return s
}

// session is the live, mutable state. Only the goroutine holding the
// manager's turn touches it.
type session struct {
	station   *models.Station
	phase     Phase
	lastError *ErrorInfo
	epoch     uint64
}

// Manager owns the single "now playing" session and is the only
// component that drives the backend. Commands never block and never
// fail: they queue an event and return, and outcomes are published to
// subscribers.
//
// Events are applied strictly in arrival order by whichever goroutine
// currently holds the turn. A command issued from inside a listener or
// from a backend method that reports synchronously is queued behind the
// current event rather than applied re-entrantly.
type Manager struct {
	backend Backend
	logger  *logrus.Logger

	queueMu  sync.Mutex
	queue    []event
	draining bool

	// guarded by the turn
	session session
	handle  Handle
	bound   bool
	closed  bool

	current    atomic.Pointer[Snapshot]
	foreground atomic.Bool

	listenersMu sync.Mutex
	listeners   []listenerEntry
	listenerSeq uint64
}

// NewManager creates an idle manager driving the given backend
func NewManager(backend Backend, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	m := &Manager{
		backend: backend,
		logger:  logger,
	}
	m.foreground.Store(true)

	initial := Snapshot{Phase: PhaseIdle, UpdatedAt: time.Now()}
	m.current.Store(&initial)
	return m
}

// Play binds the session to station and starts loading it, preempting
// whatever was playing or loading before.
func (m *Manager) Play(station models.Station) {
	m.dispatch(event{kind: cmdPlay, station: station})
}

// Pause pauses a playing session; it is a no-op in any other phase
func (m *Manager) Pause() {
	m.dispatch(event{kind: cmdPause})
}

// Resume resumes a paused session; it is a no-op in any other phase
func (m *Manager) Resume() {
	m.dispatch(event{kind: cmdResume})
}

// Stop releases the backend and returns the session to idle
func (m *Manager) Stop() {
	m.dispatch(event{kind: cmdStop})
}

// SetForeground records an app-lifecycle transition. The phase never
// changes; backends implementing LifecycleObserver are notified.
func (m *Manager) SetForeground(foreground bool) {
	m.dispatch(event{kind: cmdForeground, flag: foreground})
}

// Foreground reports the last recorded app-lifecycle state
func (m *Manager) Foreground() bool {
	return m.foreground.Load()
}

// State returns the latest committed snapshot
func (m *Manager) State() Snapshot {
	return m.current.Load().clone()
}

// BackendName returns the name of the driven backend
func (m *Manager) BackendName() string {
	return m.backend.Name()
}

// Close stops playback, releases the backend and moves the session to
// PhaseStopped. Later commands are ignored. Close waits until the
// teardown has been applied, so it must not be called from a listener.
func (m *Manager) Close() {
	done := make(chan struct{})
	m.dispatch(event{kind: cmdClose, done: done})
	<-done
}

func (m *Manager) dispatch(ev event) {
	m.queueMu.Lock()
	m.queue = append(m.queue, ev)
	if m.draining {
		m.queueMu.Unlock()
		return
	}

	m.draining = true
	for len(m.queue) > 0 {
		next := m.queue[0]
		m.queue[0] = event{}
		m.queue = m.queue[1:]
		m.queueMu.Unlock()

		m.apply(next)

		m.queueMu.Lock()
	}
	m.draining = false
	m.queueMu.Unlock()
}

func (m *Manager) apply(ev event) {
	if ev.done != nil {
		defer close(ev.done)
	}

	if m.closed {
		m.logger.WithField("event", ev.kind).Debug("Playback manager closed, ignoring event")
		return
	}

	switch ev.kind {
	case cmdPlay:
		m.play(ev.station)
	case cmdPause:
		m.pause()
	case cmdResume:
		m.resume()
	case cmdStop:
		m.stop()
	case cmdForeground:
		m.setForeground(ev.flag)
	case cmdClose:
		m.close()
	case cbReady:
		m.ready(ev.epoch)
	case cbFailed:
		m.failed(ev.epoch, ev.info)
	case cbEnded:
		m.ended(ev.epoch)
	}
}

func (m *Manager) play(station models.Station) {
	// Release is requested first but never awaited; the UI sees
	// Loading for the new station right away.
	m.releaseHandle()

	m.session.epoch++
	m.session.station = &station
	m.session.lastError = nil
	m.commit(PhaseLoading)
	m.load()
}

// load binds and starts the current station under the current epoch
func (m *Manager) load() {
	epoch := m.session.epoch
	streamURL := m.session.station.StreamURL
	if streamURL == "" {
		m.fail(NewError(ConnectionFailed, "station %q has no stream URL", m.session.station.ID))
		return
	}

	h, err := m.backend.Bind(streamURL, &epochEvents{manager: m, epoch: epoch})
	if err != nil {
		m.fail(AsErrorInfo(err))
		return
	}
	m.handle = h
	m.bound = true

	if err := m.backend.Start(h); err != nil {
		m.fail(AsErrorInfo(err))
	}
}

func (m *Manager) pause() {
	if m.session.phase != PhasePlaying {
		m.logger.WithField("phase", m.session.phase).Debug("Pause ignored")
		return
	}

	if err := m.backend.Pause(m.handle); err != nil {
		m.fail(AsErrorInfo(err))
		return
	}
	m.commit(PhasePaused)
}

func (m *Manager) resume() {
	if m.session.phase != PhasePaused {
		m.logger.WithField("phase", m.session.phase).Debug("Resume ignored")
		return
	}

	if m.backend.ReconnectOnResume() {
		m.releaseHandle()
		m.session.epoch++
		m.commit(PhaseLoading)
		m.load()
		return
	}

	if err := m.backend.Resume(m.handle); err != nil {
		m.fail(AsErrorInfo(err))
		return
	}
	m.commit(PhasePlaying)
}

func (m *Manager) stop() {
	if m.session.phase == PhaseIdle {
		// nothing bound and nothing in flight
		return
	}

	m.releaseHandle()
	m.session.epoch++
	m.session.station = nil
	m.session.lastError = nil
	m.commit(PhaseIdle)
}

func (m *Manager) close() {
	m.releaseHandle()
	m.session.epoch++
	m.session.station = nil
	m.session.lastError = nil
	m.closed = true
	m.commit(PhaseStopped)
}

func (m *Manager) setForeground(foreground bool) {
	m.foreground.Store(foreground)
	m.logger.WithFields(logrus.Fields{
		"foreground": foreground,
		"phase":      m.session.phase,
	}).Debug("App lifecycle changed")

	if observer, ok := m.backend.(LifecycleObserver); ok {
		observer.SetForeground(foreground)
	}
}

func (m *Manager) ready(epoch uint64) {
	if !m.isCurrent(epoch, "ready") {
		return
	}
	if m.session.phase != PhaseLoading {
		m.logger.WithField("phase", m.session.phase).Debug("Ready ignored outside loading")
		return
	}
	m.commit(PhasePlaying)
}

func (m *Manager) failed(epoch uint64, info ErrorInfo) {
	if !m.isCurrent(epoch, "failed") {
		return
	}
	switch m.session.phase {
	case PhaseLoading, PhasePlaying, PhasePaused:
		m.fail(&info)
	default:
		m.logger.WithField("phase", m.session.phase).Debug("Failure ignored")
	}
}

func (m *Manager) ended(epoch uint64) {
	if !m.isCurrent(epoch, "ended") {
		return
	}
	switch m.session.phase {
	case PhaseLoading, PhasePlaying:
		m.fail(NewError(UnexpectedStreamEnd, "stream ended unexpectedly"))
	default:
		m.logger.WithField("phase", m.session.phase).Debug("End of stream ignored")
	}
}

func (m *Manager) isCurrent(epoch uint64, callback string) bool {
	if epoch == m.session.epoch {
		return true
	}
	m.logger.WithFields(logrus.Fields{
		"callback":      callback,
		"epoch":         epoch,
		"current_epoch": m.session.epoch,
	}).Debug("Discarding stale backend callback")
	return false
}

func (m *Manager) fail(info *ErrorInfo) {
	m.releaseHandle()
	m.session.lastError = info
	m.commit(PhaseFailed)
}

func (m *Manager) releaseHandle() {
	if !m.bound {
		return
	}

	h := m.handle
	m.handle = nil
	m.bound = false
	if err := m.backend.Release(h); err != nil {
		m.logger.WithError(err).WithField("backend", m.backend.Name()).Warn("Backend release failed")
	}
}

// commit publishes the new phase and broadcasts the resulting snapshot
func (m *Manager) commit(phase Phase) {
	previous := m.session.phase
	m.session.phase = phase

	snap := m.snapshot()
	m.current.Store(&snap)

	entry := m.logger.WithFields(logrus.Fields{
		"from":  previous,
		"to":    phase,
		"epoch": snap.Epoch,
	})
	if snap.Station != nil {
		entry = entry.WithField("station_id", snap.Station.ID)
	}
	if snap.LastError != nil {
		entry = entry.WithField("error_kind", snap.LastError.Kind).WithField("error", snap.LastError.Message)
	}
	entry.Info("Playback phase changed")

	m.broadcast(snap)
}

func (m *Manager) snapshot() Snapshot {
	snap := Snapshot{
		Phase:     m.session.phase,
		Epoch:     m.session.epoch,
		UpdatedAt: time.Now(),
	}
	if m.session.station != nil {
		station := *m.session.station
		snap.Station = &station
	}
	if m.session.lastError != nil {
		info := *m.session.lastError
		snap.LastError = &info
	}
	return snap
}

// epochEvents routes backend callbacks for one request epoch
type epochEvents struct {
	manager *Manager
	epoch   uint64
}

func (e *epochEvents) Ready() {
	e.manager.dispatch(event{kind: cbReady, epoch: e.epoch})
}

func (e *epochEvents) Failed(info ErrorInfo) {
	e.manager.dispatch(event{kind: cbFailed, epoch: e.epoch, info: info})
}

func (e *epochEvents) Ended() {
	e.manager.dispatch(event{kind: cbEnded, epoch: e.epoch})
}
