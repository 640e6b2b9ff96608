package playback

// Handle is the backend's opaque token for one bound stream
type Handle interface{}

// Events receives the asynchronous outcome of a bound stream. The
// manager hands each Bind call a value tied to the request epoch, so
// backends may call these from any goroutine, at any time, any number
// of times; results for superseded requests are discarded.
type Events interface {
	// Ready reports that audio is flowing
	Ready()
	// Failed reports a connection, format or timeout problem
	Failed(info ErrorInfo)
	// Ended reports that the stream stopped on its own
	Ended()
}

// Backend is the platform media capability the manager drives. There
// is one implementation per runtime target; the manager is its sole
// caller and never calls it concurrently.
//
// Methods should return quickly: long-running work such as connecting
// or decoding belongs in the backend's own goroutines, reported back
// through Events.
type Backend interface {
	// Name identifies the implementation in logs and health output
	Name() string

	// ReconnectOnResume reports whether resuming a paused live stream
	// needs a fresh connection (the manager re-enters PhaseLoading)
	// or can continue the paused buffer (straight to PhasePlaying).
	ReconnectOnResume() bool

	Bind(streamURL string, events Events) (Handle, error)
	Start(h Handle) error
	Pause(h Handle) error
	Resume(h Handle) error

	// Release frees the handle. It must not report through the
	// handle's Events afterwards and must not block on teardown.
	Release(h Handle) error
}

// LifecycleObserver is implemented by backends that adjust their
// background-audio policy when the app is foregrounded or backgrounded.
type LifecycleObserver interface {
	SetForeground(foreground bool)
}
