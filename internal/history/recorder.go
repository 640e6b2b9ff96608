package history

import (
	"sync"

	"radyo/internal/playback"
	"radyo/pkg/models"

	"github.com/sirupsen/logrus"
)

const (
	OutcomePlaying = "playing"
	OutcomeFailed  = "failed"
)

// Store persists history entries; *database.Database satisfies it
type Store interface {
	RecordPlay(record models.PlayRecord) (int64, error)
}

// Recorder turns playback snapshots into history entries. It records the
// first Playing or Failed outcome of every epoch, so one connection
// attempt yields one entry. Writes happen on a worker goroutine and
// never hold up the playback manager.
type Recorder struct {
	store  Store
	logger *logrus.Logger

	mu        sync.Mutex
	lastEpoch uint64
	closed    bool
	records   chan models.PlayRecord

	wg sync.WaitGroup
}

// NewRecorder starts the worker. buffer bounds how many entries may be
// pending before new ones are dropped.
func NewRecorder(store Store, buffer int, logger *logrus.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	r := &Recorder{
		store:   store,
		logger:  logger,
		records: make(chan models.PlayRecord, buffer),
	}

	r.wg.Add(1)
	go r.worker()

	return r
}

// Observe is a playback.Listener
func (r *Recorder) Observe(snap playback.Snapshot) {
	if snap.Station == nil {
		return
	}

	var record models.PlayRecord
	switch snap.Phase {
	case playback.PhasePlaying:
		record.Outcome = OutcomePlaying
	case playback.PhaseFailed:
		record.Outcome = OutcomeFailed
		if snap.LastError != nil {
			record.ErrorKind = snap.LastError.Kind.String()
		}
	default:
		return
	}
	record.StationID = snap.Station.ID
	record.Epoch = snap.Epoch
	record.StartedAt = snap.UpdatedAt

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || snap.Epoch == r.lastEpoch {
		return
	}
	r.lastEpoch = snap.Epoch

	select {
	case r.records <- record:
	default:
		r.logger.WithField("station_id", record.StationID).Warn("History queue full, dropping entry")
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for record := range r.records {
		if _, err := r.store.RecordPlay(record); err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"station_id": record.StationID,
				"outcome":    record.Outcome,
			}).Error("Failed to record play history")
			continue
		}
		r.logger.WithFields(logrus.Fields{
			"station_id": record.StationID,
			"outcome":    record.Outcome,
			"epoch":      record.Epoch,
		}).Debug("Recorded play history")
	}
}

// Close stops accepting entries and waits for pending ones to be written
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.records)
	r.mu.Unlock()

	r.wg.Wait()
}
