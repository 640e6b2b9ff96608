package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"radyo/pkg/models"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ErrStationNotFound is returned by Get for unknown ids
var ErrStationNotFound = errors.New("station not found")

// Store persists the loaded catalog; *database.Database satisfies it
type Store interface {
	ReplaceStations(stations []models.Station) error
	GetAllStations() ([]models.Station, error)
}

type reloadFunc func([]models.Station)

// Catalog is the read-only station list shown to the listener. The
// playback manager never consults it; surfaces look stations up here and
// hand the chosen one to Play.
type Catalog struct {
	path   string
	store  Store
	logger *logrus.Logger

	mu       sync.RWMutex
	stations []models.Station
	byID     map[string]int

	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	onReload []reloadFunc
}

// New loads the catalog at path and persists it to store (which may be
// nil). When the file does not exist the last persisted catalog is used.
func New(path string, store Store, logger *logrus.Logger) (*Catalog, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Catalog{
		path:   path,
		store:  store,
		logger: logger,
		byID:   make(map[string]int),
	}

	if err := c.Reload(); err != nil {
		if !errors.Is(err, os.ErrNotExist) || store == nil {
			return nil, err
		}

		stations, dbErr := store.GetAllStations()
		if dbErr != nil {
			return nil, fmt.Errorf("catalog file missing and stored catalog unavailable: %w", dbErr)
		}
		c.set(stations)
		logger.WithFields(logrus.Fields{
			"path":     path,
			"stations": len(stations),
		}).Warn("Catalog file not found, using stored stations")
	}

	return c, nil
}

// Reload re-reads the catalog file. On error the current list is kept.
func (c *Catalog) Reload() error {
	raw, err := LoadFile(c.path)
	if err != nil {
		return err
	}
	stations := normalize(raw, c.logger)

	if c.store != nil {
		if err := c.store.ReplaceStations(stations); err != nil {
			return fmt.Errorf("failed to persist catalog: %w", err)
		}
	}

	c.set(stations)

	c.logger.WithFields(logrus.Fields{
		"path":     c.path,
		"stations": len(stations),
		"skipped":  len(raw) - len(stations),
	}).Info("Station catalog loaded")

	c.mu.RLock()
	callbacks := append([]reloadFunc(nil), c.onReload...)
	c.mu.RUnlock()
	for _, cb := range callbacks {
		cb(c.All())
	}

	return nil
}

// OnReload registers a callback run after every successful reload
func (c *Catalog) OnReload(cb func([]models.Station)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReload = append(c.onReload, cb)
}

func (c *Catalog) set(stations []models.Station) {
	byID := make(map[string]int, len(stations))
	for i, s := range stations {
		byID[s.ID] = i
	}

	c.mu.Lock()
	c.stations = stations
	c.byID = byID
	c.mu.Unlock()
}

// All returns a copy of every station in catalog order
func (c *Catalog) All() []models.Station {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Station, len(c.stations))
	copy(out, c.stations)
	return out
}

// Len returns the number of stations
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stations)
}

// Get returns the station with the given id
func (c *Catalog) Get(id string) (models.Station, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.byID[id]
	if !ok {
		return models.Station{}, ErrStationNotFound
	}
	return c.stations[i], nil
}

// Search filters stations whose name, city or genre contains query and,
// when genre is set, whose genre matches it. Both comparisons ignore
// case and Turkish diacritics.
func (c *Catalog) Search(query, genre string) []models.Station {
	q := Fold(query)
	g := Fold(genre)

	c.mu.RLock()
	defer c.mu.RUnlock()

	result := []models.Station{}
	for _, s := range c.stations {
		if g != "" && Fold(s.Genre) != g {
			continue
		}
		if q != "" &&
			!strings.Contains(Fold(s.Name), q) &&
			!strings.Contains(Fold(s.City), q) &&
			!strings.Contains(Fold(s.Genre), q) {
			continue
		}
		result = append(result, s)
	}
	return result
}

// Genres returns the distinct genres, sorted, using the spelling of
// their first occurrence
func (c *Catalog) Genres() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	genres := []string{}
	for _, s := range c.stations {
		if s.Genre == "" {
			continue
		}
		key := Fold(s.Genre)
		if seen[key] {
			continue
		}
		seen[key] = true
		genres = append(genres, s.Genre)
	}

	sort.Slice(genres, func(i, j int) bool {
		return Fold(genres[i]) < Fold(genres[j])
	})
	return genres
}
