package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"radyo/pkg/models"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// File is the on-disk catalog layout, shared by the TOML and YAML forms
type File struct {
	Stations []models.Station `toml:"stations" yaml:"stations"`
}

// LoadFile decodes a catalog file chosen by extension (.toml, .yaml, .yml)
func LoadFile(path string) ([]models.Station, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var file File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &file); err != nil {
			return nil, fmt.Errorf("failed to parse catalog TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format: %s", ext)
	}

	return file.Stations, nil
}

// MaxIDLength bounds station ids so they fit a URL path segment
const MaxIDLength = 128

// ValidID reports whether id can address a station in the control API:
// non-empty, at most MaxIDLength bytes, without control characters,
// spaces or slashes
func ValidID(id string) bool {
	return id != "" &&
		len(id) <= MaxIDLength &&
		strings.IndexFunc(id, unicode.IsControl) < 0 &&
		!strings.ContainsAny(id, " /")
}

// StationID derives a stable id from the stream URL for entries that
// do not carry one
func StationID(streamURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(streamURL)).String()
}

// normalize trims entries, fills missing ids, replaces ids the API
// could not address, skips entries without a stream URL and keeps the
// first of duplicate ids
func normalize(stations []models.Station, logger *logrus.Logger) []models.Station {
	seen := make(map[string]bool, len(stations))
	result := make([]models.Station, 0, len(stations))

	for i, s := range stations {
		s.ID = strings.TrimSpace(s.ID)
		s.Name = strings.TrimSpace(s.Name)
		s.StreamURL = strings.TrimSpace(s.StreamURL)
		s.Genre = strings.TrimSpace(s.Genre)
		s.City = strings.TrimSpace(s.City)

		if s.StreamURL == "" {
			logger.WithFields(logrus.Fields{
				"index": i,
				"name":  s.Name,
			}).Warn("Skipping catalog entry without stream URL")
			continue
		}
		if s.ID == "" {
			s.ID = StationID(s.StreamURL)
		} else if !ValidID(s.ID) {
			derived := StationID(s.StreamURL)
			logger.WithFields(logrus.Fields{
				"station_id": s.ID,
				"derived_id": derived,
			}).Warn("Catalog id is not usable in URLs, deriving one from the stream URL")
			s.ID = derived
		}
		if s.Name == "" {
			s.Name = s.StreamURL
		}
		if seen[s.ID] {
			logger.WithField("station_id", s.ID).Warn("Skipping duplicate catalog entry")
			continue
		}

		seen[s.ID] = true
		result = append(result, s)
	}

	return result
}
