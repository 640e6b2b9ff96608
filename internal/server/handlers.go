package server

import (
	"errors"
	"net/http"

	"radyo/internal/catalog"
	"radyo/pkg/models"

	"github.com/gorilla/mux"
)

// stationView is a catalog entry as the surfaces see it
type stationView struct {
	models.Station
	Favorite bool `json:"favorite"`
}

// withFavorites marks favorite stations; a store error leaves every
// station unmarked
func (rs *RadioServer) withFavorites(stations []models.Station) []stationView {
	favorites := make(map[string]bool)
	if favs, err := rs.db.GetFavorites(); err == nil {
		for _, f := range favs {
			favorites[f.StationID] = true
		}
	} else {
		rs.logger.WithError(err).Warn("Failed to load favorites")
	}

	views := make([]stationView, 0, len(stations))
	for _, s := range stations {
		views = append(views, stationView{Station: s, Favorite: favorites[s.ID]})
	}
	return views
}

// handleGetStations returns the catalog optionally filtered by a search
// query and a genre.
func (rs *RadioServer) handleGetStations(w http.ResponseWriter, r *http.Request) {
	query := sanitizeInput(r.URL.Query().Get("q"))
	genre := sanitizeInput(r.URL.Query().Get("genre"))

	if verr := validateSearchQuery(query); verr != nil {
		rs.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	var stations []models.Station
	if query == "" && genre == "" {
		stations = rs.catalog.All()
	} else {
		stations = rs.catalog.Search(query, genre)
	}

	rs.respondJSON(w, http.StatusOK, rs.withFavorites(stations))
}

// handleGetStation returns a single station by id
func (rs *RadioServer) handleGetStation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if verr := validateStationID(id); verr != nil {
		rs.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	station, err := rs.catalog.Get(id)
	if errors.Is(err, catalog.ErrStationNotFound) {
		rs.respondWithError(w, r, http.StatusNotFound, "Station not found", nil)
		return
	}
	if err != nil {
		rs.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving station", err)
		return
	}

	favorite, err := rs.db.IsFavorite(station.ID)
	if err != nil {
		rs.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving station", err)
		return
	}

	rs.respondJSON(w, http.StatusOK, stationView{Station: station, Favorite: favorite})
}

// handleGetGenres lists the distinct genres of the catalog
func (rs *RadioServer) handleGetGenres(w http.ResponseWriter, r *http.Request) {
	rs.respondJSON(w, http.StatusOK, rs.catalog.Genres())
}
