package server

import (
	"errors"
	"net/http"
	"time"

	"radyo/internal/catalog"
	"radyo/pkg/models"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// favoriteView pairs a favorite with its catalog entry. Station is nil
// when the station left the catalog; the favorite is kept regardless.
type favoriteView struct {
	StationID string          `json:"stationId"`
	AddedAt   time.Time       `json:"addedAt"`
	Station   *models.Station `json:"station,omitempty"`
}

// handleGetFavorites lists favorites, newest first
func (rs *RadioServer) handleGetFavorites(w http.ResponseWriter, r *http.Request) {
	favorites, err := rs.db.GetFavorites()
	if err != nil {
		rs.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving favorites", err)
		return
	}

	views := make([]favoriteView, 0, len(favorites))
	for _, f := range favorites {
		view := favoriteView{StationID: f.StationID, AddedAt: f.AddedAt}
		if station, err := rs.catalog.Get(f.StationID); err == nil {
			view.Station = &station
		}
		views = append(views, view)
	}

	rs.respondJSON(w, http.StatusOK, views)
}

// handleAddFavorite marks a catalog station as favorite. Adding twice
// is not an error.
func (rs *RadioServer) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if verr := validateStationID(id); verr != nil {
		rs.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	if _, err := rs.catalog.Get(id); errors.Is(err, catalog.ErrStationNotFound) {
		rs.respondWithError(w, r, http.StatusNotFound, "Station not found", nil)
		return
	}

	if err := rs.db.AddFavorite(id); err != nil {
		rs.respondWithError(w, r, http.StatusInternalServerError, "Error saving favorite", err)
		return
	}

	rs.logger.WithField("station_id", id).Info("Favorite added")
	rs.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"stationId": id,
		"favorite":  true,
	})
}

// handleRemoveFavorite unmarks a station. Removing a station that is not
// a favorite is not an error.
func (rs *RadioServer) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if verr := validateStationID(id); verr != nil {
		rs.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	if err := rs.db.RemoveFavorite(id); err != nil {
		rs.respondWithError(w, r, http.StatusInternalServerError, "Error removing favorite", err)
		return
	}

	rs.logger.WithFields(logrus.Fields{"station_id": id}).Info("Favorite removed")
	rs.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"stationId": id,
		"favorite":  false,
	})
}
