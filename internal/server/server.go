package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"radyo/internal/auth"
	"radyo/internal/catalog"
	"radyo/internal/config"
	"radyo/internal/database"
	"radyo/internal/playback"
	"radyo/internal/probe"
	"radyo/internal/session"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Dependencies are the components the control API exposes
type Dependencies struct {
	DB       *database.Database
	Catalog  *catalog.Catalog
	Player   *playback.Manager
	Surfaces *session.Registry
	Verifier *auth.Verifier
	Gatherer prometheus.Gatherer // serves /metrics when set
	Prober   *probe.Prober       // optional

	// PublicURL reports the tunnel address surfaces can use away from
	// the LAN, or "" when there is none
	PublicURL func() string
}

// RadioServer is the HTTP control API of the daemon. It never holds
// playback state of its own: every response is built from the
// manager's snapshot.
type RadioServer struct {
	config   *config.Config
	db       *database.Database
	catalog  *catalog.Catalog
	player   *playback.Manager
	surfaces *session.Registry
	verifier *auth.Verifier
	gatherer prometheus.Gatherer
	prober   *probe.Prober
	logger   *logrus.Logger

	publicURL func() string

	router     *mux.Router
	httpServer *http.Server
	startedAt  time.Time

	done     chan struct{} // closed on shutdown; ends event streams
	doneOnce sync.Once
}

// NewRadioServer creates the control API and sets up its routes
func NewRadioServer(cfg *config.Config, deps Dependencies, logger *logrus.Logger) *RadioServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	rs := &RadioServer{
		config:    cfg,
		db:        deps.DB,
		catalog:   deps.Catalog,
		player:    deps.Player,
		surfaces:  deps.Surfaces,
		verifier:  deps.Verifier,
		gatherer:  deps.Gatherer,
		prober:    deps.Prober,
		publicURL: deps.PublicURL,
		logger:    logger,
		router:    mux.NewRouter(),
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	rs.setupRoutes()

	rs.httpServer = &http.Server{
		Addr:        cfg.GetAddress(),
		Handler:     rs.Handler(),
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
	}

	return rs
}

func (rs *RadioServer) setupRoutes() {
	r := rs.router

	r.HandleFunc("/health", rs.handleHealthCheck).Methods(http.MethodGet, http.MethodHead)
	if rs.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(rs.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/config", rs.handleGetConfig).Methods(http.MethodGet)

	// Catalog
	api.HandleFunc("/stations", rs.handleGetStations).Methods(http.MethodGet)
	api.HandleFunc("/stations/{id}", rs.handleGetStation).Methods(http.MethodGet)
	api.HandleFunc("/genres", rs.handleGetGenres).Methods(http.MethodGet)

	// Favorites
	api.HandleFunc("/favorites", rs.handleGetFavorites).Methods(http.MethodGet)
	api.HandleFunc("/favorites/{id}", rs.handleAddFavorite).Methods(http.MethodPut)
	api.HandleFunc("/favorites/{id}", rs.handleRemoveFavorite).Methods(http.MethodDelete)

	// Player
	api.HandleFunc("/player/state", rs.handleGetPlayerState).Methods(http.MethodGet)
	api.HandleFunc("/player/play", rs.handlePlay).Methods(http.MethodPost)
	api.HandleFunc("/player/pause", rs.handlePause).Methods(http.MethodPost)
	api.HandleFunc("/player/resume", rs.handleResume).Methods(http.MethodPost)
	api.HandleFunc("/player/stop", rs.handleStop).Methods(http.MethodPost)
	api.HandleFunc("/player/events", rs.handlePlayerEvents).Methods(http.MethodGet)
	api.HandleFunc("/app/lifecycle", rs.handleLifecycle).Methods(http.MethodPost)

	api.HandleFunc("/history", rs.handleGetHistory).Methods(http.MethodGet)

	// Surfaces
	api.HandleFunc("/surfaces", rs.handleGetSurfaces).Methods(http.MethodGet)
	api.HandleFunc("/surfaces", rs.handleRegisterSurface).Methods(http.MethodPost)
	api.HandleFunc("/surfaces/{id}/heartbeat", rs.handleSurfaceHeartbeat).Methods(http.MethodPost)
	api.HandleFunc("/surfaces/{id}", rs.handleRemoveSurface).Methods(http.MethodDelete)

	// mux resolves these per router, so the subrouter needs its own
	for _, router := range []*mux.Router{r, api} {
		router.NotFoundHandler = http.HandlerFunc(rs.handleNotFound)
		router.MethodNotAllowedHandler = http.HandlerFunc(rs.handleMethodNotAllowed)
	}
}

func (rs *RadioServer) handleNotFound(w http.ResponseWriter, r *http.Request) {
	rs.respondWithError(w, r, http.StatusNotFound, "Not found", nil)
}

func (rs *RadioServer) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	rs.respondWithError(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
}

// Handler returns the router wrapped in the middleware chain
func (rs *RadioServer) Handler() http.Handler {
	var h http.Handler = rs.router
	h = rs.authMiddleware(h)
	h = rs.corsMiddleware(h)
	h = rs.requestLoggingMiddleware(h)
	h = rs.panicRecoveryMiddleware(h)
	return h
}

// Start listens on the configured address and blocks until Shutdown
func (rs *RadioServer) Start() error {
	rs.logger.WithFields(logrus.Fields{
		"address":  fmt.Sprintf("http://%s", rs.config.GetAddress()),
		"stations": rs.catalog.Len(),
		"backend":  rs.player.BackendName(),
		"auth":     rs.verifier.Enabled(),
	}).Info("Control API starting")

	if err := rs.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown ends open event streams and gracefully stops the HTTP server
func (rs *RadioServer) Shutdown(ctx context.Context) error {
	rs.doneOnce.Do(func() { close(rs.done) })

	rs.logger.Info("Shutting down control API...")
	if err := rs.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	rs.logger.Info("Control API shutdown complete")
	return nil
}
