package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"radyo/internal/auth"
	"radyo/internal/cache"
	"radyo/internal/catalog"
	"radyo/internal/config"
	"radyo/internal/database"
	"radyo/internal/history"
	"radyo/internal/playback"
	"radyo/internal/probe"
	"radyo/internal/session"
	"radyo/pkg/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const testCatalog = `
[[stations]]
id = "trt-fm"
name = "TRT FM"
stream_url = "https://example.com/trtfm.mp3"
genre = "Pop"
city = "Ankara"

[[stations]]
id = "acik"
name = "Açık Radyo"
stream_url = "https://example.com/acik.mp3"
genre = "Alternatif"
city = "İstanbul"

[[stations]]
id = "kapali"
name = "Kapalı Radyo"
stream_url = "https://example.com/broken.mp3"
genre = "Pop"
`

// stubBackend reports readiness synchronously, except for URLs
// containing "broken" which fail to connect
type stubBackend struct{}

func (stubBackend) Name() string            { return "stub" }
func (stubBackend) ReconnectOnResume() bool { return false }

type stubStream struct {
	url    string
	events playback.Events
}

func (stubBackend) Bind(url string, events playback.Events) (playback.Handle, error) {
	return &stubStream{url: url, events: events}, nil
}

func (stubBackend) Start(h playback.Handle) error {
	s := h.(*stubStream)
	if strings.Contains(s.url, "broken") {
		s.events.Failed(playback.ErrorInfo{Kind: playback.ConnectionFailed, Message: "connection refused"})
		return nil
	}
	s.events.Ready()
	return nil
}

func (stubBackend) Pause(playback.Handle) error   { return nil }
func (stubBackend) Resume(playback.Handle) error  { return nil }
func (stubBackend) Release(playback.Handle) error { return nil }

type testEnv struct {
	server   *RadioServer
	http     *httptest.Server
	player   *playback.Manager
	db       *database.Database
	recorder *history.Recorder
	probes   *cache.Memory[probe.StreamInfo]
}

const testPublicURL = "https://radyo.ngrok.app"

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	logger := quietLogger()
	dir := t.TempDir()

	db, err := database.NewDatabase(filepath.Join(dir, "radyo.db"), 1, logger)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	catalogPath := filepath.Join(dir, "stations.toml")
	if err := os.WriteFile(catalogPath, []byte(testCatalog), 0644); err != nil {
		t.Fatalf("Failed to write catalog: %v", err)
	}
	cat, err := catalog.New(catalogPath, db, logger)
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}

	player := playback.NewManager(stubBackend{}, logger)
	recorder := history.NewRecorder(db, 16, logger)
	player.Subscribe(recorder.Observe)

	registry := prometheus.NewRegistry()
	metrics, err := playback.NewMetrics(registry)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	player.Subscribe(metrics.Observe)

	memo := cache.New[bool](time.Minute, time.Minute)
	verifier, err := auth.NewVerifier(token, memo)
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}

	probes := cache.New[probe.StreamInfo](time.Minute, time.Minute)

	cfg := config.DefaultConfig()
	cfg.Logging.RequestLogging = false

	rs := NewRadioServer(cfg, Dependencies{
		DB:       db,
		Catalog:  cat,
		Player:   player,
		Surfaces: session.NewRegistry(time.Minute),
		Verifier: verifier,
		Gatherer: registry,
		Prober:   probe.New(nil, 0, time.Second, probes, logger),

		PublicURL: func() string { return testPublicURL },
	}, logger)

	ts := httptest.NewServer(rs.Handler())

	t.Cleanup(func() {
		rs.Shutdown(context.Background())
		ts.Close()
		player.Close()
		recorder.Close()
		memo.Close()
		probes.Close()
		cat.Close()
		db.Close()
	})

	return &testEnv{server: rs, http: ts, player: player, db: db, recorder: recorder, probes: probes}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.http.URL+path, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("Failed to decode %s: %v", data, err)
	}
	return v
}

type stateBody struct {
	Phase     string          `json:"phase"`
	Epoch     uint64          `json:"epoch"`
	Backend   string          `json:"backend"`
	Station   *models.Station `json:"station"`
	LastError *errorBody      `json:"lastError"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func TestStations(t *testing.T) {
	env := newTestEnv(t, "")

	resp, data := env.do(t, http.MethodGet, "/api/stations", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if stations := decode[[]stationView](t, data); len(stations) != 3 {
		t.Errorf("Expected 3 stations, got %d", len(stations))
	}

	_, data = env.do(t, http.MethodGet, "/api/stations?q=acik", "")
	stations := decode[[]stationView](t, data)
	if len(stations) != 1 || stations[0].ID != "acik" {
		t.Errorf("Expected folded search to find Açık Radyo, got %+v", stations)
	}

	_, data = env.do(t, http.MethodGet, "/api/stations?genre=pop", "")
	if stations := decode[[]stationView](t, data); len(stations) != 2 {
		t.Errorf("Expected 2 pop stations, got %d", len(stations))
	}

	resp, data = env.do(t, http.MethodGet, "/api/stations/trt-fm", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if station := decode[stationView](t, data); station.ID != "trt-fm" || station.Favorite {
		t.Errorf("Unexpected station %+v", station)
	}

	env.do(t, http.MethodPut, "/api/favorites/trt-fm", "")
	_, data = env.do(t, http.MethodGet, "/api/stations/trt-fm", "")
	if station := decode[stationView](t, data); !station.Favorite {
		t.Error("Expected single station to carry its favorite flag")
	}
	resp, _ = env.do(t, http.MethodGet, "/api/stations/missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}

	_, data = env.do(t, http.MethodGet, "/api/genres", "")
	genres := decode[[]string](t, data)
	if strings.Join(genres, ",") != "Alternatif,Pop" {
		t.Errorf("Unexpected genres %v", genres)
	}
}

func TestFavorites(t *testing.T) {
	env := newTestEnv(t, "")

	for i := 0; i < 2; i++ {
		resp, _ := env.do(t, http.MethodPut, "/api/favorites/acik", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200 adding favorite, got %d", resp.StatusCode)
		}
	}
	resp, _ := env.do(t, http.MethodPut, "/api/favorites/missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown station, got %d", resp.StatusCode)
	}

	_, data := env.do(t, http.MethodGet, "/api/favorites", "")
	favorites := decode[[]favoriteView](t, data)
	if len(favorites) != 1 || favorites[0].Station == nil || favorites[0].Station.Name != "Açık Radyo" {
		t.Fatalf("Unexpected favorites %+v", favorites)
	}

	_, data = env.do(t, http.MethodGet, "/api/stations/acik", "")
	if view := decode[stationView](t, data); !view.Favorite {
		t.Error("Expected station to be marked favorite")
	}

	resp, _ = env.do(t, http.MethodDelete, "/api/favorites/acik", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 removing favorite, got %d", resp.StatusCode)
	}
	_, data = env.do(t, http.MethodGet, "/api/favorites", "")
	if favorites := decode[[]favoriteView](t, data); len(favorites) != 0 {
		t.Errorf("Expected no favorites, got %+v", favorites)
	}
}

func TestPlayerCommands(t *testing.T) {
	env := newTestEnv(t, "")

	resp, data := env.do(t, http.MethodPost, "/api/player/play", `{"stationId":"trt-fm"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}
	state := decode[stateBody](t, data)
	if state.Phase != "playing" || state.Station == nil || state.Station.ID != "trt-fm" || state.Backend != "stub" {
		t.Fatalf("Unexpected state after play: %+v", state)
	}

	_, data = env.do(t, http.MethodPost, "/api/player/pause", "")
	if state := decode[stateBody](t, data); state.Phase != "paused" {
		t.Errorf("Expected paused, got %s", state.Phase)
	}

	_, data = env.do(t, http.MethodPost, "/api/player/resume", "")
	if state := decode[stateBody](t, data); state.Phase != "playing" {
		t.Errorf("Expected playing, got %s", state.Phase)
	}

	_, data = env.do(t, http.MethodPost, "/api/player/stop", "")
	if state := decode[stateBody](t, data); state.Phase != "idle" || state.Station != nil {
		t.Errorf("Expected idle without station, got %+v", state)
	}

	// pause from idle is a no-op, not an error
	resp, data = env.do(t, http.MethodPost, "/api/player/pause", "")
	if resp.StatusCode != http.StatusAccepted || decode[stateBody](t, data).Phase != "idle" {
		t.Errorf("Expected ignored pause, got %d %s", resp.StatusCode, data)
	}
}

func TestPlayFailureIsState(t *testing.T) {
	env := newTestEnv(t, "")

	resp, data := env.do(t, http.MethodPost, "/api/player/play", `{"stationId":"kapali"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202 even for a failing stream, got %d", resp.StatusCode)
	}
	state := decode[stateBody](t, data)
	if state.Phase != "failed" || state.LastError == nil || state.LastError.Kind != "connection_failed" {
		t.Errorf("Expected connection failure in state, got %+v", state)
	}
}

func TestPlayRejectsBadRequests(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		body string
		want int
	}{
		{`{"stationId":`, http.StatusBadRequest},
		{`{}`, http.StatusBadRequest},
		{`{"stationId":"missing"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, _ := env.do(t, http.MethodPost, "/api/player/play", tt.body)
		if resp.StatusCode != tt.want {
			t.Errorf("POST play %s: expected %d, got %d", tt.body, tt.want, resp.StatusCode)
		}
	}

	if env.player.State().Phase != playback.PhaseIdle {
		t.Error("Rejected requests must not touch the session")
	}
}

func TestLifecycle(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/player/play", `{"stationId":"trt-fm"}`)

	resp, data := env.do(t, http.MethodPost, "/api/app/lifecycle", `{"foreground":false}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}
	if decode[stateBody](t, data).Phase != "playing" {
		t.Error("Backgrounding must not change the phase")
	}
	if env.player.Foreground() {
		t.Error("Expected background flag to be forwarded")
	}

	resp, _ = env.do(t, http.MethodPost, "/api/app/lifecycle", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without flag, got %d", resp.StatusCode)
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, "")

	env.do(t, http.MethodPost, "/api/player/play", `{"stationId":"trt-fm"}`)
	env.do(t, http.MethodPost, "/api/player/play", `{"stationId":"kapali"}`)

	var plays []struct {
		StationID string `json:"stationId"`
		Outcome   string `json:"outcome"`
		ErrorKind string `json:"errorKind"`
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, data := env.do(t, http.MethodGet, "/api/history?limit=10", "")
		if err := json.Unmarshal(data, &plays); err != nil {
			t.Fatalf("Failed to decode history: %v", err)
		}
		if len(plays) == 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if len(plays) != 2 {
		t.Fatalf("Expected 2 history entries, got %+v", plays)
	}
	if plays[0].StationID != "kapali" || plays[0].Outcome != "failed" || plays[0].ErrorKind != "connection_failed" {
		t.Errorf("Unexpected newest entry %+v", plays[0])
	}

	resp, _ := env.do(t, http.MethodGet, "/api/history?limit=abc", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", resp.StatusCode)
	}
}

func TestSurfaces(t *testing.T) {
	env := newTestEnv(t, "")

	resp, data := env.do(t, http.MethodPost, "/api/surfaces", `{"kind":"mini_player"}`, "User-Agent", "Mozilla/5.0 (iPhone)")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, data)
	}
	registered := decode[struct {
		Surface session.Surface `json:"surface"`
	}](t, data)
	if registered.Surface.Name != "iPhone" {
		t.Errorf("Expected name guessed from user agent, got %q", registered.Surface.Name)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/surfaces/"+registered.Surface.ID+"/heartbeat", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected heartbeat to succeed, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodPost, "/api/surfaces/unknown/heartbeat", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown surface, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/surfaces", `{"kind":"toolbar"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown kind, got %d", resp.StatusCode)
	}

	_, data = env.do(t, http.MethodGet, "/api/surfaces", "")
	listed := decode[struct {
		Surfaces []session.Surface `json:"surfaces"`
		Focused  string            `json:"focused"`
	}](t, data)
	if len(listed.Surfaces) != 1 || listed.Focused != registered.Surface.ID {
		t.Errorf("Unexpected surfaces %+v", listed)
	}

	env.do(t, http.MethodDelete, "/api/surfaces/"+registered.Surface.ID, "")
	_, data = env.do(t, http.MethodGet, "/api/surfaces", "")
	if strings.Contains(string(data), registered.Surface.ID) {
		t.Error("Expected surface to be removed")
	}
}

func TestPlayerEvents(t *testing.T) {
	env := newTestEnv(t, "")

	resp, err := http.Get(env.http.URL + "/api/player/events")
	if err != nil {
		t.Fatalf("Failed to open event stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Unexpected content type %q", ct)
	}

	events := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if data, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
				events <- data
			}
		}
		close(events)
	}()

	next := func() stateBody {
		t.Helper()
		select {
		case data, ok := <-events:
			if !ok {
				t.Fatal("Event stream ended early")
			}
			return decode[stateBody](t, []byte(data))
		case <-time.After(2 * time.Second):
			t.Fatal("Timed out waiting for event")
		}
		return stateBody{}
	}

	if first := next(); first.Phase != "idle" {
		t.Fatalf("Expected the current snapshot first, got %+v", first)
	}

	env.player.Play(env.server.catalog.All()[0])
	if s := next(); s.Phase != "loading" {
		t.Errorf("Expected loading, got %s", s.Phase)
	}
	if s := next(); s.Phase != "playing" {
		t.Errorf("Expected playing, got %s", s.Phase)
	}

	env.player.Close()
	if s := next(); s.Phase != "stopped" {
		t.Errorf("Expected stopped, got %s", s.Phase)
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Error("Expected stream to end after the terminal phase")
		}
	case <-time.After(2 * time.Second):
		t.Error("Event stream stayed open after close")
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, "s3cret")

	resp, _ := env.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected public health check, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/player/state", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/player/state", "", "Authorization", "Bearer wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong token, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/player/state", "", "Authorization", "Bearer s3cret")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 with token, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/config?token=s3cret", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected query token to be accepted, got %d", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/player/play", `{"stationId":"kapali"}`)

	resp, data := env.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	health := decode[HealthStatus](t, data)
	if health.Status != "healthy" || health.Stations != 3 || health.Backend != "stub" || health.Phase != "failed" {
		t.Errorf("Unexpected health %+v", health)
	}
	if n, _ := health.Details["probe_cache_entries"].(float64); n != 0 {
		t.Errorf("Expected an empty stream cache, got %v", health.Details["probe_cache_entries"])
	}

	env.probes.Set("https://example.com/trtfm.mp3", probe.StreamInfo{Format: probe.FormatMP3})
	_, data = env.do(t, http.MethodGet, "/health", "")
	health = decode[HealthStatus](t, data)
	if n, _ := health.Details["probe_cache_entries"].(float64); n != 1 {
		t.Errorf("Expected one cached stream, got %v", health.Details["probe_cache_entries"])
	}

	_, data = env.do(t, http.MethodGet, "/metrics", "")
	if !strings.Contains(string(data), `radyo_playback_failures_total{kind="connection_failed"} 1`) {
		t.Errorf("Expected failure counter in metrics output:\n%s", data)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/nowhere", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodDelete, "/api/player/state", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}

func TestConfigReportsPublicURL(t *testing.T) {
	env := newTestEnv(t, "")

	resp, data := env.do(t, http.MethodGet, "/api/config", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	cfg := decode[ConfigResponse](t, data)
	if cfg.PublicURL != testPublicURL || cfg.Playback.Backend != "stub" {
		t.Errorf("Unexpected config %+v", cfg)
	}
}

func TestRoutingErrors(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodDelete, "/api/player/state", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/player/play", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/stations", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/favorites/acik", http.StatusMethodNotAllowed},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/nowhere", http.StatusNotFound},
		{http.MethodGet, "/nowhere", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp, data := env.do(t, tt.method, tt.path, "")
			if resp.StatusCode != tt.want {
				t.Fatalf("Expected %d, got %d", tt.want, resp.StatusCode)
			}
			if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Errorf("Expected JSON error body, got %q: %s", ct, data)
			}
		})
	}
}
