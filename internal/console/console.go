package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"radyo/internal/catalog"
	"radyo/internal/playback"
	"radyo/internal/session"
	"radyo/pkg/models"

	"github.com/chzyer/readline"
	"github.com/sirupsen/logrus"
)

// ErrQuit is returned by Execute when the listener asks to leave
var ErrQuit = errors.New("quit")

const historyLimit = 10

// Store is the part of the database the console reads and writes
type Store interface {
	GetFavorites() ([]models.Favorite, error)
	AddFavorite(stationID string) error
	RemoveFavorite(stationID string) error
	GetRecentPlays(limit int) ([]models.PlayRecord, error)
}

// Options configures the interactive loop
type Options struct {
	Prompt      string
	HistoryFile string
	Heartbeat   time.Duration
}

// Console is a terminal surface. Like every other surface it only
// observes the playback session and sends it commands.
type Console struct {
	player   *playback.Manager
	catalog  *catalog.Catalog
	store    Store
	surfaces *session.Registry
	logger   *logrus.Logger

	mu        sync.Mutex
	listed    []models.Station
	surfaceID string
}

// New creates a console surface
func New(player *playback.Manager, cat *catalog.Catalog, store Store, surfaces *session.Registry, logger *logrus.Logger) *Console {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Console{
		player:   player,
		catalog:  cat,
		store:    store,
		surfaces: surfaces,
		logger:   logger,
	}
}

// Run reads commands until quit, EOF or ctx is cancelled. State
// transitions are printed as they are broadcast.
func (c *Console) Run(ctx context.Context, opts Options) error {
	if opts.Prompt == "" {
		opts.Prompt = "radyo> "
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 30 * time.Second
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          opts.Prompt,
		HistoryFile:     opts.HistoryFile,
		AutoComplete:    c.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to start console: %w", err)
	}
	defer rl.Close()

	if c.surfaces != nil {
		surface, err := c.surfaces.Register(session.KindConsole, "Console", "readline", "local")
		if err != nil {
			return fmt.Errorf("failed to register console surface: %w", err)
		}
		c.mu.Lock()
		c.surfaceID = surface.ID
		c.mu.Unlock()
		defer c.surfaces.Remove(surface.ID)
	}

	unsubscribe := c.player.Subscribe(func(snap playback.Snapshot) {
		fmt.Fprintln(rl.Stdout(), FormatSnapshot(snap))
	})
	defer unsubscribe()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(opts.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				rl.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				c.touch()
			}
		}
	}()

	fmt.Fprintln(rl.Stdout(), FormatSnapshot(c.player.State()))
	fmt.Fprintln(rl.Stdout(), `Type "help" for commands.`)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read command: %w", err)
		}

		out, err := c.Execute(line)
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
			continue
		}
		if out != "" {
			fmt.Fprintln(rl.Stdout(), out)
		}
	}
}

// Execute runs one command line and returns what should be printed
func (c *Console) Execute(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	c.touch()

	cmd := strings.ToLower(fields[0])
	arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	switch cmd {
	case "help", "?":
		return helpText, nil
	case "list", "ls":
		return c.list(arg)
	case "genres":
		return strings.Join(c.catalog.Genres(), "\n"), nil
	case "play":
		station, err := c.resolve(arg)
		if err != nil {
			return "", err
		}
		c.player.Play(station)
		return fmt.Sprintf("Tuning to %s", station.Name), nil
	case "pause":
		c.player.Pause()
		return "", nil
	case "resume":
		c.player.Resume()
		return "", nil
	case "stop":
		c.player.Stop()
		return "", nil
	case "state", "status":
		return FormatSnapshot(c.player.State()), nil
	case "fav":
		station, err := c.resolve(arg)
		if err != nil {
			return "", err
		}
		if err := c.store.AddFavorite(station.ID); err != nil {
			return "", fmt.Errorf("failed to add favorite: %w", err)
		}
		return fmt.Sprintf("Added %s to favorites", station.Name), nil
	case "unfav":
		station, err := c.resolve(arg)
		if err != nil {
			return "", err
		}
		if err := c.store.RemoveFavorite(station.ID); err != nil {
			return "", fmt.Errorf("failed to remove favorite: %w", err)
		}
		return fmt.Sprintf("Removed %s from favorites", station.Name), nil
	case "favs", "favorites":
		return c.favorites()
	case "history":
		return c.history()
	case "bg":
		c.player.SetForeground(false)
		return "App in background", nil
	case "fg":
		c.player.SetForeground(true)
		return "App in foreground", nil
	case "quit", "exit":
		return "", ErrQuit
	default:
		return "", fmt.Errorf("unknown command %q, try help", cmd)
	}
}

func (c *Console) list(query string) (string, error) {
	stations := c.catalog.All()
	if query != "" {
		stations = c.catalog.Search(query, "")
	}
	if len(stations) == 0 {
		return "No stations found", nil
	}

	favorites, err := c.favoriteSet()
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.listed = stations
	c.mu.Unlock()

	return formatStations(stations, favorites), nil
}

func (c *Console) favorites() (string, error) {
	favorites, err := c.store.GetFavorites()
	if err != nil {
		return "", fmt.Errorf("failed to load favorites: %w", err)
	}

	var stations []models.Station
	marked := make(map[string]bool, len(favorites))
	for _, fav := range favorites {
		station, err := c.catalog.Get(fav.StationID)
		if err != nil {
			continue
		}
		stations = append(stations, station)
		marked[station.ID] = true
	}
	if len(stations) == 0 {
		return "No favorites yet", nil
	}

	c.mu.Lock()
	c.listed = stations
	c.mu.Unlock()

	return formatStations(stations, marked), nil
}

func (c *Console) history() (string, error) {
	plays, err := c.store.GetRecentPlays(historyLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}
	if len(plays) == 0 {
		return "Nothing played yet", nil
	}

	var b strings.Builder
	for i, play := range plays {
		if i > 0 {
			b.WriteByte('\n')
		}
		name := play.StationID
		if station, err := c.catalog.Get(play.StationID); err == nil {
			name = station.Name
		}
		outcome := play.Outcome
		if play.ErrorKind != "" {
			outcome += " (" + play.ErrorKind + ")"
		}
		fmt.Fprintf(&b, "%s  %-24s %s", play.StartedAt.Local().Format("Jan 02 15:04"), name, outcome)
	}
	return b.String(), nil
}

// resolve accepts a station id or "#n"/"n" referring to the last listing
func (c *Console) resolve(arg string) (models.Station, error) {
	if arg == "" {
		return models.Station{}, errors.New("missing station, use an id or #n from list")
	}

	if n, err := strconv.Atoi(strings.TrimPrefix(arg, "#")); err == nil {
		c.mu.Lock()
		listed := c.listed
		c.mu.Unlock()
		if listed == nil {
			listed = c.catalog.All()
		}
		if n < 1 || n > len(listed) {
			return models.Station{}, fmt.Errorf("no station #%d in the last list", n)
		}
		return listed[n-1], nil
	}

	station, err := c.catalog.Get(arg)
	if err != nil {
		return models.Station{}, fmt.Errorf("%s: %w", arg, err)
	}
	return station, nil
}

func (c *Console) favoriteSet() (map[string]bool, error) {
	favorites, err := c.store.GetFavorites()
	if err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}
	set := make(map[string]bool, len(favorites))
	for _, fav := range favorites {
		set[fav.StationID] = true
	}
	return set, nil
}

func (c *Console) touch() {
	c.mu.Lock()
	id := c.surfaceID
	c.mu.Unlock()
	if id != "" && c.surfaces != nil {
		c.surfaces.Touch(id)
	}
}

func (c *Console) completer() *readline.PrefixCompleter {
	stationIDs := func(string) []string {
		stations := c.catalog.All()
		ids := make([]string, len(stations))
		for i, s := range stations {
			ids[i] = s.ID
		}
		return ids
	}
	genres := func(string) []string {
		return c.catalog.Genres()
	}

	return readline.NewPrefixCompleter(
		readline.PcItem("list", readline.PcItemDynamic(genres)),
		readline.PcItem("genres"),
		readline.PcItem("play", readline.PcItemDynamic(stationIDs)),
		readline.PcItem("pause"),
		readline.PcItem("resume"),
		readline.PcItem("stop"),
		readline.PcItem("state"),
		readline.PcItem("fav", readline.PcItemDynamic(stationIDs)),
		readline.PcItem("unfav", readline.PcItemDynamic(stationIDs)),
		readline.PcItem("favs"),
		readline.PcItem("history"),
		readline.PcItem("bg"),
		readline.PcItem("fg"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

// FormatSnapshot renders a snapshot as one status line
func FormatSnapshot(snap playback.Snapshot) string {
	line := "[" + snap.Phase.String() + "]"
	if snap.Station != nil {
		line += " " + snap.Station.Name
	}
	if snap.LastError != nil {
		line += ": " + snap.LastError.Error()
	}
	return line
}

func formatStations(stations []models.Station, favorites map[string]bool) string {
	var b strings.Builder
	for i, s := range stations {
		if i > 0 {
			b.WriteByte('\n')
		}
		mark := " "
		if favorites[s.ID] {
			mark = "*"
		}
		fmt.Fprintf(&b, "%3d. %s %-28s %-12s %s", i+1, mark, s.Name, s.Genre, s.ID)
	}
	return b.String()
}

const helpText = `Commands:
  list [query]      list stations, optionally filtered
  genres            list genres
  play <id|#n>      play a station by id or list number
  pause, resume     pause or resume the current station
  stop              stop playback
  state             show the playback state
  fav <id|#n>       add a favorite
  unfav <id|#n>     remove a favorite
  favs              list favorites
  history           show recently played stations
  bg, fg            simulate the app going to background or foreground
  quit              leave the console`
