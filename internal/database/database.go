package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"radyo/pkg/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a looked-up row does not exist
var ErrNotFound = errors.New("not found")

// Database wraps a *sql.DB with the station, favorite and history
// queries. It is safe for concurrent use because the underlying *sql.DB
// is concurrency-safe.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	// Prepared statements for the hot paths
	getStationStmt  *sql.Stmt
	isFavoriteStmt  *sql.Stmt
	recordPlayStmt  *sql.Stmt
	recentPlaysStmt *sql.Stmt
}

// NewDatabase opens (or creates) a SQLite database at the provided path and
// ensures all required tables and indices exist. It also applies lightweight
// performance-oriented pragmas (WAL, cache sizing). Caller should Close() it
// when finished.
func NewDatabase(dbPath string, maxConnections int, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if maxConnections < 1 {
		maxConnections = 1
	}

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - adjusted for SQLite
	conn.SetMaxOpenConns(maxConnections)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Database initialized successfully")
	return db, nil
}

// createTables creates tables and indices if they do not already exist.
// Favorites and history reference stations by id only, so they survive a
// catalog reload that drops a station.
func (db *Database) createTables() error {
	stationsTable := `
	CREATE TABLE IF NOT EXISTS stations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		stream_url TEXT NOT NULL,
		genre TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		logo_url TEXT NOT NULL DEFAULT '',
		bitrate INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL DEFAULT 0
	);`

	favoritesTable := `
	CREATE TABLE IF NOT EXISTS favorites (
		station_id TEXT PRIMARY KEY,
		added_at DATETIME NOT NULL
	);`

	historyTable := `
	CREATE TABLE IF NOT EXISTS play_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		station_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error_kind TEXT NOT NULL DEFAULT '',
		epoch INTEGER NOT NULL,
		started_at DATETIME NOT NULL
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_stations_position ON stations(position);",
		"CREATE INDEX IF NOT EXISTS idx_stations_genre ON stations(genre);",
		"CREATE INDEX IF NOT EXISTS idx_play_history_started ON play_history(started_at);",
	}

	for _, table := range []string{stationsTable, favoritesTable, historyTable} {
		if _, err := db.conn.Exec(table); err != nil {
			return err
		}
	}

	for _, index := range indices {
		if _, err := db.conn.Exec(index); err != nil {
			return err
		}
	}

	return nil
}

// prepareStatements prepares commonly used SQL statements for better performance
func (db *Database) prepareStatements() error {
	var err error

	db.getStationStmt, err = db.conn.Prepare(`
		SELECT id, name, stream_url, genre, city, logo_url, bitrate
		FROM stations WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get station statement: %w", err)
	}

	db.isFavoriteStmt, err = db.conn.Prepare(`
		SELECT COUNT(*) FROM favorites WHERE station_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare is favorite statement: %w", err)
	}

	db.recordPlayStmt, err = db.conn.Prepare(`
		INSERT INTO play_history (station_id, outcome, error_kind, epoch, started_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare record play statement: %w", err)
	}

	db.recentPlaysStmt, err = db.conn.Prepare(`
		SELECT id, station_id, outcome, error_kind, epoch, started_at
		FROM play_history
		ORDER BY started_at DESC, id DESC
		LIMIT ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare recent plays statement: %w", err)
	}

	return nil
}

// ReplaceStations swaps the stored catalog for stations in one
// transaction, keeping their order
func (db *Database) ReplaceStations(stations []models.Station) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM stations"); err != nil {
		return fmt.Errorf("failed to clear stations: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO stations (id, name, stream_url, genre, city, logo_url, bitrate, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert station statement: %w", err)
	}
	defer stmt.Close()

	for i, s := range stations {
		if _, err := stmt.Exec(s.ID, s.Name, s.StreamURL, s.Genre, s.City, s.LogoURL, s.Bitrate, i); err != nil {
			return fmt.Errorf("failed to insert station %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stations: %w", err)
	}

	db.logger.WithField("stations", len(stations)).Debug("Stored station catalog")
	return nil
}

// GetAllStations returns the stored catalog in its original order
func (db *Database) GetAllStations() ([]models.Station, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, stream_url, genre, city, logo_url, bitrate
		FROM stations
		ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStationRows(rows)
}

// GetStationByID returns one station or ErrNotFound
func (db *Database) GetStationByID(id string) (*models.Station, error) {
	var s models.Station
	err := db.getStationStmt.QueryRow(id).Scan(&s.ID, &s.Name, &s.StreamURL, &s.Genre, &s.City, &s.LogoURL, &s.Bitrate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// AddFavorite marks a station as favorite. Adding twice keeps the
// original timestamp.
func (db *Database) AddFavorite(stationID string) error {
	_, err := db.conn.Exec(`
		INSERT INTO favorites (station_id, added_at)
		VALUES (?, ?)
		ON CONFLICT(station_id) DO NOTHING`,
		stationID, time.Now().UTC())
	return err
}

// RemoveFavorite unmarks a station; removing a non-favorite is not an error
func (db *Database) RemoveFavorite(stationID string) error {
	_, err := db.conn.Exec("DELETE FROM favorites WHERE station_id = ?", stationID)
	return err
}

// IsFavorite reports whether a station is marked as favorite
func (db *Database) IsFavorite(stationID string) (bool, error) {
	var count int
	if err := db.isFavoriteStmt.QueryRow(stationID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetFavorites returns all favorites, most recently added first
func (db *Database) GetFavorites() ([]models.Favorite, error) {
	rows, err := db.conn.Query(`
		SELECT station_id, added_at
		FROM favorites
		ORDER BY added_at DESC, station_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	favorites := []models.Favorite{}
	for rows.Next() {
		var f models.Favorite
		if err := rows.Scan(&f.StationID, &f.AddedAt); err != nil {
			return nil, err
		}
		favorites = append(favorites, f)
	}
	return favorites, rows.Err()
}

// RecordPlay appends one history entry and returns its id
func (db *Database) RecordPlay(record models.PlayRecord) (int64, error) {
	if record.StartedAt.IsZero() {
		record.StartedAt = time.Now()
	}

	result, err := db.recordPlayStmt.Exec(
		record.StationID, record.Outcome, record.ErrorKind,
		int64(record.Epoch), record.StartedAt.UTC())
	if err != nil {
		db.logger.WithError(err).WithField("station_id", record.StationID).Error("Failed to record play")
		return 0, err
	}

	return result.LastInsertId()
}

// GetRecentPlays returns up to limit history entries, newest first
func (db *Database) GetRecentPlays(limit int) ([]models.PlayRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.recentPlaysStmt.Query(limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.PlayRecord{}
	for rows.Next() {
		var r models.PlayRecord
		var epoch int64
		if err := rows.Scan(&r.ID, &r.StationID, &r.Outcome, &r.ErrorKind, &epoch, &r.StartedAt); err != nil {
			return nil, err
		}
		r.Epoch = uint64(epoch)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Ping checks that the database is reachable
func (db *Database) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying database connection and prepared statements.
func (db *Database) Close() error {
	statements := []*sql.Stmt{
		db.getStationStmt,
		db.isFavoriteStmt,
		db.recordPlayStmt,
		db.recentPlaysStmt,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				db.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}

	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// scanStationRows scans station result sets. Callers must have already
// deferred rows.Close().
func scanStationRows(rows *sql.Rows) ([]models.Station, error) {
	stations := []models.Station{}
	for rows.Next() {
		var s models.Station
		if err := rows.Scan(&s.ID, &s.Name, &s.StreamURL, &s.Genre, &s.City, &s.LogoURL, &s.Bitrate); err != nil {
			return nil, err
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}
