// Package store provides SQLite-backed persistence for resolverd's
// server-pool health and query statistics, so a restart does not forget
// which upstream servers were quarantined or reset the counters an
// operator is watching on a dashboard.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a SQLite database connection with thread-safe operations.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// Open opens or creates a SQLite database at path and brings its schema up
// to date.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{conn: conn}

	if err := db.runMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) runMigrations() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	dbDriver, err := sqlite.WithInstance(db.conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Health checks database connectivity.
func (db *DB) Health() error {
	return db.conn.Ping()
}

// ServerHealthRecord is one upstream server's persisted pool state.
type ServerHealthRecord struct {
	IP               string
	Port             uint16
	NoRspCount       int
	QuarantinedUntil time.Time // zero value means not quarantined
}

// SaveServerHealth upserts one server's current health snapshot.
func (db *DB) SaveServerHealth(rec ServerHealthRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var quarantinedUnix int64
	if !rec.QuarantinedUntil.IsZero() {
		quarantinedUnix = rec.QuarantinedUntil.Unix()
	}

	_, err := db.conn.Exec(`
		INSERT INTO server_health (ip, port, no_rsp_count, quarantined_until, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ip, port) DO UPDATE SET
			no_rsp_count = excluded.no_rsp_count,
			quarantined_until = excluded.quarantined_until,
			updated_at = excluded.updated_at
	`, rec.IP, rec.Port, rec.NoRspCount, quarantinedUnix, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("saving server health for %s:%d: %w", rec.IP, rec.Port, err)
	}
	return nil
}

// LoadServerHealth returns every persisted server health record, so a
// restarting resolverd can rebuild its server pool's quarantine state
// instead of starting every server healthy regardless of recent history.
func (db *DB) LoadServerHealth() ([]ServerHealthRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`SELECT ip, port, no_rsp_count, quarantined_until FROM server_health`)
	if err != nil {
		return nil, fmt.Errorf("loading server health: %w", err)
	}
	defer rows.Close()

	var out []ServerHealthRecord
	for rows.Next() {
		var rec ServerHealthRecord
		var port int
		var quarantinedUnix int64
		if err := rows.Scan(&rec.IP, &port, &rec.NoRspCount, &quarantinedUnix); err != nil {
			return nil, fmt.Errorf("scanning server health row: %w", err)
		}
		rec.Port = uint16(port)
		if quarantinedUnix != 0 {
			rec.QuarantinedUntil = time.Unix(quarantinedUnix, 0)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// StatsRecord is the persisted shape of resolver.StatsSnapshot.
type StatsRecord struct {
	QueriesSubmitted   uint64
	QueriesSent        uint64
	QueriesRetried     uint64
	QueriesDelivered   uint64
	QueriesFailed      uint64
	CacheHits          uint64
	SendErrors         uint64
	MalformedResponses uint64
	ServersQuarantined uint64
}

// SaveStats overwrites the single persisted stats row with a fresh snapshot.
func (db *DB) SaveStats(s StatsRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		UPDATE query_stats SET
			queries_submitted = ?, queries_sent = ?, queries_retried = ?,
			queries_delivered = ?, queries_failed = ?, cache_hits = ?,
			send_errors = ?, malformed_responses = ?, servers_quarantined = ?
		WHERE id = 1
	`, s.QueriesSubmitted, s.QueriesSent, s.QueriesRetried, s.QueriesDelivered,
		s.QueriesFailed, s.CacheHits, s.SendErrors, s.MalformedResponses, s.ServersQuarantined)
	if err != nil {
		return fmt.Errorf("saving stats: %w", err)
	}
	return nil
}

// LoadStats returns the last persisted stats snapshot.
func (db *DB) LoadStats() (StatsRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var s StatsRecord
	err := db.conn.QueryRow(`
		SELECT queries_submitted, queries_sent, queries_retried, queries_delivered,
		       queries_failed, cache_hits, send_errors, malformed_responses, servers_quarantined
		FROM query_stats WHERE id = 1
	`).Scan(&s.QueriesSubmitted, &s.QueriesSent, &s.QueriesRetried, &s.QueriesDelivered,
		&s.QueriesFailed, &s.CacheHits, &s.SendErrors, &s.MalformedResponses, &s.ServersQuarantined)
	if err != nil {
		return StatsRecord{}, fmt.Errorf("loading stats: %w", err)
	}
	return s, nil
}
