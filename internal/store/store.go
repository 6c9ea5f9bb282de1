// Package store wraps the single embedded SQL database that is NetGuard
// Pro's sole persistence layer (§3, §4.4, C1). All other components
// receive a *Store handle; all in-process reads and writes share one
// connection, so they run one at a time, with writes kept to short-lived
// transactions. WAL mode keeps outside readers from blocking them.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/netguardpro/netguard/internal/registry"
	"github.com/rs/zerolog/log"
)

// Store owns the database handle and the short-lived-transaction
// discipline every writer in the system follows.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if absent) the embedded database at path and
// enables WAL mode so readers never block writers.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// Embedded SQL engines are single-writer; cap the pool so the driver
	// itself serializes writers instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.bootstrap(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema bootstrap: %w", err)
	}
	return s, nil
}

// DB returns the underlying handle for packages (registry, collectors)
// that need direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic. Used by every batch-insert and every
// correlator upsert (§5: "Writes are short, autocommit-sized transactions").
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	return tx.Commit()
}

// bootstrap creates the derived-state tables and collector schema
// templates if they don't already exist. Safe to call on every startup.
func (s *Store) bootstrap() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stmts := []string{
		deviceTableDDL,
		vulnerabilityTableDDL,
		alertTableDDL,
		alertHistoryTableDDL,
		alertRuleTableDDL,
		aiAnalysisTableDDL,
		aiConfigTableDDL,
		positionTableDDL,
		processedFileTableDDL,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec ddl: %w", err)
		}
	}
	return registry.CreateTemplates(ctx, s.db)
}

const deviceTableDDL = `
CREATE TABLE IF NOT EXISTS devices (
	ip_address      TEXT PRIMARY KEY,
	mac_address     TEXT,
	hostname        TEXT,
	vendor          TEXT,
	device_type     TEXT NOT NULL DEFAULT 'Unknown',
	device_category TEXT NOT NULL DEFAULT 'Unknown',
	security_score  INTEGER NOT NULL DEFAULT 100,
	is_trusted      INTEGER NOT NULL DEFAULT 0,
	first_seen      DATETIME NOT NULL,
	last_seen       DATETIME NOT NULL,
	total_packets   INTEGER NOT NULL DEFAULT 0,
	total_bytes     INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

const vulnerabilityTableDDL = `
CREATE TABLE IF NOT EXISTS iot_vulnerabilities (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	device_ip          TEXT NOT NULL,
	vulnerability_type TEXT NOT NULL,
	severity           TEXT NOT NULL,
	description        TEXT NOT NULL,
	recommendation     TEXT,
	detected_at        DATETIME NOT NULL,
	resolved           INTEGER NOT NULL DEFAULT 0,
	resolved_at        DATETIME,
	created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_vuln_dedup ON iot_vulnerabilities(device_ip, vulnerability_type, resolved, detected_at);`

const alertTableDDL = `
CREATE TABLE IF NOT EXISTS security_alerts (
	alert_id                   TEXT PRIMARY KEY,
	severity                   TEXT NOT NULL,
	alert_type                 TEXT NOT NULL,
	title                      TEXT NOT NULL,
	description                TEXT NOT NULL,
	source_ip                  TEXT,
	affected_devices           TEXT NOT NULL DEFAULT '[]',
	threat_indicators          TEXT NOT NULL DEFAULT '[]',
	remediation_steps          TEXT NOT NULL DEFAULT '[]',
	auto_remediation_available INTEGER NOT NULL DEFAULT 0,
	auto_remediation_command   TEXT,
	status                     TEXT NOT NULL DEFAULT 'active',
	created_at                 DATETIME NOT NULL,
	updated_at                 DATETIME NOT NULL,
	resolved_at                DATETIME,
	resolved_by                TEXT,
	recurrence_count           INTEGER NOT NULL DEFAULT 1,
	last_seen                  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_dedup ON security_alerts(alert_type, source_ip, status, last_seen);`

const alertHistoryTableDDL = `
CREATE TABLE IF NOT EXISTS alert_history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	alert_id   TEXT NOT NULL,
	action     TEXT NOT NULL,
	action_by  TEXT,
	notes      TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_alert_history_alert ON alert_history(alert_id);`

const alertRuleTableDDL = `
CREATE TABLE IF NOT EXISTS alert_rules (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	rule_type  TEXT NOT NULL,
	enabled    INTEGER NOT NULL DEFAULT 1,
	params     TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

const aiAnalysisTableDDL = `
CREATE TABLE IF NOT EXISTS ai_analysis (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp             DATETIME NOT NULL,
	threat_level          TEXT,
	network_health_score  INTEGER,
	summary               TEXT,
	threats_detected      TEXT,
	network_insights      TEXT,
	device_analysis       TEXT,
	http_activity         TEXT,
	recommendations       TEXT,
	provider              TEXT,
	success               INTEGER NOT NULL DEFAULT 0,
	error_message         TEXT,
	raw_response          TEXT
);`

const aiConfigTableDDL = `
CREATE TABLE IF NOT EXISTS ai_config (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

const positionTableDDL = `
CREATE TABLE IF NOT EXISTS collector_positions (
	tool        TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	position    INTEGER NOT NULL DEFAULT 0,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (tool, source_id)
);`

const processedFileTableDDL = `
CREATE TABLE IF NOT EXISTS processed_files (
	tool        TEXT NOT NULL,
	file_name   TEXT NOT NULL,
	processed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (tool, file_name)
);`
