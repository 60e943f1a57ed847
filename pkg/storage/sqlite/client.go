// Package sqlite provides a SQLite implementation of the record store.
//
// SQLite is the default backend: a single file, no server, suitable for a
// game shipping with its save data. Tags are stored as a JSON array in a
// TEXT column.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lorekeep/lorekeep-go/pkg/storage"
)

// Config contains configuration for the SQLite record store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// TableName is the table holding records (default "memories").
	TableName string
}

// Client implements storage.RecordStore using SQLite.
type Client struct {
	db    *sql.DB
	table string
}

var _ storage.RecordStore = (*Client)(nil)

// NewClient creates a SQLite record store, creating the database file and
// schema if needed.
func NewClient(cfg *Config) (*Client, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	table := cfg.TableName
	if table == "" {
		table = "memories"
	}

	client := &Client{db: db, table: table}
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			agent_id TEXT NOT NULL,
			short_form TEXT NOT NULL,
			full_form TEXT NOT NULL,
			event_type TEXT NOT NULL,
			importance INTEGER NOT NULL DEFAULT 5,
			emotion TEXT,
			tags TEXT,
			timestamp DATETIME NOT NULL,
			slot_type TEXT,
			superseded INTEGER NOT NULL DEFAULT 0
		)
	`, c.table)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("sqlite: init tables: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_agent ON %s(agent_id)
	`, c.table, c.table)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("sqlite: init tables: %w", err)
	}
	return nil
}

// Insert persists a record.
func (c *Client) Insert(ctx context.Context, rec *storage.Record) error {
	tagsJSON, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: insert: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, agent_id, short_form, full_form, event_type, importance, emotion, tags, timestamp, slot_type, superseded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.table)

	_, err = c.db.ExecContext(ctx, query,
		rec.ID,
		rec.AgentID,
		rec.ShortForm,
		rec.FullForm,
		rec.EventType,
		rec.Importance,
		rec.Emotion,
		string(tagsJSON),
		rec.Timestamp,
		rec.SlotType,
		boolToInt(rec.Superseded),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert: %w", err)
	}
	return nil
}

// MarkSuperseded sets the superseded flag on a record.
func (c *Client) MarkSuperseded(ctx context.Context, agentID string, id int64) error {
	query := fmt.Sprintf(`UPDATE %s SET superseded = 1 WHERE agent_id = ? AND id = ?`, c.table)
	if _, err := c.db.ExecContext(ctx, query, agentID, id); err != nil {
		return fmt.Errorf("sqlite: mark superseded: %w", err)
	}
	return nil
}

// LoadAgent loads every record for an agent in timestamp order.
func (c *Client) LoadAgent(ctx context.Context, agentID string) ([]*storage.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, agent_id, short_form, full_form, event_type, importance, emotion, tags, timestamp, slot_type, superseded
		FROM %s
		WHERE agent_id = ?
		ORDER BY timestamp ASC, id ASC
	`, c.table)

	rows, err := c.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load agent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*storage.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: load agent: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load agent: %w", err)
	}
	return records, nil
}

// DeleteAgent removes every record for an agent.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE agent_id = ?`, c.table)
	if _, err := c.db.ExecContext(ctx, query, agentID); err != nil {
		return fmt.Errorf("sqlite: delete agent: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func scanRecord(rows *sql.Rows) (*storage.Record, error) {
	var rec storage.Record
	var tagsStr sql.NullString
	var emotion sql.NullString
	var slotType sql.NullString
	var superseded int

	err := rows.Scan(
		&rec.ID,
		&rec.AgentID,
		&rec.ShortForm,
		&rec.FullForm,
		&rec.EventType,
		&rec.Importance,
		&emotion,
		&tagsStr,
		&rec.Timestamp,
		&slotType,
		&superseded,
	)
	if err != nil {
		return nil, err
	}

	rec.Emotion = emotion.String
	rec.SlotType = slotType.String
	rec.Superseded = superseded != 0
	if tagsStr.Valid && tagsStr.String != "" {
		if err := json.Unmarshal([]byte(tagsStr.String), &rec.Tags); err != nil {
			return nil, fmt.Errorf("parse tags: %w", err)
		}
	}
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
