// Package postgres provides a PostgreSQL implementation of the record store,
// for deployments where agent memories live on a shared server rather than
// in a local save file.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/lorekeep/lorekeep-go/pkg/storage"
)

// Config contains configuration for the PostgreSQL record store.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	SSLMode   string
	TableName string
}

// Client implements storage.RecordStore using PostgreSQL.
type Client struct {
	db    *sql.DB
	table string
}

var _ storage.RecordStore = (*Client)(nil)

// NewClient creates a PostgreSQL record store, creating the schema if
// needed.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
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
			id BIGINT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			short_form TEXT NOT NULL,
			full_form TEXT NOT NULL,
			event_type TEXT NOT NULL,
			importance INTEGER NOT NULL DEFAULT 5,
			emotion TEXT,
			tags JSONB,
			timestamp TIMESTAMPTZ NOT NULL,
			slot_type TEXT,
			superseded BOOLEAN NOT NULL DEFAULT FALSE
		)
	`, c.table)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("postgres: init tables: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_agent ON %s(agent_id)
	`, c.table, c.table)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("postgres: init tables: %w", err)
	}
	return nil
}

// Insert persists a record.
func (c *Client) Insert(ctx context.Context, rec *storage.Record) error {
	tagsJSON, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("postgres: insert: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, agent_id, short_form, full_form, event_type, importance, emotion, tags, timestamp, slot_type, superseded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
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
		rec.Superseded,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert: %w", err)
	}
	return nil
}

// MarkSuperseded sets the superseded flag on a record.
func (c *Client) MarkSuperseded(ctx context.Context, agentID string, id int64) error {
	query := fmt.Sprintf(`UPDATE %s SET superseded = TRUE WHERE agent_id = $1 AND id = $2`, c.table)
	if _, err := c.db.ExecContext(ctx, query, agentID, id); err != nil {
		return fmt.Errorf("postgres: mark superseded: %w", err)
	}
	return nil
}

// LoadAgent loads every record for an agent in timestamp order.
func (c *Client) LoadAgent(ctx context.Context, agentID string) ([]*storage.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, agent_id, short_form, full_form, event_type, importance, emotion, tags, timestamp, slot_type, superseded
		FROM %s
		WHERE agent_id = $1
		ORDER BY timestamp ASC, id ASC
	`, c.table)

	rows, err := c.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load agent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*storage.Record
	for rows.Next() {
		var rec storage.Record
		var tagsStr sql.NullString
		var emotion sql.NullString
		var slotType sql.NullString

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
			&rec.Superseded,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: load agent: %w", err)
		}

		rec.Emotion = emotion.String
		rec.SlotType = slotType.String
		if tagsStr.Valid && tagsStr.String != "" {
			if err := json.Unmarshal([]byte(tagsStr.String), &rec.Tags); err != nil {
				return nil, fmt.Errorf("postgres: parse tags: %w", err)
			}
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load agent: %w", err)
	}
	return records, nil
}

// DeleteAgent removes every record for an agent.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE agent_id = $1`, c.table)
	if _, err := c.db.ExecContext(ctx, query, agentID); err != nil {
		return fmt.Errorf("postgres: delete agent: %w", err)
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
