package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/termsync/termsync/entry"
)

const schema = `
CREATE TABLE IF NOT EXISTS termsync_entries (
	oplog_id    INTEGER     NOT NULL,
	uuid        TEXT        NOT NULL,
	start_time  TIMESTAMPTZ NOT NULL,
	end_time    TIMESTAMPTZ NOT NULL,
	gw_id       INTEGER,
	command     TEXT        NOT NULL,
	description TEXT        NOT NULL DEFAULT '',
	source_host TEXT        NOT NULL DEFAULT '',
	dest_host   TEXT        NOT NULL DEFAULT '',
	operator    TEXT        NOT NULL DEFAULT '',
	tool        TEXT        NOT NULL DEFAULT '',
	user_context TEXT       NOT NULL DEFAULT '',
	output      TEXT        NOT NULL DEFAULT '',
	comments    TEXT        NOT NULL DEFAULT '',
	PRIMARY KEY (oplog_id, start_time, uuid)
)`

// Postgres archives entries in a PostgreSQL table instead of JSON files,
// for teams that want the fallback copies queryable in one place. The
// identity key matches the file naming: (oplog_id, start_time, uuid).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, verifies the connection, and ensures the schema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	config.MaxConns = 10
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Save(ctx context.Context, e *entry.Entry) error {
	query := `
		INSERT INTO termsync_entries (
			oplog_id, uuid, start_time, end_time, gw_id, command, description,
			source_host, dest_host, operator, tool, user_context, output, comments
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (oplog_id, start_time, uuid) DO UPDATE SET
			end_time = EXCLUDED.end_time,
			gw_id = EXCLUDED.gw_id,
			command = EXCLUDED.command,
			description = EXCLUDED.description,
			source_host = EXCLUDED.source_host,
			dest_host = EXCLUDED.dest_host,
			operator = EXCLUDED.operator,
			tool = EXCLUDED.tool,
			user_context = EXCLUDED.user_context,
			output = EXCLUDED.output,
			comments = EXCLUDED.comments
	`
	_, err := p.pool.Exec(ctx, query,
		e.OplogID, e.UUID, e.StartTime, e.EndTime, e.GwID, e.Command, e.Description,
		e.SourceHost, e.DestinationHost, e.Operator, e.Tool, e.UserContext, e.Output, e.Comments,
	)
	return err
}

func (p *Postgres) FindPending(ctx context.Context, oplogID int, uuid string) (*entry.Entry, error) {
	if uuid == "" {
		return nil, nil
	}

	query := `
		SELECT oplog_id, uuid, start_time, end_time, gw_id, command, description,
			source_host, dest_host, operator, tool, user_context, output, comments
		FROM termsync_entries
		WHERE oplog_id = $1 AND uuid = $2
		ORDER BY start_time
		LIMIT 1
	`
	var e entry.Entry
	err := p.pool.QueryRow(ctx, query, oplogID, uuid).Scan(
		&e.OplogID, &e.UUID, &e.StartTime, &e.EndTime, &e.GwID, &e.Command, &e.Description,
		&e.SourceHost, &e.DestinationHost, &e.Operator, &e.Tool, &e.UserContext, &e.Output, &e.Comments,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (p *Postgres) Remove(ctx context.Context, e *entry.Entry) error {
	query := `DELETE FROM termsync_entries WHERE oplog_id = $1 AND start_time = $2 AND uuid = $3`
	_, err := p.pool.Exec(ctx, query, e.OplogID, e.StartTime, e.UUID)
	return err
}
