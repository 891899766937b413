package refcurve

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the reference_pitch table. Execute it via
// [PostgresSource.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS reference_pitch (
    song_id   TEXT             NOT NULL,
    timestamp DOUBLE PRECISION NOT NULL,
    pitch     DOUBLE PRECISION,
    PRIMARY KEY (song_id, timestamp)
);
`

// DB is the database interface used by [PostgresSource]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSource loads reference curves from a PostgreSQL database, keyed by
// song ID. It only reads; curves are authored by an offline extraction
// pipeline.
type PostgresSource struct {
	db DB
}

// NewPostgresSource creates a source backed by the given connection or pool.
func NewPostgresSource(db DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// reference_pitch table if it does not already exist.
func (s *PostgresSource) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("refcurve: migrate: %w", err)
	}
	return nil
}

// Load reads the full curve for a song. An unknown song ID yields
// [ErrCurveEmpty].
func (s *PostgresSource) Load(ctx context.Context, songID string) (*Curve, error) {
	const query = `
		SELECT timestamp, pitch
		FROM reference_pitch
		WHERE song_id = $1
		ORDER BY timestamp`

	rows, err := s.db.Query(ctx, query, songID)
	if err != nil {
		return nil, fmt.Errorf("refcurve: load %q: %w", songID, err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var smp Sample
		if err := rows.Scan(&smp.Timestamp, &smp.Pitch); err != nil {
			return nil, fmt.Errorf("refcurve: load %q scan: %w", songID, err)
		}
		samples = append(samples, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("refcurve: load %q: %w", songID, err)
	}

	curve, err := New(samples)
	if err != nil {
		return nil, fmt.Errorf("refcurve: song %q: %w", songID, err)
	}
	return curve, nil
}
