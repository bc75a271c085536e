package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/versekeeper/versekeeper/pkg/models"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect opens a pool and verifies the connection.
func Connect(ctx context.Context, databaseURL string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.ConnConfig.Host).Str("database", cfg.ConnConfig.Database).Msg("PostgreSQL store connected")
	return &PostgresStore{pool: pool}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS verses (
	id           TEXT PRIMARY KEY,
	book         TEXT NOT NULL,
	chapter      INTEGER NOT NULL,
	start_verse  INTEGER NOT NULL,
	end_verse    INTEGER NOT NULL,
	translation  TEXT NOT NULL DEFAULT '',
	direct_quote TEXT NOT NULL DEFAULT '',
	application  TEXT NOT NULL DEFAULT '',
	explanation  TEXT NOT NULL DEFAULT '',
	feedback     TEXT NOT NULL DEFAULT '',
	score        INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS verses_created_at_idx ON verses (created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate verses: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const verseColumns = `id, book, chapter, start_verse, end_verse, translation,
	direct_quote, application, explanation, feedback, score, created_at, updated_at`

func scanVerse(row pgx.Row) (*models.VerseRecord, error) {
	var rec models.VerseRecord
	err := row.Scan(
		&rec.ID,
		&rec.Reference.Book, &rec.Reference.Chapter, &rec.Reference.StartVerse, &rec.Reference.EndVerse,
		&rec.Translation,
		&rec.Feedback.DirectQuote, &rec.Feedback.Application, &rec.Feedback.Explanation, &rec.Feedback.Feedback, &rec.Feedback.Score,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) CreateVerse(ctx context.Context, rec *models.VerseRecord) error {
	rec.Reference = rec.Reference.Normalize()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	ref, fb := rec.Reference, rec.Feedback

	err := s.pool.QueryRow(ctx,
		`INSERT INTO verses (id, book, chapter, start_verse, end_verse, translation,
			direct_quote, application, explanation, feedback, score)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		rec.ID, ref.Book, ref.Chapter, ref.StartVerse, ref.EndVerse, rec.Translation,
		strings.TrimSpace(fb.DirectQuote), strings.TrimSpace(fb.Application), fb.Explanation, fb.Feedback, fb.Score,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create verse: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVerse(ctx context.Context, id string) (*models.VerseRecord, error) {
	rec, err := scanVerse(s.pool.QueryRow(ctx, `SELECT `+verseColumns+` FROM verses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{Entity: "verse", Key: id}
		}
		return nil, fmt.Errorf("get verse: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListVerses(ctx context.Context, filter ListFilter) ([]models.VerseRecord, error) {
	query := `SELECT ` + verseColumns + ` FROM verses`
	args := []any{}
	if filter.Since != nil {
		query += ` WHERE created_at >= $1`
		args = append(args, *filter.Since)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT %d OFFSET %d`, filter.limit(), max(filter.Offset, 0))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list verses: %w", err)
	}
	defer rows.Close()

	out := []models.VerseRecord{}
	for rows.Next() {
		rec, err := scanVerse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verse: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteVerse(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM verses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete verse: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "verse", Key: id}
	}
	return nil
}

// UpdateFeedback writes all five cached fields in one statement.
func (s *PostgresStore) UpdateFeedback(ctx context.Context, id string, fb models.CachedFeedback) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE verses
		 SET direct_quote = $2, application = $3, explanation = $4, feedback = $5, score = $6, updated_at = NOW()
		 WHERE id = $1`,
		id, strings.TrimSpace(fb.DirectQuote), strings.TrimSpace(fb.Application), fb.Explanation, fb.Feedback, fb.Score,
	)
	if err != nil {
		return fmt.Errorf("update feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "verse", Key: id}
	}
	return nil
}
