package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	interfaces "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models"
)

const schema = `CREATE TABLE IF NOT EXISTS cash_postings (
	id           UUID PRIMARY KEY,
	created_at   TIMESTAMPTZ NOT NULL,
	amount       NUMERIC(18,2) NOT NULL CHECK (amount > 0),
	posting_type CHAR(1) NOT NULL CHECK (posting_type IN ('C', 'D')),
	description  VARCHAR(255)
);
CREATE INDEX IF NOT EXISTS cash_postings_created_at_idx ON cash_postings (created_at)`

type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the postings table when it does not exist.
func (p *PostgresLedgerStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (p *PostgresLedgerStore) SavePosting(ctx context.Context, posting models.Posting) error {
	const query = `INSERT INTO cash_postings (id, created_at, amount, posting_type, description)
	VALUES ($1,$2,$3,$4,$5)`

	description := sql.NullString{String: posting.Description, Valid: posting.Description != ""}
	_, err := p.db.ExecContext(ctx, query,
		posting.ID,
		posting.CreatedAt.UTC(),
		posting.Amount.StringFixed(models.BalanceScale),
		string(posting.Kind),
		description,
	)
	if err != nil {
		return fmt.Errorf("failed to save posting: %w", err)
	}
	return nil
}

func (p *PostgresLedgerStore) GetPostingsByDay(ctx context.Context, day time.Time) ([]models.Posting, error) {
	const query = `SELECT id, created_at, amount, posting_type, description FROM cash_postings
	WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at ASC`

	start := models.DayOf(day)
	rows, err := p.db.QueryContext(ctx, query, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to query postings by day: %w", err)
	}
	return scanPostings(rows)
}

func (p *PostgresLedgerStore) GetPostings(ctx context.Context) ([]models.Posting, error) {
	const query = `SELECT id, created_at, amount, posting_type, description FROM cash_postings
	ORDER BY created_at DESC`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query postings: %w", err)
	}
	return scanPostings(rows)
}

func scanPostings(rows *sql.Rows) ([]models.Posting, error) {
	defer func() { _ = rows.Close() }()

	//nolint:prealloc // result count unknown from SQL query
	var postings []models.Posting
	for rows.Next() {
		var (
			posting     models.Posting
			kind        string
			description sql.NullString
		)
		if err := rows.Scan(&posting.ID, &posting.CreatedAt, &posting.Amount, &kind, &description); err != nil {
			return nil, fmt.Errorf("failed to scan posting: %w", err)
		}
		posting.CreatedAt = posting.CreatedAt.UTC()
		posting.Kind = models.PostingKind(kind)
		posting.Description = description.String
		postings = append(postings, posting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read postings: %w", err)
	}
	return postings, nil
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
