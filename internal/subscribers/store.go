// Package subscribers keeps the mailing list in Postgres.
package subscribers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/samber/lo"
)

// Subscriber is one mailing list entry.
type Subscriber struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	SubscribedAt time.Time `json:"subscribed_at"`
	IPAddress    string    `json:"ip_address"`
}

type dbSubscriber struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	SubscribedAt time.Time `db:"subscribed_at"`
	IPAddress    string    `db:"ip_address"`
}

// ErrInvalidEmail is returned for addresses without an "@".
var ErrInvalidEmail = errors.New("valid email address required")

// ValidEmail applies the signup form rule: non-empty and containing "@".
func ValidEmail(email string) bool {
	return strings.Contains(email, "@")
}

const schema = `CREATE TABLE IF NOT EXISTS subscribers (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	subscribed_at TIMESTAMPTZ NOT NULL,
	ip_address    TEXT NOT NULL DEFAULT 'unknown'
);`

// Store is the Postgres subscriber table.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open connects to the database at dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewStore(db), nil
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate creates the table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate subscribers: %w", err)
	}
	return nil
}

// Add inserts sub unless the email is already present. created is false for
// an existing address.
func (s *Store) Add(ctx context.Context, sub Subscriber) (bool, error) {
	if !ValidEmail(sub.Email) {
		return false, ErrInvalidEmail
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = s.now().UTC()
	}
	if sub.IPAddress == "" {
		sub.IPAddress = "unknown"
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO subscribers (id, email, subscribed_at, ip_address)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING;`,
		sub.ID,
		sub.Email,
		sub.SubscribedAt,
		sub.IPAddress,
	)
	if err != nil {
		return false, fmt.Errorf("insert subscriber: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert subscriber: %w", err)
	}
	return n > 0, nil
}

// All lists every subscriber, oldest first.
func (s *Store) All(ctx context.Context) ([]Subscriber, error) {
	var rows []dbSubscriber
	if err := s.db.SelectContext(
		ctx,
		&rows,
		`SELECT id, email, subscribed_at, ip_address FROM subscribers ORDER BY subscribed_at;`,
	); err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	return lo.Map(rows, func(r dbSubscriber, _ int) Subscriber { return Subscriber(r) }), nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
