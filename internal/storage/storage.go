package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bookpage-app/bookpage/internal/outbox"
	"github.com/bookpage-app/bookpage/libs/db"
)

// Store is the Postgres persistence layer. Booking exclusivity is enforced
// by an exclusion constraint on (business_id, tstzrange(start_time,
// end_time)) over confirmed rows; see migrations/0001_init.sql.
type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func New(pool *db.Pool, outboxRepo *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: outboxRepo}
}

// isExclusionConflict reports whether err is the exclusion constraint
// rejecting an overlapping confirmed booking (SQLSTATE 23P01).
func isExclusionConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
