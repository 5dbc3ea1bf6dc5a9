package history

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxPageLimit = 100

// PostgresReader reads exchanges straight from the chat_history table.
//
// PostgresReader does NOT own the pgx pool. The caller must close the pool.
type PostgresReader struct {
	pool   *pgxpool.Pool
	schema string
	userID string
}

// PostgresOption configures PostgresReader behavior.
type PostgresOption func(*PostgresReader) error

// WithSchema sets the DB schema (default: "public").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(r *PostgresReader) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("history: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("history: invalid schema identifier")
		}
		r.schema = schema
		return nil
	}
}

// NewPostgresReader constructs a reader scoped to userID.
func NewPostgresReader(pool *pgxpool.Pool, userID string, opts ...PostgresOption) (*PostgresReader, error) {
	r := &PostgresReader{
		pool:   pool,
		schema: "public",
		userID: strings.TrimSpace(userID),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.pool == nil {
		return nil, errors.New("history: nil pool")
	}
	if r.userID == "" {
		return nil, errors.New("history: missing user id")
	}
	return r, nil
}

// ListHistory returns the user's exchanges ordered by created_at DESC.
func (r *PostgresReader) ListHistory(ctx context.Context, skip, limit int) ([]Exchange, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("history: nil reader")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	table := pgIdent(r.schema, "chat_history")
	rows, err := r.pool.Query(ctx,
		`SELECT id, mode, code_context, messages, created_at
		   FROM `+table+`
		  WHERE user_id = $1
		  ORDER BY created_at DESC, id DESC
		  OFFSET $2
		  LIMIT $3`,
		r.userID, skip, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Exchange, 0, limit)
	for rows.Next() {
		var (
			ex   Exchange
			msgs []Message
		)
		if err := rows.Scan(&ex.ID, &ex.Mode, &ex.CodeContext, &msgs, &ex.CreatedAt.Time); err != nil {
			return nil, err
		}
		ex.CreatedAt.Time = ex.CreatedAt.UTC()
		ex.Messages = msgs
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
