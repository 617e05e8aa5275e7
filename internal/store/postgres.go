package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

// PostgresStore keeps each collection in its own table of
// (id TEXT, body JSONB) rows. Tables are created by the migrations.
type PostgresStore struct {
	db *sql.DB
}

var _ DocumentStore = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database handle. The store does not own
// the handle; Close is a no-op so the job queue can share it.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func table(collection string) string {
	return pq.QuoteIdentifier(collection)
}

func (p *PostgresStore) Create(ctx context.Context, collection, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, body) VALUES ($1, $2::jsonb)`, table(collection))
	if _, err := p.db.ExecContext(ctx, query, id, body); err != nil {
		var pqErr interface{ SQLState() string }
		if errors.As(err, &pqErr) && pqErr.SQLState() == "23505" {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert into %s: %w", collection, err)
	}
	return nil
}

func (p *PostgresStore) Replace(ctx context.Context, collection, id string, doc any, opts ...ReplaceOption) error {
	o := applyReplaceOptions(opts)
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	var expected sql.NullInt64
	if o.ExpectedRevision != nil {
		expected = sql.NullInt64{Int64: int64(*o.ExpectedRevision), Valid: true}
	}

	query := fmt.Sprintf(`
		UPDATE %s SET body = $2::jsonb, updated_at = NOW()
		WHERE id = $1
		  AND ($3::bigint IS NULL OR COALESCE((body->>'%s')::bigint, 0) = $3::bigint)`,
		table(collection), RevisionField)

	res, err := p.db.ExecContext(ctx, query, id, body, expected)
	if err != nil {
		return fmt.Errorf("update %s: %w", collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", collection, err)
	}
	if n > 0 {
		return nil
	}

	// Nothing updated: either the id is unknown or the revision is stale.
	exists, err := p.exists(ctx, collection, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrRevisionMismatch
}

func (p *PostgresStore) exists(ctx context.Context, collection, id string) (bool, error) {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table(collection))
	if err := p.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s: %w", collection, err)
	}
	return exists, nil
}

func (p *PostgresStore) Get(ctx context.Context, collection, id string, out any) error {
	var body []byte
	query := fmt.Sprintf(`SELECT body FROM %s WHERE id = $1`, table(collection))
	err := p.db.QueryRowContext(ctx, query, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("select from %s: %w", collection, err)
	}
	return json.Unmarshal(body, out)
}

func (p *PostgresStore) FindAll(ctx context.Context, collection string, filter Filter, out any) error {
	where, args, err := containmentClause(filter)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`SELECT body FROM %s%s ORDER BY created_at, id`, table(collection), where)
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("select from %s: %w", collection, err)
	}
	defer rows.Close()

	var bodies [][]byte
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return fmt.Errorf("scan %s: %w", collection, err)
		}
		bodies = append(bodies, body)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", collection, err)
	}
	return decodeArray(bodies, out)
}

// containmentClause turns exact conditions into a JSONB containment test,
// which the GIN indexes on body serve. Fold conditions compare lower-cased
// text fields.
func containmentClause(filter Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	exact, fold := filter.split()

	var conds []string
	var args []any
	if len(exact) > 0 {
		raw, err := json.Marshal(exact)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter: %w", err)
		}
		args = append(args, raw)
		conds = append(conds, fmt.Sprintf("body @> $%d::jsonb", len(args)))
	}
	for _, k := range slices.Sorted(maps.Keys(fold)) {
		args = append(args, k, fold[k])
		conds = append(conds, fmt.Sprintf("lower(body ->> $%d::text) = lower($%d::text)", len(args)-1, len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (p *PostgresStore) Close(ctx context.Context) error {
	return nil
}
