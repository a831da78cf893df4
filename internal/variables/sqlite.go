package variables

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/relay-core/internal/binding"
)

// SQLitePersister keeps variables in the variables table.
type SQLitePersister struct {
	db *sql.DB
}

// NewSQLitePersister creates a persister over db. The variables table is
// created by the migrations.
func NewSQLitePersister(db *sql.DB) *SQLitePersister {
	return &SQLitePersister{db: db}
}

// Load reads every row.
func (p *SQLitePersister) Load(ctx context.Context) (map[string]binding.Value, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT name, kind, value FROM variables")
	if err != nil {
		return nil, fmt.Errorf("querying variables: %w", err)
	}
	defer rows.Close()

	out := make(map[string]binding.Value)
	for rows.Next() {
		var name, kind, value string
		if err := rows.Scan(&name, &kind, &value); err != nil {
			return nil, fmt.Errorf("scanning variable: %w", err)
		}
		switch binding.ValueType(kind) {
		case binding.TypeNumber:
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("variable %s: %w", name, err)
			}
			out[name] = binding.Number(n)
		default:
			out[name] = binding.String(value)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating variables: %w", err)
	}
	return out, nil
}

// Save replaces the table contents with snapshot in one transaction.
func (p *SQLitePersister) Save(ctx context.Context, snapshot map[string]binding.Value) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM variables"); err != nil {
		return fmt.Errorf("clearing variables: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for name, v := range snapshot {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO variables (name, kind, value, updated_at) VALUES (?, ?, ?, ?)",
			name, string(v.Type), v.String(), now,
		); err != nil {
			return fmt.Errorf("inserting variable %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing variables: %w", err)
	}
	return nil
}
