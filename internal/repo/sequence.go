package repo

import (
	"context"
	"database/sql"
	"fmt"
)

// NextID allocates the next display id for a named sequence inside the given
// transaction, e.g. "WP-1001" for ("permit", "WP"). The increment commits or
// rolls back with the caller's transaction, so ids stay gapless per outcome
// and never race.
func (r Repo) NextID(ctx context.Context, tx *sql.Tx, name, prefix string) (string, error) {
	res, err := tx.ExecContext(ctx, `UPDATE sequences SET value=value+1 WHERE name=?`, name)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", fmt.Errorf("sequence %q not initialized", name)
	}
	var value int64
	if err := tx.QueryRowContext(ctx, `SELECT value FROM sequences WHERE name=?`, name).Scan(&value); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d", prefix, value), nil
}
