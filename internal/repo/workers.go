package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"permitflow/internal/domain"
)

const workerCols = `id,status,requestor_email,current_json,pending_json,version,created_at,updated_at`

func scanWorker(row rowScanner) (domain.Worker, error) {
	var w domain.Worker
	var current, pending sql.NullString
	err := row.Scan(&w.ID, &w.Status, &w.RequestorEmail, &current, &pending, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	if current.Valid && current.String != "" {
		if err := json.Unmarshal([]byte(current.String), &w.Current); err != nil {
			return w, fmt.Errorf("worker %s: corrupt stored json: %w", w.ID, err)
		}
	}
	if pending.Valid && pending.String != "" {
		if err := json.Unmarshal([]byte(pending.String), &w.Pending); err != nil {
			return w, fmt.Errorf("worker %s: corrupt stored json: %w", w.ID, err)
		}
	}
	return w, nil
}

func workerArgs(w domain.Worker) ([]any, error) {
	current, err := jsonOrNil(w.Current, w.Current != nil)
	if err != nil {
		return nil, err
	}
	pending, err := jsonOrNil(w.Pending, w.Pending != nil)
	if err != nil {
		return nil, err
	}
	return []any{w.Status, w.RequestorEmail, current, pending}, nil
}

func (r Repo) InsertWorkerTx(ctx context.Context, tx *sql.Tx, w domain.Worker) error {
	args, err := workerArgs(w)
	if err != nil {
		return err
	}
	args = append([]any{w.ID}, args...)
	args = append(args, w.Version, w.CreatedAt, w.UpdatedAt)
	_, err = tx.ExecContext(ctx, `INSERT INTO workers(`+workerCols+`) VALUES (?,?,?,?,?,?,?,?)`, args...)
	return err
}

func (r Repo) GetWorker(ctx context.Context, id string) (domain.Worker, error) {
	return scanWorker(r.DB.QueryRowContext(ctx, `SELECT `+workerCols+` FROM workers WHERE id=?`, id))
}

func (r Repo) GetWorkerTx(ctx context.Context, tx *sql.Tx, id string) (domain.Worker, error) {
	return scanWorker(tx.QueryRowContext(ctx, `SELECT `+workerCols+` FROM workers WHERE id=?`, id))
}

// UpdateWorkerTx is the version-checked write for workers; see UpdatePermitTx.
func (r Repo) UpdateWorkerTx(ctx context.Context, tx *sql.Tx, w domain.Worker) error {
	args, err := workerArgs(w)
	if err != nil {
		return err
	}
	args = append(args, w.UpdatedAt, w.ID, w.Version)
	res, err := tx.ExecContext(ctx, `UPDATE workers SET status=?,requestor_email=?,current_json=?,pending_json=?,version=version+1,updated_at=? WHERE id=? AND version=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM workers WHERE id=?`, w.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (r Repo) DeleteWorkerTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM workers WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// WorkerFilter narrows ListWorkers. Zero values mean "no filter".
type WorkerFilter struct {
	Status         domain.WorkerStatus
	RequestorEmail string
}

func (r Repo) ListWorkers(ctx context.Context, f WorkerFilter) ([]domain.Worker, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "status=?")
		args = append(args, f.Status)
	}
	if f.RequestorEmail != "" {
		conds = append(conds, "requestor_email=?")
		args = append(args, f.RequestorEmail)
	}
	q := `SELECT ` + workerCols + ` FROM workers`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC"
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) CountWorkersByStatus(ctx context.Context) (map[domain.WorkerStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(1) FROM workers GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.WorkerStatus]int{}
	for rows.Next() {
		var s domain.WorkerStatus
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		res[s] = n
	}
	return res, rows.Err()
}
