package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"permitflow/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ErrConflict means a version-checked write observed a stale version.
var ErrConflict = errors.New("version conflict")

const permitCols = `id,status,work_type,requester_email,requester_name,reviewer_email,approver_email,
valid_from,valid_to,latitude,longitude,exact_location,location_unit,description,
workers_json,payload_json,review_json,approval_json,rejection_json,renewals_json,closure_json,
version,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPermit(row rowScanner) (domain.Permit, error) {
	var p domain.Permit
	var requesterName, reviewerEmail, approverEmail, validFrom, validTo sql.NullString
	var exactLocation, locationUnit, description sql.NullString
	var workers, payload, review, approval, rejection, renewals, closure sql.NullString
	var lat, lng sql.NullFloat64
	err := row.Scan(&p.ID, &p.Status, &p.WorkType, &p.RequesterEmail, &requesterName, &reviewerEmail, &approverEmail,
		&validFrom, &validTo, &lat, &lng, &exactLocation, &locationUnit, &description,
		&workers, &payload, &review, &approval, &rejection, &renewals, &closure,
		&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.RequesterName = requesterName.String
	p.ReviewerEmail = reviewerEmail.String
	p.ApproverEmail = approverEmail.String
	p.ValidFrom = validFrom.String
	p.ValidTo = validTo.String
	p.ExactLocation = exactLocation.String
	p.LocationUnit = locationUnit.String
	p.Description = description.String
	if lat.Valid {
		v := lat.Float64
		p.Latitude = &v
	}
	if lng.Valid {
		v := lng.Float64
		p.Longitude = &v
	}
	for _, col := range []struct {
		src  sql.NullString
		dest any
	}{
		{workers, &p.Workers},
		{payload, &p.Payload},
		{review, &p.Review},
		{approval, &p.Approval},
		{rejection, &p.Rejection},
		{renewals, &p.Renewals},
		{closure, &p.Closure},
	} {
		if !col.src.Valid || col.src.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.src.String), col.dest); err != nil {
			return p, fmt.Errorf("permit %s: corrupt stored json: %w", p.ID, err)
		}
	}
	return p, nil
}

func permitArgs(p domain.Permit) ([]any, error) {
	workers, err := jsonOrNil(p.Workers, len(p.Workers) > 0)
	if err != nil {
		return nil, err
	}
	payload, err := jsonOrNil(p.Payload, len(p.Payload) > 0)
	if err != nil {
		return nil, err
	}
	review, err := jsonOrNil(p.Review, p.Review != nil)
	if err != nil {
		return nil, err
	}
	approval, err := jsonOrNil(p.Approval, p.Approval != nil)
	if err != nil {
		return nil, err
	}
	rejection, err := jsonOrNil(p.Rejection, p.Rejection != nil)
	if err != nil {
		return nil, err
	}
	renewals, err := jsonOrNil(p.Renewals, len(p.Renewals) > 0)
	if err != nil {
		return nil, err
	}
	closure, err := jsonOrNil(p.Closure, p.Closure != nil)
	if err != nil {
		return nil, err
	}
	return []any{
		p.Status, p.WorkType, p.RequesterEmail, nullable(p.RequesterName), nullable(p.ReviewerEmail), nullable(p.ApproverEmail),
		nullable(p.ValidFrom), nullable(p.ValidTo), nullableFloatPtr(p.Latitude), nullableFloatPtr(p.Longitude),
		nullable(p.ExactLocation), nullable(p.LocationUnit), nullable(p.Description),
		workers, payload, review, approval, rejection, renewals, closure,
	}, nil
}

func (r Repo) InsertPermitTx(ctx context.Context, tx *sql.Tx, p domain.Permit) error {
	args, err := permitArgs(p)
	if err != nil {
		return err
	}
	args = append([]any{p.ID}, args...)
	args = append(args, p.Version, p.CreatedAt, p.UpdatedAt)
	_, err = tx.ExecContext(ctx, `INSERT INTO permits(`+permitCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, args...)
	return err
}

func (r Repo) GetPermit(ctx context.Context, id string) (domain.Permit, error) {
	return scanPermit(r.DB.QueryRowContext(ctx, `SELECT `+permitCols+` FROM permits WHERE id=?`, id))
}

func (r Repo) GetPermitTx(ctx context.Context, tx *sql.Tx, id string) (domain.Permit, error) {
	return scanPermit(tx.QueryRowContext(ctx, `SELECT `+permitCols+` FROM permits WHERE id=?`, id))
}

// UpdatePermitTx writes the permit back only if the stored version still
// equals p.Version, bumping the version by one. A stale version yields
// ErrConflict, a missing row ErrNotFound.
func (r Repo) UpdatePermitTx(ctx context.Context, tx *sql.Tx, p domain.Permit) error {
	args, err := permitArgs(p)
	if err != nil {
		return err
	}
	args = append(args, p.UpdatedAt, p.ID, p.Version)
	res, err := tx.ExecContext(ctx, `UPDATE permits SET
status=?,work_type=?,requester_email=?,requester_name=?,reviewer_email=?,approver_email=?,
valid_from=?,valid_to=?,latitude=?,longitude=?,exact_location=?,location_unit=?,description=?,
workers_json=?,payload_json=?,review_json=?,approval_json=?,rejection_json=?,renewals_json=?,closure_json=?,
version=version+1,updated_at=?
WHERE id=? AND version=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM permits WHERE id=?`, p.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

// PermitFilter narrows ListPermits. Zero values mean "no filter".
type PermitFilter struct {
	Status         domain.PermitStatus
	RequesterEmail string
	WorkType       string
	Limit          int
}

func (r Repo) ListPermits(ctx context.Context, f PermitFilter) ([]domain.Permit, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "status=?")
		args = append(args, f.Status)
	}
	if f.RequesterEmail != "" {
		conds = append(conds, "requester_email=?")
		args = append(args, f.RequesterEmail)
	}
	if f.WorkType != "" {
		conds = append(conds, "work_type=?")
		args = append(args, f.WorkType)
	}
	q := `SELECT ` + permitCols + ` FROM permits`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Permit
	for rows.Next() {
		p, err := scanPermit(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) CountPermitsByStatus(ctx context.Context) (map[domain.PermitStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(1) FROM permits GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.PermitStatus]int{}
	for rows.Next() {
		var s domain.PermitStatus
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		res[s] = n
	}
	return res, rows.Err()
}

// MapMarkers lists non-terminal permits that carry coordinates.
func (r Repo) MapMarkers(ctx context.Context) ([]domain.MapMarker, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,work_type,latitude,longitude,COALESCE(exact_location,''),COALESCE(requester_name,''),COALESCE(valid_to,'')
FROM permits WHERE latitude IS NOT NULL AND longitude IS NOT NULL AND status NOT IN (?,?) ORDER BY created_at DESC`,
		domain.PermitClosed, domain.PermitRejected)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MapMarker
	for rows.Next() {
		var m domain.MapMarker
		if err := rows.Scan(&m.PermitID, &m.WorkType, &m.Latitude, &m.Longitude, &m.ExactLocation, &m.RequesterName, &m.ValidTo); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// PermitsReferencingWorker lists non-terminal permits whose worker roster
// includes the given worker id.
func (r Repo) PermitsReferencingWorker(ctx context.Context, workerID string) ([]string, error) {
	return permitsReferencingWorker(ctx, r.DB, workerID)
}

// PermitsReferencingWorkerTx is the in-transaction variant, for checks that
// must hold until the surrounding write commits.
func (r Repo) PermitsReferencingWorkerTx(ctx context.Context, tx *sql.Tx, workerID string) ([]string, error) {
	return permitsReferencingWorker(ctx, tx, workerID)
}

func permitsReferencingWorker(ctx context.Context, q querier, workerID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, workers_json FROM permits WHERE workers_json IS NOT NULL AND status NOT IN (?,?)`,
		domain.PermitClosed, domain.PermitRejected)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		var workersJSON sql.NullString
		if err := rows.Scan(&id, &workersJSON); err != nil {
			return nil, err
		}
		var workers []string
		if workersJSON.Valid && workersJSON.String != "" {
			if err := json.Unmarshal([]byte(workersJSON.String), &workers); err != nil {
				return nil, fmt.Errorf("permit %s: workers_json: %w", id, err)
			}
		}
		for _, w := range workers {
			if w == workerID {
				res = append(res, id)
				break
			}
		}
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func jsonOrNil(v any, present bool) (any, error) {
	if !present {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
