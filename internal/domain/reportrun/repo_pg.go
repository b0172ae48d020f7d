package reportrun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/cohortreports/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type runRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &runRepoPG{pool: pool}
}

func (r *runRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const runCols = `id, report_id, parameters, status, requested_by, row_count,
	error, export_location, started_at, completed_at`

func (r *runRepoPG) scanRow(row pgx.Row) (*Run, error) {
	var run Run
	var params []byte
	err := row.Scan(&run.ID, &run.ReportID, &params, &run.Status, &run.RequestedBy, &run.RowCount,
		&run.Error, &run.ExportLocation, &run.StartedAt, &run.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params, &run.Parameters); err != nil {
		return nil, fmt.Errorf("decode parameters of run %s: %w", run.ID, err)
	}
	return &run, nil
}

func (r *runRepoPG) Create(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	params, err := json.Marshal(run.Parameters)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO report_run (id, report_id, parameters, status, requested_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING started_at`,
		run.ID, run.ReportID, params, run.Status, run.RequestedBy,
	).Scan(&run.StartedAt)
}

func (r *runRepoPG) Get(ctx context.Context, id uuid.UUID, withResult bool) (*Run, error) {
	run, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+runCols+` FROM report_run WHERE id = $1`, id))
	if err != nil || !withResult {
		return run, err
	}

	var raw []byte
	err = r.conn(ctx).QueryRow(ctx, `SELECT result FROM report_run_result WHERE run_id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return run, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &run.Result); err != nil {
		return nil, fmt.Errorf("decode result of run %s: %w", id, err)
	}
	return run, nil
}

func (r *runRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Run, int, error) {
	var where []string
	var args []interface{}
	add := func(col string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.ReportID != "" {
		add("report_id", f.ReportID)
	}
	if f.Status != "" {
		add("status", f.Status)
	}
	if f.RequestedBy != "" {
		add("requested_by", f.RequestedBy)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM report_run`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM report_run%s ORDER BY started_at DESC LIMIT $%d OFFSET $%d`,
			runCols, clause, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Run
	for rows.Next() {
		run, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, run)
	}
	return items, total, rows.Err()
}

func (r *runRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE report_run SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *runRepoPG) Finish(ctx context.Context, run *Run) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE report_run SET status = $2, row_count = $3, error = $4, completed_at = $5
			WHERE id = $1`,
			run.ID, run.Status, run.RowCount, run.Error, run.CompletedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if run.Result == nil {
			return nil
		}

		raw, err := json.Marshal(run.Result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		_, err = r.conn(ctx).Exec(ctx, `
			INSERT INTO report_run_result (run_id, result) VALUES ($1, $2)
			ON CONFLICT (run_id) DO UPDATE SET result = EXCLUDED.result`,
			run.ID, raw)
		return err
	})
}

func (r *runRepoPG) SetExportLocation(ctx context.Context, id uuid.UUID, location string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE report_run SET export_location = $2 WHERE id = $1`, id, location)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
