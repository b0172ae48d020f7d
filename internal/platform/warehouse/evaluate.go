package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ehr/cohortreports/internal/platform/metrics"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

// EvaluateToMap runs a two-column query (id, value) and returns value by id.
// When an id repeats, the later row wins.
func (s *Service) EvaluateToMap(ctx context.Context, qb *SqlQueryBuilder) (map[int]interface{}, error) {
	out := make(map[int]interface{})
	err := s.query(ctx, "map", qb, func(rows *sql.Rows) error {
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		if len(cols) != 2 {
			return fmt.Errorf("expected 2 columns (id, value), got %d", len(cols))
		}
		for rows.Next() {
			var rawID, value interface{}
			if err := rows.Scan(&rawID, &value); err != nil {
				return fmt.Errorf("scan row: %w", err)
			}
			id, ok, err := toID(rawID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			out[id] = normalize(value)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EvaluateToRecords runs a query whose first column is the id and returns the
// remaining columns as a Record keyed by column label.
func (s *Service) EvaluateToRecords(ctx context.Context, qb *SqlQueryBuilder) (map[int]evaluation.Record, error) {
	out := make(map[int]evaluation.Record)
	err := s.query(ctx, "records", qb, func(rows *sql.Rows) error {
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		if len(cols) < 2 {
			return fmt.Errorf("expected an id column and at least one value column, got %d columns", len(cols))
		}
		for rows.Next() {
			values := make([]interface{}, len(cols))
			ptrs := make([]interface{}, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return fmt.Errorf("scan row: %w", err)
			}
			id, ok, err := toID(values[0])
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			rec := make(evaluation.Record, len(cols)-1)
			for i, c := range cols[1:] {
				rec[c] = normalize(values[i+1])
			}
			out[id] = rec
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EvaluateToIDs returns the distinct ids of the first column in row order. An
// empty result is an empty, non-nil slice.
func (s *Service) EvaluateToIDs(ctx context.Context, qb *SqlQueryBuilder) ([]int, error) {
	ids := []int{}
	seen := make(map[int]bool)
	err := s.query(ctx, "ids", qb, func(rows *sql.Rows) error {
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		for rows.Next() {
			values := make([]interface{}, len(cols))
			ptrs := make([]interface{}, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return fmt.Errorf("scan row: %w", err)
			}
			id, ok, err := toID(values[0])
			if err != nil {
				return err
			}
			if ok && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Service) query(ctx context.Context, kind string, qb *SqlQueryBuilder, fn func(*sql.Rows) error) (err error) {
	query, args, err := qb.Compile()
	if err != nil {
		return err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		metrics.ObserveQuery(kind, elapsed, err)
		evt := s.logger.Debug()
		if err != nil {
			evt = s.logger.Warn().Err(err)
		}
		evt.Str("kind", kind).Int("args", len(args)).Dur("latency", elapsed).Msg("warehouse query")
	}()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query warehouse (%s): %w", kind, err)
	}
	defer rows.Close()

	return fn(rows)
}

// toID converts a scanned id column. ok is false for NULL ids, which are skipped.
func toID(v interface{}) (id int, ok bool, err error) {
	switch t := v.(type) {
	case nil:
		return 0, false, nil
	case int64:
		return int(t), true, nil
	case int32:
		return int(t), true, nil
	case int:
		return t, true, nil
	case uint64:
		if t > math.MaxInt {
			return 0, false, fmt.Errorf("id %d out of range", t)
		}
		return int(t), true, nil
	case float64:
		if t != math.Trunc(t) || t >= -math.MinInt || t < math.MinInt {
			return 0, false, fmt.Errorf("id %v is not an integer", t)
		}
		return int(t), true, nil
	case []byte:
		return parseID(string(t))
	case string:
		return parseID(t)
	default:
		return 0, false, fmt.Errorf("unsupported id type %T", v)
	}
}

func parseID(s string) (int, bool, error) {
	if s == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return n, true, nil
}

// normalize turns driver byte slices into strings; the text protocol returns
// every non-temporal column as []byte.
func normalize(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
