// Package export renders evaluated reports as CSV and ships them to S3 and SQS.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ehr/cohortreports/internal/reporting/dataset"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

const ContentTypeCSV = "text/csv; charset=utf-8"

// WriteCSV writes each dataset as a header row followed by its rows. Datasets
// after the first are separated by an empty line and a row holding their name.
func WriteCSV(w io.Writer, sets ...*dataset.DataSet) error {
	cw := csv.NewWriter(w)
	for i, ds := range sets {
		if i > 0 {
			if err := cw.Write(nil); err != nil {
				return err
			}
			if err := cw.Write([]string{ds.Name}); err != nil {
				return err
			}
		}
		if err := cw.Write(ds.Columns); err != nil {
			return fmt.Errorf("write header of %s: %w", ds.Name, err)
		}
		record := make([]string, len(ds.Columns))
		for _, row := range ds.Rows {
			for j := range record {
				record[j] = ""
				if j < len(row) {
					record[j] = Cell(row[j])
				}
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("write row of %s: %w", ds.Name, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// RenderCSV returns WriteCSV's output as bytes.
func RenderCSV(sets ...*dataset.DataSet) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sets...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Cell formats one converted value. Values read back from JSON arrive as
// float64 and map[string]interface{}, so both are handled.
func Cell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 {
			return x.Format(evaluation.DateLayout)
		}
		return x.Format(time.RFC3339)
	case evaluation.Record:
		return record(x)
	case map[string]interface{}:
		return record(x)
	case fmt.Stringer:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func record(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if m[k] == nil {
			continue
		}
		parts = append(parts, k+"="+Cell(m[k]))
	}
	return strings.Join(parts, "; ")
}
