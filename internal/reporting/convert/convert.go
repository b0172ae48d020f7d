// Package convert turns raw evaluated values into the values rendered in report
// cells. Converters are chained per column, each receiving the previous output.
package convert

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

// Display layouts.
const (
	DateFormat      = "02-Jan-2006"
	MonthYearFormat = "Jan-2006"
)

// Converter transforms a single cell value.
type Converter interface {
	Convert(v interface{}) interface{}
}

// Func adapts a function to the Converter interface.
type Func func(v interface{}) interface{}

func (f Func) Convert(v interface{}) interface{} { return f(v) }

// Chain applies converters in order.
func Chain(v interface{}, converters ...Converter) interface{} {
	for _, c := range converters {
		v = c.Convert(v)
	}
	return v
}

// CalculationResult renders dates in DateFormat, booleans as Yes/No and whole
// numbers without a fractional part. Nil stays nil.
func CalculationResult() Converter {
	return Func(func(v interface{}) interface{} {
		if v == nil {
			return nil
		}
		return format(v)
	})
}

// RDQACalculationResult is CalculationResult with nil rendered as an empty string.
func RDQACalculationResult() Converter {
	return Func(func(v interface{}) interface{} {
		if v == nil {
			return ""
		}
		return format(v)
	})
}

// Birthdate renders a date of birth in DateFormat.
func Birthdate() Converter {
	return Func(func(v interface{}) interface{} {
		t, ok := asTime(v)
		if !ok {
			return nil
		}
		return t.Format(DateFormat)
	})
}

// Identifier renders the identifier text.
func Identifier() Converter {
	return Func(func(v interface{}) interface{} {
		if v == nil {
			return nil
		}
		return strings.TrimSpace(fmt.Sprint(v))
	})
}

// ObjectFormatter fills a template such as "{familyName}, {givenName}" from a
// record. Fields absent from the record render empty.
func ObjectFormatter(template string) Converter {
	return Func(func(v interface{}) interface{} {
		rec, ok := v.(evaluation.Record)
		if !ok {
			if v == nil {
				return nil
			}
			return fmt.Sprint(v)
		}
		var b strings.Builder
		for i := 0; i < len(template); i++ {
			if template[i] != '{' {
				b.WriteByte(template[i])
				continue
			}
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				b.WriteString(template[i:])
				break
			}
			field := template[i+1 : i+end]
			if fv := rec[field]; fv != nil {
				b.WriteString(fmt.Sprint(format(fv)))
			}
			i += end
		}
		return b.String()
	})
}

// StartMonthYearDate renders a date as MonthYearFormat. Observation records use
// the datetime value when present and the observation time otherwise.
func StartMonthYearDate() Converter {
	return Func(func(v interface{}) interface{} {
		if rec, ok := v.(evaluation.Record); ok {
			if rec["valueDatetime"] != nil {
				v = rec["valueDatetime"]
			} else {
				v = rec["obsDatetime"]
			}
		}
		t, ok := asTime(v)
		if !ok {
			return nil
		}
		return t.Format(MonthYearFormat)
	})
}

// format renders a scalar for display.
func format(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return t.Format(DateFormat)
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	case float64:
		return formatNumber(t)
	case float32:
		return formatNumber(float64(t))
	case string:
		if d, err := time.Parse(evaluation.DateLayout, t); err == nil {
			return d.Format(DateFormat)
		}
		return t
	default:
		return v
	}
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// asTime reads a temporal value, accepting the ISO strings produced by
// string-concatenating SQL aggregates.
func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		if len(t) >= len(evaluation.DateLayout) {
			if d, err := time.Parse(evaluation.DateLayout, t[:len(evaluation.DateLayout)]); err == nil {
				return d, true
			}
		}
	}
	return time.Time{}, false
}

// asFloat reads a numeric value from driver or string forms.
func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
