package convert

import (
	"fmt"

	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

// WHO stage answer concepts, adult and paediatric.
var whoStages = map[int]int{
	1204: 1, 1220: 1,
	1205: 2, 1221: 2,
	1206: 3, 1222: 3,
	1207: 4, 1223: 4,
}

// WHOStage renders a WHO stage concept, or an observation record's coded value,
// as the stage number 1 to 4.
func WHOStage() Converter {
	return Func(func(v interface{}) interface{} {
		if rec, ok := v.(evaluation.Record); ok {
			v = rec["valueCoded"]
		}
		f, ok := asFloat(v)
		if !ok {
			return nil
		}
		if stage, ok := whoStages[int(f)]; ok {
			return stage
		}
		return nil
	})
}

// field picks one value from a composite calculation record and renders it.
func field(name string) Converter {
	return Func(func(v interface{}) interface{} {
		rec, ok := v.(evaluation.Record)
		if !ok {
			return nil
		}
		fv := rec[name]
		if fv == nil {
			return nil
		}
		if name == "date" {
			if t, ok := asTime(fv); ok {
				return t.Format(DateFormat)
			}
			return nil
		}
		return format(fv)
	})
}

// ValueAndDate selects "value" or "date" from a lab result record, as for the
// latest CD4 count and viral load columns.
func ValueAndDate(which string) Converter { return field(which) }

// Cd4ValueAndDate selects "value" or "date" from a baseline CD4 record.
func Cd4ValueAndDate(which string) Converter { return field(which) }

// TransferInAndDate selects "state" (Yes/No) or "date" from a transfer record.
func TransferInAndDate(which string) Converter { return field(which) }

// MedicallyEligible selects "date" or "reason" from an ART eligibility record.
func MedicallyEligible(which string) Converter { return field(which) }

// ChangeInCd4 renders the signed difference as a whole number.
func ChangeInCd4() Converter {
	return Func(func(v interface{}) interface{} {
		f, ok := asFloat(v)
		if !ok {
			return nil
		}
		return fmt.Sprintf("%d", int64(f))
	})
}

// Height renders centimetres.
func Height() Converter { return measurement() }

// Weight renders kilograms.
func Weight() Converter { return measurement() }

func measurement() Converter {
	return Func(func(v interface{}) interface{} {
		f, ok := asFloat(v)
		if !ok || f <= 0 {
			return nil
		}
		return formatNumber(f)
	})
}
