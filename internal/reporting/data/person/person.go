// Package person provides demographic and observation data definitions keyed by person id.
package person

import (
	"context"
	"fmt"

	"github.com/ehr/cohortreports/internal/platform/warehouse"
	"github.com/ehr/cohortreports/internal/reporting/data"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

const (
	TypeGender          = "person.gender"
	TypeBirthdate       = "person.birthdate"
	TypeAge             = "person.age"
	TypePreferredName   = "person.preferredName"
	TypePersonAttribute = "person.attribute"
	TypeObsForPerson    = "person.obs"
)

// GenderDataDefinition is the recorded sex.
type GenderDataDefinition struct{ data.Base }

func NewGenderDataDefinition() *GenderDataDefinition {
	return &GenderDataDefinition{Base: data.Base{Label: "gender"}}
}

func (d *GenderDataDefinition) Type() string    { return TypeGender }
func (d *GenderDataDefinition) Kind() data.Kind { return data.KindPerson }

// BirthdateDataDefinition is the date of birth.
type BirthdateDataDefinition struct{ data.Base }

func NewBirthdateDataDefinition() *BirthdateDataDefinition {
	return &BirthdateDataDefinition{Base: data.Base{Label: "birthdate"}}
}

func (d *BirthdateDataDefinition) Type() string    { return TypeBirthdate }
func (d *BirthdateDataDefinition) Kind() data.Kind { return data.KindPerson }

// AgeDataDefinition is the age in whole years on effectiveDate, or on the
// evaluation date when effectiveDate is not mapped.
type AgeDataDefinition struct{ data.Base }

func NewAgeDataDefinition() *AgeDataDefinition {
	return &AgeDataDefinition{Base: data.Base{
		Label:  "age",
		Params: []evaluation.Parameter{evaluation.OptionalParameter("effectiveDate", "Effective Date", evaluation.TypeDate)},
	}}
}

func (d *AgeDataDefinition) Type() string    { return TypeAge }
func (d *AgeDataDefinition) Kind() data.Kind { return data.KindPerson }

// PreferredNameDataDefinition yields a record with familyName, givenName and middleName.
type PreferredNameDataDefinition struct{ data.Base }

func NewPreferredNameDataDefinition() *PreferredNameDataDefinition {
	return &PreferredNameDataDefinition{Base: data.Base{Label: "preferredName"}}
}

func (d *PreferredNameDataDefinition) Type() string    { return TypePreferredName }
func (d *PreferredNameDataDefinition) Kind() data.Kind { return data.KindPerson }

// PersonAttributeDataDefinition is the value of one person attribute type.
type PersonAttributeDataDefinition struct {
	data.Base
	AttributeTypeUUID string
}

func NewPersonAttributeDataDefinition(label, attributeTypeUUID string) *PersonAttributeDataDefinition {
	return &PersonAttributeDataDefinition{Base: data.Base{Label: label}, AttributeTypeUUID: attributeTypeUUID}
}

func (d *PersonAttributeDataDefinition) Type() string     { return TypePersonAttribute }
func (d *PersonAttributeDataDefinition) Kind() data.Kind  { return data.KindPerson }
func (d *PersonAttributeDataDefinition) CacheKey() string { return d.AttributeTypeUUID }

// TimeQualifier selects which observation of a concept is reported.
type TimeQualifier string

const (
	First TimeQualifier = "FIRST"
	Last  TimeQualifier = "LAST"
)

// ObsForPersonDataDefinition yields the first or last observation of a concept as a
// record with obsDatetime, valueCoded, valueDatetime, valueNumeric and valueText.
type ObsForPersonDataDefinition struct {
	data.Base
	Which       TimeQualifier
	ConceptUUID string
}

func NewObsForPersonDataDefinition(label string, which TimeQualifier, conceptUUID string) *ObsForPersonDataDefinition {
	return &ObsForPersonDataDefinition{Base: data.Base{Label: label}, Which: which, ConceptUUID: conceptUUID}
}

func (d *ObsForPersonDataDefinition) Type() string     { return TypeObsForPerson }
func (d *ObsForPersonDataDefinition) Kind() data.Kind  { return data.KindPerson }
func (d *ObsForPersonDataDefinition) CacheKey() string { return string(d.Which) + ":" + d.ConceptUUID }

const genderSQL = `select d.patient_id, d.Gender
from kenyaemr_etl.etl_patient_demographics d
where d.voided = 0`

const birthdateSQL = `select d.patient_id, d.DOB
from kenyaemr_etl.etl_patient_demographics d
where d.voided = 0`

const ageSQL = `select d.patient_id,
       timestampdiff(YEAR, date(d.DOB), date(coalesce(:effectiveDate, :evaluationDate))) as age
from kenyaemr_etl.etl_patient_demographics d
where d.voided = 0 and d.DOB is not null`

const preferredNameSQL = `select d.patient_id,
       d.family_name as familyName,
       d.given_name as givenName,
       d.middle_name as middleName
from kenyaemr_etl.etl_patient_demographics d
where d.voided = 0`

const personAttributeSQL = `select pa.person_id, pa.value
from person_attribute pa
inner join person_attribute_type pat on pat.person_attribute_type_id = pa.person_attribute_type_id
where pat.uuid = :attributeTypeUuid and pa.voided = 0
order by pa.person_id, pa.date_created`

const obsForPersonSQL = `select o.person_id,
       o.obs_datetime as obsDatetime,
       o.value_coded as valueCoded,
       o.value_datetime as valueDatetime,
       o.value_numeric as valueNumeric,
       o.value_text as valueText
from obs o
inner join concept c on c.concept_id = o.concept_id and c.uuid = :conceptUuid
inner join (
    select o2.person_id, %s(o2.obs_datetime) as qualifying_datetime
    from obs o2
    inner join concept c2 on c2.concept_id = o2.concept_id and c2.uuid = :conceptUuid
    where o2.voided = 0
    group by o2.person_id
) q on q.person_id = o.person_id and q.qualifying_datetime = o.obs_datetime
where o.voided = 0
order by o.person_id, o.obs_id`

// Register binds the person evaluators.
func Register(reg *data.Registry, wh *warehouse.Service) {
	simple := func(sql string) data.Evaluator {
		return data.EvaluatorFunc(func(ctx context.Context, def data.Definition, ec *evaluation.Context) (*data.Evaluated, error) {
			return data.EvaluateMap(ctx, wh, def, ec, data.NewQuery(def, ec, sql))
		})
	}
	reg.Register(TypeGender, simple(genderSQL), 50)
	reg.Register(TypeBirthdate, simple(birthdateSQL), 50)
	reg.Register(TypeAge, simple(ageSQL), 50)

	reg.Register(TypePreferredName, data.EvaluatorFunc(func(ctx context.Context, def data.Definition, ec *evaluation.Context) (*data.Evaluated, error) {
		return data.EvaluateRecords(ctx, wh, def, ec, data.NewQuery(def, ec, preferredNameSQL))
	}), 50)

	reg.Register(TypePersonAttribute, data.EvaluatorFunc(func(ctx context.Context, def data.Definition, ec *evaluation.Context) (*data.Evaluated, error) {
		d, ok := def.(*PersonAttributeDataDefinition)
		if !ok {
			return nil, fmt.Errorf("unexpected definition %T", def)
		}
		qb := data.NewQuery(def, ec, personAttributeSQL)
		qb.AddParameter("attributeTypeUuid", d.AttributeTypeUUID)
		return data.EvaluateMap(ctx, wh, def, ec, qb)
	}), 50)

	reg.Register(TypeObsForPerson, data.EvaluatorFunc(func(ctx context.Context, def data.Definition, ec *evaluation.Context) (*data.Evaluated, error) {
		d, ok := def.(*ObsForPersonDataDefinition)
		if !ok {
			return nil, fmt.Errorf("unexpected definition %T", def)
		}
		agg := "min"
		if d.Which == Last {
			agg = "max"
		}
		qb := data.NewQuery(def, ec, fmt.Sprintf(obsForPersonSQL, agg))
		qb.AddParameter("conceptUuid", d.ConceptUUID)
		return data.EvaluateRecords(ctx, wh, def, ec, qb)
	}), 50)
}
