package data

import (
	"context"

	"github.com/ehr/cohortreports/internal/platform/warehouse"
	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

// EvaluationDateParam is bound on every definition query as the context's
// evaluation date.
const EvaluationDateParam = "evaluationDate"

// NewQuery starts a query with the definition's declared parameters bound from ec.
// Optional parameters without a value bind NULL.
func NewQuery(def Definition, ec *evaluation.Context, sql string) *warehouse.SqlQueryBuilder {
	qb := warehouse.NewSqlQueryBuilder()
	qb.Append(sql)
	for _, p := range def.Parameters() {
		v, _ := ec.ParameterValue(p.Name)
		qb.AddParameter(p.Name, v)
	}
	qb.AddParameter(EvaluationDateParam, ec.EvaluationDate)
	return qb
}

// EvaluateMap runs a two-column query and wraps the lookup for def.
func EvaluateMap(ctx context.Context, wh *warehouse.Service, def Definition, ec *evaluation.Context, qb *warehouse.SqlQueryBuilder) (*Evaluated, error) {
	data, err := wh.EvaluateToMap(ctx, qb)
	if err != nil {
		return nil, err
	}
	return &Evaluated{Definition: def, Context: ec, Data: data}, nil
}

// EvaluateRecords runs a multi-column query and wraps each row's record for def.
func EvaluateRecords(ctx context.Context, wh *warehouse.Service, def Definition, ec *evaluation.Context, qb *warehouse.SqlQueryBuilder) (*Evaluated, error) {
	recs, err := wh.EvaluateToRecords(ctx, qb)
	if err != nil {
		return nil, err
	}
	data := make(map[int]interface{}, len(recs))
	for id, r := range recs {
		data[id] = r
	}
	return &Evaluated{Definition: def, Context: ec, Data: data}, nil
}

// IdentityData maps every id to itself.
func IdentityData(ids []int) map[int]interface{} {
	data := make(map[int]interface{}, len(ids))
	for _, id := range ids {
		data[id] = id
	}
	return data
}
