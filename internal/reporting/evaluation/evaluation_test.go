package evaluation

import (
	"errors"
	"testing"
	"time"
)

type fakeDef struct{ params []Parameter }

func (f fakeDef) Parameters() []Parameter { return f.params }

func TestParseMappings(t *testing.T) {
	m, err := ParseMappings("startDate=${startDate}, endDate=${endDate}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m) != 2 {
		t.Fatalf("expected 2 mappings, got %d", len(m))
	}
	if m["endDate"] != "${endDate}" {
		t.Errorf("expected ${endDate}, got %q", m["endDate"])
	}
}

func TestParseMappings_Empty(t *testing.T) {
	m, err := ParseMappings("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m) != 0 {
		t.Errorf("expected no mappings, got %v", m)
	}
}

func TestParseMappings_Invalid(t *testing.T) {
	if _, err := ParseMappings("onDate"); err == nil {
		t.Fatal("expected error for mapping without '='")
	}
}

func TestMap_RejectsUndeclaredParameter(t *testing.T) {
	def := fakeDef{params: []Parameter{NewParameter("onDate", "On Date", TypeDate)}}
	_, err := Map[Parameterizable](def, "startDate=${startDate}")
	if !errors.Is(err, ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter, got %v", err)
	}
}

func TestMapped_ResolveReferenceAndLiteral(t *testing.T) {
	def := fakeDef{params: []Parameter{
		NewParameter("onDate", "On Date", TypeDate),
		NewParameter("months", "Months", TypeInt),
	}}
	m, err := Map[Parameterizable](def, "onDate=${endDate},months=12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parent := NewContext()
	end := time.Date(2016, 6, 30, 0, 0, 0, 0, time.UTC)
	parent.SetParameterValue("endDate", end)
	parent.BaseCohort = []int{1, 2}

	child, err := m.Resolve(parent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := child.DateParameter("onDate")
	if !ok || !got.Equal(end) {
		t.Errorf("expected onDate %v, got %v", end, got)
	}
	if v, _ := child.ParameterValue("months"); v != 12 {
		t.Errorf("expected months 12, got %v", v)
	}
	if _, ok := child.ParameterValue("endDate"); ok {
		t.Error("expected endDate not to leak into the child context")
	}
	if len(child.BaseCohort) != 2 {
		t.Errorf("expected base cohort to carry over, got %v", child.BaseCohort)
	}
	if child.Cache() != parent.Cache() {
		t.Error("expected child to share the parent cache")
	}
}

func TestContext_Validate(t *testing.T) {
	ec := NewContext()
	params := []Parameter{
		NewParameter("startDate", "Start Date", TypeDate),
		OptionalParameter("onDate", "On Date", TypeDate),
	}
	err := ec.Validate(params)
	if !errors.Is(err, ErrMissingParameter) {
		t.Fatalf("expected ErrMissingParameter, got %v", err)
	}
	ec.SetParameterValue("startDate", time.Now())
	if err := ec.Validate(params); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParameter_ParseValue(t *testing.T) {
	p := NewParameter("startDate", "Start Date", TypeDate)
	v, err := p.ParseValue("2015-01-31")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := v.(time.Time)
	if d.Year() != 2015 || d.Month() != time.January || d.Day() != 31 {
		t.Errorf("unexpected date %v", d)
	}
	if _, err := p.ParseValue("31/01/2015"); err == nil {
		t.Error("expected error for non ISO date")
	}
	if _, err := NewParameter("n", "N", TypeInt).ParseValue("x"); err == nil {
		t.Error("expected error for invalid integer")
	}
}

func TestCacheKey_StableOrdering(t *testing.T) {
	d := time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)
	a := CacheKey("def", map[string]interface{}{"b": 2, "a": d})
	b := CacheKey("def", map[string]interface{}{"a": d, "b": 2})
	if a != b {
		t.Errorf("expected identical keys, got %q and %q", a, b)
	}
	if a == CacheKey("def", map[string]interface{}{"a": d, "b": 3}) {
		t.Error("expected different keys for different values")
	}
}

func TestNewEvaluationError_KeepsInnermost(t *testing.T) {
	inner := NewEvaluationError("inner", errors.New("boom"))
	outer := NewEvaluationError("outer", inner)
	var ee *EvaluationError
	if !errors.As(outer, &ee) {
		t.Fatal("expected EvaluationError")
	}
	if ee.Definition != "inner" {
		t.Errorf("expected inner definition name, got %s", ee.Definition)
	}
	if NewEvaluationError("x", nil) != nil {
		t.Error("expected nil for nil error")
	}
}
