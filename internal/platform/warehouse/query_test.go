package warehouse

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCompile_RewritesNamedParameters(t *testing.T) {
	start := time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2016, 3, 31, 0, 0, 0, 0, time.UTC)

	qb := NewSqlQueryBuilder()
	qb.Append("select v.encounter_id from visits v")
	qb.Append("where date(v.visit_date) between date(:startDate) and date(:endDate)")
	qb.Append("  and v.x <= :startDate;")
	qb.AddParameter("endDate", end)
	qb.AddParameter("startDate", start)

	sql, args, err := qb.Compile()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "select v.encounter_id from visits v\nwhere date(v.visit_date) between date(?) and date(?)\n  and v.x <= ?"
	if sql != want {
		t.Errorf("unexpected sql:\n%s\nwant:\n%s", sql, want)
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(args))
	}
	if args[0] != start || args[1] != end || args[2] != start {
		t.Errorf("arguments out of placeholder order: %v", args)
	}
}

func TestCompile_IgnoresQuotedAndOperators(t *testing.T) {
	qb := NewSqlQueryBuilder().Append(
		`select concat_ws('\r\n', a, ':notAParam'), "x:y", ` + "`t:col`" + `, @v := 1, '12:30:00', 'it\'s :fine' from t where id = :id`)
	qb.AddParameter("id", 7)

	sql, args, err := qb.Compile()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 1 || args[0] != 7 {
		t.Fatalf("expected single id argument, got %v", args)
	}
	want := `select concat_ws('\r\n', a, ':notAParam'), "x:y", ` + "`t:col`" + `, @v := 1, '12:30:00', 'it\'s :fine' from t where id = ?`
	if sql != want {
		t.Errorf("unexpected sql:\n%s\nwant:\n%s", sql, want)
	}
}

func TestCompile_IgnoresComments(t *testing.T) {
	src := "select a -- uses :notBound\n" +
		"from t # filtered by :alsoNotBound\n" +
		"/* :blockComment\n spans lines */ where id = :id and x = a--1"
	qb := NewSqlQueryBuilder().Append(src)
	qb.AddParameter("id", 3)

	sql, args, err := qb.Compile()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 1 || args[0] != 3 {
		t.Fatalf("expected single id argument, got %v", args)
	}
	want := strings.Replace(src, ":id", "?", 1)
	if sql != want {
		t.Errorf("unexpected sql:\n%s\nwant:\n%s", sql, want)
	}
}

func TestCompile_UnboundParameter(t *testing.T) {
	qb := NewSqlQueryBuilder().Append("select 1 from t where d = :onDate")
	_, _, err := qb.Compile()
	if !errors.Is(err, ErrUnboundParameter) {
		t.Fatalf("expected ErrUnboundParameter, got %v", err)
	}
}

func TestCompile_ExtraParametersIgnored(t *testing.T) {
	qb := NewSqlQueryBuilder().Append("select patient_id from t")
	qb.AddParameter("outcomePeriod", 12)
	sql, args, err := qb.Compile()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sql != "select patient_id from t" || len(args) != 0 {
		t.Errorf("unexpected compile result %q %v", sql, args)
	}
}

func TestCompile_NilValueBindsNull(t *testing.T) {
	qb := NewSqlQueryBuilder().Append("select 1 from t where d <= :onDate")
	qb.AddParameter("onDate", nil)
	_, args, err := qb.Compile()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 1 || args[0] != nil {
		t.Errorf("expected a single nil argument, got %v", args)
	}
}
