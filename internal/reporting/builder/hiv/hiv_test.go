package hiv

import (
	"testing"

	"github.com/ehr/cohortreports/internal/reporting/calculation"
	"github.com/ehr/cohortreports/internal/reporting/report"
)

var cohortAnalysisColumns = []string{
	"id", "ART Start Date", "UPN", "Name", "Sex", "DOB", "Age", "Telephone No",
	"Village_Estate_Landmark", "Population Type", "coupleDiscordant", "First WHO Stage",
	"Latest CD4", "Height at Art Start", "Weight at Art Start", "CTX Start Date",
	"IPT Start Date", "TBRx Start Date", "TB Reg", "Enrollment into care date",
	"Age at ART initiation", "TI", "Date TI", "TO", "Date TO",
	"Days from enrollment in care to ART Initiation", "Days from ART eligibility to ART Initiation",
	"Date first medically eligible for ART", "Reason first medically eligible For ART",
	"ART baseline CD4 count", "Date of ART baseline CD4 count", "Initial ART regimen",
	"Current ART regimen", "Current ART line", "CD4 at end of follow up",
	"CD4 at end of follow up date", "Change in cd4 count", "Viral load at end of follow up",
	"Date viral load at end of follow up", "Viral suppression", "Date of Last visit",
	"Date of expected next visit", "Date of death", "ART Outcomes",
}

func TestPeriod(t *testing.T) {
	tests := []struct {
		id      string
		want    int
		wantErr bool
	}{
		{"kenyaemr.hiv.report.art.cohort.analysis.art.6", 6, false},
		{"kenyaemr.hiv.report.art.cohort.analysis.art.60", 60, false},
		{"kenyaemr.hiv.report.art.register", 0, true},
		{"kenyaemr.hiv.report.art.cohort.analysis.art.x", 0, true},
	}
	for _, tt := range tests {
		got, err := Period(tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("Period(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("Period(%q) = %d, want %d", tt.id, got, tt.want)
		}
	}
}

func TestDescriptors(t *testing.T) {
	descs := ArtCohortAnalysisDescriptors()
	if len(descs) != 6 {
		t.Fatalf("expected 6 descriptors, got %d", len(descs))
	}
	if descs[0].ID != "kenyaemr.hiv.report.art.cohort.analysis.art.6" {
		t.Errorf("unexpected first id %s", descs[0].ID)
	}
	reg := report.NewRegistry()
	Register(reg)
	if len(reg.List()) != 7 {
		t.Errorf("expected 7 HIV reports, got %d", len(reg.List()))
	}
}

func TestArtCohortAnalysis_Columns(t *testing.T) {
	def, err := ArtCohortAnalysisReportBuilder{}.Build(report.Descriptor{ID: "kenyaemr.hiv.report.art.cohort.analysis.art.24"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(def.DataSets) != 1 || def.DataSets[0].Name != "artCohortAnalysis" {
		t.Fatalf("unexpected datasets %v", def.DataSets)
	}
	labels := def.DataSets[0].Labels()
	if len(labels) != len(cohortAnalysisColumns) {
		t.Fatalf("expected %d columns, got %d", len(cohortAnalysisColumns), len(labels))
	}
	for i, want := range cohortAnalysisColumns {
		if labels[i] != want {
			t.Errorf("column %d: got %q, want %q", i, labels[i], want)
		}
	}

	if def.Cohort == nil || def.Cohort.Mappings["startDate"] != "${startDate}" || def.Cohort.Mappings["endDate"] != "${endDate}" {
		t.Errorf("unexpected cohort mapping %+v", def.Cohort)
	}
	if got := def.Cohort.Parameterizable.CalculationParams["outcomePeriod"]; got != 24 {
		t.Errorf("expected cohort period 24, got %v", got)
	}
}

func TestArtCohortAnalysis_FollowUpColumnsCarryPeriod(t *testing.T) {
	def, err := ArtCohortAnalysisReportBuilder{}.Build(report.Descriptor{ID: "kenyaemr.hiv.report.art.cohort.analysis.art.12"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range def.DataSets[0].Columns {
		cd, ok := c.Definition.Parameterizable.(*calculation.CalculationDataDefinition)
		if !ok {
			continue
		}
		_, mapped := c.Definition.Mappings["onDate"]
		if period, ok := cd.CalculationParams["outcomePeriod"]; ok {
			if period != 12 {
				t.Errorf("%s: expected period 12, got %v", c.Label, period)
			}
			if !mapped {
				t.Errorf("%s: expected onDate mapped from endDate", c.Label)
			}
		}
		if c.Label == "TI" && mapped {
			t.Error("TI should not depend on the reporting date")
		}
	}
}

func TestArtRegister_HasFirstSubstitution(t *testing.T) {
	def, err := ArtRegisterReportBuilder{}.Build(ArtRegisterDescriptor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, l := range def.DataSets[0].Labels() {
		if l == "First substitution" {
			found = true
		}
	}
	if !found {
		t.Error("expected a First substitution column")
	}
}
