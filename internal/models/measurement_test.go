package models

import (
	"testing"
	"time"
)

// TestMeasurementValidate verifies metric normalization and date truncation.
func TestMeasurementValidate(t *testing.T) {
	m := Measurement{
		Date:   time.Date(2026, 2, 3, 18, 45, 0, 0, time.FixedZone("CET", 3600)),
		Metric: "  Weight ",
		Value:  81.4,
		Unit:   "kg",
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Metric != "weight" {
		t.Errorf("metric = %q, want %q", m.Metric, "weight")
	}
	if got := m.Date.Format("2006-01-02 15:04"); got != "2026-02-03 00:00" {
		t.Errorf("date = %s, want 2026-02-03 00:00", got)
	}
}

// TestMeasurementValidateRejects covers the incomplete inputs.
func TestMeasurementValidateRejects(t *testing.T) {
	day := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		m    Measurement
	}{
		{"missing metric", Measurement{Date: day, Value: 1}},
		{"missing date", Measurement{Metric: "waist", Value: 1}},
		{"negative", Measurement{Date: day, Metric: "waist", Value: -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.m.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
