package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Measurement is one body measurement on a calendar day. A user has at most one
// value per (Date, Metric); recording the same pair again replaces it.
type Measurement struct {
	ID     uuid.UUID `json:"id"`
	Date   time.Time `json:"date"`
	Metric string    `json:"metric"`
	Value  float64   `json:"value"`
	Unit   string    `json:"unit"`
	Note   string    `json:"note,omitempty"`
}

// Validate normalizes the metric name and rejects incomplete measurements.
func (m *Measurement) Validate() error {
	m.Metric = strings.ToLower(strings.TrimSpace(m.Metric))
	if m.Metric == "" {
		return errors.New("metric is required")
	}
	if m.Date.IsZero() {
		return errors.New("date is required")
	}
	if m.Value < 0 {
		return errors.New("value must not be negative")
	}
	y, mo, d := m.Date.Date()
	m.Date = time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	return nil
}
