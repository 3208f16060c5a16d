package week

import (
	"encoding/json"
	"fmt"
)

// Columns holds the JSON-encoded collections of a record as stored in a row.
type Columns struct {
	Exercises []byte
	GridData  []byte
	Days      []byte // nil stores NULL
}

// EncodeColumns encodes the collections of rec. Nil exercises and grid data
// encode as empty JSON; a record without days stores none.
func EncodeColumns(rec Record) (Columns, error) {
	exercises := rec.Exercises
	if exercises == nil {
		exercises = []string{}
	}
	grid := rec.GridData
	if grid == nil {
		grid = map[string]string{}
	}

	var cols Columns
	var err error
	if cols.Exercises, err = json.Marshal(exercises); err != nil {
		return cols, fmt.Errorf("encoding exercises: %w", err)
	}
	if cols.GridData, err = json.Marshal(grid); err != nil {
		return cols, fmt.Errorf("encoding grid data: %w", err)
	}
	if len(rec.Days) > 0 {
		if cols.Days, err = json.Marshal(rec.Days); err != nil {
			return cols, fmt.Errorf("encoding days: %w", err)
		}
	}
	return cols, nil
}

// DecodeColumns fills rec from its encoded collections. A missing or
// unreadable day config leaves rec.Days nil so Normalize applies the template.
func DecodeColumns(rec *Record, cols Columns) error {
	if len(cols.Exercises) > 0 {
		if err := json.Unmarshal(cols.Exercises, &rec.Exercises); err != nil {
			return fmt.Errorf("decoding exercises: %w", err)
		}
	}
	if len(cols.GridData) > 0 {
		if err := json.Unmarshal(cols.GridData, &rec.GridData); err != nil {
			return fmt.Errorf("decoding grid data: %w", err)
		}
	}
	if len(cols.Days) > 0 {
		var days []Day
		if err := json.Unmarshal(cols.Days, &days); err == nil {
			rec.Days = days
		}
	}
	return nil
}
