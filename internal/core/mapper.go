package core

import "github.com/jackc/pgx/v5/pgtype"

// RegistryRecord is one establishment. Values holds one typed value per
// entry of RegistryColumns, in the same order: pgtype.Text for text and date
// columns, pgtype.Float8 for numeric ones and pgtype.Bool for flags.
type RegistryRecord struct {
	Values []any
}

// NewRegistryRecord returns a record with every column absent.
func NewRegistryRecord() RegistryRecord {
	values := make([]any, len(RegistryColumns))
	for i, col := range RegistryColumns {
		values[i] = absentValue(col.Type)
	}
	return RegistryRecord{Values: values}
}

// Text returns a text or date column, "" when absent or unknown.
func (r RegistryRecord) Text(name string) string {
	i := ColumnIndex(name)
	if i < 0 || i >= len(r.Values) {
		return ""
	}
	if v, ok := r.Values[i].(pgtype.Text); ok && v.Valid {
		return v.String
	}
	return ""
}

// Float returns a numeric column.
func (r RegistryRecord) Float(name string) (float64, bool) {
	i := ColumnIndex(name)
	if i < 0 || i >= len(r.Values) {
		return 0, false
	}
	if v, ok := r.Values[i].(pgtype.Float8); ok && v.Valid {
		return v.Float64, true
	}
	return 0, false
}

// Bool returns a flag column.
func (r RegistryRecord) Bool(name string) (bool, bool) {
	i := ColumnIndex(name)
	if i < 0 || i >= len(r.Values) {
		return false, false
	}
	if v, ok := r.Values[i].(pgtype.Bool); ok && v.Valid {
		return v.Bool, true
	}
	return false, false
}

// SIRET returns the natural key.
func (r RegistryRecord) SIRET() string { return r.Text(ColSIRET) }

// PostalCode returns the establishment postal code.
func (r RegistryRecord) PostalCode() string { return r.Text(ColPostalCode) }

// ColumnMapper turns tokenized rows into records for one run. It is built
// from the header row once and is safe for concurrent use afterwards.
type ColumnMapper struct {
	// positions[i] is the RegistryColumns index fed by source field i, or -1.
	positions []int
	bound     int
	hasKey    bool
	unmapped  []string
}

// NewColumnMapper builds the effective mapping of a header row. A canonical
// column is bound to its first matching header; later duplicates and
// unknown headers are ignored. A header without a SIRET column still maps:
// every row of such a file then fails with ErrMissingSIRET.
func NewColumnMapper(header []string) *ColumnMapper {
	m := &ColumnMapper{positions: make([]int, len(header))}
	seen := make(map[int]bool, len(header))

	for i, h := range header {
		m.positions[i] = -1
		_, col, ok := LookupSource(h)
		if !ok {
			if name := cleanHeader(h); name != "" {
				m.unmapped = append(m.unmapped, name)
			}
			continue
		}
		if seen[col] {
			continue
		}
		seen[col] = true
		m.positions[i] = col
		m.bound++
	}

	m.hasKey = seen[ColumnIndex(ColSIRET)]
	return m
}

// HasKey reports whether a header column feeds SIRET.
func (m *ColumnMapper) HasKey() bool { return m.hasKey }

// BoundColumns returns how many canonical columns the header feeds.
func (m *ColumnMapper) BoundColumns() int { return m.bound }

// UnmappedHeaders returns the header names that match no canonical column.
func (m *ColumnMapper) UnmappedHeaders() []string { return m.unmapped }

// Map cleans one row into a record. Missing trailing fields are absent and
// extra fields are ignored. Returns ErrMissingSIRET when the key is absent
// after cleaning.
func (m *ColumnMapper) Map(fields []string) (RegistryRecord, error) {
	rec := NewRegistryRecord()
	for i, col := range m.positions {
		if col < 0 || i >= len(fields) {
			continue
		}
		rec.Values[col] = CleanValue(RegistryColumns[col].Type, fields[i])
	}
	if rec.SIRET() == "" {
		return RegistryRecord{}, ErrMissingSIRET
	}
	return rec, nil
}
