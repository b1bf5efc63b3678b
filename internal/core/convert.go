package core

// convert.go turns raw registry tokens into typed, nullable store values.
//
// Every converter returns a pgtype value with Valid=false when the token is
// absent, empty, or the literal NaN the registry uses for missing numbers.
// The same values are written by both stores: pgx encodes them natively and
// database/sql drivers see them through driver.Valuer.

import (
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// nullToken is the placeholder the registry writes for missing values.
const nullToken = "NaN"

// isAbsent reports whether a trimmed token carries no value.
func isAbsent(s string) bool {
	return s == "" || s == nullToken
}

// ToPgText strips quotes and surrounding whitespace.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
	if isAbsent(s) {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgDateText keeps the registry's native date representation
// (2006-01-02 or 2006-01-02T15:04:05). Surrounding whitespace is trimmed;
// the value is otherwise stored as read, without parsing.
func ToPgDateText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if isAbsent(s) {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgFloat8 parses a float. Non-numeric input is absent, never zero.
func ToPgFloat8(s string) pgtype.Float8 {
	s = strings.TrimSpace(s)
	if isAbsent(s) {
		return pgtype.Float8{}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return pgtype.Float8{}
	}
	return pgtype.Float8{Float64: f, Valid: true}
}

// ToPgBool is true for a case-insensitive "true" and false for any other
// value.
func ToPgBool(s string) pgtype.Bool {
	s = strings.TrimSpace(s)
	if isAbsent(s) {
		return pgtype.Bool{}
	}
	return pgtype.Bool{Bool: strings.EqualFold(s, "true"), Valid: true}
}

// CleanValue applies the cleaning rule of a field type.
func CleanValue(t FieldType, raw string) any {
	switch t {
	case FieldBool:
		return ToPgBool(raw)
	case FieldDate:
		return ToPgDateText(raw)
	case FieldNumeric:
		return ToPgFloat8(raw)
	default:
		return ToPgText(raw)
	}
}

// absentValue returns the typed null of a field type.
func absentValue(t FieldType) any {
	switch t {
	case FieldBool:
		return pgtype.Bool{}
	case FieldNumeric:
		return pgtype.Float8{}
	default:
		return pgtype.Text{}
	}
}
