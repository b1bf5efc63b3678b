package core

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

// ----------------------------------------------------------------------------
// ToPgText Tests
// ----------------------------------------------------------------------------

func TestToPgText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  pgtype.Text
	}{
		{"plain", "BOULANGERIE", pgtype.Text{String: "BOULANGERIE", Valid: true}},
		{"trimmed", "  LILLE ", pgtype.Text{String: "LILLE", Valid: true}},
		{"quotes stripped", `"59000"`, pgtype.Text{String: "59000", Valid: true}},
		{"empty", "", pgtype.Text{}},
		{"whitespace only", "   ", pgtype.Text{}},
		{"NaN literal", "NaN", pgtype.Text{}},
		{"quoted empty", `""`, pgtype.Text{}},
		{"lowercase nan is text", "nan", pgtype.Text{String: "nan", Valid: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToPgText(tt.input); got != tt.want {
				t.Errorf("ToPgText(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ToPgDateText Tests
// ----------------------------------------------------------------------------

func TestToPgDateText(t *testing.T) {
	tests := []struct {
		input     string
		wantValid bool
		want      string
	}{
		{"2001-01-01", true, "2001-01-01"},
		{"2024-03-12T10:41:07", true, "2024-03-12T10:41:07"},
		{" 1999-12-31 ", true, "1999-12-31"},
		{"", false, ""},
		{"NaN", false, ""},
	}

	for _, tt := range tests {
		got := ToPgDateText(tt.input)
		if got.Valid != tt.wantValid || got.String != tt.want {
			t.Errorf("ToPgDateText(%q) = %+v, want valid=%v %q", tt.input, got, tt.wantValid, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// ToPgFloat8 Tests
// ----------------------------------------------------------------------------

func TestToPgFloat8(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
		want      float64
	}{
		{"integer", "2021", true, 2021},
		{"lambert coordinate", "704143.7", true, 704143.7},
		{"negative", "-12.5", true, -12.5},
		{"zero is a value", "0", true, 0},
		{"padded", " 3 ", true, 3},
		{"empty is absent", "", false, 0},
		{"NaN is absent", "NaN", false, 0},
		{"lowercase nan is absent", "nan", false, 0},
		{"infinity is absent", "Inf", false, 0},
		{"text is absent", "[ND]", false, 0},
		{"comma decimal is absent", "12,5", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToPgFloat8(tt.input)
			if got.Valid != tt.wantValid {
				t.Fatalf("ToPgFloat8(%q).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			}
			if got.Valid && got.Float64 != tt.want {
				t.Errorf("ToPgFloat8(%q) = %v, want %v", tt.input, got.Float64, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ToPgBool Tests
// ----------------------------------------------------------------------------

func TestToPgBool(t *testing.T) {
	tests := []struct {
		input string
		want  pgtype.Bool
	}{
		{"true", pgtype.Bool{Bool: true, Valid: true}},
		{"TRUE", pgtype.Bool{Bool: true, Valid: true}},
		{"True", pgtype.Bool{Bool: true, Valid: true}},
		{"false", pgtype.Bool{Bool: false, Valid: true}},
		{"O", pgtype.Bool{Bool: false, Valid: true}},
		{"1", pgtype.Bool{Bool: false, Valid: true}},
		{"", pgtype.Bool{}},
		{"NaN", pgtype.Bool{}},
	}

	for _, tt := range tests {
		if got := ToPgBool(tt.input); got != tt.want {
			t.Errorf("ToPgBool(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestCleanValue_DispatchesOnType(t *testing.T) {
	if _, ok := CleanValue(FieldBool, "true").(pgtype.Bool); !ok {
		t.Error("FieldBool should produce pgtype.Bool")
	}
	if _, ok := CleanValue(FieldNumeric, "1").(pgtype.Float8); !ok {
		t.Error("FieldNumeric should produce pgtype.Float8")
	}
	if v, ok := CleanValue(FieldDate, `"2001-01-01"`).(pgtype.Text); !ok || v.String != `"2001-01-01"` {
		t.Errorf("FieldDate should pass the value through unchanged, got %+v", v)
	}
	if v, ok := CleanValue(FieldText, `"x"`).(pgtype.Text); !ok || v.String != "x" {
		t.Errorf("FieldText should strip quotes, got %+v", v)
	}
}
