package core

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestRegistryColumns_Unique(t *testing.T) {
	sources := make(map[string]bool)
	names := make(map[string]bool)
	for _, col := range RegistryColumns {
		if sources[col.Source] {
			t.Errorf("duplicate source header %q", col.Source)
		}
		if names[col.Name] {
			t.Errorf("duplicate canonical column %q", col.Name)
		}
		sources[col.Source] = true
		names[col.Name] = true
	}
	if len(RegistryColumns) != 53 {
		t.Errorf("len(RegistryColumns) = %d, want 53", len(RegistryColumns))
	}
}

func TestLookupSource(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"siret", ColSIRET, true},
		{`"codePostalEtablissement"`, ColPostalCode, true},
		{" CODEPOSTALETABLISSEMENT ", ColPostalCode, true},
		{"\ufeffsiren", ColSIREN, true},
		{"etablissementSiege", ColHeadOffice, true},
		{"unknownColumn", "", false},
	}

	for _, tt := range tests {
		col, _, ok := LookupSource(tt.header)
		if ok != tt.ok || col.Name != tt.want {
			t.Errorf("LookupSource(%q) = %q, %v; want %q, %v", tt.header, col.Name, ok, tt.want, tt.ok)
		}
	}
}

func TestNewColumnMapper(t *testing.T) {
	t.Run("header without siret maps every row to an error", func(t *testing.T) {
		m := NewColumnMapper([]string{"siren", "codePostalEtablissement"})
		if m.HasKey() {
			t.Fatal("HasKey() = true, want false")
		}
		if _, err := m.Map([]string{"123456789", "59000"}); !errors.Is(err, ErrMissingSIRET) {
			t.Errorf("Map() error = %v, want ErrMissingSIRET", err)
		}
	})

	t.Run("counts bound and unmapped headers", func(t *testing.T) {
		m := NewColumnMapper([]string{"siret", "codePostalEtablissement", "extra", ""})
		if m.BoundColumns() != 2 {
			t.Errorf("BoundColumns() = %d, want 2", m.BoundColumns())
		}
		if got := m.UnmappedHeaders(); len(got) != 1 || got[0] != "extra" {
			t.Errorf("UnmappedHeaders() = %q, want [extra]", got)
		}
	})

	t.Run("first duplicate header wins", func(t *testing.T) {
		m := NewColumnMapper([]string{"siret", "codePostalEtablissement", "codePostalEtablissement"})
		rec, err := m.Map([]string{"12345678901234", "59000", "75001"})
		if err != nil {
			t.Fatalf("Map() error = %v", err)
		}
		if got := rec.PostalCode(); got != "59000" {
			t.Errorf("PostalCode() = %q, want %q", got, "59000")
		}
	})
}

func TestColumnMapper_Map(t *testing.T) {
	header := []string{
		"siren", "siret", "etablissementSiege", "dateCreationEtablissement",
		"coordonneeLambertAbscisseEtablissement", "anneeEffectifsEtablissement",
		"enseigne1Etablissement", "codePostalEtablissement", "ignored",
	}
	m := NewColumnMapper(header)

	rec, err := m.Map([]string{
		"123456789", " 12345678900012 ", "TRUE", "2001-01-01",
		"704143.7", "NaN", " BOULANGERIE ", "59000", "whatever",
	})
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}

	if got := rec.SIRET(); got != "12345678900012" {
		t.Errorf("SIRET() = %q, want trimmed key", got)
	}
	if got, ok := rec.Bool(ColHeadOffice); !ok || !got {
		t.Errorf("Bool(%s) = %v, %v; want true, true", ColHeadOffice, got, ok)
	}
	if got := rec.Text("date_creation"); got != "2001-01-01" {
		t.Errorf("date_creation = %q, want %q", got, "2001-01-01")
	}
	if got, ok := rec.Float("coordonnee_lambert_x"); !ok || got != 704143.7 {
		t.Errorf("coordonnee_lambert_x = %v, %v; want 704143.7", got, ok)
	}
	if _, ok := rec.Float("annee_effectifs"); ok {
		t.Error("annee_effectifs should be absent for NaN")
	}
	if got := rec.Text("enseigne_1"); got != "BOULANGERIE" {
		t.Errorf("enseigne_1 = %q, want %q", got, "BOULANGERIE")
	}

	// Unbound canonical columns stay typed and absent.
	i := ColumnIndex("libelle_commune")
	if v, ok := rec.Values[i].(pgtype.Text); !ok || v.Valid {
		t.Errorf("unbound column = %#v, want absent pgtype.Text", rec.Values[i])
	}
}

func TestColumnMapper_MapShortRow(t *testing.T) {
	m := NewColumnMapper([]string{"siret", "codePostalEtablissement", "libelleCommuneEtablissement"})

	rec, err := m.Map([]string{"12345678901234"})
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if rec.PostalCode() != "" {
		t.Errorf("PostalCode() = %q, want absent", rec.PostalCode())
	}
}

func TestColumnMapper_MissingSIRET(t *testing.T) {
	m := NewColumnMapper([]string{"siret", "codePostalEtablissement"})

	for _, row := range [][]string{{"", "59000"}, {"NaN", "59000"}, {`""`, "59000"}, {}} {
		if _, err := m.Map(row); !errors.Is(err, ErrMissingSIRET) {
			t.Errorf("Map(%q) error = %v, want ErrMissingSIRET", row, err)
		}
	}
}
