package prospect

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		in        Criteria
		wantLimit int
		wantErr   bool
	}{
		{name: "default limit", in: Criteria{}, wantLimit: DefaultLimit},
		{name: "clamped limit", in: Criteria{Limit: MaxLimit + 1}, wantLimit: MaxLimit},
		{name: "negative limit", in: Criteria{Limit: -1}, wantErr: true},
		{name: "short postal code", in: Criteria{PostalCodes: []string{"590"}}, wantErr: true},
		{name: "wildcard in activity code", in: Criteria{NAFPrefixes: []string{"56%"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidCriteria) {
					t.Errorf("Normalize() error = %v, want ErrInvalidCriteria", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if got.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", got.Limit, tt.wantLimit)
			}
		})
	}
}

func TestNormalize_CleansLists(t *testing.T) {
	got, err := Criteria{
		PostalCodes: []string{" 59000", "59000", ""},
		NAFPrefixes: []string{"56.10a"},
	}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(got.PostalCodes) != 1 || got.PostalCodes[0] != "59000" {
		t.Errorf("postal codes = %q, want [59000]", got.PostalCodes)
	}
	if got.NAFPrefixes[0] != "56.10A" {
		t.Errorf("naf = %q, want 56.10A", got.NAFPrefixes[0])
	}
}

func TestCandidateQuery(t *testing.T) {
	c := Criteria{
		PostalCodes:       []string{"59000", "59100"},
		NAFPrefixes:       []string{"56.10"},
		WorkforceBrackets: []string{"03"},
		HeadOfficeOnly:    true,
		Limit:             25,
	}

	query, args := CandidateQuery(c, Dollar)

	for _, want := range []string{
		"code_postal IN ($1, $2)",
		"(activite_principale LIKE $3)",
		"tranche_effectifs IN ($4)",
		"etat_administratif = 'A'",
		"etablissement_siege = TRUE",
		"NOT EXISTS (SELECT 1 FROM contacts",
		"LIMIT $5",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("query missing %q:\n%s", want, query)
		}
	}
	if len(args) != 5 || args[2] != "56.10%" || args[4] != 25 {
		t.Errorf("args = %v", args)
	}

	query, _ = CandidateQuery(Criteria{IncludeClosed: true, Limit: 1}, Question)
	if strings.Contains(query, "etat_administratif") || !strings.Contains(query, "LIMIT ?") {
		t.Errorf("unexpected query: %s", query)
	}
}

type fakeScanner []any

func (f fakeScanner) Scan(dest ...any) error {
	for i, d := range dest {
		if s, ok := d.(interface{ Scan(any) error }); ok {
			if err := s.Scan(f[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func TestScanCandidate(t *testing.T) {
	row := fakeScanner{
		"12345678901234", "123456789", nil, nil,
		"3", "AV", "FOCH", "59000", "LILLE",
		"56.10A", "01", 700000.0, nil,
	}

	c, err := ScanCandidate(row)
	if err != nil {
		t.Fatalf("ScanCandidate() error = %v", err)
	}
	if c.Name != DefaultName {
		t.Errorf("name = %q, want %q", c.Name, DefaultName)
	}
	if c.Address != "3 AV FOCH" {
		t.Errorf("address = %q", c.Address)
	}
	if c.LambertX == nil || *c.LambertX != 700000 || c.LambertY != nil {
		t.Errorf("lambert = %v, %v", c.LambertX, c.LambertY)
	}
}

type fakeStore struct {
	candidates []Candidate
	claimed    map[string]bool
	gotLimit   int
}

func (f *fakeStore) FindCandidates(_ context.Context, c Criteria) ([]Candidate, error) {
	f.gotLimit = c.Limit
	return f.candidates, nil
}

func (f *fakeStore) ClaimContacts(_ context.Context, cs []Candidate) (int, error) {
	n := 0
	for _, c := range cs {
		if !f.claimed[c.SIRET] {
			f.claimed[c.SIRET] = true
			n++
		}
	}
	return n, nil
}

func TestGenerate(t *testing.T) {
	store := &fakeStore{
		candidates: []Candidate{{SIRET: "1"}, {SIRET: "2"}},
		claimed:    map[string]bool{"2": true},
	}
	svc := NewService(store)

	res, err := svc.Generate(context.Background(), Criteria{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.Found != 2 || res.Injected != 0 {
		t.Errorf("result = %+v, want found 2 without injection", res)
	}
	if store.gotLimit != DefaultLimit {
		t.Errorf("limit = %d, want %d", store.gotLimit, DefaultLimit)
	}

	res, err = svc.Generate(context.Background(), Criteria{Inject: true})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.Injected != 1 {
		t.Errorf("injected = %d, want 1", res.Injected)
	}

	if _, err := svc.Generate(context.Background(), Criteria{Limit: -5}); !errors.Is(err, core.ErrInvalidCriteria) {
		t.Errorf("error = %v, want ErrInvalidCriteria", err)
	}
}
