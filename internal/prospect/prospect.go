// Package prospect selects registry establishments matching a prospecting
// profile and copies the ones not yet claimed into the contacts table.
package prospect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/metrics"
)

// Limits on the number of candidates returned by one request.
const (
	DefaultLimit = 1000
	MaxLimit     = 50000
)

// DefaultName is the contact name used when the establishment has neither
// a sign nor a usual name.
const DefaultName = "Sans nom"

// Criteria is the predicate over the registry. Empty lists do not filter.
type Criteria struct {
	PostalCodes       []string `json:"postal_codes,omitempty" yaml:"postal_codes,omitempty"`
	NAFPrefixes       []string `json:"naf_codes,omitempty" yaml:"naf_codes,omitempty"`
	WorkforceBrackets []string `json:"workforce_brackets,omitempty" yaml:"workforce_brackets,omitempty"`
	// IncludeClosed keeps establishments whose administrative state is not A.
	IncludeClosed  bool `json:"include_closed,omitempty" yaml:"include_closed,omitempty"`
	HeadOfficeOnly bool `json:"head_office_only,omitempty" yaml:"head_office_only,omitempty"`
	Limit          int  `json:"limit,omitempty" yaml:"limit,omitempty"`
	// Inject copies the candidates into the contacts table.
	Inject bool `json:"inject,omitempty" yaml:"inject,omitempty"`
}

// Normalize trims the lists, applies the default limit and validates.
func (c Criteria) Normalize() (Criteria, error) {
	c.PostalCodes = cleanList(c.PostalCodes)
	c.NAFPrefixes = cleanList(c.NAFPrefixes)
	c.WorkforceBrackets = cleanList(c.WorkforceBrackets)

	for _, pc := range c.PostalCodes {
		if len(pc) != 5 {
			return c, fmt.Errorf("%w: postal code %q", core.ErrInvalidCriteria, pc)
		}
	}
	for _, naf := range c.NAFPrefixes {
		if strings.ContainsAny(naf, "%_") {
			return c, fmt.Errorf("%w: activity code %q", core.ErrInvalidCriteria, naf)
		}
	}
	switch {
	case c.Limit < 0:
		return c, fmt.Errorf("%w: negative limit", core.ErrInvalidCriteria)
	case c.Limit == 0:
		c.Limit = DefaultLimit
	case c.Limit > MaxLimit:
		c.Limit = MaxLimit
	}
	return c, nil
}

func cleanList(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.ToUpper(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Candidate is one registry establishment shaped as a contact.
type Candidate struct {
	SIRET         string   `json:"siret" yaml:"siret"`
	SIREN         string   `json:"siren,omitempty" yaml:"siren,omitempty"`
	Name          string   `json:"name" yaml:"name"`
	Address       string   `json:"address,omitempty" yaml:"address,omitempty"`
	PostalCode    string   `json:"postal_code,omitempty" yaml:"postal_code,omitempty"`
	City          string   `json:"city,omitempty" yaml:"city,omitempty"`
	NAFCode       string   `json:"naf_code,omitempty" yaml:"naf_code,omitempty"`
	WorkforceCode string   `json:"workforce_code,omitempty" yaml:"workforce_code,omitempty"`
	LambertX      *float64 `json:"lambert_x,omitempty" yaml:"lambert_x,omitempty"`
	LambertY      *float64 `json:"lambert_y,omitempty" yaml:"lambert_y,omitempty"`
}

// Store reads candidates and claims them as contacts.
type Store interface {
	// FindCandidates returns establishments matching c that are not already
	// contacts, ordered by postal code then name.
	FindCandidates(ctx context.Context, c Criteria) ([]Candidate, error)
	// ClaimContacts inserts the candidates into contacts, skipping SIRETs
	// already claimed, and returns how many were inserted.
	ClaimContacts(ctx context.Context, candidates []Candidate) (int, error)
}

// Result is the outcome of Generate.
type Result struct {
	Found      int         `json:"found" yaml:"found"`
	Injected   int         `json:"injected" yaml:"injected"`
	Candidates []Candidate `json:"candidates,omitempty" yaml:"candidates,omitempty"`
}

// Service generates prospecting subsets.
type Service struct {
	store Store
}

// NewService creates a prospecting service over store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Generate finds the candidates matching c and, when c.Inject is set,
// claims them as contacts. SIRET is the de-duplication key, so running the
// same request twice never creates a contact twice.
func (s *Service) Generate(ctx context.Context, c Criteria) (*Result, error) {
	c, err := c.Normalize()
	if err != nil {
		return nil, err
	}

	candidates, err := s.store.FindCandidates(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	metrics.AddProspects("selected", len(candidates))

	res := &Result{Found: len(candidates), Candidates: candidates}
	if c.Inject && len(candidates) > 0 {
		n, err := s.store.ClaimContacts(ctx, candidates)
		if err != nil {
			return nil, fmt.Errorf("claim contacts: %w", err)
		}
		res.Injected = n
		metrics.AddProspects("claimed", n)
	}

	slog.Info("prospects generated",
		"found", res.Found,
		"injected", res.Injected,
		"postal_codes", len(c.PostalCodes),
		"naf_codes", len(c.NAFPrefixes),
	)
	return res, nil
}
