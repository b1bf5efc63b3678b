package core

import (
	"fmt"
	"sort"
	"strings"
)

// DepartmentFilter is an allow-list of two-character department prefixes
// matched against a record's postal code. A nil filter allows everything.
type DepartmentFilter struct {
	allowed map[string]struct{}
}

// NewDepartmentFilter normalizes codes (trimmed, upper-cased, deduplicated)
// and returns nil when none are given. Codes must be exactly two characters,
// e.g. "59", "2A".
func NewDepartmentFilter(codes []string) (*DepartmentFilter, error) {
	allowed := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if len(c) != 2 {
			return nil, fmt.Errorf("%w: %q (want 2 characters)", ErrInvalidDepartment, c)
		}
		allowed[c] = struct{}{}
	}
	if len(allowed) == 0 {
		return nil, nil
	}
	return &DepartmentFilter{allowed: allowed}, nil
}

// Allow reports whether the record's postal code starts with an allowed
// prefix. Records without a postal code are outside every filter.
func (f *DepartmentFilter) Allow(rec RegistryRecord) bool {
	if f == nil {
		return true
	}
	cp := rec.PostalCode()
	if len(cp) < 2 {
		return false
	}
	_, ok := f.allowed[strings.ToUpper(cp[:2])]
	return ok
}

// Codes returns the normalized allow-list, sorted.
func (f *DepartmentFilter) Codes() []string {
	if f == nil {
		return nil
	}
	codes := make([]string, 0, len(f.allowed))
	for c := range f.allowed {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
