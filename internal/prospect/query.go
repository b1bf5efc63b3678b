package prospect

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// CandidateColumns are the registry columns read by CandidateQuery, in scan
// order for ScanCandidate.
var CandidateColumns = []string{
	"siret", "siren", "enseigne_1", "denomination_usuelle",
	"numero_voie", "type_voie", "libelle_voie", "code_postal", "libelle_commune",
	"activite_principale", "tranche_effectifs",
	"coordonnee_lambert_x", "coordonnee_lambert_y",
}

// Placeholder renders the bind parameter for 1-based position n.
type Placeholder func(n int) string

// Dollar renders PostgreSQL placeholders.
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Question renders SQLite placeholders.
func Question(int) string { return "?" }

// CandidateQuery builds the candidate selection for c. Lists are expanded to
// IN lists so the statement runs unchanged on both stores.
func CandidateQuery(c Criteria, ph Placeholder) (string, []any) {
	var (
		where []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return ph(len(args))
	}
	in := func(col string, values []string) string {
		ps := make([]string, len(values))
		for i, v := range values {
			ps[i] = next(v)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(ps, ", "))
	}

	if len(c.PostalCodes) > 0 {
		where = append(where, in("code_postal", c.PostalCodes))
	}
	if len(c.NAFPrefixes) > 0 {
		likes := make([]string, len(c.NAFPrefixes))
		for i, naf := range c.NAFPrefixes {
			likes[i] = "activite_principale LIKE " + next(naf+"%")
		}
		where = append(where, "("+strings.Join(likes, " OR ")+")")
	}
	if len(c.WorkforceBrackets) > 0 {
		where = append(where, in("tranche_effectifs", c.WorkforceBrackets))
	}
	if !c.IncludeClosed {
		where = append(where, "etat_administratif = 'A'")
	}
	if c.HeadOfficeOnly {
		where = append(where, "etablissement_siege = TRUE")
	}
	where = append(where, "NOT EXISTS (SELECT 1 FROM contacts c WHERE c.siret = e.siret)")

	query := fmt.Sprintf(
		"SELECT %s FROM sirene_etablissements e WHERE %s ORDER BY code_postal, enseigne_1, siret LIMIT %s",
		"e."+strings.Join(CandidateColumns, ", e."),
		strings.Join(where, " AND "),
		next(c.Limit),
	)
	return query, args
}

// Scanner is satisfied by pgx.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanCandidate reads one row of CandidateQuery. The pgtype targets
// implement sql.Scanner, so the same code serves both stores.
func ScanCandidate(row Scanner) (Candidate, error) {
	var (
		siret, siren, sign, usualName    pgtype.Text
		number, streetType, street       pgtype.Text
		postalCode, city, naf, workforce pgtype.Text
		lambertX, lambertY               pgtype.Float8
	)
	if err := row.Scan(
		&siret, &siren, &sign, &usualName,
		&number, &streetType, &street, &postalCode, &city,
		&naf, &workforce, &lambertX, &lambertY,
	); err != nil {
		return Candidate{}, err
	}

	return Candidate{
		SIRET:         siret.String,
		SIREN:         siren.String,
		Name:          contactName(sign.String, usualName.String),
		Address:       joinNonEmpty(number.String, streetType.String, street.String),
		PostalCode:    postalCode.String,
		City:          city.String,
		NAFCode:       naf.String,
		WorkforceCode: workforce.String,
		LambertX:      floatPtr(lambertX),
		LambertY:      floatPtr(lambertY),
	}, nil
}

func contactName(sign, usualName string) string {
	if s := strings.TrimSpace(sign); s != "" {
		return s
	}
	if s := strings.TrimSpace(usualName); s != "" {
		return s
	}
	return DefaultName
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func floatPtr(f pgtype.Float8) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

// ContactInsert is the claim statement; placeholders follow ContactArgs.
func ContactInsert(ph Placeholder) string {
	ps := make([]string, 10)
	for i := range ps {
		ps[i] = ph(i + 1)
	}
	return `INSERT INTO contacts (siret, siren, name, address, postal_code, city,
		naf_code, workforce_code, lambert_x, lambert_y, source)
		VALUES (` + strings.Join(ps, ", ") + `, 'SIRENE')
		ON CONFLICT (siret) DO NOTHING`
}

// ContactArgs returns the bind values of ContactInsert for c.
func ContactArgs(c Candidate) []any {
	return []any{
		c.SIRET, nullable(c.SIREN), c.Name, nullable(c.Address), nullable(c.PostalCode),
		nullable(c.City), nullable(c.NAFCode), nullable(c.WorkforceCode), c.LambertX, c.LambertY,
	}
}

func nullable(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
