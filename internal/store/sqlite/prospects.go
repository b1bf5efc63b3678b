package sqlite

import (
	"context"
	"fmt"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/prospect"
)

// FindCandidates returns unclaimed establishments matching c.
func (s *Store) FindCandidates(ctx context.Context, c prospect.Criteria) ([]prospect.Candidate, error) {
	query, args := prospect.CandidateQuery(c, prospect.Question)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var out []prospect.Candidate
	for rows.Next() {
		cand, err := prospect.ScanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, cand)
	}
	return out, rows.Err()
}

// ClaimContacts inserts the candidates in one transaction and returns how
// many were new.
func (s *Store) ClaimContacts(ctx context.Context, candidates []prospect.Candidate) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, prospect.ContactInsert(prospect.Question))
	if err != nil {
		return 0, fmt.Errorf("prepare contact insert: %w", err)
	}
	defer stmt.Close()

	claimed := 0
	for _, c := range candidates {
		args, err := sqlValues(prospect.ContactArgs(c))
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, fmt.Errorf("insert contact %s: %w", c.SIRET, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		claimed += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return claimed, nil
}
