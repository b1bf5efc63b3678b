package postgres

import (
	"context"
	"fmt"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/prospect"
	"github.com/jackc/pgx/v5"
)

// FindCandidates returns unclaimed establishments matching c.
func (s *Store) FindCandidates(ctx context.Context, c prospect.Criteria) ([]prospect.Candidate, error) {
	query, args := prospect.CandidateQuery(c, prospect.Dollar)
	rows, err := s.pool.Query(ctx, query, args...)
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

// ClaimContacts inserts the candidates in one pipelined batch and returns how
// many were new.
func (s *Store) ClaimContacts(ctx context.Context, candidates []prospect.Candidate) (int, error) {
	insert := prospect.ContactInsert(prospect.Dollar)
	batch := &pgx.Batch{}
	for _, c := range candidates {
		batch.Queue(insert, prospect.ContactArgs(c)...)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	claimed := 0
	for range candidates {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("insert contact: %w", err)
		}
		claimed += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return claimed, nil
}
