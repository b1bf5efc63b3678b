package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	insertSQL = buildInsert(false)
	upsertSQL = buildInsert(true)
)

// buildInsert renders the single-record write statement. Upserts report
// whether the row was new through xmax, which is 0 for freshly inserted rows.
func buildInsert(upsert bool) string {
	names := core.ColumnNames()
	params := make([]string, len(names))
	for i := range names {
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO sirene_etablissements (%s) VALUES (%s)",
		strings.Join(names, ", "), strings.Join(params, ", "))

	if !upsert {
		b.WriteString(" ON CONFLICT (siret) DO NOTHING RETURNING siret")
		return b.String()
	}

	sets := make([]string, 0, len(names))
	for _, n := range names {
		if n == core.ColSIRET {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", n, n))
	}
	fmt.Fprintf(&b, " ON CONFLICT (siret) DO UPDATE SET %s, updated_at = now() RETURNING (xmax = 0)",
		strings.Join(sets, ", "))
	return b.String()
}

// TruncateRegistry removes every record.
func (s *Store) TruncateRegistry(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "TRUNCATE TABLE sirene_etablissements"); err != nil {
		return fmt.Errorf("truncate registry: %w", err)
	}
	return nil
}

// WriteBatch writes the records inside one transaction. Each record runs
// under its own savepoint so a record the database refuses is rolled back
// alone. Errors that are not server-side statement errors abort the batch.
func (s *Store) WriteBatch(ctx context.Context, records []core.RegistryRecord, policy core.ConflictPolicy) ([]core.WriteOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	outcomes := make([]core.WriteOutcome, len(records))
	for i, rec := range records {
		savepoint := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
			return nil, fmt.Errorf("create savepoint: %w", err)
		}

		outcome, err := writeRecord(ctx, tx, rec, policy)
		if err != nil {
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) {
				return nil, fmt.Errorf("write %s: %w", rec.SIRET(), err)
			}
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
				return nil, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			outcomes[i] = core.Rejected(err)
			continue
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			return nil, fmt.Errorf("release savepoint: %w", err)
		}
		outcomes[i] = outcome
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return outcomes, nil
}

func writeRecord(ctx context.Context, tx pgx.Tx, rec core.RegistryRecord, policy core.ConflictPolicy) (core.WriteOutcome, error) {
	if policy == core.ConflictReplace {
		var inserted bool
		if err := tx.QueryRow(ctx, upsertSQL, rec.Values...).Scan(&inserted); err != nil {
			return core.WriteOutcome{}, err
		}
		if inserted {
			return core.WriteOutcome{Kind: core.OutcomeInserted}, nil
		}
		return core.WriteOutcome{Kind: core.OutcomeUpdated}, nil
	}

	var siret string
	err := tx.QueryRow(ctx, insertSQL, rec.Values...).Scan(&siret)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.WriteOutcome{Kind: core.OutcomeSkippedDuplicate}, nil
	}
	if err != nil {
		return core.WriteOutcome{}, err
	}
	return core.WriteOutcome{Kind: core.OutcomeInserted}, nil
}

// RegistryStats counts the stored records.
func (s *Store) RegistryStats(ctx context.Context) (core.RegistryStats, error) {
	var st core.RegistryStats
	err := s.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE etat_administratif = 'A'),
		       count(*) FILTER (WHERE etat_administratif = 'F'),
		       count(*) FILTER (WHERE etablissement_siege),
		       count(DISTINCT code_postal),
		       count(DISTINCT left(code_postal, 2))
		FROM sirene_etablissements`).Scan(
		&st.Total, &st.Active, &st.Closed, &st.Headquarters, &st.PostalCodes, &st.Departments,
	)
	if err != nil {
		return core.RegistryStats{}, fmt.Errorf("registry stats: %w", err)
	}
	return st, nil
}
