package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
)

var (
	insertSQL = buildInsert(false)
	upsertSQL = buildInsert(true)
)

// buildInsert renders the single-record write statement. The two trailing
// parameters are created_at and updated_at in unix milliseconds.
func buildInsert(upsert bool) string {
	names := core.ColumnNames()
	cols := append(append([]string{}, names...), "created_at", "updated_at")
	params := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO sirene_etablissements (%s) VALUES (%s)", strings.Join(cols, ", "), params)
	if !upsert {
		b.WriteString(" ON CONFLICT (siret) DO NOTHING")
		return b.String()
	}

	sets := make([]string, 0, len(names)+1)
	for _, n := range names {
		if n != core.ColSIRET {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", n, n))
		}
	}
	sets = append(sets, "updated_at = excluded.updated_at")
	fmt.Fprintf(&b, " ON CONFLICT (siret) DO UPDATE SET %s", strings.Join(sets, ", "))
	return b.String()
}

// TruncateRegistry removes every record.
func (s *Store) TruncateRegistry(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sirene_etablissements"); err != nil {
		return fmt.Errorf("truncate registry: %w", err)
	}
	return nil
}

// WriteBatch writes the records inside one transaction, each under its own
// savepoint.
func (s *Store) WriteBatch(ctx context.Context, records []core.RegistryRecord, policy core.ConflictPolicy) ([]core.WriteOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	outcomes := make([]core.WriteOutcome, len(records))
	for i, rec := range records {
		savepoint := fmt.Sprintf("sp_%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
			return nil, fmt.Errorf("create savepoint: %w", err)
		}

		outcome, err := writeRecord(ctx, tx, rec, policy, now)
		if err != nil {
			if !isRecordError(err) {
				return nil, fmt.Errorf("write %s: %w", rec.SIRET(), err)
			}
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
				return nil, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			outcomes[i] = core.Rejected(err)
			continue
		}

		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			return nil, fmt.Errorf("release savepoint: %w", err)
		}
		outcomes[i] = outcome
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return outcomes, nil
}

func writeRecord(ctx context.Context, tx *sql.Tx, rec core.RegistryRecord, policy core.ConflictPolicy, now int64) (core.WriteOutcome, error) {
	values, err := sqlValues(rec.Values)
	if err != nil {
		return core.WriteOutcome{}, err
	}
	args := append(values, now, now)

	if policy == core.ConflictReplace {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM sirene_etablissements WHERE siret = ?", rec.SIRET()).Scan(&one)
		exists := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return core.WriteOutcome{}, err
		}
		if _, err := tx.ExecContext(ctx, upsertSQL, args...); err != nil {
			return core.WriteOutcome{}, err
		}
		if exists {
			return core.WriteOutcome{Kind: core.OutcomeUpdated}, nil
		}
		return core.WriteOutcome{Kind: core.OutcomeInserted}, nil
	}

	res, err := tx.ExecContext(ctx, insertSQL, args...)
	if err != nil {
		return core.WriteOutcome{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.WriteOutcome{}, err
	}
	if n == 0 {
		return core.WriteOutcome{Kind: core.OutcomeSkippedDuplicate}, nil
	}
	return core.WriteOutcome{Kind: core.OutcomeInserted}, nil
}

// RegistryStats counts the stored records.
func (s *Store) RegistryStats(ctx context.Context) (core.RegistryStats, error) {
	var st core.RegistryStats
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*),
		       coalesce(sum(etat_administratif = 'A'), 0),
		       coalesce(sum(etat_administratif = 'F'), 0),
		       coalesce(sum(etablissement_siege = 1), 0),
		       count(DISTINCT code_postal),
		       count(DISTINCT substr(code_postal, 1, 2))
		FROM sirene_etablissements`).Scan(
		&st.Total, &st.Active, &st.Closed, &st.Headquarters, &st.PostalCodes, &st.Departments,
	)
	if err != nil {
		return core.RegistryStats{}, fmt.Errorf("registry stats: %w", err)
	}
	return st, nil
}
