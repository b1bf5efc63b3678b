package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.Migrate(ctx)
	require.NoError(t, err)
	return store
}

func mustRecord(t *testing.T, header, line string) core.RegistryRecord {
	t.Helper()
	headerFields, err := core.SplitLine(header)
	require.NoError(t, err)
	mapper := core.NewColumnMapper(headerFields)
	fields, err := core.SplitLine(line)
	require.NoError(t, err)
	rec, err := mapper.Map(fields)
	require.NoError(t, err)
	return rec
}

const recordHeader = "siret;siren;codePostalEtablissement;etatAdministratifEtablissement;etablissementSiege;coordonneeLambertAbscisseEtablissement;enseigne1Etablissement"

func TestMigrate_Idempotent(t *testing.T) {
	store := newTestStore(t)

	n, err := store.Migrate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "second run applies nothing")

	status, err := store.MigrationStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 3)
	for _, m := range status {
		assert.True(t, m.Applied, "migration %d", m.Version)
	}
}

func TestWriteBatch_InsertOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := mustRecord(t, recordHeader, "11111111100011;111111111;59000;A;true;700000.5;BOULANGERIE")
	again := mustRecord(t, recordHeader, "11111111100011;111111111;59100;A;true;NaN;AUTRE")
	other := mustRecord(t, recordHeader, "22222222200022;222222222;75001;F;false;;")

	outcomes, err := store.WriteBatch(ctx, []core.RegistryRecord{first, other}, core.ConflictSkip)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeInserted, outcomes[0].Kind)
	assert.Equal(t, core.OutcomeInserted, outcomes[1].Kind)

	outcomes, err = store.WriteBatch(ctx, []core.RegistryRecord{again}, core.ConflictSkip)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSkippedDuplicate, outcomes[0].Kind)

	var postal, sign string
	var lambertX float64
	var siege int
	err = store.DB().QueryRow(
		`SELECT code_postal, enseigne_1, coordonnee_lambert_x, etablissement_siege FROM sirene_etablissements WHERE siret = ?`,
		"11111111100011").Scan(&postal, &sign, &lambertX, &siege)
	require.NoError(t, err)
	assert.Equal(t, "59000", postal)
	assert.Equal(t, "BOULANGERIE", sign)
	assert.InDelta(t, 700000.5, lambertX, 1e-9)
	assert.Equal(t, 1, siege)
}

func TestWriteBatch_Upsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := mustRecord(t, recordHeader, "11111111100011;111111111;59000;A;true;1;BOULANGERIE")
	second := mustRecord(t, recordHeader, "11111111100011;111111111;59100;F;false;;")

	outcomes, err := store.WriteBatch(ctx, []core.RegistryRecord{first, second}, core.ConflictReplace)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, core.OutcomeInserted, outcomes[0].Kind)
	assert.Equal(t, core.OutcomeUpdated, outcomes[1].Kind)

	var postal, state string
	var sign *string
	err = store.DB().QueryRow(
		`SELECT code_postal, etat_administratif, enseigne_1 FROM sirene_etablissements WHERE siret = ?`,
		"11111111100011").Scan(&postal, &state, &sign)
	require.NoError(t, err)
	assert.Equal(t, "59100", postal)
	assert.Equal(t, "F", state)
	assert.Nil(t, sign, "absent values overwrite with NULL")
}

func TestWriteBatch_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := mustRecord(t, recordHeader, "11111111100011;111111111;59000;A;true;;")
	_, err := store.WriteBatch(ctx, []core.RegistryRecord{rec}, core.ConflictSkip)
	require.Error(t, err)
}

func TestTruncateAndStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	recs := []core.RegistryRecord{
		mustRecord(t, recordHeader, "11111111100011;111111111;59000;A;true;;"),
		mustRecord(t, recordHeader, "11111111100022;111111111;59100;A;false;;"),
		mustRecord(t, recordHeader, "22222222200011;222222222;75001;F;true;;"),
	}
	_, err := store.WriteBatch(ctx, recs, core.ConflictSkip)
	require.NoError(t, err)

	st, err := store.RegistryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.RegistryStats{
		Total: 3, Active: 2, Closed: 1, Headquarters: 2, PostalCodes: 3, Departments: 2,
	}, st)

	require.NoError(t, store.TruncateRegistry(ctx))
	st, err = store.RegistryStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Total)
}

func TestJobLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &core.ImportJob{
		ID:          uuid.New(),
		Filename:    "/data/StockEtablissement.csv",
		Mode:        core.ModeDepartments,
		Departments: []string{"59", "62"},
	}
	require.NoError(t, store.CreateJob(ctx, job))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusRunning, got.Status)
	assert.Equal(t, []string{"59", "62"}, got.Departments)
	assert.Nil(t, got.CompletedAt)

	counts := core.JobCounts{TotalRows: 10, Imported: 6, Skipped: 1, Filtered: 2, Errors: 1}
	require.NoError(t, store.CheckpointJob(ctx, job.ID, counts))
	require.NoError(t, store.HeartbeatJob(ctx, job.ID))

	got, err = store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, counts, got.JobCounts)

	require.NoError(t, store.FinalizeJob(ctx, job.ID, core.StatusCompleted, counts, ""))
	got, err = store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.Empty(t, got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)

	err = store.FinalizeJob(ctx, job.ID, core.StatusFailed, counts, "late")
	assert.ErrorIs(t, err, core.ErrJobNotRunning)
	err = store.CheckpointJob(ctx, job.ID, counts)
	assert.ErrorIs(t, err, core.ErrJobNotRunning)

	_, err = store.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, core.ErrImportNotFound)
	err = store.HeartbeatJob(ctx, uuid.New())
	assert.ErrorIs(t, err, core.ErrImportNotFound)
}

func TestListJobs_MostRecentFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		job := &core.ImportJob{
			ID:        uuid.New(),
			Filename:  "f.csv",
			Mode:      core.ModeFull,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.CreateJob(ctx, job))
		ids = append(ids, job.ID)
	}

	jobs, err := store.ListJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, ids[2], jobs[0].ID)
	assert.Equal(t, ids[1], jobs[1].ID)
}

func TestMarkStaleJobs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	stale := &core.ImportJob{ID: uuid.New(), Filename: "a.csv", Mode: core.ModeFull, StartedAt: now.Add(-time.Hour)}
	fresh := &core.ImportJob{ID: uuid.New(), Filename: "b.csv", Mode: core.ModeUpdate, StartedAt: now}
	require.NoError(t, store.CreateJob(ctx, stale))
	require.NoError(t, store.CreateJob(ctx, fresh))

	n, err := store.MarkStaleJobs(ctx, now.Add(-10*time.Minute), "heartbeat lost")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.GetJob(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusAbandoned, got.Status)
	assert.Equal(t, "heartbeat lost", got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)

	got, err = store.GetJob(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusRunning, got.Status)
}
