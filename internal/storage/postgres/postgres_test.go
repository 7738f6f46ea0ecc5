package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/equipment-crawler/internal/equipment"
)

type fixedIDs struct {
	id  string
	err error
}

func (f fixedIDs) NewID() (string, error) { return f.id, f.err }

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func TestNewEquipmentRepositoryValidates(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	_, err := NewEquipmentRepository(nil, "", fixedIDs{})
	require.Error(t, err)
	_, err = NewEquipmentRepository(mock, "", nil)
	require.Error(t, err)
	_, err = NewEquipmentRepository(mock, "bad-name; DROP", fixedIDs{})
	require.Error(t, err)

	repo, err := NewEquipmentRepository(mock, "", fixedIDs{})
	require.NoError(t, err)
	require.Equal(t, DefaultEquipmentTable, repo.table)
}

func TestExistsByNameAndCountry(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	repo, err := NewEquipmentRepository(mock, "equipment", fixedIDs{})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM equipment WHERE lower\(name\) = lower\(\$1\)`).
		WithArgs("T-72", "Russia").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("Leclerc", "France").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("Merkava", "Israel").
		WillReturnError(errors.New("connection reset"))

	exists, err := repo.ExistsByNameAndCountry(context.Background(), "T-72", "Russia")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = repo.ExistsByNameAndCountry(context.Background(), "Leclerc", "France")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = repo.ExistsByNameAndCountry(context.Background(), "Merkava", "Israel")
	require.ErrorContains(t, err, "check equipment exists")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInsertsRow(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	repo, err := NewEquipmentRepository(mock, "equipment", fixedIDs{id: "0190b6a4-0000-7000-8000-000000000001"})
	require.NoError(t, err)

	rec := equipment.Record{
		Name:         "T-72",
		Type:         "Tank",
		Category:     "Main Battle Tank",
		Country:      "Russia",
		Manufacturer: "Uralvagonzavod",
		Armament:     []string{"125 mm gun"},
		Description:  "Soviet MBT",
		Year:         1973,
		Source:       "Wikipedia",
		SourceURL:    "https://en.wikipedia.org/wiki/T-72",
	}

	mock.ExpectExec("INSERT INTO equipment").
		WithArgs(
			"0190b6a4-0000-7000-8000-000000000001",
			"T-72",
			"Tank",
			"Russia",
			strPtr("Soviet MBT"),
			(*string)(nil),
			true,
			intPtr(1973),
			[]byte(`{"manufacturer":"Uralvagonzavod","armament":["125 mm gun"],"source":"Wikipedia","sourceUrl":"https://en.wikipedia.org/wiki/T-72","category":"Main Battle Tank"}`),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	stored, err := repo.Create(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, "0190b6a4-0000-7000-8000-000000000001", stored.ID)
	require.Equal(t, rec, stored.Record)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateErrors(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	boom := errors.New("no ids")
	repo, err := NewEquipmentRepository(mock, "equipment", fixedIDs{err: boom})
	require.NoError(t, err)
	_, err = repo.Create(context.Background(), equipment.Record{Name: "T-72"})
	require.ErrorIs(t, err, boom)

	repo, err = NewEquipmentRepository(mock, "equipment", fixedIDs{id: "id-1"})
	require.NoError(t, err)
	mock.ExpectExec("INSERT INTO equipment").WillReturnError(errors.New("unique violation"))
	_, err = repo.Create(context.Background(), equipment.Record{Name: "T-72"})
	require.ErrorContains(t, err, "insert equipment")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store, err := NewRunStore(mock, "")
	require.NoError(t, err)

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	finished := started.Add(time.Minute)

	mock.ExpectExec("INSERT INTO parser_runs").
		WithArgs("run-1", started, RunRunning, []byte(`{"sources":["wikipedia"],"maxItems":5,"dryRun":true}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE parser_runs").
		WithArgs(finished, RunSucceeded, 7, 5, 2, 1, 4, (*string)(nil), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE parser_runs").
		WithArgs(finished, RunFailed, 0, 0, 0, 0, 0, strPtr("no source reachable"), "run-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.StartRun(context.Background(), "run-1", started, equipment.Options{
		Sources:  []string{"wikipedia"},
		MaxItems: 5,
		DryRun:   true,
	}))
	require.NoError(t, store.FinishRun(context.Background(), "run-1", finished, equipment.ParseResult{
		Processed:  7,
		Success:    5,
		Failed:     2,
		Duplicates: 1,
		Persist:    &equipment.PersistSummary{Saved: 4},
	}, nil))
	err = store.FinishRun(context.Background(), "run-2", finished, equipment.ParseResult{}, errors.New("no source reachable"))
	require.ErrorContains(t, err, "not found")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS military_equipment").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE UNIQUE INDEX IF NOT EXISTS military_equipment_name_country_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS parser_runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, EnsureSchema(context.Background(), mock, DefaultEquipmentTable, DefaultRunTable))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Error(t, EnsureSchema(context.Background(), mock, "x;y", DefaultRunTable))
}
