package db

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE invoice_items")
	assert.Contains(t, migrations[0].SQL, "position integer NOT NULL")
}

func TestLoadMigrationsOrdersAndValidates(t *testing.T) {
	got, err := loadMigrations(fstest.MapFS{
		"migrations/0002_b.sql": {Data: []byte("SELECT 2")},
		"migrations/0001_a.sql": {Data: []byte("SELECT 1")},
		"migrations/README.md":  {Data: []byte("ignored")},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0001_a.sql", got[0].Name)
	assert.Equal(t, 2, got[1].Version)

	_, err = loadMigrations(fstest.MapFS{"migrations/init.sql": {Data: []byte("x")}})
	assert.Error(t, err)

	_, err = loadMigrations(fstest.MapFS{
		"migrations/0001_a.sql": {Data: []byte("x")},
		"migrations/001_b.sql":  {Data: []byte("y")},
	})
	assert.ErrorContains(t, err, "duplicate migration version 1")
}

func TestMigrateAppliesPendingOnly(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	migrations := []Migration{
		{Version: 1, SQL: "CREATE TABLE a (id int)"},
		{Version: 2, SQL: "CREATE TABLE b (id int)"},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_version").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(version\\), 0\\) FROM schema_version").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_version").WithArgs(2).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	applied, err := Migrate(context.Background(), mock, migrations)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_version").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(0))
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectExec("CREATE TABLE a").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	_, err = Migrate(context.Background(), mock, []Migration{{Version: 1, SQL: "CREATE TABLE a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migration 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}
