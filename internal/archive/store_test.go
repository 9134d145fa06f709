package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"alarm/live/internal/report"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seenAt = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func TestSaveReports(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	lon, lat := 4.90, 52.37
	reports := []report.Details{
		{ID: "brand-1", Title: "Brand", Date: "12:20", Type: report.TypeFire, Location: report.Location{lat, lon}},
		{ID: "politie-2", Title: "Diefstal", Date: "12:34", Type: report.TypePolice},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reports").
		WithArgs("brand-1", "Brand", "", "12:20", "fire", &lon, &lat, seenAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO reports").
		WithArgs("politie-2", "Diefstal", "", "12:34", "police", pgxmock.AnyArg(), pgxmock.AnyArg(), seenAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := New(mock).SaveReports(context.Background(), reports, seenAt)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReports_RollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reports").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err = New(mock).SaveReports(context.Background(), []report.Details{{ID: "x-1", Title: "X"}}, seenAt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReports_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := New(mock).SaveReports(context.Background(), nil, seenAt)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	first := seenAt.Add(-time.Hour)
	mock.ExpectQuery("SELECT id").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "title", "description", "date_text", "type", "latitude", "longitude", "first_seen_at", "last_seen_at",
		}).
			AddRow("brand-1", "Brand", "<p>rook</p>", "12:20", "fire", 52.37, 4.90, first, seenAt).
			AddRow("politie-2", "Diefstal", "", "12:34", "police", 0.0, 0.0, seenAt, seenAt))

	entries, err := New(mock).ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "brand-1", entries[0].ID)
	assert.Equal(t, report.TypeFire, entries[0].Type)
	assert.Equal(t, report.Location{52.37, 4.90}, entries[0].Location)
	assert.Equal(t, first, entries[0].FirstSeenAt)
	assert.True(t, entries[1].Location.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecent_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id").WillReturnError(errors.New("relation does not exist"))

	_, err = New(mock).ListRecent(context.Background(), 5)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNilStore(t *testing.T) {
	var s *Store
	_, err := s.ListRecent(context.Background(), 5)
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = s.SaveReports(context.Background(), []report.Details{{ID: "a"}}, seenAt)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestMigrations(t *testing.T) {
	migrations, err := Migrations().FindMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	first := migrations[0]
	assert.Equal(t, "0001_reports.sql", first.Id)
	require.NotEmpty(t, first.Up)
	require.NotEmpty(t, first.Down)
	assert.Contains(t, first.Up[0], "postgis")
}
