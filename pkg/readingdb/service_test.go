package readingdb

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/NotCoffee418/adm300_monitor/pkg/sentence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSentence = "11a010-1 251-1 040-1 R..L.I00U01A1513 49620 3A]"

// openTestDB returns an in-memory database with the up section of every
// embedded migration applied.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	entries, err := migrationFS.ReadDir("migrations")
	require.NoError(t, err)
	for _, entry := range entries {
		content, err := migrationFS.ReadFile("migrations/" + entry.Name())
		require.NoError(t, err)
		up, _, found := strings.Cut(string(content), "-- +down")
		require.True(t, found, entry.Name())
		_, err = db.Exec(strings.TrimPrefix(strings.TrimSpace(up), "-- +up"))
		require.NoError(t, err, entry.Name())
	}
	return db
}

func TestMigrationsEmbedded(t *testing.T) {
	content, err := migrationFS.ReadFile("migrations/0001_initial.sql")
	require.NoError(t, err)
	assert.Contains(t, string(content), "CREATE TABLE IF NOT EXISTS dose_readings")
	assert.Contains(t, string(content), "CREATE TABLE IF NOT EXISTS aggregate_dose_hourly")
}

func TestInitialize_AppliesMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adm300-readings.db")
	db, err := Initialize(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ts := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, StoreReport(db, sentence.DecodeSentence(testSentence), ts))
	require.NoError(t, UpsertAggregateDoseHourly(db, &AggregateDoseHourly{HourStart: 3600, SampleCount: 1}))

	readings, err := GetDoseReadings(db, ts.Unix(), ts.Unix())
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, uint32(251), readings[0].DoseAccUR)

	// Migrating an up to date database again is a no-op.
	Migrate(db)
	readings, err = GetDoseReadings(db, ts.Unix(), ts.Unix())
	require.NoError(t, err)
	assert.Len(t, readings, 1)
}

func TestStoreReport(t *testing.T) {
	db := openTestDB(t)
	ts := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)

	report := sentence.DecodeSentence(testSentence)
	require.True(t, report.Valid)
	require.NoError(t, StoreReport(db, report, ts))

	assert.ErrorIs(t, StoreReport(db, sentence.Invalid(), ts), ErrInvalidReading)

	readings, err := GetDoseReadings(db, ts.Unix()-1, ts.Unix()+1)
	require.NoError(t, err)
	require.Len(t, readings, 1)

	got := readings[0]
	assert.Equal(t, ts.Unix(), got.Timestamp)
	assert.Equal(t, 11, got.SeqNo)
	assert.Equal(t, uint32(10), got.DoseRateUR)
	assert.Equal(t, uint32(251), got.DoseAccUR)
	assert.Equal(t, uint32(40), got.DoseRateUnfUR)
	assert.True(t, got.RateAlarm)
	assert.False(t, got.DoseAlarm)
	assert.False(t, got.BattAlarm)
	assert.Equal(t, sentence.ProbeInternalLow, got.Probe)
	assert.True(t, got.AnyAlarm())
}

func TestGetDoseReadingsRange(t *testing.T) {
	db := openTestDB(t)
	for i := int64(0); i < 5; i++ {
		require.NoError(t, InsertDoseReading(db, &DoseReading{Timestamp: 1000 + i*10, SeqNo: int(i), DoseRateUR: uint32(i)}))
	}

	readings, err := GetDoseReadings(db, 1010, 1030)
	require.NoError(t, err)
	require.Len(t, readings, 3)
	assert.Equal(t, int64(1010), readings[0].Timestamp)
	assert.Equal(t, int64(1030), readings[2].Timestamp)

	deleted, err := DeleteDoseReadingsBefore(db, 1020)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	readings, err = GetDoseReadings(db, 0, 2000)
	require.NoError(t, err)
	assert.Len(t, readings, 3)
}

func TestAggregateUpsert(t *testing.T) {
	db := openTestDB(t)

	_, ok, err := LastAggregateHour(db)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, UpsertAggregateDoseHourly(db, &AggregateDoseHourly{HourStart: 3600, AvgRateUR: 10, SampleCount: 1}))
	require.NoError(t, UpsertAggregateDoseHourly(db, &AggregateDoseHourly{HourStart: 3600, AvgRateUR: 12, MaxRateUR: 20, SampleCount: 2}))
	require.NoError(t, UpsertAggregateDoseHourly(db, &AggregateDoseHourly{HourStart: 7200, AvgRateUR: 5, SampleCount: 1}))

	last, ok, err := LastAggregateHour(db)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7200), last)

	aggregates, err := GetAggregatesDoseHourly(db, 0, 3600)
	require.NoError(t, err)
	require.Len(t, aggregates, 1)
	assert.Equal(t, uint32(12), aggregates[0].AvgRateUR)
	assert.Equal(t, uint32(20), aggregates[0].MaxRateUR)
	assert.Equal(t, uint32(2), aggregates[0].SampleCount)
}

func TestSentenceProbe(t *testing.T) {
	assert.Equal(t, sentence.ProbeInternalHigh, sentenceProbe(2))
	assert.Equal(t, sentence.ProbeUnknown, sentenceProbe(9))
}
