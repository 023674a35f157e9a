package aggregator

import (
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/NotCoffee418/adm300_monitor/pkg/readingdb"
	"github.com/sirupsen/logrus"
)

// AggregateHour summarises the raw readings of the hour starting at
// hourStart. Hours without readings are skipped.
func AggregateHour(db *sql.DB, hourStart time.Time) error {
	start := TimeframeHourly.Start(hourStart)
	end := TimeframeHourly.End(start)

	query := `
		SELECT
			COUNT(*),
			COALESCE(AVG(dose_rate_ur), 0),
			COALESCE(MAX(dose_rate_ur), 0),
			COALESCE(SUM(CASE WHEN rate_alarm OR dose_alarm THEN 1 ELSE 0 END), 0)
		FROM dose_readings
		WHERE timestamp >= ? AND timestamp <= ?
	`

	var sampleCount, maxRate, alarmSamples uint32
	var avgRate float64
	err := db.QueryRow(query, start.Unix(), end.Unix()).Scan(&sampleCount, &avgRate, &maxRate, &alarmSamples)
	if err != nil {
		return err
	}
	if sampleCount == 0 {
		return nil
	}

	// Accumulated dose only grows until cleared, so the last value is the standing.
	var lastAcc uint32
	err = db.QueryRow(`
		SELECT dose_acc_ur
		FROM dose_readings
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC
		LIMIT 1
	`, start.Unix(), end.Unix()).Scan(&lastAcc)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	return readingdb.UpsertAggregateDoseHourly(db, &readingdb.AggregateDoseHourly{
		HourStart:    start.Unix(),
		AvgRateUR:    uint32(math.Round(avgRate)),
		MaxRateUR:    maxRate,
		LastAccUR:    lastAcc,
		AlarmSamples: alarmSamples,
		SampleCount:  sampleCount,
	})
}

// Cleanup removes raw readings older than retention, but only once the
// aggregates have caught up past the cutoff.
func Cleanup(db *sql.DB, now time.Time, retention time.Duration, log *logrus.Logger) error {
	cutoff := now.UTC().Add(-retention)

	lastAggregateHour, ok, err := readingdb.LastAggregateHour(db)
	if err != nil {
		return err
	}
	if !ok || lastAggregateHour < cutoff.Unix() {
		return nil
	}

	deleted, err := readingdb.DeleteDoseReadingsBefore(db, cutoff.Unix())
	if err != nil {
		return err
	}
	if log != nil && deleted > 0 {
		log.Infof("Cleaned up %d readings older than %s", deleted, cutoff.Format(time.RFC3339))
	}
	return nil
}

// AggregateAndCleanup aggregates the hour before now (the current one is
// still ongoing) and then applies retention.
func AggregateAndCleanup(db *sql.DB, now time.Time, retention time.Duration, log *logrus.Logger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}
	hourStart := TimeframeHourly.Start(now.Add(-time.Hour))

	log.Infof("Aggregating data for hour starting at %s", hourStart.Format(time.RFC3339))
	if err := AggregateHour(db, hourStart); err != nil {
		log.Errorf("Error aggregating hourly dose: %v", err)
		return err
	}

	if err := Cleanup(db, now, retention, log); err != nil {
		log.Errorf("Error cleaning up old data: %v", err)
		return err
	}

	log.Debug("Aggregation and cleanup completed successfully")
	return nil
}

// GetAggregates returns the stored hourly aggregates between from and to,
// plus the live aggregate of the current hour when it falls in range.
func GetAggregates(db *sql.DB, from, to, now time.Time) ([]AggregateData, error) {
	stored, err := readingdb.GetAggregatesDoseHourly(db, from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}

	result := make([]AggregateData, 0, len(stored)+1)
	for _, agg := range stored {
		result = append(result, AggregateData{
			Timeframe: TimeframeHourly,
			EndTime:   TimeframeHourly.End(time.Unix(agg.HourStart, 0).UTC()).Unix(),
			Aggregate: agg,
		})
	}

	current := TimeframeHourly.Start(now)
	if current.Before(from) || current.After(to) {
		return result, nil
	}
	live, ok, err := liveAggregate(db, current)
	if err != nil {
		return nil, err
	}
	if ok {
		result = append(result, AggregateData{
			Timeframe:          TimeframeHourly,
			EndTime:            TimeframeHourly.End(current).Unix(),
			IsCurrentTimeframe: true,
			Aggregate:          live,
		})
	}
	return result, nil
}

func liveAggregate(db *sql.DB, hourStart time.Time) (readingdb.AggregateDoseHourly, bool, error) {
	readings, err := readingdb.GetDoseReadings(db, hourStart.Unix(), TimeframeHourly.End(hourStart).Unix())
	if err != nil || len(readings) == 0 {
		return readingdb.AggregateDoseHourly{}, false, err
	}

	agg := readingdb.AggregateDoseHourly{HourStart: hourStart.Unix()}
	var sum uint64
	for _, r := range readings {
		sum += uint64(r.DoseRateUR)
		if r.DoseRateUR > agg.MaxRateUR {
			agg.MaxRateUR = r.DoseRateUR
		}
		if r.AnyAlarm() {
			agg.AlarmSamples++
		}
		agg.LastAccUR = r.DoseAccUR
	}
	agg.SampleCount = uint32(len(readings))
	agg.AvgRateUR = uint32(math.Round(float64(sum) / float64(len(readings))))
	return agg, true, nil
}
