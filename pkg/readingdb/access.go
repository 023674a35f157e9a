package readingdb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/NotCoffee418/adm300_monitor/pkg/sentence"
)

var ErrInvalidReading = errors.New("refusing to store invalid report")

func InsertDoseReading(db *sql.DB, reading *DoseReading) error {
	_, err := db.Exec(
		"INSERT INTO dose_readings "+
			"(timestamp, seq_no, dose_rate_ur, dose_acc_ur, dose_rate_unf_ur, rate_alarm, dose_alarm, batt_alarm, probe) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		reading.Timestamp,
		reading.SeqNo,
		reading.DoseRateUR,
		reading.DoseAccUR,
		reading.DoseRateUnfUR,
		reading.RateAlarm,
		reading.DoseAlarm,
		reading.BattAlarm,
		uint8(reading.Probe),
	)
	if err != nil {
		return fmt.Errorf("insert dose reading %d: %w", reading.SeqNo, err)
	}
	return nil
}

// StoreReport converts and inserts a report received at ts.
func StoreReport(db *sql.DB, report sentence.ParsedReport, ts time.Time) error {
	if !report.Valid {
		return ErrInvalidReading
	}
	reading := DoseReadingFromReport(report, ts)
	return InsertDoseReading(db, &reading)
}

// GetDoseReadings returns readings with from <= timestamp <= to, oldest first.
func GetDoseReadings(db *sql.DB, from, to int64) ([]DoseReading, error) {
	rows, err := db.Query(
		"SELECT timestamp, seq_no, dose_rate_ur, dose_acc_ur, dose_rate_unf_ur, rate_alarm, dose_alarm, batt_alarm, probe "+
			"FROM dose_readings WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp ASC",
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []DoseReading
	for rows.Next() {
		var r DoseReading
		var probe uint8
		if err := rows.Scan(&r.Timestamp, &r.SeqNo, &r.DoseRateUR, &r.DoseAccUR, &r.DoseRateUnfUR,
			&r.RateAlarm, &r.DoseAlarm, &r.BattAlarm, &probe); err != nil {
			return nil, err
		}
		r.Probe = sentenceProbe(probe)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

func UpsertAggregateDoseHourly(db *sql.DB, agg *AggregateDoseHourly) error {
	_, err := db.Exec(
		"INSERT OR REPLACE INTO aggregate_dose_hourly "+
			"(hour_start, avg_rate_ur, max_rate_ur, last_acc_ur, alarm_samples, sample_count) "+
			"VALUES (?, ?, ?, ?, ?, ?)",
		agg.HourStart,
		agg.AvgRateUR,
		agg.MaxRateUR,
		agg.LastAccUR,
		agg.AlarmSamples,
		agg.SampleCount,
	)
	return err
}

// GetAggregatesDoseHourly returns aggregates with from <= hour_start <= to, oldest first.
func GetAggregatesDoseHourly(db *sql.DB, from, to int64) ([]AggregateDoseHourly, error) {
	rows, err := db.Query(
		"SELECT hour_start, avg_rate_ur, max_rate_ur, last_acc_ur, alarm_samples, sample_count "+
			"FROM aggregate_dose_hourly WHERE hour_start >= ? AND hour_start <= ? ORDER BY hour_start ASC",
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aggregates []AggregateDoseHourly
	for rows.Next() {
		var a AggregateDoseHourly
		if err := rows.Scan(&a.HourStart, &a.AvgRateUR, &a.MaxRateUR, &a.LastAccUR, &a.AlarmSamples, &a.SampleCount); err != nil {
			return nil, err
		}
		aggregates = append(aggregates, a)
	}
	return aggregates, rows.Err()
}

// LastAggregateHour returns the newest aggregated hour, ok false when none exist.
func LastAggregateHour(db *sql.DB) (int64, bool, error) {
	var last sql.NullInt64
	if err := db.QueryRow("SELECT MAX(hour_start) FROM aggregate_dose_hourly").Scan(&last); err != nil {
		return 0, false, err
	}
	return last.Int64, last.Valid, nil
}

// DeleteDoseReadingsBefore removes raw readings older than cutoff and returns how many went.
func DeleteDoseReadingsBefore(db *sql.DB, cutoff int64) (int64, error) {
	res, err := db.Exec("DELETE FROM dose_readings WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func sentenceProbe(v uint8) sentence.Probe {
	if v > uint8(sentence.ProbeInternalHigh) {
		return sentence.ProbeUnknown
	}
	return sentence.Probe(v)
}
