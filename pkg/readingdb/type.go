package readingdb

import (
	"time"

	"github.com/NotCoffee418/adm300_monitor/pkg/doseutils"
	"github.com/NotCoffee418/adm300_monitor/pkg/sentence"
)

type DoseReading struct {
	Timestamp     int64          `db:"timestamp"`
	SeqNo         int            `db:"seq_no"`
	DoseRateUR    uint32         `db:"dose_rate_ur"`
	DoseAccUR     uint32         `db:"dose_acc_ur"`
	DoseRateUnfUR uint32         `db:"dose_rate_unf_ur"`
	RateAlarm     bool           `db:"rate_alarm"`
	DoseAlarm     bool           `db:"dose_alarm"`
	BattAlarm     bool           `db:"batt_alarm"`
	Probe         sentence.Probe `db:"probe"`
}

type AggregateDoseHourly struct {
	HourStart    int64  `db:"hour_start"`
	AvgRateUR    uint32 `db:"avg_rate_ur"`
	MaxRateUR    uint32 `db:"max_rate_ur"`
	LastAccUR    uint32 `db:"last_acc_ur"`
	AlarmSamples uint32 `db:"alarm_samples"`
	SampleCount  uint32 `db:"sample_count"`
}

// DoseReadingFromReport converts a decoded report received at ts into its
// storage form.
func DoseReadingFromReport(report sentence.ParsedReport, ts time.Time) DoseReading {
	return DoseReading{
		Timestamp:     ts.Unix(),
		SeqNo:         report.SeqNo,
		DoseRateUR:    doseutils.RToMicroR(report.DoseRt),
		DoseAccUR:     doseutils.RToMicroR(report.DoseAcc),
		DoseRateUnfUR: doseutils.RToMicroR(report.DoseRtUnf),
		RateAlarm:     report.RateAlarm,
		DoseAlarm:     report.DoseAlarm,
		BattAlarm:     report.BattAlarm,
		Probe:         report.Probe,
	}
}

func (r DoseReading) AnyAlarm() bool {
	return r.RateAlarm || r.DoseAlarm
}
