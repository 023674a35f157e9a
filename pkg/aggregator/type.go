package aggregator

import (
	"time"

	"github.com/NotCoffee418/adm300_monitor/pkg/readingdb"
)

type Timeframe uint8

const (
	TimeframeHourly Timeframe = iota
	TimeframeDaily
)

func (t Timeframe) String() string {
	switch t {
	case TimeframeHourly:
		return "hourly"
	case TimeframeDaily:
		return "daily"
	default:
		return "unknown"
	}
}

// Start returns the start of the timeframe containing ts, in UTC.
func (t Timeframe) Start(ts time.Time) time.Time {
	ts = ts.UTC()
	switch t {
	case TimeframeDaily:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), 0, 0, 0, time.UTC)
	}
}

// End returns the last second belonging to the timeframe that starts at start.
func (t Timeframe) End(start time.Time) time.Time {
	switch t {
	case TimeframeDaily:
		return start.AddDate(0, 0, 1).Add(-time.Second)
	default:
		return start.Add(time.Hour - time.Second)
	}
}

type AggregateData struct {
	Timeframe          Timeframe
	EndTime            int64
	IsCurrentTimeframe bool
	Aggregate          readingdb.AggregateDoseHourly
}
