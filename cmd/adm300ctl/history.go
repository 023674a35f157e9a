package main

import (
	"fmt"
	"time"

	"github.com/NotCoffee418/adm300_monitor/pkg/aggregator"
	"github.com/NotCoffee418/adm300_monitor/pkg/doseutils"
	"github.com/NotCoffee418/adm300_monitor/pkg/pathing"
	"github.com/NotCoffee418/adm300_monitor/pkg/readingdb"
	"github.com/spf13/cobra"
)

var (
	flagDbPath string
	flagHours  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show hourly dose rates stored by dose_collector",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&flagDbPath, "db", pathing.GetReadingDbPath(), "Reading database")
	historyCmd.Flags().IntVarP(&flagHours, "hours", "n", 24, "Number of hours to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	db, err := readingdb.Open(flagDbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	now := time.Now().UTC()
	from := aggregator.TimeframeHourly.Start(now.Add(-time.Duration(flagHours) * time.Hour))
	aggregates, err := aggregator.GetAggregates(db, from, now, now)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(aggregates) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No readings in this period."))
		return nil
	}
	for _, data := range aggregates {
		fmt.Fprintln(out, renderAggregate(data))
	}
	return nil
}

func renderAggregate(data aggregator.AggregateData) string {
	agg := data.Aggregate
	line := fmt.Sprintf("%s  avg %6d µR/hr  max %6d µR/hr  dose %8.6f R  samples %4d",
		time.Unix(agg.HourStart, 0).UTC().Format("2006-01-02 15:04"),
		agg.AvgRateUR,
		agg.MaxRateUR,
		doseutils.MicroRToR(agg.LastAccUR),
		agg.SampleCount,
	)
	if data.IsCurrentTimeframe {
		line += mutedStyle.Render("  (in progress)")
	}
	if agg.AlarmSamples > 0 {
		line += alarmStyle.Render(fmt.Sprintf("  %d in alarm", agg.AlarmSamples))
	}
	return line
}
