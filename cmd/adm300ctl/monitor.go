package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NotCoffee418/adm300_monitor/pkg/sentence"
	"github.com/spf13/cobra"
)

var (
	flagShowRaw bool
	flagSettle  time.Duration
	flagNoStart bool
	flagKeepOn  bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the meter on the serial port",
	Long: "Open the serial port, wait for the meter to power on, request reports and print them until interrupted.\n" +
		"Reports are stopped again on exit.",
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().BoolVar(&flagShowRaw, "raw", false, "Also print every raw line")
	monitorCmd.Flags().DurationVar(&flagSettle, "settle", 5*time.Second, "Wait after power-on before requesting reports")
	monitorCmd.Flags().BoolVar(&flagNoStart, "no-start", false, "Do not request reports, only listen")
	monitorCmd.Flags().BoolVar(&flagKeepOn, "keep-reporting", false, "Do not stop reports on exit")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	log := newLogger()
	out := cmd.OutOrStdout()

	session, err := openSession(log)
	if err != nil {
		return err
	}
	defer session.Close()

	if flagShowRaw {
		session.SetRawCallback(func(line string) {
			fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("raw %q", line)))
		})
	}
	session.SetParsedCallback(func(report sentence.ParsedReport) {
		fmt.Fprintln(out, renderReport(report))
	})
	session.SetPowerOnCallback(func() {
		fmt.Fprintln(out, okStyle.Render("meter powered on"))
	})
	session.SetErrorCallback(func(err error) {
		fmt.Fprintln(cmd.ErrOrStderr(), alarmStyle.Render(err.Error()))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Start(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Listening on %s at %d baud, waiting for the meter...\n", flagDevice, flagBaudrate)

	if !flagNoStart {
		if err := session.AwaitActivity(ctx, 100*time.Millisecond); err != nil {
			return nil
		}
		if !session.GotSentence() {
			fmt.Fprintf(out, "Requesting reports in %v\n", flagSettle)
			select {
			case <-time.After(flagSettle):
			case <-ctx.Done():
				return nil
			}
			if err := session.StartMonitoring(); err != nil {
				return err
			}
		}
	}

	<-ctx.Done()

	if !flagNoStart && !flagKeepOn {
		if err := session.StopMonitoring(); err != nil {
			return err
		}
		flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := session.AwaitFlush(flushCtx); err != nil {
			return fmt.Errorf("stop reports: %w", err)
		}
	}
	return nil
}
