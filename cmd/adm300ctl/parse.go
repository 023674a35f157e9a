package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/NotCoffee418/adm300_monitor/pkg/sentence"
	"github.com/spf13/cobra"
)

var flagPretty bool

var parseCmd = &cobra.Command{
	Use:   "parse [sentence...]",
	Short: "Decode sentences given as arguments or on stdin",
	Long:  "Decode ADM-300 sentences and print one JSON report per line. Reads stdin when no arguments are given.",
	RunE:  runParse,
}

func init() {
	parseCmd.Flags().BoolVar(&flagPretty, "pretty", false, "Print a readable summary instead of JSON")
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	var in io.Reader = os.Stdin
	if len(args) > 0 {
		in = strings.NewReader(strings.Join(args, "\n"))
	}
	return parseLines(in, cmd.OutOrStdout(), cmd.ErrOrStderr(), flagPretty)
}

// parseLines decodes every non-blank line of in. Failures are explained on
// errOut and counted in the returned error.
func parseLines(in io.Reader, out, errOut io.Writer, pretty bool) error {
	scanner := bufio.NewScanner(in)
	total, failed := 0, 0
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		total++

		report, err := sentence.Decode(line)
		if err != nil {
			failed++
			fmt.Fprintf(errOut, "%q: %v\n", line, err)
			continue
		}
		if pretty {
			fmt.Fprintln(out, renderReport(report))
		} else {
			fmt.Fprintln(out, string(report.ToJsonBytes()))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sentences invalid", failed, total)
	}
	return nil
}
