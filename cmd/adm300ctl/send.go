package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/NotCoffee418/adm300_monitor/pkg/port_reader"
	"github.com/spf13/cobra"
)

// Commands accepted by send, named like the API command routes.
var commandsByName = map[string]func(*port_reader.Session) error{
	"start":      (*port_reader.Session).StartMonitoring,
	"stop":       (*port_reader.Session).StopMonitoring,
	"clear-dose": (*port_reader.Session).ClearAccumulatedDose,
	"ack-alarm":  (*port_reader.Session).AcknowledgeAlarm,
}

var sendCmd = &cobra.Command{
	Use:       "send <command>",
	Short:     "Send one command to the meter",
	Long:      "Send one command to the meter: " + strings.Join(commandNames(), ", ") + ".",
	Args:      cobra.ExactArgs(1),
	ValidArgs: commandNames(),
	RunE:      runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func commandNames() []string {
	names := make([]string, 0, len(commandsByName))
	for name := range commandsByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runSend(cmd *cobra.Command, args []string) error {
	send, ok := commandsByName[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q, expected one of %s", args[0], strings.Join(commandNames(), ", "))
	}

	session, err := openSession(newLogger())
	if err != nil {
		return err
	}
	defer session.Close()

	if err := send(session); err != nil {
		return err
	}
	if err := session.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.AwaitFlush(ctx); err != nil {
		return fmt.Errorf("send %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", args[0], flagDevice)
	return nil
}
