// adm300ctl talks to an ADM-300 directly: decode sentences offline, watch a
// port or send a single command. Do not run it against a port adm300_api owns.
package main

import (
	"os"
	"time"

	"github.com/NotCoffee418/adm300_monitor/pkg/config"
	"github.com/NotCoffee418/adm300_monitor/pkg/logging"
	"github.com/NotCoffee418/adm300_monitor/pkg/port_reader"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagDevice   string
	flagBaudrate uint
	flagTimeout  time.Duration
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:          "adm300ctl",
	Short:        "ADM-300 radiation meter tool",
	Long:         "Decode ADM-300 sentences, monitor a meter on a serial port or send it commands.",
	SilenceUsage: true,
}

func init() {
	defaults := config.DefaultMonitorAPIConfig()

	rootCmd.PersistentFlags().StringVarP(&flagDevice, "device", "d", defaults.SerialDevice, "Serial device of the meter")
	rootCmd.PersistentFlags().UintVarP(&flagBaudrate, "baud", "b", defaults.Baudrate, "Baud rate")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", defaults.ReadTimeout(), "Serial read timeout")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "debug, info, warn or error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *logrus.Logger {
	logCfg := config.DefaultLogConfig()
	logCfg.Level = flagLogLevel
	log := logging.New(logCfg)
	log.SetOutput(os.Stderr)
	return log
}

func openSession(log *logrus.Logger) (*port_reader.Session, error) {
	return port_reader.Open(
		port_reader.SerialConfig{
			Device:      flagDevice,
			Baudrate:    flagBaudrate,
			ReadTimeout: flagTimeout,
		},
		port_reader.DefaultOptions(),
		log,
	)
}
