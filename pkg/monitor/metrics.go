package monitor

import (
	"errors"
	"sync"

	"github.com/NotCoffee418/adm300_monitor/pkg/port_reader"
	"github.com/NotCoffee418/adm300_monitor/pkg/sentence"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SentencesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adm300_sentences_total",
			Help: "Sentences received from the meter, by decode result",
		},
		[]string{"result"},
	)

	PowerOnEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adm300_power_on_total",
		Help: "Power-on markers seen",
	})

	CommandsQueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adm300_commands_total",
			Help: "Commands issued to the meter, by command and result",
		},
		[]string{"command", "result"},
	)

	SessionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adm300_session_errors_total",
			Help: "Errors reported by the serial session",
		},
		[]string{"kind"},
	)

	DoseRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adm300_dose_rate_r_per_hour",
		Help: "Last reported filtered dose rate",
	})

	DoseRateUnfiltered = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adm300_dose_rate_unfiltered_r_per_hour",
		Help: "Last reported unfiltered dose rate",
	})

	AccumulatedDose = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adm300_accumulated_dose_r",
		Help: "Last reported accumulated dose",
	})

	AlarmActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adm300_alarm_active",
			Help: "1 while the alarm is raised",
		},
		[]string{"alarm"},
	)
)

var registerOnce sync.Once

// Register adds all collectors to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SentencesReceived,
			PowerOnEvents,
			CommandsQueued,
			SessionErrors,
			DoseRate,
			DoseRateUnfiltered,
			AccumulatedDose,
			AlarmActive,
		)
	})
}

func ObserveReport(report sentence.ParsedReport) {
	if !report.Valid {
		SentencesReceived.WithLabelValues("invalid").Inc()
		return
	}
	SentencesReceived.WithLabelValues("valid").Inc()

	DoseRate.Set(report.DoseRt)
	DoseRateUnfiltered.Set(report.DoseRtUnf)
	AccumulatedDose.Set(report.DoseAcc)
	AlarmActive.WithLabelValues("rate").Set(boolToFloat(report.RateAlarm))
	AlarmActive.WithLabelValues("dose").Set(boolToFloat(report.DoseAlarm))
	AlarmActive.WithLabelValues("battery").Set(boolToFloat(report.BattAlarm))
}

func ObservePowerOn() {
	PowerOnEvents.Inc()
}

func ObserveCommand(command string, err error) {
	result := "queued"
	switch {
	case errors.Is(err, port_reader.ErrNotSupported):
		result = "unsupported"
	case err != nil:
		result = "failed"
	}
	CommandsQueued.WithLabelValues(command, result).Inc()
}

func ObserveError(err error) {
	var transportErr *port_reader.TransportError
	var decodeErr *port_reader.DecodeError
	switch {
	case errors.As(err, &transportErr):
		SessionErrors.WithLabelValues("transport_" + transportErr.Op).Inc()
	case errors.As(err, &decodeErr):
		SessionErrors.WithLabelValues("decode").Inc()
	default:
		SessionErrors.WithLabelValues("other").Inc()
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
