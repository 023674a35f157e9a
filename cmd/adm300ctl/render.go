package main

import (
	"fmt"
	"strings"

	"github.com/NotCoffee418/adm300_monitor/pkg/doseutils"
	"github.com/NotCoffee418/adm300_monitor/pkg/sentence"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorText  = lipgloss.Color("#FFFCF0")
	colorMuted = lipgloss.Color("#6F6E69")
	colorGreen = lipgloss.Color("#879A39")
	colorRed   = lipgloss.Color("#D14D41")
	colorBlue  = lipgloss.Color("#4385BE")
)

var (
	valueStyle = lipgloss.NewStyle().Foreground(colorText)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	okStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	alarmStyle = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	probeStyle = lipgloss.NewStyle().Foreground(colorBlue)
)

// renderReport formats a report on one line, alarms highlighted.
func renderReport(report sentence.ParsedReport) string {
	if !report.Valid {
		return alarmStyle.Render("invalid sentence")
	}

	var b strings.Builder
	b.WriteString(mutedStyle.Render(fmt.Sprintf("#%02d ", report.SeqNo)))
	b.WriteString(valueStyle.Render(fmt.Sprintf("rate %.2f µR/hr", doseutils.RToMicroRFloat(report.DoseRt))))
	b.WriteString(mutedStyle.Render(fmt.Sprintf(" (unf %.2f)", doseutils.RToMicroRFloat(report.DoseRtUnf))))
	b.WriteString(valueStyle.Render(fmt.Sprintf("  dose %.2f µR", doseutils.RToMicroRFloat(report.DoseAcc))))
	b.WriteString("  ")
	b.WriteString(probeStyle.Render(report.Probe.String()))
	b.WriteString("  ")
	b.WriteString(renderAlarms(report))

	if report.RateAlarmThresh != nil {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  rate alarm at %g %s", *report.RateAlarmThresh, report.Unit)))
	}
	if report.DoseAlarmThresh != nil {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  dose alarm at %g R", *report.DoseAlarmThresh)))
	}
	return b.String()
}

func renderAlarms(report sentence.ParsedReport) string {
	var alarms []string
	if report.RateAlarm {
		alarms = append(alarms, "RATE")
	}
	if report.DoseAlarm {
		alarms = append(alarms, "DOSE")
	}
	if report.BattAlarm {
		alarms = append(alarms, "BATTERY")
	}
	if len(alarms) == 0 {
		return okStyle.Render("no alarms")
	}
	return alarmStyle.Render("ALARM " + strings.Join(alarms, ","))
}
