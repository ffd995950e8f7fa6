package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/text"

	"matchreel/internal/api"
	"matchreel/internal/logging"
)

// colorize wraps value in colors when stdout is a terminal.
func colorize(value string, colors ...text.Color) string {
	if !logging.StdoutIsTerminal() || len(colors) == 0 {
		return value
	}
	return text.Colors(colors).Sprint(value)
}

func statusColor(status string) string {
	switch status {
	case "completed", "healthy", "normal", "running":
		return colorize(status, text.FgGreen)
	case "failed", "unhealthy", "critical", "emergency":
		return colorize(status, text.FgRed)
	case "cancelled", "warning", "unknown", "stopped":
		return colorize(status, text.FgYellow)
	default:
		return colorize(status, text.FgCyan)
	}
}

func formatAge(raw string) string {
	t := api.ParseTime(raw)
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).Round(time.Second).String()
}

func formatPercent(fraction float64) string {
	return fmt.Sprintf("%.1f%%", fraction*100)
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func formatProgress(p api.JobProgress) string {
	parts := []string{}
	if p.Percent > 0 {
		parts = append(parts, fmt.Sprintf("%.0f%%", p.Percent))
	}
	if msg := strings.TrimSpace(p.Message); msg != "" {
		parts = append(parts, msg)
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func fallback(value, alt string) string {
	if strings.TrimSpace(value) == "" {
		return alt
	}
	return value
}
