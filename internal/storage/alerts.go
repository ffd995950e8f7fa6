package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/notifications"
)

// Level is a storage utilisation band.
type Level string

const (
	LevelNormal    Level = "normal"
	LevelWarning   Level = "warning"
	LevelCritical  Level = "critical"
	LevelEmergency Level = "emergency"
)

func (l Level) rank() int {
	switch l {
	case LevelWarning:
		return 1
	case LevelCritical:
		return 2
	case LevelEmergency:
		return 3
	default:
		return 0
	}
}

// Thresholds are utilisation fractions at which each level starts.
type Thresholds struct {
	Warning   float64
	Critical  float64
	Emergency float64
}

// ThresholdsFromConfig reads the [storage] thresholds.
func ThresholdsFromConfig(cfg config.Storage) Thresholds {
	return Thresholds{
		Warning:   cfg.WarningThreshold,
		Critical:  cfg.CriticalThreshold,
		Emergency: cfg.EmergencyThreshold,
	}
}

// Level classifies a utilisation fraction.
func (t Thresholds) Level(utilization float64) Level {
	switch {
	case t.Emergency > 0 && utilization >= t.Emergency:
		return LevelEmergency
	case t.Critical > 0 && utilization >= t.Critical:
		return LevelCritical
	case t.Warning > 0 && utilization >= t.Warning:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// Alert is an active storage alert for one target.
type Alert struct {
	Target        string    `json:"target"`
	Level         Level     `json:"level"`
	Utilization   float64   `json:"utilization"`
	UsedBytes     int64     `json:"usedBytes"`
	CapacityBytes int64     `json:"capacityBytes"`
	RaisedAt      time.Time `json:"raisedAt"`
}

// AlertTracker raises an alert when a target's level increases and clears
// it once utilisation is back under the warning threshold.
type AlertTracker struct {
	mu         sync.Mutex
	thresholds Thresholds
	active     map[string]Alert
	notifier   notifications.Service
	logger     *slog.Logger
	clock      func() time.Time
}

// NewAlertTracker builds a tracker. notifier may be nil.
func NewAlertTracker(thresholds Thresholds, notifier notifications.Service, logger *slog.Logger) *AlertTracker {
	return &AlertTracker{
		thresholds: thresholds,
		active:     make(map[string]Alert),
		notifier:   notifier,
		logger:     logging.NewComponentLogger(logger, "storage-alerts"),
		clock:      time.Now,
	}
}

// Evaluate records the latest usage for target and returns its level.
func (a *AlertTracker) Evaluate(ctx context.Context, target string, usage Usage) Level {
	util := usage.Utilization()
	level := a.thresholds.Level(util)

	a.mu.Lock()
	prev, had := a.active[target]
	prevLevel := LevelNormal
	if had {
		prevLevel = prev.Level
	}
	var event notifications.Event
	switch {
	case level.rank() > prevLevel.rank():
		a.active[target] = Alert{
			Target:        target,
			Level:         level,
			Utilization:   util,
			UsedBytes:     usage.UsedBytes,
			CapacityBytes: usage.CapacityBytes,
			RaisedAt:      a.clock(),
		}
		event = notifications.EventStorageAlert
	case level == LevelNormal && had:
		delete(a.active, target)
		event = notifications.EventStorageCleared
	case had:
		prev.Level = level
		prev.Utilization = util
		prev.UsedBytes = usage.UsedBytes
		a.active[target] = prev
	}
	a.mu.Unlock()

	if event == "" {
		return level
	}
	attrs := []logging.Attr{
		logging.String("target", target),
		logging.String("level", string(level)),
		logging.Float64("utilization", util),
	}
	if event == notifications.EventStorageAlert {
		logging.WarnWithContext(a.logger, "storage alert raised", "storage_alert",
			append(attrs,
				logging.String(logging.FieldErrorHint, "run matchreel storage cleanup or raise capacity"),
				logging.String(logging.FieldImpact, "uploads may fail when storage fills"),
			)...)
	} else {
		a.logger.Info("storage alert cleared", logging.Args(append(attrs, logging.String(logging.FieldEventType, "storage_cleared"))...)...)
	}
	if a.notifier != nil {
		payload := notifications.Payload{
			"target":      target,
			"level":       string(level),
			"utilization": fmt.Sprintf("%.1f%%", util*100),
			"used":        humanize.IBytes(uint64(max(usage.UsedBytes, 0))),
			"capacity":    humanize.IBytes(uint64(max(usage.CapacityBytes, 0))),
		}
		if err := a.notifier.Publish(ctx, event, payload); err != nil {
			a.logger.Debug("storage notification failed", logging.Error(err))
		}
	}
	return level
}

// Active returns current alerts ordered by target.
func (a *AlertTracker) Active() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Alert, 0, len(a.active))
	for _, alert := range a.active {
		out = append(out, alert)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// Level returns the last evaluated level for target.
func (a *AlertTracker) Level(target string) Level {
	a.mu.Lock()
	defer a.mu.Unlock()
	if alert, ok := a.active[target]; ok {
		return alert.Level
	}
	return LevelNormal
}
