package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"matchreel/internal/logging"
	"matchreel/internal/queue"
	"matchreel/internal/services"
	"matchreel/internal/stage"
)

// Stage parses a job's raw notes into the timeline the analyzer consumes.
type Stage struct {
	store  stage.ProgressStore
	parser Parser
	logger *slog.Logger
}

// NewStage builds the parse-notes stage. A nil parser uses LineParser.
func NewStage(store stage.ProgressStore, parser Parser, logger *slog.Logger) *Stage {
	if parser == nil {
		parser = LineParser{}
	}
	return &Stage{store: store, parser: parser, logger: logging.NewComponentLogger(logger, "notes")}
}

// Prepare implements stage.Handler.
func (s *Stage) Prepare(context.Context, *queue.Job) error { return nil }

// Execute implements stage.Handler. Empty notes are allowed; the analyzer
// then relies on visual and motion passes alone.
func (s *Stage) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, s.logger)
	timeline, report := s.parser.Parse(job.NotesText)
	timeline = timeline.Sorted()

	if len(report.Skipped) > 0 {
		logging.WarnWithContext(logger, "note lines skipped", "notes_lines_skipped",
			logging.Int("skipped", len(report.Skipped)),
			logging.Int("parsed", report.Parsed),
			logging.Any("line_numbers", report.Skipped),
			logging.String(logging.FieldErrorHint, "use MM:SS - description per line"),
			logging.String(logging.FieldImpact, "skipped lines produce no note-derived highlights"),
		)
	}
	if strings.TrimSpace(job.NotesText) != "" && len(timeline) == 0 {
		logging.WarnWithContext(logger, "notes contained no timestamped actions", "notes_empty",
			logging.Int("lines", report.Lines),
			logging.String(logging.FieldErrorHint, "check the note format"),
			logging.String(logging.FieldImpact, "highlights rely on visual and motion detection only"),
		)
	}

	data, err := json.Marshal(timeline)
	if err != nil {
		return services.Wrap(services.ErrValidation, "parse_notes", "encode timeline", "", err)
	}
	job.NotesJSON = string(data)

	message := fmt.Sprintf("Parsed %d note actions", len(timeline))
	if players := timeline.Players(); len(players) > 0 {
		message += fmt.Sprintf(" (%d players)", len(players))
	}
	_ = stage.NewReporter(s.store, job, queue.StatusParsingNotes, logger).Report(ctx, 1, message)
	logger.Info("notes parsed",
		logging.String(logging.FieldEventType, "notes_parsed"),
		logging.Int("actions", len(timeline)),
		logging.Int("skipped", len(report.Skipped)),
	)
	return nil
}

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("parse_notes")
}

// DecodeTimeline restores a timeline stored by the parse stage.
func DecodeTimeline(raw string) (Timeline, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var timeline Timeline
	if err := json.Unmarshal([]byte(raw), &timeline); err != nil {
		return nil, services.Wrap(services.ErrValidation, "analyzing", "decode timeline",
			"stored note timeline is invalid; retry the job", err)
	}
	return timeline, nil
}
