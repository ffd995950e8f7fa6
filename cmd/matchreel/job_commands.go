package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"matchreel/internal/api"
	"matchreel/internal/daemonctl"
	"matchreel/internal/queue"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var req api.SubmitRequest
	var notesFile, cutsFile string

	cmd := &cobra.Command{
		Use:   "submit --club NAME --video PATH_OR_URL",
		Short: "Submit a match for highlight processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if notesFile != "" {
				data, err := os.ReadFile(notesFile)
				if err != nil {
					return fmt.Errorf("read notes: %w", err)
				}
				req.Notes = string(data)
			}
			if cutsFile != "" {
				cuts, err := readManualCuts(cutsFile)
				if err != nil {
					return err
				}
				req.ManualCuts = cuts
			}
			return ctx.withClient(func(client *daemonctl.Client) error {
				resp, err := client.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s (estimated completion in %s)\n",
					resp.JobID, formatMillis(resp.EstimatedCompletionSeconds*1000))
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.Club, "club", "", "Club the highlights are for")
	flags.StringVar(&req.Opponent, "opponent", "", "Opposing team")
	flags.StringVar(&req.MatchDate, "date", "", "Match date (YYYY-MM-DD, defaults to today)")
	flags.StringVar(&req.VideoRef, "video", "", "Local path or http(s) URL of the match video")
	flags.StringVar(&req.Notes, "notes", "", "Match notes text")
	flags.StringVar(&notesFile, "notes-file", "", "Read match notes from a file")
	flags.StringVar(&cutsFile, "cuts", "", "JSON file of manual cuts [{\"start\":..,\"end\":..}]")
	flags.BoolVar(&req.PlayerHighlights, "players", false, "Also build per-player highlight reels")
	flags.StringVar(&req.WebhookURL, "webhook", "", "URL notified when the job finishes")
	return cmd
}

func readManualCuts(path string) ([]queue.ManualCut, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manual cuts: %w", err)
	}
	var cuts []queue.ManualCut
	if err := json.Unmarshal(data, &cuts); err != nil {
		return nil, fmt.Errorf("parse manual cuts: %w", err)
	}
	return cuts, nil
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"list"},
		Short:   "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, status := range statuses {
				if _, ok := queue.ParseStatus(status); !ok {
					return fmt.Errorf("unknown status %q", status)
				}
			}
			return ctx.withClient(func(client *daemonctl.Client) error {
				jobs, err := client.Jobs(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				jobs = api.SortJobsNewestFirst(jobs)
				if ctx.jsonOutput() {
					return writeJSON(cmd, jobs)
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprintln(out, renderJobsTable(jobs))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func renderJobsTable(jobs []api.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.JobID,
			jobTitle(job),
			statusColor(job.Status),
			formatProgress(job.Progress),
			strconv.Itoa(job.Attempts),
			formatAge(job.CreatedAt),
		})
	}
	return renderTable(
		[]string{"Job", "Match", "Status", "Progress", "Attempts", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func jobTitle(job api.Job) string {
	title := job.Club
	if job.Opponent != "" {
		title += " vs " + job.Opponent
	}
	if job.MatchDate != "" {
		title += " (" + job.MatchDate + ")"
	}
	return title
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show JOB",
		Short: "Show one job with its uploads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonctl.Client) error {
				job, err := client.Job(cmd.Context(), args[0])
				if daemonctl.IsStatus(err, http.StatusNotFound) {
					return fmt.Errorf("job %s not found", args[0])
				}
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderJob(job))
				return nil
			})
		},
	}
}

func renderJob(job api.Job) string {
	pairs := [][2]string{
		{"Job", job.JobID},
		{"Match", jobTitle(job)},
		{"Video", job.VideoRef},
		{"Status", statusColor(job.Status)},
		{"Progress", formatProgress(job.Progress)},
		{"Player reels", yesNo(job.PlayerHighlights)},
		{"Attempts", strconv.Itoa(job.Attempts)},
		{"Created", formatAge(job.CreatedAt)},
		{"Processing time", formatMillis(job.ProcessingTimeMs)},
	}
	if job.CancelRequested {
		pairs = append(pairs, [2]string{"Cancel", "requested"})
	}
	if job.ErrorMessage != "" {
		pairs = append(pairs, [2]string{"Error", fmt.Sprintf("%s (%s)", job.ErrorMessage, fallback(job.ErrorKind, "unknown"))})
	}
	var b strings.Builder
	b.WriteString(renderKeyValues(pairs))
	if len(job.Uploads) > 0 {
		rows := make([][]string, 0, len(job.Uploads))
		for _, up := range job.Uploads {
			rows = append(rows, []string{
				up.Title,
				up.Kind,
				up.Privacy,
				formatBytes(up.SizeBytes),
				fallback(up.HostURL, up.HostID),
			})
		}
		b.WriteString("\n")
		b.WriteString(renderTable([]string{"Clip", "Kind", "Privacy", "Size", "Link"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
	}
	return b.String()
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel JOB...",
		Short: "Cancel jobs; running jobs stop at the next stage boundary",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonctl.Client) error {
				var failed []string
				out := cmd.OutOrStdout()
				for _, ref := range args {
					result, err := client.Cancel(cmd.Context(), ref)
					if err != nil {
						return err
					}
					for _, job := range result.Jobs {
						switch job.Outcome {
						case api.CancelCancelled:
							fmt.Fprintf(out, "Job %s cancelled\n", job.JobID)
						case api.CancelRequested:
							fmt.Fprintf(out, "Job %s will stop after its current stage\n", job.JobID)
						case api.CancelFinished:
							fmt.Fprintf(out, "Job %s already finished (%s)\n", job.JobID, job.PriorStatus)
						case api.CancelNotFound:
							fmt.Fprintf(out, "Job %s not found\n", job.JobID)
							failed = append(failed, job.JobID)
						}
					}
				}
				if len(failed) > 0 {
					return errors.New("some jobs were not found")
				}
				return nil
			})
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry JOB...",
		Short: "Requeue failed or cancelled jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonctl.Client) error {
				var failed []string
				out := cmd.OutOrStdout()
				for _, ref := range args {
					result, err := client.Retry(cmd.Context(), ref)
					if err != nil {
						return err
					}
					for _, job := range result.Jobs {
						switch job.Outcome {
						case api.RetryUpdated:
							fmt.Fprintf(out, "Job %s requeued\n", job.JobID)
						case api.RetryNotFailed:
							fmt.Fprintf(out, "Job %s is not failed or cancelled\n", job.JobID)
						case api.RetryNotFound:
							fmt.Fprintf(out, "Job %s not found\n", job.JobID)
							failed = append(failed, job.JobID)
						}
					}
				}
				if len(failed) > 0 {
					return errors.New("some jobs were not found")
				}
				return nil
			})
		},
	}
}
