package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"matchreel/internal/api"
	"matchreel/internal/daemonctl"
	"matchreel/internal/storage"
)

func newStorageCommand(ctx *commandContext) *cobra.Command {
	storageCmd := &cobra.Command{
		Use:   "storage",
		Short: "Show archive usage, alerts and cleanup history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonctl.Client) error {
				report, err := client.Storage(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, report)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStorage(report))
				return nil
			})
		},
	}
	storageCmd.AddCommand(newStorageCleanupCommand(ctx))
	storageCmd.AddCommand(newStoragePublishCommand(ctx))
	return storageCmd
}

func renderStorage(report storage.Report) string {
	archive := "disabled"
	if report.ArchiveEnabled {
		archive = fmt.Sprintf("%s of %s (%s, %d objects)",
			formatBytes(report.Archive.UsedBytes), formatBytes(report.Archive.CapacityBytes),
			formatPercent(report.Utilization), report.Archive.Objects)
	}
	pairs := [][2]string{
		{"Archive", archive},
		{"Level", statusColor(string(report.Level))},
		{"Work dir", fmt.Sprintf("%s free of %s", formatBytes(int64(report.WorkDir.FreeBytes)), formatBytes(int64(report.WorkDir.TotalBytes)))},
		{"Next cleanup", formatWhen(report.NextCleanup)},
		{"Files deleted", strconv.Itoa(report.Totals.FilesDeleted)},
		{"Bytes freed", formatBytes(report.Totals.BytesFreed)},
	}
	if last := report.LastCleanup; last != nil {
		pairs = append(pairs, [2]string{"Last cleanup", fmt.Sprintf("%s, %s (%d files)", last.Kind, formatWhen(last.FinishedAt), last.FilesDeleted)})
	}
	if report.Error != "" {
		pairs = append(pairs, [2]string{"Error", report.Error})
	}
	var b strings.Builder
	b.WriteString(renderKeyValues(pairs))
	if len(report.Alerts) > 0 {
		alerts := append([]storage.Alert(nil), report.Alerts...)
		sort.Slice(alerts, func(i, j int) bool { return alerts[i].Target < alerts[j].Target })
		rows := make([][]string, 0, len(alerts))
		for _, alert := range alerts {
			rows = append(rows, []string{alert.Target, statusColor(string(alert.Level)), formatPercent(alert.Utilization), formatWhen(alert.RaisedAt)})
		}
		b.WriteString("\n")
		b.WriteString(renderTable([]string{"Target", "Level", "Utilization", "Raised"}, rows, nil))
	}
	return b.String()
}

func newStorageCleanupCommand(ctx *commandContext) *cobra.Command {
	var emergency bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run a cleanup cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonctl.Client) error {
				resp, err := client.Cleanup(cmd.Context(), emergency)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Reports) == 0 {
					fmt.Fprintln(out, "Nothing to clean up")
				} else {
					rows := make([][]string, 0, len(resp.Reports))
					for _, r := range resp.Reports {
						rows = append(rows, []string{
							r.Kind,
							strconv.Itoa(r.FilesDeleted),
							formatBytes(r.BytesFreed),
							strconv.Itoa(r.Errors),
							formatPercent(r.Before) + " -> " + formatPercent(r.After),
						})
					}
					fmt.Fprintln(out, renderTable([]string{"Pass", "Deleted", "Freed", "Errors", "Utilization"}, rows,
						[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft}))
				}
				if resp.Error != "" {
					return fmt.Errorf("cleanup incomplete: %s", resp.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&emergency, "emergency", false, "Only delete the oldest archive objects until below the critical threshold")
	return cmd
}

func newStoragePublishCommand(ctx *commandContext) *cobra.Command {
	var jobRef string
	cmd := &cobra.Command{
		Use:   "publish [HOST_ID...]",
		Short: "Make hosted clips public, by video id or for a whole job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobRef == "" && len(args) == 0 {
				return fmt.Errorf("pass host video ids or --job")
			}
			return ctx.withClient(func(client *daemonctl.Client) error {
				resp, err := client.MakePublic(cmd.Context(), api.PublishRequest{IDs: args, JobID: jobRef})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				for _, id := range resp.Succeeded {
					fmt.Fprintf(out, "%s public\n", id)
				}
				ids := make([]string, 0, len(resp.Failed))
				for id := range resp.Failed {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				for _, id := range ids {
					fmt.Fprintf(out, "%s failed: %s\n", id, resp.Failed[id])
				}
				if len(ids) > 0 {
					return fmt.Errorf("%d of %d clips not published", len(ids), len(ids)+len(resp.Succeeded))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&jobRef, "job", "", "Publish every clip of this job")
	return cmd
}
