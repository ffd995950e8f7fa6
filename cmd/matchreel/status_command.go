package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"matchreel/internal/api"
	"matchreel/internal/daemonctl"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, worker and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonctl.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, status)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStatus(status))
				return nil
			})
		},
	}
}

func renderStatus(status api.DaemonStatus) string {
	var b strings.Builder
	wf := status.Workflow
	b.WriteString(renderKeyValues([][2]string{
		{"Daemon", statusColor(runningLabel(status.Running))},
		{"PID", strconv.Itoa(status.PID)},
		{"API", status.Bind},
		{"Workers", fmt.Sprintf("%d (%d busy)", wf.Workers, len(wf.ActiveJobs))},
		{"Completed", strconv.Itoa(wf.Completed)},
		{"Failed", strconv.Itoa(wf.Failed)},
		{"Last error", fallback(wf.LastError, "-")},
		{"Queue DB", status.QueueDBPath},
		{"Schema", fmt.Sprintf("v%d, %d jobs, integrity %s", status.Database.SchemaVersion, status.Database.TotalJobs, yesNo(status.Database.Integrity))},
	}))
	b.WriteString("\n")

	names := make([]string, 0, len(wf.QueueStats))
	for name := range wf.QueueStats {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, strconv.Itoa(wf.QueueStats[name])})
	}
	if len(rows) > 0 {
		b.WriteString(renderTable([]string{"Status", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight}))
		b.WriteString("\n")
	}

	stageRows := make([][]string, 0, len(wf.StageHealth))
	for _, h := range wf.StageHealth {
		stageRows = append(stageRows, []string{h.Name, yesNo(h.Ready), fallback(h.Detail, "-")})
	}
	for _, dep := range status.Dependencies {
		stageRows = append(stageRows, []string{dep.Name, yesNo(dep.Available), fallback(dep.Detail, fallback(dep.Path, dep.Command))})
	}
	if len(stageRows) > 0 {
		b.WriteString(renderTable([]string{"Component", "Ready", "Detail"}, stageRows, nil))
	}
	return strings.TrimRight(b.String(), "\n")
}

func runningLabel(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}
