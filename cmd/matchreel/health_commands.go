package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"matchreel/internal/api"
	"matchreel/internal/daemonctl"
	"matchreel/internal/health"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Show monitored endpoint health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonctl.Client) error {
				summary, err := client.Health(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, summary)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Overall: %s (%d/%d healthy, %d critical down)\n",
					statusColor(summary.Overall), summary.HealthyEndpoints, summary.TotalEndpoints, summary.CriticalDown)
				if len(summary.Endpoints) > 0 {
					fmt.Fprintln(out, renderEndpoints(summary.Endpoints))
				}
				return nil
			})
		},
	}
	healthCmd.AddCommand(newHealthAddCommand(ctx))
	healthCmd.AddCommand(newHealthRemoveCommand(ctx))
	healthCmd.AddCommand(newHealthCheckCommand(ctx))
	return healthCmd
}

func renderEndpoints(records []health.Record) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		latency, avg, lastErr := "-", "-", "-"
		if rec.LastCheck != nil {
			latency = fmt.Sprintf("%dms", rec.LastCheck.LatencyMs)
			lastErr = fallback(rec.LastCheck.Error, "-")
		}
		if rec.AvgLatencyMs > 0 {
			avg = fmt.Sprintf("%.0fms", rec.AvgLatencyMs)
		}
		critical := ""
		if rec.Endpoint.Critical {
			critical = "critical"
		}
		rows = append(rows, []string{
			rec.Endpoint.Name,
			statusColor(string(rec.Status)),
			critical,
			latency,
			avg,
			fmt.Sprintf("%.2f%%", rec.Uptime),
			strconv.Itoa(rec.ConsecutiveFailures),
			formatWhen(rec.LastSuccess),
			lastErr,
		})
	}
	return renderTable(
		[]string{"Endpoint", "Status", "", "Latency", "Avg", "Uptime", "Failures", "Last OK", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft},
	)
}

func newHealthAddCommand(ctx *commandContext) *cobra.Command {
	var req api.RegisterEndpointRequest
	cmd := &cobra.Command{
		Use:   "add NAME URL",
		Short: "Monitor an endpoint (replaces one with the same name)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = strings.TrimSpace(args[0])
			req.URL = strings.TrimSpace(args[1])
			return ctx.withClient(func(client *daemonctl.Client) error {
				rec, err := client.RegisterEndpoint(cmd.Context(), req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, rec)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Endpoint %s registered: %s\n", rec.Endpoint.Name, statusColor(string(rec.Status)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&req.Critical, "critical", false, "Mark the endpoint as critical for overall health")
	cmd.Flags().IntVar(&req.TimeoutSeconds, "timeout", 0, "Per-check timeout in seconds")
	return cmd
}

func newHealthRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Stop monitoring an endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonctl.Client) error {
				if err := client.RemoveEndpoint(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Endpoint %s removed\n", args[0])
				return nil
			})
		},
	}
}

func newHealthCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check [NAME]",
		Short: "Check endpoints now",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return ctx.withClient(func(client *daemonctl.Client) error {
				records, err := client.CheckEndpoints(cmd.Context(), name)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, records)
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No endpoints registered")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderEndpoints(records))
				return nil
			})
		},
	}
}
