package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mediarelay/internal/config"
	"mediarelay/internal/daemon"
	"mediarelay/internal/intake"
	"mediarelay/internal/preflight"
	"mediarelay/internal/registry"
)

type statusReport struct {
	Daemon       daemonState        `json:"daemon"`
	Destinations int                `json:"destinations"`
	Registry     string             `json:"registry"`
	Checks       []preflight.Result `json:"checks"`
}

type daemonState struct {
	Running  bool   `json:"running"`
	LockFile string `json:"lock_file"`
	Detail   string `json:"detail,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon state, registered destinations, and dependency checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := collectStatus(cmd, cfg)
			if jsonOutput {
				return writeJSON(cmd, report)
			}
			colorize := shouldColorize(cmd.OutOrStdout())
			for _, line := range statusLines(report, colorize) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func collectStatus(cmd *cobra.Command, cfg *config.Config) statusReport {
	report := statusReport{
		Daemon:   daemonState{LockFile: cfg.LockPath()},
		Registry: cfg.RegistryPath(),
	}

	held, err := daemon.LockHeld(cfg.LockPath())
	if err != nil {
		report.Daemon.Detail = err.Error()
	}
	report.Daemon.Running = held

	if store, err := registry.Open(cfg); err == nil {
		if dests, err := store.List(cmd.Context()); err == nil {
			report.Destinations = len(dests)
		}
		_ = store.Close()
	}

	var stream intake.StreamClient
	if client := intake.NewClient(cfg); client != nil {
		defer client.Close()
		stream = client
	}
	report.Checks = preflight.RunAll(cmd.Context(), cfg, stream)
	return report
}

func statusLines(report statusReport, colorize bool) []string {
	lines := renderSectionHeader("mediarelay", colorize)

	switch {
	case report.Daemon.Running:
		lines = append(lines, renderStatusLine("Daemon", statusOK, "Running", colorize))
	case report.Daemon.Detail != "":
		lines = append(lines, renderStatusLine("Daemon", statusWarn, report.Daemon.Detail, colorize))
	default:
		lines = append(lines, renderStatusLine("Daemon", statusInfo, "Not running", colorize))
	}

	if report.Destinations == 0 {
		lines = append(lines, renderStatusLine("Destinations", statusWarn, "none registered", colorize))
	} else {
		lines = append(lines, renderStatusLine("Destinations", statusOK, fmt.Sprintf("%d registered", report.Destinations), colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Checks", colorize)...)
	lines = append(lines, checkLines(report.Checks, colorize)...)
	return lines
}

func checkLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results)+1)
	var failed []string
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
			failed = append(failed, r.Name)
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	if len(failed) > 0 {
		lines = append(lines, fmt.Sprintf("%sFailing checks: %s", statusIndent, strings.Join(failed, ", ")))
	}
	return lines
}
