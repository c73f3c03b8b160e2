package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"reelforge/internal/api"
	"reelforge/internal/textutil"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	default:
		return ansiBlue
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func printSection(w io.Writer, title string, colorize bool) {
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(w, line)
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func jobStatusKind(status string) statusKind {
	switch status {
	case "Succeeded":
		return statusOK
	case "Failed":
		return statusError
	case "Canceled":
		return statusWarn
	default:
		return statusInfo
	}
}

func shortID(id string) string {
	return id[:min(len(id), 8)]
}

func renderJobTable(jobs []api.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		progress := ""
		if job.Progress.Stage != "" {
			progress = fmt.Sprintf("%s %.0f%%", job.Progress.Stage, job.Progress.Percent)
		}
		rows = append(rows, []string{
			shortID(job.ID),
			textutil.Truncate(job.Topic, 40),
			job.Status,
			progress,
			formatStamp(job.CreatedAt),
		})
	}
	return renderTable(
		[]string{"ID", "Topic", "Status", "Progress", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func renderStageTable(stages []api.StageResult) string {
	rows := make([][]string, 0, len(stages))
	for _, st := range stages {
		backend := st.Provider
		if st.IsFallback && st.FallbackFrom != "" {
			backend = fmt.Sprintf("%s (fallback from %s)", backend, st.FallbackFrom)
		}
		detail := ""
		switch {
		case st.Error != nil:
			detail = st.Error.Code
		case len(st.Warnings) > 0:
			detail = textutil.Truncate(st.Warnings[len(st.Warnings)-1], 50)
		}
		rows = append(rows, []string{
			st.Stage,
			st.Status,
			backend,
			st.Tier,
			strconv.Itoa(st.Attempts),
			formatMillis(st.DurationMs),
			detail,
		})
	}
	return renderTable(
		[]string{"Stage", "Status", "Backend", "Tier", "Attempts", "Duration", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func renderSelectionTable(selections []api.Selection) string {
	rows := make([][]string, 0, len(selections))
	for _, sel := range selections {
		fallback := "no"
		if sel.IsFallback {
			fallback = "from " + sel.FallbackFrom
		}
		rows = append(rows, []string{sel.Stage, sel.Requested, sel.Backend, sel.Tier, fallback, textutil.Truncate(sel.Reason, 60)})
	}
	return renderTable(
		[]string{"Stage", "Requested", "Backend", "Tier", "Fallback", "Reason"},
		rows,
		nil,
	)
}

// printJobDetail writes the human view of one job.
func printJobDetail(w io.Writer, job api.Job, colorize bool) {
	printSection(w, "Job "+shortID(job.ID), colorize)
	fmt.Fprintln(w, renderStatusLine("Topic", statusInfo, job.Topic, colorize))
	fmt.Fprintln(w, renderStatusLine("Status", jobStatusKind(job.Status), job.Status, colorize))
	fmt.Fprintln(w, renderStatusLine("Job ID", statusInfo, job.ID, colorize))
	fmt.Fprintln(w, renderStatusLine("Correlation ID", statusInfo, job.CorrelationID, colorize))
	if job.Artifact != nil {
		path := job.Artifact.Path
		if job.Artifact.ExportedPath != "" {
			path = job.Artifact.ExportedPath
		}
		fmt.Fprintln(w, renderStatusLine("Artifact", statusOK,
			fmt.Sprintf("%s (%d bytes, via %s)", path, job.Artifact.SizeBytes, job.Artifact.Layer), colorize))
	}
	if job.CancelReason != "" {
		fmt.Fprintln(w, renderStatusLine("Cancel reason", statusWarn, job.CancelReason, colorize))
	}
	for _, rec := range job.Errors {
		fmt.Fprintln(w, renderStatusLine("Error", statusError, fmt.Sprintf("%s: %s", rec.Code, rec.Message), colorize))
		if rec.Remediation != "" {
			fmt.Fprintln(w, renderStatusLine("Hint", statusInfo, rec.Remediation, colorize))
		}
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, renderStageTable(job.Stages))
}

// formatEvent renders one job event as a single progress line.
func formatEvent(evt api.Event) string {
	switch evt.Type {
	case "StatusChanged":
		if evt.Message != "" {
			return fmt.Sprintf("job %s: %s", strings.ToLower(evt.Status), evt.Message)
		}
		return fmt.Sprintf("job %s", strings.ToLower(evt.Status))
	case "StepProgress":
		label := evt.Stage
		if evt.Provider != "" {
			label += " (" + evt.Provider + ")"
		}
		switch evt.StepStatus {
		case "Running":
			if evt.Percent > 0 || evt.Message != "" {
				return fmt.Sprintf("  %-28s %5.1f%% %s", label, evt.Percent, evt.Message)
			}
			return fmt.Sprintf("  %-28s started", label)
		default:
			line := fmt.Sprintf("  %-28s %s", label, strings.ToLower(evt.StepStatus))
			if evt.Message != "" {
				line += ": " + evt.Message
			}
			return line
		}
	case "StepError":
		msg := evt.Message
		if evt.Error != nil {
			msg = evt.Error.Code + ": " + evt.Error.Message
		}
		if evt.Retrying {
			return fmt.Sprintf("  %-28s attempt %d failed, retrying (%s)", evt.Stage, evt.Attempt, msg)
		}
		return fmt.Sprintf("  %-28s error: %s", evt.Stage, msg)
	case "Completed":
		if evt.Artifact != nil {
			return "completed: " + evt.Artifact.Path
		}
		return "completed"
	case "Failed":
		if evt.Error != nil {
			return fmt.Sprintf("failed at %s: %s", evt.Error.Stage, evt.Error.Message)
		}
		return "failed"
	default:
		return fmt.Sprintf("%s %s", evt.Type, evt.Message)
	}
}

func formatStamp(value string) string {
	if value == "" {
		return ""
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return (time.Duration(ms) * time.Millisecond).Round(10 * time.Millisecond).String()
}
