package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/creditflow-etl/internal/model"
)

// OutcomeStyle returns the style matching a run outcome.
func OutcomeStyle(o model.Outcome) lipgloss.Style {
	switch o {
	case model.OutcomeSuccessful:
		return SuccessStyle
	case model.OutcomeDegraded:
		return WarningStyle
	default:
		return ErrorStyle
	}
}

func formatOutcome(o model.Outcome) string {
	icon := ErrorIcon
	switch o {
	case model.OutcomeSuccessful:
		icon = SuccessIcon
	case model.OutcomeDegraded:
		icon = WarningIcon
	}
	return OutcomeStyle(o).Render(icon + " " + strings.ToUpper(string(o)))
}

// table renders rows as left-aligned columns. The first row is the header.
func table(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	widths := make([]int, len(rows[0]))
	for _, r := range rows {
		for i, cell := range r {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	lines := make([]string, 0, len(rows))
	for n, r := range rows {
		cells := make([]string, len(r))
		for i, cell := range r {
			cells[i] = TableCellStyle.Width(widths[i] + 2).Render(cell)
		}
		line := lipgloss.JoinHorizontal(lipgloss.Top, cells...)
		if n == 0 {
			line = TableHeaderStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// RenderSummary formats a run summary for the terminal.
func RenderSummary(s *model.RunSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Run:"), s.RunID)
	fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Processing date:"), s.ProcessingDate.Format(time.DateOnly))
	fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Outcome:"), formatOutcome(s.Outcome))
	fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Duration:"), s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&b, "%s %d committed, %d rejected, %d failed batches\n",
		SubtleStyle.Render("Rows:"), s.RowsProcessed, s.RowsRejected, s.FailedBatches)
	if s.RowsFiltered > 0 {
		fmt.Fprintf(&b, "%s %d not disbursed\n", SubtleStyle.Render("Filtered:"), s.RowsFiltered)
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "%s\n", FormatError(s.Error))
	}

	if len(s.Stages) > 0 {
		rows := [][]string{{"Entity", "In", "Loaded", "Updated", "Skipped", "Rejected", "Failed", "Retries"}}
		for _, st := range s.Stages {
			failed := fmt.Sprint(st.FailedBatches)
			if st.FailedBatches > 0 {
				failed = ErrorStyle.Render(failed)
			}
			rows = append(rows, []string{
				string(st.Entity),
				fmt.Sprint(st.RowsIn),
				fmt.Sprint(st.Loaded),
				fmt.Sprint(st.Updated),
				fmt.Sprint(st.SkippedExisting),
				fmt.Sprint(st.Rejected),
				failed,
				fmt.Sprint(st.Retries),
			})
		}
		b.WriteString("\n" + BoldStyle.Render("Stages") + "\n" + table(rows) + "\n")
	}

	if len(s.Rejections) > 0 {
		b.WriteString("\n" + BoldStyle.Render("Rejections") + "\n")
		entities := make([]string, 0, len(s.Rejections))
		for e := range s.Rejections {
			entities = append(entities, string(e))
		}
		sort.Strings(entities)
		for _, e := range entities {
			byReason := s.Rejections[model.Entity(e)]
			reasons := make([]string, 0, len(byReason))
			for r := range byReason {
				reasons = append(reasons, r)
			}
			sort.Strings(reasons)
			for _, r := range reasons {
				fmt.Fprintf(&b, "  %-14s %-28s %d\n", e, r, byReason[r])
			}
		}
	}

	if q := s.Quality; q != nil {
		status := FormatSuccess(fmt.Sprintf("%d/%d checks passed", q.Checked-q.Failed, q.Checked))
		if !q.Passed {
			status = FormatError(fmt.Sprintf("%d of %d checks failed", q.Failed, q.Checked))
		}
		b.WriteString("\n" + BoldStyle.Render("Quality") + " " + status + "\n")
		for _, c := range q.Checks {
			if !c.Passed {
				fmt.Fprintf(&b, "  %s observed %.4g, threshold %.4g\n", ErrorStyle.Render(c.Name), c.Observed, c.Threshold)
			}
		}
	}

	if p := s.Portfolio; p != nil {
		b.WriteString("\n" + BoldStyle.Render(ChartIcon+" Portfolio") + "\n")
		fmt.Fprintf(&b, "  Loans %d, exposure %.2f, expected loss %.2f\n", p.LoanCount, p.TotalExposure, p.ExpectedLoss)
		fmt.Fprintf(&b, "  NPA %d (%.2f%%), average PD %.4f\n", p.NPACount, p.NPARatio*100, p.AveragePD)
		fmt.Fprintf(&b, "  Fraud alerts %d, confirmed impact %.2f\n", p.AlertCount, p.ConfirmedImpact)
	}

	if len(s.BlockedKeys) > 0 {
		b.WriteString("\n" + FormatWarning(fmt.Sprintf("%d customers have more than one current version: %s",
			len(s.BlockedKeys), strings.Join(s.BlockedKeys, ", "))) + "\n")
	}

	return RenderBox("Run Summary", strings.TrimRight(b.String(), "\n"))
}

// RenderRuns formats recent run records as a table.
func RenderRuns(runs []model.ETLRun) string {
	if len(runs) == 0 {
		return FormatInfo("No runs recorded yet")
	}
	rows := [][]string{{"Run", "Started", "Status", "Outcome", "Processed", "Rejected", "Failed batches"}}
	for _, r := range runs {
		outcome := "-"
		if r.Outcome != "" {
			outcome = OutcomeStyle(r.Outcome).Render(string(r.Outcome))
		}
		rows = append(rows, []string{
			r.RunID,
			r.StartedAt.Format(time.RFC3339),
			string(r.Status),
			outcome,
			fmt.Sprint(r.RecordsProcessed),
			fmt.Sprint(r.RecordsRejected),
			fmt.Sprint(r.FailedBatches),
		})
	}
	return table(rows)
}

// RenderQuality formats a standalone audit report.
func RenderQuality(q *model.QualityReport) string {
	rows := [][]string{{"Check", "Observed", "Threshold", "Result"}}
	for _, c := range q.Checks {
		result := SuccessStyle.Render("pass")
		if !c.Passed {
			result = ErrorStyle.Render("fail")
		}
		rows = append(rows, []string{c.Name, fmt.Sprintf("%.4g", c.Observed), fmt.Sprintf("%.4g", c.Threshold), result})
	}
	title := FormatSuccess("Quality audit passed")
	if !q.Passed {
		title = FormatError(fmt.Sprintf("Quality audit failed: %d of %d checks", q.Failed, q.Checked))
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, "", table(rows))
}
