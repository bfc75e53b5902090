// Package output renders match results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/spigell/talent-match/internal/filtering"
	"github.com/spigell/talent-match/internal/matching"
	"github.com/spigell/talent-match/internal/scoring"
	"github.com/spigell/talent-match/internal/store"
)

const (
	FormatTable = "table"
	FormatJSON  = "json"

	maxErrorWidth = 60
)

// Write renders data in the given format.
func Write(w io.Writer, format string, data any) error {
	switch format {
	case FormatJSON:
		return JSON(w, data)
	case FormatTable, "":
		return Table(w, data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

func JSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func Table(w io.Writer, data any) error {
	switch v := data.(type) {
	case *matching.Report:
		return reportTable(w, v)
	case *matching.Detail:
		return detailTable(w, v)
	case []*store.Run:
		return runsTable(w, v)
	case []filtering.Status:
		return statusTable(w, v)
	default:
		return fmt.Errorf("unsupported data type for table output: %T", data)
	}
}

func reportTable(w io.Writer, report *matching.Report) error {
	fmt.Fprintf(w, "Run %s for job %s: %d scored, %d failed\n",
		report.RunID, report.JobID, report.Step.Scored, report.Step.Failed)

	if len(report.Results) == 0 {
		fmt.Fprintln(w, "No candidates matched.")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("#", "Candidate", "Name", "Effective", "Tags", "Location", "Overall", "Skill", "Matched tags")

	for i, r := range report.Results {
		if r.Failed {
			if err := table.Append([]string{
				strconv.Itoa(i + 1), r.CandidateID, r.CandidateName,
				"-", "-", "-", "-", "-", "failed: " + truncate(r.Error, maxErrorWidth),
			}); err != nil {
				return err
			}
			continue
		}

		row := []string{
			strconv.Itoa(i + 1),
			r.CandidateID,
			r.CandidateName,
			strconv.Itoa(r.EffectiveScore),
			strconv.Itoa(r.Score.TagScore.FinalScore),
			location(r.Score.LocationScore),
			strconv.Itoa(r.Score.OverallScore.FinalScore),
			skill(r),
			strings.Join(r.Score.TagScore.MatchedTags, ", "),
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}

	return table.Render()
}

func detailTable(w io.Writer, d *matching.Detail) error {
	fmt.Fprintf(w, "Candidate %s vs job %s\n", d.CandidateID, d.JobID)
	fmt.Fprintf(w, "Effective score: %d\n", d.EffectiveScore)
	if d.SkillMatch != nil {
		fmt.Fprintf(w, "Skill match: %.0f (%s)\n", d.SkillMatch.Score, d.SkillMatch.Reason)
	}

	s := d.Score
	table := tablewriter.NewWriter(w)
	table.Header("Dimension", "Base", "Final", "Details")

	rows := [][]string{
		{"tags", formatBase(s.TagScore.BaseScore), strconv.Itoa(s.TagScore.FinalScore),
			fmt.Sprintf("capped %s; %s", formatBase(s.TagScore.CappedScore), strings.Join(s.TagScore.MatchedTags, ", "))},
		{"location", formatBase(s.LocationScore.BaseScore), strconv.Itoa(s.LocationScore.FinalScore), location(s.LocationScore)},
		{"institution", formatBase(s.InstitutionScore.BaseScore), strconv.Itoa(s.InstitutionScore.FinalScore), s.InstitutionScore.InstitutionName},
		{"industry", formatBase(s.IndustryScore.BaseScore), strconv.Itoa(s.IndustryScore.FinalScore), s.IndustryScore.IndustryName},
		{"salary", formatBase(s.SalaryScore.BaseScore), strconv.Itoa(s.SalaryScore.FinalScore), ""},
		{"work setup", formatBase(s.WorkSetupScore.BaseScore), strconv.Itoa(s.WorkSetupScore.FinalScore), ""},
		{"work shift", formatBase(s.WorkShiftScore.BaseScore), strconv.Itoa(s.WorkShiftScore.FinalScore), ""},
		{"overall", formatBase(s.OverallScore.BaseScore), strconv.Itoa(s.OverallScore.FinalScore), filters(d.Filters)},
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}

	return table.Render()
}

func runsTable(w io.Writer, runs []*store.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("Run", "Job", "Started", "Took", "Total", "Scored", "Failed", "Filters")
	for _, run := range runs {
		if err := table.Append([]string{
			run.ID,
			run.JobID,
			run.StartedAt.Local().Format("Jan 02 15:04"),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String(),
			strconv.Itoa(run.Step.Total),
			strconv.Itoa(run.Step.Scored),
			strconv.Itoa(run.Step.Failed),
			filters(run.Filters),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func statusTable(w io.Writer, statuses []filtering.Status) error {
	table := tablewriter.NewWriter(w)
	table.Header("Filter", "Enabled", "Reason")
	for _, s := range statuses {
		if err := table.Append([]string{s.Name, strconv.FormatBool(s.Enabled), s.Reason}); err != nil {
			return err
		}
	}
	return table.Render()
}

func location(l scoring.LocationScore) string {
	if l.DistanceKm == 0 {
		return strconv.Itoa(l.FinalScore)
	}
	return fmt.Sprintf("%d (%.1f km)", l.FinalScore, l.DistanceKm)
}

func skill(r *matching.Result) string {
	if r.SkillMatch == nil {
		return "-"
	}
	return strconv.FormatFloat(r.SkillMatch.Score, 'f', 0, 64)
}

func filters(f scoring.Filters) string {
	var enabled []string
	if f.Location {
		enabled = append(enabled, "location")
	}
	if f.Institution {
		enabled = append(enabled, "institution")
	}
	if f.Industry {
		enabled = append(enabled, "industry")
	}
	if len(enabled) == 0 {
		return "none"
	}
	return strings.Join(enabled, ",")
}

func formatBase(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
