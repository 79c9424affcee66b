package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/taskdeck/deck/internal/jobs"
	"github.com/taskdeck/deck/internal/types"
	"github.com/taskdeck/deck/internal/ui"
)

// descriptionLines is how much of a description show prints without --full.
const descriptionLines = 40

// formatIssueLine formats a single issue for list output.
// Format: ID STATUS PRIORITY Title [repo] labels due agent
func formatIssueLine(it *types.Issue, now time.Time) string {
	parts := []string{
		ui.RenderMuted(fmt.Sprintf("#%-4d", it.ID)),
		ui.RenderStatus(it.Status),
		ui.RenderPriority(it.Priority),
		it.Title,
	}
	if r := it.Repo(); r != "" {
		parts = append(parts, ui.RenderMuted("["+r+"]"))
	}
	if l := ui.RenderLabels(it.Labels); l != "" {
		parts = append(parts, l)
	}
	if d := ui.RenderDue(it.DueDate, now); d != "" {
		parts = append(parts, d)
	}
	if q := ui.RenderQueueStatus(it.LatestQueueStatus); q != "" {
		parts = append(parts, q)
	}
	return strings.Join(parts, " ")
}

// formatIssueDetail renders the show view.
func formatIssueDetail(it *types.Issue, width int, now time.Time, full bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", ui.RenderAccent(fmt.Sprintf("#%d", it.ID)), it.Title)
	b.WriteString(ui.RenderSeparator() + "\n")

	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%-10s %s\n", name+":", value)
		}
	}
	field("Status", ui.RenderStatus(it.Status))
	field("Priority", ui.RenderPriority(it.Priority))
	field("Repo", it.Repo())
	if it.Assignee != nil {
		field("Assignee", *it.Assignee)
	}
	field("Labels", ui.RenderLabels(it.Labels))
	if it.DueDate != nil {
		field("Due", it.DueDate.Format("2006-01-02")+" "+ui.RenderDue(it.DueDate, now))
	}
	field("Agent", ui.RenderQueueStatus(it.LatestQueueStatus))
	if it.PRNumber != nil {
		pr := fmt.Sprintf("#%d", *it.PRNumber)
		if it.PRState != "" {
			pr += " (" + string(it.PRState) + ")"
		}
		if it.PRURL != nil {
			pr += " " + *it.PRURL
		}
		field("PR", pr)
	}
	field("Created", it.CreatedAt.Format("2006-01-02 15:04")+" "+ui.RenderMuted(ui.Age(it.CreatedAt, now)))
	field("Updated", it.UpdatedAt.Format("2006-01-02 15:04")+" "+ui.RenderMuted(ui.Age(it.UpdatedAt, now)))

	if d := it.Desc(); d != "" {
		b.WriteString("\n" + ui.RenderCategory("DESCRIPTION") + "\n")
		if !full {
			d = ui.TruncateLines(d, descriptionLines, 5)
		}
		b.WriteString(ui.RenderMarkdown(d, width))
	}
	if it.BehaviorExample != nil && *it.BehaviorExample != "" {
		b.WriteString("\n" + ui.RenderCategory("EXPECTED BEHAVIOR") + "\n")
		b.WriteString(ui.RenderMarkdown(*it.BehaviorExample, width))
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// formatRepo renders one connected repository with its job badges.
func formatRepo(r *types.ConnectedRepo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", ui.RenderMuted(fmt.Sprintf("%-4d", r.ID)), ui.RenderAccent(r.FullName))
	if r.Private {
		b.WriteString(ui.RenderMuted(" (private)"))
	}
	b.WriteString("\n     ")
	badges := jobs.Badges(*r)
	parts := make([]string, len(badges))
	for i, badge := range badges {
		parts[i] = ui.RenderBadge(badge)
	}
	b.WriteString(strings.Join(parts, "  "))
	for _, badge := range badges {
		if badge.Error != "" {
			fmt.Fprintf(&b, "\n     %s", ui.RenderFail(badge.Kind.String()+": "+badge.Error))
		}
	}
	return b.String()
}
