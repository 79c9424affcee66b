package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskdeck/deck/internal/types"
	"github.com/taskdeck/deck/internal/ui"
)

var commentsCmd = &cobra.Command{
	Use:     "comments",
	Aliases: []string{"comment"},
	Short:   "List, add and delete issue comments",
}

var commentsListCmd = &cobra.Command{
	Use:     "list <issue-id>",
	Aliases: []string{"ls"},
	Short:   "List the comments of an issue",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIssueID(args[0])
		if err != nil {
			return err
		}
		gw, err := newClient(cliLogger())
		if err != nil {
			return err
		}
		list, err := gw.ListComments(getRootContext(), id)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(list)
			return nil
		}
		if len(list) == 0 {
			fmt.Fprintln(stdout, "No comments.")
			return nil
		}
		fmt.Fprint(stdout, formatComments(list, ui.TerminalWidth(80), time.Now()))
		return nil
	},
}

var commentsAddCmd = &cobra.Command{
	Use:   "add <issue-id> <text>...",
	Short: "Comment on an issue",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIssueID(args[0])
		if err != nil {
			return err
		}
		d := types.CommentDraft{Content: strings.Join(args[1:], " ")}
		if err := d.Validate(); err != nil {
			return err
		}
		gw, err := newClient(cliLogger())
		if err != nil {
			return err
		}
		c, err := gw.AddComment(getRootContext(), id, d)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(c)
			return nil
		}
		fmt.Fprintf(stdout, "%s Commented on #%d\n", ui.RenderPass(ui.IconPass), id)
		return nil
	},
}

var commentsDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id> <comment-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a comment",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIssueID(args[0])
		if err != nil {
			return err
		}
		cid, err := strconv.ParseInt(strings.TrimSpace(args[1]), 10, 64)
		if err != nil || cid <= 0 {
			return fmt.Errorf("invalid comment id %q", args[1])
		}
		gw, err := newClient(cliLogger())
		if err != nil {
			return err
		}
		if err := gw.DeleteComment(getRootContext(), id, cid); err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"issue_id": id, "deleted": cid})
			return nil
		}
		fmt.Fprintf(stdout, "%s Deleted comment %d from #%d\n", ui.RenderPass(ui.IconPass), cid, id)
		return nil
	},
}

func init() {
	commentsCmd.AddCommand(commentsListCmd, commentsAddCmd, commentsDeleteCmd)
	issuesCmd.AddCommand(commentsCmd)
}

// formatComments renders comments oldest first with their ids, so they can
// be deleted.
func formatComments(list []types.Comment, width int, now time.Time) string {
	var b strings.Builder
	for _, c := range list {
		fmt.Fprintf(&b, "%s %s %s\n", ui.RenderMuted(fmt.Sprintf("[%d]", c.ID)), ui.RenderAccent(c.Author), ui.RenderMuted(ui.Age(c.CreatedAt, now)))
		b.WriteString(ui.RenderMarkdown(c.Content, width))
	}
	return b.String()
}

// formatWorkHistory renders work requests newest first.
func formatWorkHistory(items []types.QueueItem, width int, now time.Time) string {
	var b strings.Builder
	for _, q := range items {
		st := q.Status
		fmt.Fprintf(&b, "%s %s", ui.RenderQueueStatus(&st), ui.RenderMuted(q.CreatedAt.Format("2006-01-02 15:04")+" "+ui.Age(q.CreatedAt, now)))
		if d := q.Duration(); d > 0 {
			fmt.Fprintf(&b, " %s", ui.RenderMuted("took "+d.Round(time.Second).String()))
		}
		b.WriteString("\n")
		if q.Result != nil && *q.Result != "" {
			for _, line := range strings.Split(ui.WrapText(*q.Result, width-2), "\n") {
				fmt.Fprintf(&b, "  %s\n", line)
			}
		}
	}
	return b.String()
}
