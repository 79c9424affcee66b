package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/taskdeck/deck/internal/gateway"
	"github.com/taskdeck/deck/internal/timeparsing"
	"github.com/taskdeck/deck/internal/types"
	"github.com/taskdeck/deck/internal/ui"
)

var issuesCreateCmd = &cobra.Command{
	Use:     "create [title]",
	Aliases: []string{"new"},
	Short:   "Create an issue",
	Long: `Create an issue in the To Do lane.

  deck issues create "Fix login redirect" -p high -r acme/web -l bug
  deck issues create -i                  # interactive form

--due accepts dates (2026-12-01), compact durations (+3d, +2w) and natural
language (friday, next monday).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIssuesCreate,
}

var issuesUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields of an issue",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssuesUpdate,
}

var issuesMoveCmd = &cobra.Command{
	Use:   "move <id> <status>",
	Short: "Move an issue to another lane (todo, in_progress, done)",
	Args:  cobra.ExactArgs(2),
	RunE:  runIssuesMove,
}

var issuesDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue",
	Args:    cobra.ExactArgs(1),
	RunE:    runIssuesDelete,
}

var issuesWorkCmd = &cobra.Command{
	Use:   "work <id>",
	Short: "Queue an agent work request for an issue",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssuesWork,
}

// addIssueFieldFlags registers the editable fields shared by create and update.
func addIssueFieldFlags(f *pflag.FlagSet) {
	f.StringP("title", "t", "", "Title")
	f.StringP("description", "d", "", "Description (markdown)")
	f.StringP("priority", "p", "", "Priority (low, medium, high)")
	f.StringP("repo", "r", "", "Linked repository (owner/name)")
	f.String("behavior", "", "Example of the expected behavior")
	f.StringSliceP("label", "l", nil, "Label name or id (repeatable)")
	f.String("assignee", "", "Assignee")
	f.String("due", "", "Due date")
}

func init() {
	addIssueFieldFlags(issuesCreateCmd.Flags())
	issuesCreateCmd.Flags().StringP("status", "s", "", "Initial status (default: todo)")
	issuesCreateCmd.Flags().BoolP("interactive", "i", false, "Fill in the issue with a form")

	addIssueFieldFlags(issuesUpdateCmd.Flags())
	issuesUpdateCmd.Flags().StringP("status", "s", "", "Status (todo, in_progress, done)")

	issuesDeleteCmd.Flags().BoolP("force", "f", false, "Do not ask for confirmation")

	issuesCmd.AddCommand(issuesCreateCmd, issuesUpdateCmd, issuesMoveCmd, issuesDeleteCmd, issuesWorkCmd)
}

// optional returns a pointer to the flag value when the flag was given.
func optional(f *pflag.FlagSet, name string) *string {
	if !f.Changed(name) {
		return nil
	}
	v, _ := f.GetString(name)
	return &v
}

// labelIDs resolves --label values, fetching the labels only when needed.
func labelIDs(ctx context.Context, gw *gateway.Client, f *pflag.FlagSet) ([]int64, error) {
	refs, _ := f.GetStringSlice("label")
	if len(refs) == 0 {
		return nil, nil
	}
	known, err := gw.ListLabels(ctx)
	if err != nil {
		return nil, err
	}
	return resolveLabels(known, refs)
}

func parseDue(raw string, now time.Time) (*time.Time, error) {
	due, err := timeparsing.ParseDueDate(raw, now)
	if err != nil {
		return nil, fmt.Errorf("invalid --due %q: %w", raw, err)
	}
	return due, nil
}

// draftFromFlags builds a create payload from the command line.
func draftFromFlags(ctx context.Context, gw *gateway.Client, cmd *cobra.Command, args []string) (types.IssueDraft, error) {
	f := cmd.Flags()
	var d types.IssueDraft
	d.Title, _ = f.GetString("title")
	if len(args) > 0 {
		if d.Title != "" && d.Title != args[0] {
			return d, errors.New("title given both as argument and --title")
		}
		d.Title = args[0]
	}
	d.Description = optional(f, "description")
	d.RepoFullName = optional(f, "repo")
	d.BehaviorExample = optional(f, "behavior")
	d.Assignee = optional(f, "assignee")
	if v, _ := f.GetString("priority"); v != "" {
		p, err := types.ParsePriority(v)
		if err != nil {
			return d, err
		}
		d.Priority = p
	}
	if v, _ := f.GetString("status"); v != "" {
		s, err := types.ParseStatus(v)
		if err != nil {
			return d, err
		}
		d.Status = s
	}
	if v, _ := f.GetString("due"); v != "" {
		due, err := parseDue(v, time.Now())
		if err != nil {
			return d, err
		}
		d.DueDate = due
	}
	ids, err := labelIDs(ctx, gw, f)
	if err != nil {
		return d, err
	}
	d.LabelIDs = ids
	return d, nil
}

func runIssuesCreate(cmd *cobra.Command, args []string) error {
	ctx := getRootContext()
	gw, err := newClient(cliLogger())
	if err != nil {
		return err
	}

	var draft types.IssueDraft
	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		draft, err = runCreateForm(ctx, gw)
	} else {
		draft, err = draftFromFlags(ctx, gw, cmd, args)
	}
	if err != nil {
		return err
	}
	draft.SetDefaults()
	if err := draft.Validate(); err != nil {
		return err
	}

	it, err := gw.CreateIssue(ctx, draft)
	if err != nil {
		return fmt.Errorf("failed to create issue: %w", err)
	}
	if jsonOutput {
		outputJSON(it)
		return nil
	}
	fmt.Fprintf(stdout, "%s Created issue %s: %s\n", ui.RenderPass(ui.IconPass), ui.RenderAccent(fmt.Sprintf("#%d", it.ID)), it.Title)
	return nil
}

// patchFromFlags builds a partial update from the flags that were given.
func patchFromFlags(ctx context.Context, gw *gateway.Client, f *pflag.FlagSet) (types.IssuePatch, error) {
	p := types.IssuePatch{
		Title:           optional(f, "title"),
		Description:     optional(f, "description"),
		RepoFullName:    optional(f, "repo"),
		BehaviorExample: optional(f, "behavior"),
		Assignee:        optional(f, "assignee"),
	}
	if v := optional(f, "priority"); v != nil {
		pr, err := types.ParsePriority(*v)
		if err != nil {
			return p, err
		}
		p.Priority = &pr
	}
	if v := optional(f, "status"); v != nil {
		st, err := types.ParseStatus(*v)
		if err != nil {
			return p, err
		}
		p.Status = &st
	}
	if v := optional(f, "due"); v != nil {
		due, err := parseDue(*v, time.Now())
		if err != nil {
			return p, err
		}
		if due == nil {
			return p, errors.New("clearing a due date is not supported")
		}
		p.DueDate = due
	}
	ids, err := labelIDs(ctx, gw, f)
	if err != nil {
		return p, err
	}
	p.LabelIDs = ids
	return p, nil
}

func runIssuesUpdate(cmd *cobra.Command, args []string) error {
	id, err := parseIssueID(args[0])
	if err != nil {
		return err
	}
	ctx := getRootContext()
	gw, err := newClient(cliLogger())
	if err != nil {
		return err
	}
	patch, err := patchFromFlags(ctx, gw, cmd.Flags())
	if err != nil {
		return err
	}
	if patch.IsEmpty() {
		return errors.New("nothing to update: pass at least one field flag")
	}
	if err := patch.Validate(); err != nil {
		return err
	}
	return applyPatch(ctx, gw, id, patch, "Updated")
}

func runIssuesMove(cmd *cobra.Command, args []string) error {
	id, err := parseIssueID(args[0])
	if err != nil {
		return err
	}
	st, err := types.ParseStatus(args[1])
	if err != nil {
		return err
	}
	gw, err := newClient(cliLogger())
	if err != nil {
		return err
	}
	return applyPatch(getRootContext(), gw, id, types.IssuePatch{Status: &st}, "Moved")
}

func applyPatch(ctx context.Context, gw *gateway.Client, id int64, patch types.IssuePatch, verb string) error {
	it, err := gw.UpdateIssue(ctx, id, patch)
	if err != nil {
		return fmt.Errorf("failed to update issue %d: %w", id, err)
	}
	if jsonOutput {
		outputJSON(it)
		return nil
	}
	fmt.Fprintf(stdout, "%s %s issue %s: %s %s\n", ui.RenderPass(ui.IconPass), verb,
		ui.RenderAccent(fmt.Sprintf("#%d", it.ID)), it.Title, ui.RenderStatus(it.Status))
	return nil
}

func runIssuesDelete(cmd *cobra.Command, args []string) error {
	id, err := parseIssueID(args[0])
	if err != nil {
		return err
	}
	ctx := getRootContext()
	gw, err := newClient(cliLogger())
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")
	if !force && !jsonOutput && ui.IsTerminal() {
		it, err := gw.GetIssue(ctx, id)
		if err != nil {
			return err
		}
		if it == nil {
			return fmt.Errorf("issue %d not found", id)
		}
		ok, err := confirm(fmt.Sprintf("Delete #%d %q?", id, it.Title))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(stdout, "Cancelled.")
			return nil
		}
	}
	if err := gw.DeleteIssue(ctx, id); err != nil {
		return fmt.Errorf("failed to delete issue %d: %w", id, err)
	}
	if jsonOutput {
		outputJSON(map[string]interface{}{"deleted": id})
		return nil
	}
	fmt.Fprintf(stdout, "%s Deleted issue #%d\n", ui.RenderPass(ui.IconPass), id)
	return nil
}

func runIssuesWork(cmd *cobra.Command, args []string) error {
	id, err := parseIssueID(args[0])
	if err != nil {
		return err
	}
	gw, err := newClient(cliLogger())
	if err != nil {
		return err
	}
	if err := gw.CreateWorkRequest(getRootContext(), id); err != nil {
		return fmt.Errorf("failed to request work on issue %d: %w", id, err)
	}
	if jsonOutput {
		outputJSON(map[string]interface{}{"issue_id": id, "queued": true})
		return nil
	}
	fmt.Fprintf(stdout, "%s Work request queued for #%d\n", ui.RenderPass(ui.IconPass), id)
	return nil
}

// trimmed returns nil for blank input.
func trimmed(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
