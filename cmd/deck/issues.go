package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskdeck/deck/internal/config"
	"github.com/taskdeck/deck/internal/debug"
	"github.com/taskdeck/deck/internal/filter"
	"github.com/taskdeck/deck/internal/gateway"
	"github.com/taskdeck/deck/internal/query"
	"github.com/taskdeck/deck/internal/types"
	"github.com/taskdeck/deck/internal/ui"
)

// maxPageLimit is the largest page the backend serves.
const maxPageLimit = 100

var issuesCmd = &cobra.Command{
	Use:     "issues",
	Aliases: []string{"issue", "i"},
	GroupID: "issues",
	Short:   "List, show and edit issues",
}

var issuesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	Long: `List issues on the board.

Filters map onto the backend listing. --where accepts an expression over
more fields; the parts the backend understands are sent with the request
and the rest is evaluated locally:

  deck issues list --where 'status=todo AND priority=high'
  deck issues list --where 'label=bug OR label=urgent'
  deck issues list --where 'due<+7d AND NOT queue=completed'
  deck issues list --where 'title~login' --sort priority,updated-desc`,
	Args: cobra.NoArgs,
	RunE: runIssuesList,
}

var issuesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssuesShow,
}

var issuesReposCmd = &cobra.Command{
	Use:   "repos",
	Short: "List the repositories issues are linked to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		gw, err := newClient(cliLogger())
		if err != nil {
			return err
		}
		names, err := gw.ListIssueRepos(getRootContext())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(names)
			return nil
		}
		for _, n := range names {
			fmt.Fprintln(stdout, n)
		}
		return nil
	},
}

func init() {
	f := issuesListCmd.Flags()
	f.StringP("status", "s", "", "Filter by status (todo, in_progress, done)")
	f.StringP("priority", "p", "", "Filter by priority (low, medium, high)")
	f.StringP("repo", "r", "", "Filter by linked repository (owner/name)")
	f.String("search", "", "Search title and description")
	f.StringSliceP("label", "l", nil, "Filter by label name or id (repeatable; matches any)")
	f.Int("page", 1, "Page number")
	f.Int("limit", 0, "Page size (default: board.page-size)")
	f.Bool("all", false, "Fetch every page")
	f.StringP("where", "w", "", "Filter expression (see --help)")
	f.String("sort", "", "Sort order, e.g. priority,updated-desc (default: server order)")

	issuesShowCmd.Flags().Bool("full", false, "Do not shorten long descriptions")
	issuesShowCmd.Flags().Bool("no-pager", false, "Do not pipe output through a pager")

	issuesCmd.AddCommand(issuesListCmd, issuesShowCmd, issuesReposCmd)
	rootCmd.AddCommand(issuesCmd)
}

// sortFlag parses --sort. Unknown fields are skipped; nothing usable is an
// error.
func sortFlag(cmd *cobra.Command) ([]types.SortOption, error) {
	raw, _ := cmd.Flags().GetString("sort")
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	order := types.ParseSortOrder(raw)
	if len(order) == 0 {
		return nil, fmt.Errorf("invalid --sort %q: no known fields (id, title, priority, due, created, updated)", raw)
	}
	debug.Logf("sort order: %s\n", types.EncodeSortOrder(order))
	return order, nil
}

// parseIssueID accepts "12" or "#12".
func parseIssueID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid issue id %q", s)
	}
	return id, nil
}

// resolveLabels maps label names or ids to ids. Names match case-insensitively.
func resolveLabels(known []types.Label, refs []string) ([]int64, error) {
	var ids []int64
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		found := false
		for _, l := range known {
			if strings.EqualFold(l.Name, ref) || strconv.FormatInt(l.ID, 10) == ref {
				ids = append(ids, l.ID)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown label %q", ref)
		}
	}
	return ids, nil
}

// listFilter builds the filter selection from the list flags.
func listFilter(cmd *cobra.Command, known []types.Label) (filter.State, error) {
	f := cmd.Flags()
	st := filter.Initial()
	if v, _ := f.GetString("status"); v != "" {
		s, err := types.ParseStatus(v)
		if err != nil {
			return st, err
		}
		st.Status = s
	}
	if v, _ := f.GetString("priority"); v != "" {
		p, err := types.ParsePriority(v)
		if err != nil {
			return st, err
		}
		st.Priority = p
	}
	st.Repo, _ = f.GetString("repo")
	st.Search, _ = f.GetString("search")
	refs, _ := f.GetStringSlice("label")
	ids, err := resolveLabels(known, refs)
	if err != nil {
		return st, err
	}
	st.Labels = ids
	st.Page, _ = f.GetInt("page")
	if st.Page < 1 {
		st.Page = 1
	}
	return st, nil
}

// fetchAll pages through the listing for params.
func fetchAll(ctx context.Context, gw *gateway.Client, params url.Values) ([]types.Issue, int, error) {
	var items []types.Issue
	total := 0
	for skip := 0; ; skip += maxPageLimit {
		q := url.Values{}
		for k, v := range params {
			q[k] = v
		}
		q.Set(query.ParamSkip, strconv.Itoa(skip))
		q.Set(query.ParamLimit, strconv.Itoa(maxPageLimit))
		page, err := gw.ListIssues(ctx, q)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, page.Items...)
		total = page.Total
		if len(page.Items) < maxPageLimit || len(items) >= total {
			return items, total, nil
		}
	}
}

func runIssuesList(cmd *cobra.Command, args []string) error {
	ctx := getRootContext()
	gw, err := newClient(cliLogger())
	if err != nil {
		return err
	}

	where, _ := cmd.Flags().GetString("where")
	refs, _ := cmd.Flags().GetStringSlice("label")
	var known []types.Label
	if len(refs) > 0 || strings.Contains(where, "label") {
		if known, err = gw.ListLabels(ctx); err != nil {
			return err
		}
	}

	st, err := listFilter(cmd, known)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		limit = config.GetInt(config.KeyBoardPageSize)
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	all, _ := cmd.Flags().GetBool("all")

	var q *query.Query
	if where != "" {
		if q, err = query.Compile(where, time.Now(), known); err != nil {
			return fmt.Errorf("invalid --where: %w", err)
		}
		// Local evaluation needs every candidate, not one page.
		all = all || !q.Exact
	}

	params := query.Params(st, 0)
	if q != nil {
		for k, v := range q.Params {
			params[k] = v
		}
	}

	var items []types.Issue
	var total int
	if all {
		items, total, err = fetchAll(ctx, gw, params)
	} else {
		paged := query.Params(st, limit)
		for k, v := range params {
			paged[k] = v
		}
		var list *types.IssueList
		if list, err = gw.ListIssues(ctx, paged); err == nil {
			items, total = list.Items, list.Total
		}
	}
	if err != nil {
		return err
	}
	if q != nil && !q.Exact {
		items = q.Filter(items)
		total = len(items)
	}
	order, err := sortFlag(cmd)
	if err != nil {
		return err
	}
	types.SortIssues(items, order)

	if jsonOutput {
		outputJSON(types.IssueList{Items: items, Total: total})
		return nil
	}
	if len(items) == 0 {
		fmt.Fprintln(stdout, ui.RenderMuted("No issues found."))
		return nil
	}
	now := time.Now()
	for i := range items {
		fmt.Fprintln(stdout, formatIssueLine(&items[i], now))
	}
	if !all && total > len(items) {
		more := fmt.Sprintf("\nShowing %d of %d issues (page %d). Use --page or --all for more.", len(items), total, st.Page)
		fmt.Fprintln(stdout, ui.RenderMuted(more))
	}
	return nil
}

// issueDetail is the show output: the issue with its activity.
type issueDetail struct {
	*types.Issue
	Comments    []types.Comment   `json:"comments"`
	WorkHistory []types.QueueItem `json:"work_history"`
}

func runIssuesShow(cmd *cobra.Command, args []string) error {
	id, err := parseIssueID(args[0])
	if err != nil {
		return err
	}
	gw, err := newClient(cliLogger())
	if err != nil {
		return err
	}
	ctx := getRootContext()
	it, err := gw.GetIssue(ctx, id)
	if gateway.IsNotFound(err) {
		return fmt.Errorf("issue %d not found: %w", id, err)
	}
	if err != nil {
		return err
	}
	if it == nil {
		return fmt.Errorf("issue %d not found", id)
	}
	detail := issueDetail{Issue: it}
	if detail.Comments, err = gw.ListComments(ctx, id); err != nil {
		return err
	}
	if detail.WorkHistory, err = gw.ListQueueItems(ctx, id); err != nil {
		return err
	}
	if jsonOutput {
		outputJSON(detail)
		return nil
	}
	full, _ := cmd.Flags().GetBool("full")
	noPager, _ := cmd.Flags().GetBool("no-pager")
	now := time.Now()
	width := ui.TerminalWidth(80)
	out := formatIssueDetail(it, width, now, full)
	if len(detail.Comments) > 0 {
		out += "\n" + ui.RenderCategory("COMMENTS") + "\n" + formatComments(detail.Comments, width, now)
	}
	if len(detail.WorkHistory) > 0 {
		out += "\n" + ui.RenderCategory("WORK HISTORY") + "\n" + formatWorkHistory(detail.WorkHistory, width, now)
	}
	return ui.ToPager(stdout, out, ui.PagerOptions{NoPager: noPager})
}
