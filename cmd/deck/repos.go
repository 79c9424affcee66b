package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskdeck/deck/internal/config"
	"github.com/taskdeck/deck/internal/jobs"
	"github.com/taskdeck/deck/internal/types"
	"github.com/taskdeck/deck/internal/ui"
)

var reposCmd = &cobra.Command{
	Use:     "repos",
	Aliases: []string{"repo"},
	GroupID: "repos",
	Short:   "Connected repositories and their analysis jobs",
}

var reposListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List connected repositories with job status",
	Args:    cobra.NoArgs,
	RunE:    runReposList,
}

var reposWatchCmd = &cobra.Command{
	Use:   "watch <repo>",
	Short: "Follow the analysis jobs of a repository until they settle",
	Long: `Follow the analysis jobs of a repository. While a job is pending or
analyzing the status is polled; the command returns once every job has
completed or failed (or at --timeout). <repo> is an id or owner/name.`,
	Args: cobra.ExactArgs(1),
	RunE: runReposWatch,
}

var reposTriggerCmd = &cobra.Command{
	Use:   "trigger <repo> <kind>",
	Short: "Start an analysis job (kind: overview, deep, commit)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobRequest(cmd, args, "Triggered", (*jobs.Poller).Trigger)
	},
}

var reposRetryCmd = &cobra.Command{
	Use:   "retry <repo> <kind>",
	Short: "Re-run a failed analysis job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobRequest(cmd, args, "Retrying", (*jobs.Poller).Retry)
	},
}

func init() {
	reposWatchCmd.Flags().Duration("timeout", 30*time.Minute, "Give up after this long")
	for _, c := range []*cobra.Command{reposTriggerCmd, reposRetryCmd} {
		c.Flags().Bool("wait", false, "Follow the job until it settles")
		c.Flags().Duration("timeout", 30*time.Minute, "Give up waiting after this long")
	}
	reposCmd.AddCommand(reposListCmd, reposWatchCmd, reposTriggerCmd, reposRetryCmd)
	rootCmd.AddCommand(reposCmd)
}

// openPoller loads the repository listing through a job poller.
func openPoller(ctx context.Context) (*jobs.Poller, func(), error) {
	logger := cliLogger()
	gw, err := newClient(logger)
	if err != nil {
		return nil, nil, err
	}
	c := newCache(logger)
	p := jobs.NewPoller(gw, c,
		jobs.WithActiveInterval(config.GetDuration(config.KeyPollActiveInterval)),
		jobs.WithLogger(logger),
	)
	closeFn := func() {
		p.Close()
		c.Close()
	}
	if err := p.Refresh(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}
	return p, closeFn, nil
}

// findRepo resolves an id or owner/name.
func findRepo(p *jobs.Poller, ref string) (types.ConnectedRepo, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if r, ok := p.Repo(id); ok {
			return r, nil
		}
	}
	if r, ok := p.RepoByName(ref); ok {
		return r, nil
	}
	for _, r := range p.Repos() {
		if strings.EqualFold(r.FullName, ref) || strings.EqualFold(r.Name, ref) {
			return r, nil
		}
	}
	return types.ConnectedRepo{}, fmt.Errorf("%w: %s", jobs.ErrUnknownRepo, ref)
}

func runReposList(cmd *cobra.Command, args []string) error {
	p, closeFn, err := openPoller(getRootContext())
	if err != nil {
		return err
	}
	defer closeFn()

	repos := p.Repos()
	if jsonOutput {
		outputJSON(types.RepoList{Items: repos})
		return nil
	}
	if len(repos) == 0 {
		fmt.Fprintln(stdout, ui.RenderMuted("No connected repositories."))
		return nil
	}
	for i := range repos {
		fmt.Fprintln(stdout, formatRepo(&repos[i]))
	}
	return nil
}

func runJobRequest(cmd *cobra.Command, args []string, verb string,
	call func(*jobs.Poller, context.Context, int64, types.JobKind) error) error {
	kind, err := types.ParseJobKind(args[1])
	if err != nil {
		return err
	}
	ctx := getRootContext()
	p, closeFn, err := openPoller(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	r, err := findRepo(p, args[0])
	if err != nil {
		return err
	}
	if err := call(p, ctx, r.ID, kind); err != nil {
		return err
	}
	if !jsonOutput {
		fmt.Fprintf(stdout, "%s %s %s analysis of %s\n", ui.RenderPass(ui.IconPass), verb, kind, r.FullName)
	}
	if wait, _ := cmd.Flags().GetBool("wait"); wait {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		return watchJobs(ctx, p, r, []types.JobKind{kind}, timeout)
	}
	if jsonOutput {
		outputJSON(jobs.BadgeFor(types.JobRecord{Kind: kind, Status: p.Status(r.ID, kind)}))
	}
	return nil
}

func runReposWatch(cmd *cobra.Command, args []string) error {
	ctx := getRootContext()
	p, closeFn, err := openPoller(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	r, err := findRepo(p, args[0])
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return watchJobs(ctx, p, r, types.JobKinds, timeout)
}

// watchJobs prints the badges of the given jobs whenever they change and
// returns once none of them is pending or analyzing.
func watchJobs(ctx context.Context, p *jobs.Poller, r types.ConnectedRepo, kinds []types.JobKind, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	changed := make(chan struct{}, 1)
	signal := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	watches := make([]*jobs.JobWatch, len(kinds))
	for i, k := range kinds {
		watches[i] = p.Watch(r.ID, k)
		watches[i].OnChange(signal)
		defer watches[i].Close()
	}
	if err := jobs.RefreshAll(ctx, watches...); err != nil {
		return err
	}

	last := ""
	for {
		badges := make([]jobs.Badge, 0, len(watches))
		active := false
		for _, w := range watches {
			rec, _ := w.Record()
			rec.Kind = w.Kind
			badges = append(badges, jobs.BadgeFor(rec))
			active = active || rec.Status.Active()
		}
		if line := renderBadgeLine(badges); line != last {
			last = line
			if jsonOutput {
				outputJSON(badges)
			} else {
				fmt.Fprintf(stdout, "%s %s  %s\n", ui.RenderMuted(time.Now().Format("15:04:05")), r.FullName, line)
			}
		}
		if !active {
			return failedJob(badges)
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return fmt.Errorf("stopped watching %s: %w", r.FullName, ctx.Err())
		}
	}
}

func renderBadgeLine(badges []jobs.Badge) string {
	parts := make([]string, len(badges))
	for i, b := range badges {
		parts[i] = ui.RenderBadge(b)
		if b.Error != "" {
			parts[i] += " " + ui.RenderFail("("+b.Error+")")
		}
	}
	return strings.Join(parts, "  ")
}

// failedJob turns a settled failure into the command's exit status.
func failedJob(badges []jobs.Badge) error {
	for _, b := range badges {
		if b.Tone == jobs.ToneBad {
			return fmt.Errorf("%s analysis failed: %s", b.Kind, b.Error)
		}
	}
	return nil
}
