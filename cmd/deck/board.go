package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/taskdeck/deck/internal/board"
	"github.com/taskdeck/deck/internal/config"
	"github.com/taskdeck/deck/internal/debug"
	"github.com/taskdeck/deck/internal/drag"
	"github.com/taskdeck/deck/internal/filter"
	"github.com/taskdeck/deck/internal/jobs"
	"github.com/taskdeck/deck/internal/nav"
	"github.com/taskdeck/deck/internal/tui/kanban"
)

var boardCmd = &cobra.Command{
	Use:     "board",
	Aliases: []string{"ui"},
	GroupID: "issues",
	Short:   "Interactive Kanban board",
	Long: `Launch the interactive board: three lanes (To Do, In Progress, Done)
kept in sync with the backend.

Cards move with the keyboard or by dragging them with the mouse. A move
shows at once and is rolled back if the backend rejects it.

The filter selection is stored in the location file, so a second board
(or an edit of the file) follows the same filters.

Key bindings:
  h/l, ←/→     Change lane
  j/k, ↑/↓     Select card
  H/L, <,>     Move card to the previous/next lane
  Enter        Issue details
  n            New issue
  w            Request agent work on the selected issue
  d            Delete
  /            Search
  p / s        Cycle priority / status filter
  x            Clear filters
  [ / ]        Previous / next page
  g            Repositories and analysis jobs
  r            Refresh
  ?            Toggle help
  q/Ctrl+C     Quit`,
	RunE: runBoard,
}

func init() {
	boardCmd.Flags().String("sort", "", "Card order within a lane, e.g. priority,updated-desc (default: server order)")
	boardCmd.Flags().Bool("no-mouse", false, "Disable mouse dragging")
	boardCmd.Flags().Duration("poll", 0, "Also refresh the listing at this interval (0: only after changes)")
	rootCmd.AddCommand(boardCmd)
}

func runBoard(cmd *cobra.Command, args []string) error {
	logger, closer, err := debug.OpenLogFile(config.LogPath())
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	ctx := getRootContext()
	gw, err := newClient(logger)
	if err != nil {
		return err
	}
	user, err := requireSession(ctx, gw)
	if err != nil {
		return err
	}
	logger.Info("board started", "user", user.Login, "api", gw.BaseURL())

	loc, err := nav.OpenFile(config.LocationPath(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = loc.Close() }()
	if err := loc.Watch(); err != nil {
		WarnError("not following %s: %v", loc.Path(), err)
	}

	c := newCache(logger)
	defer c.Close()

	filters := filter.New(loc,
		filter.WithDebounce(config.GetDuration(config.KeyFilterDebounce)),
		filter.WithLogger(logger),
	)
	defer filters.Close()

	pageSize := config.GetInt(config.KeyBoardPageSize)
	notices := kanban.NewNotices()
	boardOpts := []board.Option{
		board.WithNotifier(notices),
		board.WithLogger(logger),
		board.WithPageSize(pageSize),
	}
	if poll, _ := cmd.Flags().GetDuration("poll"); poll > 0 {
		boardOpts = append(boardOpts, board.WithPollInterval(poll))
	}
	rec := board.New(gw, c, filters, boardOpts...)
	defer rec.Close()

	poller := jobs.NewPoller(gw, c,
		jobs.WithActiveInterval(config.GetDuration(config.KeyPollActiveInterval)),
		jobs.WithLogger(logger),
	)
	defer poller.Close()

	order, err := sortFlag(cmd)
	if err != nil {
		return err
	}

	ds := config.GetDragSettings()
	m := kanban.New(kanban.Deps{
		Board:   rec,
		Filters: filters,
		Jobs:    poller,
		Notices: notices,
		Drag: drag.Settings{
			Distance:       ds.Distance,
			TouchDelay:     ds.TouchDelay,
			TouchTolerance: ds.TouchTolerance,
		},
		CellW:    ds.CellWidth,
		CellH:    ds.CellHeight,
		PageSize: pageSize,
		Sort:     order,
		Logger:   logger,
	})
	defer m.Close()

	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if noMouse, _ := cmd.Flags().GetBool("no-mouse"); !noMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	p := tea.NewProgram(m, opts...)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running board: %v\n", err)
		return err
	}
	filters.Flush()
	return nil
}
