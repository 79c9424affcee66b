// Package kanban is the terminal board: three lanes of cards that can be
// moved with the keyboard or dragged with the mouse, a filter toolbar, an
// issue detail pane and a repository panel showing analysis jobs.
package kanban

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/taskdeck/deck/internal/board"
	"github.com/taskdeck/deck/internal/drag"
	"github.com/taskdeck/deck/internal/filter"
	"github.com/taskdeck/deck/internal/jobs"
	"github.com/taskdeck/deck/internal/types"
)

type mode int

const (
	modeBoard mode = iota
	modeSearch
	modeDetail
	modeCreate
	modeConfirmDelete
	modeRepos
	modeComment
)

// Notices buffers board notices for the model to display. It implements
// board.Notifier; a full buffer drops the notice instead of blocking.
type Notices chan board.Notice

// NewNotices returns a buffered notice channel.
func NewNotices() Notices { return make(Notices, 16) }

// Notify implements board.Notifier.
func (n Notices) Notify(x board.Notice) {
	select {
	case n <- x:
	default:
	}
}

// Deps wires the model to the sync engine.
type Deps struct {
	Board   *board.Reconciler
	Filters *filter.Store
	// Jobs is optional; without it the repository panel is disabled.
	Jobs    *jobs.Poller
	Notices Notices
	Drag    drag.Settings
	// CellW and CellH convert terminal cells to drag distances.
	CellW, CellH float64
	PageSize     int
	Sort         []types.SortOption
	Logger       *slog.Logger
	Now          func() time.Time
}

type boardChangedMsg struct{}

type jobsChangedMsg struct{}

type noticeMsg board.Notice

// doneMsg reports the end of a background action. Failures were already
// surfaced as notices by the reconciler or poller.
type doneMsg struct {
	what string
	err  error
}

// Model is the bubbletea model of the board.
type Model struct {
	deps  Deps
	ctx   context.Context
	stop  context.CancelFunc
	keys  KeyMap
	help  help.Model
	mode  mode
	width int
	// height of the terminal
	height int

	lay     layout
	scale   scale
	tracker *drag.Tracker
	// pressed is the card under the last mouse press.
	pressed  bool
	lane     int
	selected [3]int
	offset   [3]int
	// follow is the issue the selection should stick to after a refresh.
	follow int64

	search  textinput.Model
	comment textinput.Model
	detail  viewport.Model
	// activity of the issue in the detail pane; nil while loading.
	activity    *board.Activity
	activityErr error
	form    *huh.Form
	draft   *createInput
	repoSel int
	kindSel int

	notice   *board.Notice
	noticeAt time.Time
	status   string

	boardCh  chan struct{}
	jobsCh   chan struct{}
	unsubs   []func()
	showHelp bool
}

// New creates the board model. Call Close when the program exits.
func New(deps Deps) *Model {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.CellW <= 0 {
		deps.CellW = 8
	}
	if deps.CellH <= 0 {
		deps.CellH = 16
	}
	if deps.PageSize <= 0 {
		deps.PageSize = 50
	}
	if deps.Notices == nil {
		deps.Notices = NewNotices()
	}

	ti := textinput.New()
	ti.Placeholder = "search title and description"
	ti.Prompt = "/ "
	ti.CharLimit = 200

	ci := textinput.New()
	ci.Placeholder = "write a comment, enter to post"
	ci.Prompt = "> "
	ci.CharLimit = types.MaxCommentLength

	h := help.New()
	h.ShowAll = false

	ctx, stop := context.WithCancel(context.Background())
	m := &Model{
		deps:    deps,
		ctx:     ctx,
		stop:    stop,
		keys:    DefaultKeyMap(),
		help:    h,
		scale:   scale{cellW: deps.CellW, cellH: deps.CellH},
		tracker: drag.NewTracker(deps.Drag),
		search:  ti,
		comment: ci,
		detail:  viewport.New(0, 0),
		boardCh: make(chan struct{}, 1),
		jobsCh:  make(chan struct{}, 1),
	}
	m.lay = newLayout(80, 24)

	m.unsubs = append(m.unsubs, deps.Board.OnChange(func() { signal(m.boardCh) }))
	if deps.Jobs != nil {
		m.unsubs = append(m.unsubs, deps.Jobs.OnChange(func() { signal(m.jobsCh) }))
	}
	deps.Board.SetCreateOpener(m.openCreate)
	return m
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Close detaches the model from the sync engine.
func (m *Model) Close() {
	m.stop()
	for _, fn := range m.unsubs {
		fn()
	}
	m.unsubs = nil
	m.deps.Board.SetCreateOpener(nil)
}

// Init starts the change listeners.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.waitBoard(),
		m.waitJobs(),
		m.waitNotice(),
		tea.SetWindowTitle("deck"),
	)
}

func (m *Model) waitBoard() tea.Cmd {
	return wait(m.ctx, m.boardCh, boardChangedMsg{})
}

func (m *Model) waitJobs() tea.Cmd {
	if m.deps.Jobs == nil {
		return nil
	}
	return wait(m.ctx, m.jobsCh, jobsChangedMsg{})
}

func wait(ctx context.Context, ch <-chan struct{}, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ch:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Model) waitNotice() tea.Cmd {
	return func() tea.Msg {
		select {
		case n := <-m.deps.Notices:
			return noticeMsg(n)
		case <-m.ctx.Done():
			return nil
		}
	}
}

// run performs fn in the background. Only Close cancels it.
func (m *Model) run(what string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{what: what, err: fn(m.ctx)}
	}
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case boardChangedMsg:
		m.clamp()
		if m.mode == modeDetail {
			m.refreshDetail()
		}
		return m, m.waitBoard()

	case jobsChangedMsg:
		return m, m.waitJobs()

	case noticeMsg:
		n := board.Notice(msg)
		m.notice = &n
		m.noticeAt = m.deps.Now()
		return m, m.waitNotice()

	case activityMsg:
		m.applyActivity(msg)
		return m, nil

	case doneMsg:
		if msg.err != nil {
			m.deps.Logger.Debug("board action failed", "action", msg.what, "error", msg.err)
		}
		return m, nil

	case tea.MouseMsg:
		if m.mode == modeBoard {
			return m, m.handleMouse(msg)
		}
	}

	switch m.mode {
	case modeCreate:
		return m, m.updateForm(msg)
	case modeSearch:
		return m, m.updateSearch(msg)
	case modeComment:
		return m, m.updateComment(msg)
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch m.mode {
		case modeDetail:
			return m, m.handleDetailKey(msg)
		case modeConfirmDelete:
			return m, m.handleConfirmKey(msg)
		case modeRepos:
			return m, m.handleReposKey(msg)
		}
		return m, m.handleBoardKey(msg)
	}
	return m, nil
}

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	m.lay = newLayout(w, h)
	m.tracker.SetDroppables(m.lay.droppables(m.scale))
	m.tracker.SetBounds(m.lay.bounds(m.scale))
	m.detail.Width = w - 4
	m.detail.Height = h - 6
	m.search.Width = w - 4
	m.help.Width = w
	if m.form != nil {
		m.form = m.form.WithWidth(min(w-4, 72))
	}
	m.clamp()
}

// lanes returns the listing partitioned and sorted for display.
func (m *Model) lanes() board.Lanes {
	l := m.deps.Board.Lanes()
	if len(m.deps.Sort) > 0 {
		for _, st := range types.Statuses {
			types.SortIssues(l[st], m.deps.Sort)
		}
	}
	return l
}

// Selected returns the issue under the cursor.
func (m *Model) Selected() (types.Issue, bool) {
	items := m.lanes()[types.Statuses[m.lane]]
	i := m.selected[m.lane]
	if i < 0 || i >= len(items) {
		return types.Issue{}, false
	}
	return items[i], true
}

// clamp keeps the cursor on an existing card, following m.follow across
// lanes when the issue moved.
func (m *Model) clamp() {
	l := m.lanes()
	if m.follow != 0 {
		for li, st := range types.Statuses {
			for i, it := range l[st] {
				if it.ID == m.follow {
					m.lane, m.selected[li] = li, i
				}
			}
		}
	}
	for li, st := range types.Statuses {
		n := len(l[st])
		if m.selected[li] >= n {
			m.selected[li] = n - 1
		}
		if m.selected[li] < 0 {
			m.selected[li] = 0
		}
		if m.selected[li] < m.offset[li] {
			m.offset[li] = m.selected[li]
		}
		if m.selected[li] >= m.offset[li]+m.lay.slots {
			m.offset[li] = m.selected[li] - m.lay.slots + 1
		}
	}
	if it, ok := m.Selected(); ok {
		m.follow = it.ID
	}
}

func (m *Model) moveCursor(dLane, dRow int) {
	m.lane = (m.lane + dLane + len(types.Statuses)) % len(types.Statuses)
	m.selected[m.lane] += dRow
	m.follow = 0
	m.clamp()
}

func (m *Model) handleBoardKey(msg tea.KeyMsg) tea.Cmd {
	f := m.deps.Filters
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
	case key.Matches(msg, m.keys.Back):
		m.notice = nil
		m.status = ""
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(0, -1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(0, 1)
	case key.Matches(msg, m.keys.Left):
		m.moveCursor(-1, 0)
	case key.Matches(msg, m.keys.Right):
		m.moveCursor(1, 0)
	case key.Matches(msg, m.keys.MoveLeft):
		return m.moveSelected(-1)
	case key.Matches(msg, m.keys.MoveRight):
		return m.moveSelected(1)
	case key.Matches(msg, m.keys.Open):
		return m.openDetail()
	case key.Matches(msg, m.keys.New):
		if !m.deps.Board.OpenCreateModal() {
			m.status = "creating issues is not available"
			return nil
		}
		return m.form.Init()
	case key.Matches(msg, m.keys.Work):
		if it, ok := m.Selected(); ok {
			id := it.ID
			m.status = fmt.Sprintf("requesting agent work for #%d", id)
			return m.run("work", func(ctx context.Context) error {
				return m.deps.Board.TriggerWorkRequest(ctx, id)
			})
		}
	case key.Matches(msg, m.keys.Delete):
		if _, ok := m.Selected(); ok {
			m.mode = modeConfirmDelete
		}
	case key.Matches(msg, m.keys.Search):
		m.mode = modeSearch
		m.search.SetValue(f.Search())
		m.search.CursorEnd()
		return m.search.Focus()
	case key.Matches(msg, m.keys.Priority):
		f.SetPriority(nextPriority(f.State().Priority))
	case key.Matches(msg, m.keys.Status):
		f.SetStatus(nextStatus(f.State().Status))
	case key.Matches(msg, m.keys.Reset):
		f.Reset()
		m.search.SetValue("")
	case key.Matches(msg, m.keys.NextPage):
		st := f.State()
		if st.Page*m.deps.PageSize < m.deps.Board.Total() {
			f.SetPage(st.Page + 1)
		}
	case key.Matches(msg, m.keys.PrevPage):
		if st := f.State(); st.Page > 1 {
			f.SetPage(st.Page - 1)
		}
	case key.Matches(msg, m.keys.Refresh):
		m.status = "refreshing"
		cmds := []tea.Cmd{m.run("refresh", m.deps.Board.Refresh)}
		if m.deps.Jobs != nil {
			cmds = append(cmds, m.run("refresh repos", m.deps.Jobs.Refresh))
		}
		return tea.Batch(cmds...)
	case key.Matches(msg, m.keys.Repos):
		if m.deps.Jobs == nil {
			m.status = "repository panel is not available"
			return nil
		}
		m.mode = modeRepos
	}
	return nil
}

// moveSelected moves the selected card one lane over. The board updates at
// once; the returned command persists the change.
func (m *Model) moveSelected(dir int) tea.Cmd {
	it, ok := m.Selected()
	if !ok {
		return nil
	}
	to := m.lane + dir
	if to < 0 || to >= len(types.Statuses) {
		return nil
	}
	persist, ok := m.deps.Board.Move(it.ID, types.Statuses[to])
	if !ok {
		return nil
	}
	m.follow = it.ID
	m.clamp()
	return m.run("move", persist)
}

func nextPriority(p types.Priority) types.Priority {
	switch p {
	case "":
		return types.PriorityHigh
	case types.PriorityHigh:
		return types.PriorityMedium
	case types.PriorityMedium:
		return types.PriorityLow
	}
	return ""
}

func nextStatus(s types.Status) types.Status {
	for i, st := range types.Statuses {
		if st == s {
			if i+1 < len(types.Statuses) {
				return types.Statuses[i+1]
			}
			return ""
		}
	}
	return types.Statuses[0]
}

// handleMouse drives the drag tracker. A press on a card picks it up; the
// drag activates once the pointer travels the configured distance.
func (m *Model) handleMouse(msg tea.MouseMsg) tea.Cmd {
	now := m.deps.Now()
	p := m.scale.point(msg.X, msg.Y)
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			if msg.Button == tea.MouseButtonWheelUp {
				m.moveCursor(0, -1)
			} else if msg.Button == tea.MouseButtonWheelDown {
				m.moveCursor(0, 1)
			}
			return nil
		}
		col, slot, ok := m.lay.hit(msg.X, msg.Y)
		if !ok || slot < 0 {
			return nil
		}
		st := types.Statuses[col]
		items := m.lanes()[st]
		i := m.offset[col] + slot
		if i >= len(items) {
			return nil
		}
		m.lane, m.selected[col], m.follow = col, i, items[i].ID
		m.tracker.Down(drag.Item{
			ID:   items[i].ID,
			Lane: st,
			Rect: m.scale.rect(m.lay.card(col, slot)),
		}, p, drag.Mouse, now)
		m.pressed = true
	case tea.MouseActionMotion:
		if m.pressed {
			m.tracker.Move(p, now)
		}
	case tea.MouseActionRelease:
		if !m.pressed {
			return nil
		}
		m.pressed = false
		res, ok := m.tracker.Up(p, now)
		if !ok {
			return nil
		}
		persist, ok := m.deps.Board.Drop(res)
		if !ok {
			return nil
		}
		m.follow = res.ItemID
		m.clamp()
		return m.run("drop", persist)
	}
	return nil
}

func (m *Model) updateSearch(msg tea.Msg) tea.Cmd {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.Type {
		case tea.KeyEnter, tea.KeyEsc:
			m.search.Blur()
			m.deps.Filters.Flush()
			m.mode = modeBoard
			return nil
		}
	}
	before := m.search.Value()
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if v := m.search.Value(); v != before {
		m.deps.Filters.SetSearch(v)
	}
	return cmd
}

func (m *Model) handleDetailKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Open):
		m.mode = modeBoard
		return nil
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.MoveLeft):
		return m.moveSelected(-1)
	case key.Matches(msg, m.keys.MoveRight):
		return m.moveSelected(1)
	case key.Matches(msg, m.keys.Work):
		if it, ok := m.Selected(); ok {
			id := it.ID
			return func() tea.Msg {
				if err := m.deps.Board.TriggerWorkRequest(m.ctx, id); err != nil {
					return doneMsg{what: "work", err: err}
				}
				return m.loadActivity(id)()
			}
		}
		return nil
	case key.Matches(msg, m.keys.Comment):
		m.mode = modeComment
		return m.comment.Focus()
	case key.Matches(msg, m.keys.Refresh):
		if it, ok := m.Selected(); ok {
			return m.loadActivity(it.ID)
		}
		return nil
	}
	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return cmd
}

func (m *Model) refreshDetail() {
	it, ok := m.Selected()
	if !ok {
		m.mode = modeBoard
		return
	}
	if m.activity != nil && m.activity.IssueID != it.ID {
		m.activity, m.activityErr = nil, nil
	}
	now := m.deps.Now()
	m.detail.SetContent(renderDetail(it, m.detail.Width, now) + renderActivity(m.activity, m.activityErr, m.detail.Width, now))
}

func (m *Model) handleConfirmKey(msg tea.KeyMsg) tea.Cmd {
	m.mode = modeBoard
	if msg.String() != "y" && msg.String() != "Y" {
		m.status = "delete cancelled"
		return nil
	}
	it, ok := m.Selected()
	if !ok {
		return nil
	}
	id := it.ID
	m.follow = 0
	return m.run("delete", func(ctx context.Context) error {
		return m.deps.Board.Delete(ctx, id)
	})
}

func (m *Model) handleReposKey(msg tea.KeyMsg) tea.Cmd {
	repos := m.deps.Jobs.Repos()
	switch {
	case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Repos):
		m.mode = modeBoard
		return nil
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.repoSel > 0 {
			m.repoSel--
		}
	case key.Matches(msg, m.keys.Down):
		if m.repoSel < len(repos)-1 {
			m.repoSel++
		}
	case key.Matches(msg, m.keys.Left):
		m.kindSel = (m.kindSel + len(types.JobKinds) - 1) % len(types.JobKinds)
	case key.Matches(msg, m.keys.Right):
		m.kindSel = (m.kindSel + 1) % len(types.JobKinds)
	case key.Matches(msg, m.keys.Open):
		if m.repoSel < len(repos) {
			m.deps.Filters.SetRepo(repos[m.repoSel].FullName)
			m.mode = modeBoard
		}
	case key.Matches(msg, m.keys.Reset):
		m.deps.Filters.SetRepo("")
		m.mode = modeBoard
	case key.Matches(msg, m.keys.Trigger), key.Matches(msg, m.keys.Retry):
		if m.repoSel >= len(repos) {
			return nil
		}
		id, kind := repos[m.repoSel].ID, types.JobKinds[m.kindSel]
		if key.Matches(msg, m.keys.Retry) {
			return m.run("retry", func(ctx context.Context) error {
				return m.deps.Jobs.Retry(ctx, id, kind)
			})
		}
		return m.run("trigger", func(ctx context.Context) error {
			return m.deps.Jobs.Trigger(ctx, id, kind)
		})
	case key.Matches(msg, m.keys.Refresh):
		return m.run("refresh repos", m.deps.Jobs.Refresh)
	}
	return nil
}

// filterSummary describes the active filters for the toolbar.
func filterSummary(st filter.State) string {
	var parts []string
	if st.Repo != "" {
		parts = append(parts, "repo:"+st.Repo)
	}
	if st.Status != "" {
		parts = append(parts, "status:"+string(st.Status))
	}
	if st.Priority != "" {
		parts = append(parts, "priority:"+string(st.Priority))
	}
	if len(st.Labels) > 0 {
		parts = append(parts, "labels:"+filter.FormatLabels(st.Labels))
	}
	if st.Search != "" {
		parts = append(parts, fmt.Sprintf("search:%q", st.Search))
	}
	if len(parts) == 0 {
		return "no filters"
	}
	return strings.Join(parts, "  ")
}
