package kanban

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the board's key bindings.
type KeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Left      key.Binding
	Right     key.Binding
	MoveLeft  key.Binding
	MoveRight key.Binding
	Open      key.Binding
	New       key.Binding
	Work      key.Binding
	Delete    key.Binding
	Search    key.Binding
	Priority  key.Binding
	Status    key.Binding
	Reset     key.Binding
	NextPage  key.Binding
	PrevPage  key.Binding
	Refresh   key.Binding
	Repos     key.Binding
	Trigger   key.Binding
	Retry     key.Binding
	Comment   key.Binding
	Help      key.Binding
	Back      key.Binding
	Quit      key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:      key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "prev lane")),
		Right:     key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next lane")),
		MoveLeft:  key.NewBinding(key.WithKeys("shift+left", "H", "<"), key.WithHelp("H/<", "move card left")),
		MoveRight: key.NewBinding(key.WithKeys("shift+right", "L", ">"), key.WithHelp("L/>", "move card right")),
		Open:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
		New:       key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new issue")),
		Work:      key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "request agent work")),
		Delete:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Search:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Priority:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "cycle priority filter")),
		Status:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "cycle status filter")),
		Reset:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear filters")),
		NextPage:  key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "next page")),
		PrevPage:  key.NewBinding(key.WithKeys("["), key.WithHelp("[", "prev page")),
		Refresh:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Repos:     key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "repos & jobs")),
		Trigger:   key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "trigger job")),
		Retry:     key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "retry job")),
		Comment:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "comment (details)")),
		Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Back:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Left, k.Right, k.MoveRight, k.New, k.Search, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right, k.MoveLeft, k.MoveRight},
		{k.Open, k.New, k.Work, k.Delete, k.Refresh, k.Comment},
		{k.Search, k.Priority, k.Status, k.Reset, k.PrevPage, k.NextPage},
		{k.Repos, k.Trigger, k.Retry, k.Help, k.Back, k.Quit},
	}
}
