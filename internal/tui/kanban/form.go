package kanban

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/taskdeck/deck/internal/timeparsing"
	"github.com/taskdeck/deck/internal/types"
)

// createInput holds the form's bound values.
type createInput struct {
	Title       string
	Description string
	Priority    string
	Repo        string
	Due         string
}

// draft converts the form values into a create payload.
func (in *createInput) draft(m *Model) (types.IssueDraft, error) {
	d := types.IssueDraft{
		Title:    strings.TrimSpace(in.Title),
		Priority: types.Priority(in.Priority),
	}
	if v := strings.TrimSpace(in.Description); v != "" {
		d.Description = &v
	}
	if v := strings.TrimSpace(in.Repo); v != "" {
		d.RepoFullName = &v
	}
	if v := strings.TrimSpace(in.Due); v != "" {
		due, err := timeparsing.ParseDueDate(v, m.deps.Now())
		if err != nil {
			return d, err
		}
		d.DueDate = due
	}
	return d, nil
}

// openCreate is registered as the reconciler's create opener.
func (m *Model) openCreate() {
	in := &createInput{Priority: string(types.PriorityMedium)}
	if r := m.deps.Filters.Repo(); r != "" {
		in.Repo = r
	}
	m.draft = in
	m.form = m.newCreateForm(in).WithWidth(min(max(m.width-4, 40), 72))
	m.mode = modeCreate
}

func (m *Model) newCreateForm(in *createInput) *huh.Form {
	var repos []string
	if m.deps.Jobs != nil {
		for _, r := range m.deps.Jobs.Repos() {
			repos = append(repos, r.FullName)
		}
	}
	now := m.deps.Now

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Placeholder("What needs to be done?").
				Value(&in.Title).
				Validate(func(s string) error {
					d := types.IssueDraft{Title: s}
					return d.Validate()
				}),

			huh.NewText().
				Title("Description").
				Description("Markdown is supported").
				CharLimit(5000).
				Value(&in.Description),

			huh.NewSelect[string]().
				Title("Priority").
				Options(
					huh.NewOption("High", string(types.PriorityHigh)),
					huh.NewOption("Medium", string(types.PriorityMedium)),
					huh.NewOption("Low", string(types.PriorityLow)),
				).
				Value(&in.Priority),

			huh.NewInput().
				Title("Repository").
				Placeholder("owner/name (optional)").
				Suggestions(repos).
				Value(&in.Repo),

			huh.NewInput().
				Title("Due").
				Placeholder("e.g. friday, +3d, 2026-12-01 (optional)").
				Value(&in.Due).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					_, err := timeparsing.ParseDueDate(s, now())
					return err
				}),
		),
	).WithShowHelp(true)
}

// updateForm forwards messages to the create form and submits it once
// completed. Esc abandons the form.
func (m *Model) updateForm(msg tea.Msg) tea.Cmd {
	if k, ok := msg.(tea.KeyMsg); ok && k.Type == tea.KeyEsc {
		m.closeForm()
		m.status = "create cancelled"
		return nil
	}
	fm, cmd := m.form.Update(msg)
	if f, ok := fm.(*huh.Form); ok {
		m.form = f
	}
	switch m.form.State {
	case huh.StateAborted:
		m.closeForm()
		return nil
	case huh.StateCompleted:
		d, err := m.draft.draft(m)
		m.closeForm()
		if err != nil {
			m.status = fmt.Sprintf("invalid due date: %v", err)
			return nil
		}
		m.status = "creating issue"
		return m.run("create", func(ctx context.Context) error {
			_, err := m.deps.Board.Create(ctx, d)
			return err
		})
	}
	return cmd
}

func (m *Model) closeForm() {
	m.form = nil
	m.draft = nil
	m.mode = modeBoard
}
