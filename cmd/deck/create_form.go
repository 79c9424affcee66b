package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/taskdeck/deck/internal/gateway"
	"github.com/taskdeck/deck/internal/timeparsing"
	"github.com/taskdeck/deck/internal/types"
)

// runCreateForm asks for the issue fields with an interactive form.
func runCreateForm(ctx context.Context, gw *gateway.Client) (types.IssueDraft, error) {
	var (
		title       string
		description string
		behavior    string
		priorityStr = string(types.PriorityMedium)
		repo        string
		labelIDs    []int64
		dueInput    string
	)

	priorityOptions := []huh.Option[string]{
		huh.NewOption("High", string(types.PriorityHigh)),
		huh.NewOption("Medium (default)", string(types.PriorityMedium)),
		huh.NewOption("Low", string(types.PriorityLow)),
	}

	// Labels and repositories are optional context; a failure to load them
	// leaves the corresponding field out of the form.
	labels, err := gw.ListLabels(ctx)
	if err != nil {
		WarnError("could not load labels: %v", err)
	}
	repos, err := gw.ListConnectedRepos(ctx)
	if err != nil {
		WarnError("could not load repositories: %v", err)
	}

	fields := []huh.Field{
		huh.NewInput().
			Title("Title").
			Description("Brief summary of the issue (required)").
			Placeholder("e.g., Fix redirect loop after login").
			Value(&title).
			Validate(func(s string) error {
				d := types.IssueDraft{Title: s}
				return d.Validate()
			}),

		huh.NewText().
			Title("Description").
			Description("Markdown is supported").
			CharLimit(5000).
			Value(&description),

		huh.NewText().
			Title("Expected behavior").
			Description("An example of what should happen (optional)").
			CharLimit(2000).
			Value(&behavior),

		huh.NewSelect[string]().
			Title("Priority").
			Options(priorityOptions...).
			Value(&priorityStr),
	}

	if len(repos) > 0 {
		repoOptions := []huh.Option[string]{huh.NewOption("None", "")}
		for _, r := range repos {
			repoOptions = append(repoOptions, huh.NewOption(r.FullName, r.FullName))
		}
		fields = append(fields, huh.NewSelect[string]().
			Title("Repository").
			Options(repoOptions...).
			Value(&repo))
	}

	if len(labels) > 0 {
		labelOptions := make([]huh.Option[int64], len(labels))
		for i, l := range labels {
			labelOptions[i] = huh.NewOption(l.Name, l.ID)
		}
		fields = append(fields, huh.NewMultiSelect[int64]().
			Title("Labels").
			Options(labelOptions...).
			Value(&labelIDs))
	}

	fields = append(fields, huh.NewInput().
		Title("Due").
		Description("e.g. friday, +3d, 2026-12-01 (optional)").
		Value(&dueInput).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return nil
			}
			_, err := timeparsing.ParseDueDate(s, time.Now())
			return err
		}))

	form := huh.NewForm(huh.NewGroup(fields...)).WithTheme(huh.ThemeDracula())
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return types.IssueDraft{}, errors.New("issue creation cancelled")
		}
		return types.IssueDraft{}, fmt.Errorf("form error: %w", err)
	}

	draft := types.IssueDraft{
		Title:           strings.TrimSpace(title),
		Description:     trimmed(description),
		BehaviorExample: trimmed(behavior),
		Priority:        types.Priority(priorityStr),
		RepoFullName:    trimmed(repo),
		LabelIDs:        labelIDs,
	}
	if strings.TrimSpace(dueInput) != "" {
		due, err := parseDue(dueInput, time.Now())
		if err != nil {
			return draft, err
		}
		draft.DueDate = due
	}
	return draft, nil
}

// confirm asks a yes/no question.
func confirm(question string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(question).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}
