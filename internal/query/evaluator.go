package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/taskdeck/deck/internal/timeparsing"
	"github.com/taskdeck/deck/internal/types"
)

// Query is a compiled --where expression.
type Query struct {
	// Params are listing parameters implied by top-level conjuncts. They
	// narrow the server result without excluding any match.
	Params url.Values
	// Exact is true when Params alone select exactly the matching issues.
	Exact bool

	match func(*types.Issue) bool
}

// Match reports whether issue satisfies the expression.
func (q *Query) Match(issue *types.Issue) bool {
	return q.match(issue)
}

// Filter returns the matching issues, preserving order.
func (q *Query) Filter(issues []types.Issue) []types.Issue {
	if q.Exact {
		return issues
	}
	out := make([]types.Issue, 0, len(issues))
	for i := range issues {
		if q.match(&issues[i]) {
			out = append(out, issues[i])
		}
	}
	return out
}

// Evaluator compiles expression trees against a reference time and the
// known labels (label values may be names or ids).
type Evaluator struct {
	now    time.Time
	labels []types.Label
}

// NewEvaluator creates an evaluator. Relative dates resolve against now.
func NewEvaluator(now time.Time, labels []types.Label) *Evaluator {
	return &Evaluator{now: now, labels: labels}
}

// Compile parses and compiles input.
func Compile(input string, now time.Time, labels []types.Label) (*Query, error) {
	n, err := Parse(input)
	if err != nil {
		return nil, err
	}
	return NewEvaluator(now, labels).Evaluate(n)
}

// Evaluate compiles a parsed tree.
func (e *Evaluator) Evaluate(n Node) (*Query, error) {
	pred, err := e.predicate(n)
	if err != nil {
		return nil, err
	}
	params, exact := e.pushdown(n)
	return &Query{Params: params, Exact: exact, match: pred}, nil
}

// pushdown turns top-level equality conjuncts into listing parameters.
func (e *Evaluator) pushdown(n Node) (url.Values, bool) {
	conjuncts := []Node{n}
	if and, ok := n.(*And); ok {
		conjuncts = and.Children
	}
	params := url.Values{}
	exact := true
	for _, c := range conjuncts {
		cmp, ok := c.(*Compare)
		if !ok {
			exact = false
			continue
		}
		key, value, pushedExact := e.pushable(cmp)
		if key == "" {
			exact = false
			continue
		}
		if prev := params.Get(key); prev != "" {
			// A second value for the same parameter cannot be expressed.
			exact = false
			continue
		}
		params.Set(key, value)
		exact = exact && pushedExact
	}
	return params, exact
}

func (e *Evaluator) pushable(c *Compare) (key, value string, exact bool) {
	switch c.Field {
	case "status":
		if c.Op == OpEq {
			if st, err := types.ParseStatus(c.Value); err == nil {
				return ParamStatus, string(st), true
			}
		}
	case "priority":
		if c.Op == OpEq {
			if p, err := types.ParsePriority(c.Value); err == nil {
				return ParamPriority, string(p), true
			}
		}
	case "repo":
		if c.Op == OpEq && !strings.EqualFold(c.Value, "none") {
			return ParamRepo, c.Value, true
		}
	case "label":
		if c.Op == OpEq {
			if l, ok := e.label(c.Value); ok {
				return ParamLabelIDs, strconv.FormatInt(l.ID, 10), true
			}
		}
	case "title", "text":
		// The backend searches title and description, a superset of both.
		if c.Op == OpContains && c.Value != "" {
			return ParamSearch, c.Value, false
		}
	}
	return "", "", false
}

func (e *Evaluator) label(value string) (types.Label, bool) {
	if id, err := strconv.ParseInt(value, 10, 64); err == nil {
		for _, l := range e.labels {
			if l.ID == id {
				return l, true
			}
		}
		return types.Label{ID: id}, true
	}
	for _, l := range e.labels {
		if strings.EqualFold(l.Name, value) {
			return l, true
		}
	}
	return types.Label{}, false
}

func (e *Evaluator) predicate(n Node) (func(*types.Issue) bool, error) {
	switch n := n.(type) {
	case *And:
		preds, err := e.predicates(n.Children)
		if err != nil {
			return nil, err
		}
		return func(i *types.Issue) bool {
			for _, p := range preds {
				if !p(i) {
					return false
				}
			}
			return true
		}, nil
	case *Or:
		preds, err := e.predicates(n.Children)
		if err != nil {
			return nil, err
		}
		return func(i *types.Issue) bool {
			for _, p := range preds {
				if p(i) {
					return true
				}
			}
			return false
		}, nil
	case *Not:
		p, err := e.predicate(n.Child)
		if err != nil {
			return nil, err
		}
		return func(i *types.Issue) bool { return !p(i) }, nil
	case *Compare:
		return e.compare(n)
	}
	return nil, fmt.Errorf("unsupported node %T", n)
}

func (e *Evaluator) predicates(nodes []Node) ([]func(*types.Issue) bool, error) {
	out := make([]func(*types.Issue) bool, len(nodes))
	for i, n := range nodes {
		p, err := e.predicate(n)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func (e *Evaluator) compare(c *Compare) (func(*types.Issue) bool, error) {
	switch c.Field {
	case "status":
		st, err := types.ParseStatus(c.Value)
		if err != nil {
			return nil, err
		}
		return equality(c, func(i *types.Issue) bool { return i.Status == st })
	case "priority":
		p, err := types.ParsePriority(c.Value)
		if err != nil {
			return nil, err
		}
		// Rank is 0 for high, so "priority>low" means a smaller rank.
		return ordered(c, func(i *types.Issue) int { return p.Rank() - i.Priority.Rank() })
	case "id":
		id, err := strconv.ParseInt(c.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", c.Value)
		}
		return ordered(c, func(i *types.Issue) int { return cmpInt64(i.ID, id) })
	case "repo":
		return optionalText(c, func(i *types.Issue) *string { return i.RepoFullName })
	case "assignee":
		return optionalText(c, func(i *types.Issue) *string { return i.Assignee })
	case "title":
		return text(c, func(i *types.Issue) string { return i.Title })
	case "text":
		return text(c, func(i *types.Issue) string { return i.Title + "\n" + i.Desc() })
	case "label":
		return e.labelPredicate(c)
	case "pr":
		return e.prPredicate(c)
	case "queue":
		return e.queuePredicate(c)
	case "created":
		return e.timePredicate(c, func(i *types.Issue) *time.Time { return &i.CreatedAt })
	case "updated":
		return e.timePredicate(c, func(i *types.Issue) *time.Time { return &i.UpdatedAt })
	case "due":
		return e.timePredicate(c, func(i *types.Issue) *time.Time { return i.DueDate })
	}
	return nil, fmt.Errorf("unknown field %q (want status, priority, id, repo, assignee, title, text, label, pr, queue, created, updated or due)", c.Field)
}

func equality(c *Compare, eq func(*types.Issue) bool) (func(*types.Issue) bool, error) {
	switch c.Op {
	case OpEq:
		return eq, nil
	case OpNe:
		return func(i *types.Issue) bool { return !eq(i) }, nil
	}
	return nil, fmt.Errorf("operator %s not supported for %s", c.Op, c.Field)
}

// ordered builds a predicate from a three-way comparison of the issue's
// value against the literal.
func ordered(c *Compare, cmp func(*types.Issue) int) (func(*types.Issue) bool, error) {
	var ok func(int) bool
	switch c.Op {
	case OpEq:
		ok = func(r int) bool { return r == 0 }
	case OpNe:
		ok = func(r int) bool { return r != 0 }
	case OpLt:
		ok = func(r int) bool { return r < 0 }
	case OpLe:
		ok = func(r int) bool { return r <= 0 }
	case OpGt:
		ok = func(r int) bool { return r > 0 }
	case OpGe:
		ok = func(r int) bool { return r >= 0 }
	default:
		return nil, fmt.Errorf("operator %s not supported for %s", c.Op, c.Field)
	}
	return func(i *types.Issue) bool { return ok(cmp(i)) }, nil
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func text(c *Compare, get func(*types.Issue) string) (func(*types.Issue) bool, error) {
	want := strings.ToLower(c.Value)
	switch c.Op {
	case OpEq:
		return func(i *types.Issue) bool { return strings.ToLower(get(i)) == want }, nil
	case OpNe:
		return func(i *types.Issue) bool { return strings.ToLower(get(i)) != want }, nil
	case OpContains:
		return func(i *types.Issue) bool { return strings.Contains(strings.ToLower(get(i)), want) }, nil
	}
	return nil, fmt.Errorf("operator %s not supported for %s", c.Op, c.Field)
}

// optionalText treats the value "none" as "field not set".
func optionalText(c *Compare, get func(*types.Issue) *string) (func(*types.Issue) bool, error) {
	if strings.EqualFold(c.Value, "none") {
		return equality(c, func(i *types.Issue) bool { return get(i) == nil })
	}
	return text(c, func(i *types.Issue) string {
		if s := get(i); s != nil {
			return *s
		}
		return ""
	})
}

func (e *Evaluator) labelPredicate(c *Compare) (func(*types.Issue) bool, error) {
	if strings.EqualFold(c.Value, "none") {
		return equality(c, func(i *types.Issue) bool { return len(i.Labels) == 0 })
	}
	if c.Op == OpContains {
		want := strings.ToLower(c.Value)
		return func(i *types.Issue) bool {
			for _, l := range i.Labels {
				if strings.Contains(strings.ToLower(l.Name), want) {
					return true
				}
			}
			return false
		}, nil
	}
	known, resolved := e.label(c.Value)
	return equality(c, func(i *types.Issue) bool {
		for _, l := range i.Labels {
			if resolved && l.ID == known.ID {
				return true
			}
			if strings.EqualFold(l.Name, c.Value) {
				return true
			}
		}
		return false
	})
}

func (e *Evaluator) prPredicate(c *Compare) (func(*types.Issue) bool, error) {
	v := strings.ToLower(c.Value)
	switch types.PRState(v) {
	case types.PRStateOpen, types.PRStateClosed, types.PRStateMerged:
		return equality(c, func(i *types.Issue) bool { return i.PRNumber != nil && i.PRState == types.PRState(v) })
	}
	switch v {
	case "none":
		return equality(c, func(i *types.Issue) bool { return i.PRNumber == nil })
	case "any":
		return equality(c, func(i *types.Issue) bool { return i.PRNumber != nil })
	}
	return nil, fmt.Errorf("invalid pr value %q (want open, closed, merged, any or none)", c.Value)
}

func (e *Evaluator) queuePredicate(c *Compare) (func(*types.Issue) bool, error) {
	if strings.EqualFold(c.Value, "none") {
		return equality(c, func(i *types.Issue) bool { return i.LatestQueueStatus == nil })
	}
	q := types.QueueStatus(strings.ToLower(c.Value))
	if !q.IsValid() {
		return nil, fmt.Errorf("invalid queue status %q", c.Value)
	}
	return equality(c, func(i *types.Issue) bool { return i.LatestQueueStatus != nil && *i.LatestQueueStatus == q })
}

// timePredicate compares timestamps. A compact duration means that long
// ago, so updated>7d selects issues updated within the last week.
func (e *Evaluator) timePredicate(c *Compare, get func(*types.Issue) *time.Time) (func(*types.Issue) bool, error) {
	if strings.EqualFold(c.Value, "none") {
		return equality(c, func(i *types.Issue) bool { return get(i) == nil })
	}
	at, err := e.parseTime(c.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", c.Field, c.Value, err)
	}
	if c.Op == OpContains {
		return nil, fmt.Errorf("operator %s not supported for %s", c.Op, c.Field)
	}
	cmp, err := ordered(c, func(i *types.Issue) int {
		t := get(i)
		switch {
		case t.Before(at):
			return -1
		case t.After(at):
			return 1
		}
		return 0
	})
	if err != nil {
		return nil, err
	}
	return func(i *types.Issue) bool { return get(i) != nil && cmp(i) }, nil
}

func (e *Evaluator) parseTime(s string) (time.Time, error) {
	if timeparsing.IsCompactDuration(strings.TrimLeft(s, "+-")) {
		if strings.HasPrefix(s, "+") {
			return timeparsing.ParseCompactDuration(s, e.now)
		}
		return timeparsing.Ago(s, e.now)
	}
	return timeparsing.ParseRelativeTime(s, e.now)
}
