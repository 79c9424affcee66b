package query

import (
	"net/url"
	"strconv"

	"github.com/taskdeck/deck/internal/filter"
	"github.com/taskdeck/deck/internal/gateway"
)

// Backend listing parameters of GET /issues.
const (
	ParamStatus   = "status"
	ParamPriority = "priority"
	ParamRepo     = "repo_full_name"
	ParamSearch   = "search"
	ParamLabelIDs = "label_ids"
	ParamSkip     = "skip"
	ParamLimit    = "limit"
)

// DefaultLimit is the board page size when none is configured.
const DefaultLimit = 50

// Params converts a filter selection into listing parameters. Pagination is
// only sent when limit is positive.
func Params(s filter.State, limit int) url.Values {
	v := url.Values{}
	if s.Status != "" {
		v.Set(ParamStatus, string(s.Status))
	}
	if s.Priority != "" {
		v.Set(ParamPriority, string(s.Priority))
	}
	if s.Repo != "" {
		v.Set(ParamRepo, s.Repo)
	}
	if s.Search != "" {
		v.Set(ParamSearch, s.Search)
	}
	if len(s.Labels) > 0 {
		v.Set(ParamLabelIDs, filter.FormatLabels(s.Labels))
	}
	if limit > 0 {
		page := s.Page
		if page < 1 {
			page = 1
		}
		v.Set(ParamSkip, strconv.Itoa((page-1)*limit))
		v.Set(ParamLimit, strconv.Itoa(limit))
	}
	return v
}

// IssuesKey is the cache key of the listing for s. Equal selections produce
// equal keys because url.Values encodes in sorted key order.
func IssuesKey(s filter.State, limit int) string {
	return gateway.IssuesQueryPath(Params(s, limit))
}

// Merge overlays extra onto base; keys present in extra win.
func Merge(base, extra url.Values) url.Values {
	out := url.Values{}
	for k, vs := range base {
		out[k] = append([]string(nil), vs...)
	}
	for k, vs := range extra {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
