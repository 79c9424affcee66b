package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobKind identifies one of the asynchronous analysis jobs tracked per repository.
type JobKind int

const (
	JobOverview JobKind = iota // repository overview analysis
	JobDeep                    // deep analysis (phase 2)
	JobCommit                  // commit history analysis
)

// JobKinds lists every kind in display order.
var JobKinds = []JobKind{JobOverview, JobDeep, JobCommit}

// String returns the short name used on the CLI.
func (k JobKind) String() string {
	switch k {
	case JobOverview:
		return "overview"
	case JobDeep:
		return "deep"
	case JobCommit:
		return "commit"
	}
	return fmt.Sprintf("JobKind(%d)", int(k))
}

// Segment returns the URL path segment of the job's endpoints.
func (k JobKind) Segment() string {
	switch k {
	case JobOverview:
		return "analysis"
	case JobDeep:
		return "deep-analysis"
	case JobCommit:
		return "commit-analysis"
	}
	return ""
}

// ParseJobKind accepts the short name or the URL segment.
func ParseJobKind(s string) (JobKind, error) {
	for _, k := range JobKinds {
		if s == k.String() || s == k.Segment() {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown job kind %q (want overview, deep or commit)", s)
}

// JobStatus is the state of one asynchronous job. JSON null maps to JobNone.
type JobStatus int

const (
	JobNone JobStatus = iota
	JobPending
	JobAnalyzing
	JobCompleted
	JobFailed
)

// String returns the wire value ("" for JobNone).
func (s JobStatus) String() string {
	switch s {
	case JobNone:
		return ""
	case JobPending:
		return "pending"
	case JobAnalyzing:
		return "analyzing"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	}
	return fmt.Sprintf("JobStatus(%d)", int(s))
}

// ParseJobStatus converts a wire value to a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	switch s {
	case "", "null":
		return JobNone, nil
	case "pending":
		return JobPending, nil
	case "analyzing":
		return JobAnalyzing, nil
	case "completed":
		return JobCompleted, nil
	case "failed":
		return JobFailed, nil
	}
	return JobNone, fmt.Errorf("unknown job status %q", s)
}

// Active reports whether the remote worker is still working on the job.
func (s JobStatus) Active() bool {
	return s == JobPending || s == JobAnalyzing
}

// Terminal reports whether no further automatic transition will happen.
func (s JobStatus) Terminal() bool {
	return !s.Active()
}

// CanAdvanceTo reports whether next is a transition the worker may make on
// its own: none -> pending -> analyzing -> completed|failed. Staying in the
// same state is always allowed. failed -> pending requires an explicit retry
// and is therefore not an automatic transition.
func (s JobStatus) CanAdvanceTo(next JobStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case JobNone:
		return next == JobPending || next == JobAnalyzing || next == JobCompleted || next == JobFailed
	case JobPending:
		return next == JobAnalyzing || next == JobCompleted || next == JobFailed
	case JobAnalyzing:
		return next == JobCompleted || next == JobFailed
	case JobCompleted, JobFailed:
		return false
	}
	return false
}

// MarshalJSON encodes JobNone as null.
func (s JobStatus) MarshalJSON() ([]byte, error) {
	if s == JobNone {
		return []byte("null"), nil
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes null or a status string.
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = JobNone
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("job status: %w", err)
	}
	v, err := ParseJobStatus(str)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// JobRecord is the observable state of one job.
type JobRecord struct {
	Kind   JobKind    `json:"-"`
	Status JobStatus  `json:"status"`
	Result *string    `json:"result"`
	Error  *string    `json:"error"`
	At     *time.Time `json:"at"`
}

// ConnectedRepo is a GitHub repository the user opted into tracking.
type ConnectedRepo struct {
	ID              int64      `json:"id"`
	GitHubRepoID    int64      `json:"github_repo_id"`
	FullName        string     `json:"full_name"`
	Name            string     `json:"name"`
	Description     *string    `json:"description"`
	Language        *string    `json:"language"`
	Private         bool       `json:"private"`
	HTMLURL         string     `json:"html_url"`
	DefaultBranch   string     `json:"default_branch"`
	StargazersCount int        `json:"stargazers_count"`
	ConnectedAt     time.Time  `json:"connected_at"`

	AnalysisStatus JobStatus  `json:"analysis_status"`
	AnalysisResult *string    `json:"analysis_result"`
	AnalysisError  *string    `json:"analysis_error"`
	AnalyzedAt     *time.Time `json:"analyzed_at"`

	DeepAnalysisStatus JobStatus  `json:"deep_analysis_status"`
	DeepAnalysisResult *string    `json:"deep_analysis_result"`
	DeepAnalysisError  *string    `json:"deep_analysis_error"`
	DeepAnalyzedAt     *time.Time `json:"deep_analyzed_at"`

	CommitAnalysisStatus JobStatus  `json:"commit_analysis_status"`
	CommitAnalysisResult *string    `json:"commit_analysis_result"`
	CommitAnalysisError  *string    `json:"commit_analysis_error"`
	CommitAnalyzedAt     *time.Time `json:"commit_analyzed_at"`
}

// Job returns the tracker for kind.
func (r *ConnectedRepo) Job(kind JobKind) JobRecord {
	switch kind {
	case JobOverview:
		return JobRecord{Kind: kind, Status: r.AnalysisStatus, Result: r.AnalysisResult, Error: r.AnalysisError, At: r.AnalyzedAt}
	case JobDeep:
		return JobRecord{Kind: kind, Status: r.DeepAnalysisStatus, Result: r.DeepAnalysisResult, Error: r.DeepAnalysisError, At: r.DeepAnalyzedAt}
	case JobCommit:
		return JobRecord{Kind: kind, Status: r.CommitAnalysisStatus, Result: r.CommitAnalysisResult, Error: r.CommitAnalysisError, At: r.CommitAnalyzedAt}
	}
	return JobRecord{Kind: kind}
}

// SetJob overwrites the tracker for kind.
func (r *ConnectedRepo) SetJob(rec JobRecord) {
	switch rec.Kind {
	case JobOverview:
		r.AnalysisStatus, r.AnalysisResult, r.AnalysisError, r.AnalyzedAt = rec.Status, rec.Result, rec.Error, rec.At
	case JobDeep:
		r.DeepAnalysisStatus, r.DeepAnalysisResult, r.DeepAnalysisError, r.DeepAnalyzedAt = rec.Status, rec.Result, rec.Error, rec.At
	case JobCommit:
		r.CommitAnalysisStatus, r.CommitAnalysisResult, r.CommitAnalysisError, r.CommitAnalyzedAt = rec.Status, rec.Result, rec.Error, rec.At
	}
}

// AnyActive reports whether any job of the repository is pending or analyzing.
func (r *ConnectedRepo) AnyActive() bool {
	for _, k := range JobKinds {
		if r.Job(k).Status.Active() {
			return true
		}
	}
	return false
}

// RepoList is the response of the connected repository listing endpoint.
type RepoList struct {
	Items []ConnectedRepo `json:"items"`
}

// jobRecordWire is the per-job detail response; field names depend on the kind.
type jobRecordWire struct {
	Status JobStatus  `json:"status"`
	Result *string    `json:"result"`
	Error  *string    `json:"error"`
	At     *time.Time `json:"at"`

	AnalysisStatus       *JobStatus `json:"analysis_status"`
	DeepAnalysisStatus   *JobStatus `json:"deep_analysis_status"`
	CommitAnalysisStatus *JobStatus `json:"commit_analysis_status"`

	AnalysisResult       *string `json:"analysis_result"`
	DeepAnalysisResult   *string `json:"deep_analysis_result"`
	CommitAnalysisResult *string `json:"commit_analysis_result"`

	AnalysisError       *string `json:"analysis_error"`
	DeepAnalysisError   *string `json:"deep_analysis_error"`
	CommitAnalysisError *string `json:"commit_analysis_error"`

	AnalyzedAt       *time.Time `json:"analyzed_at"`
	DeepAnalyzedAt   *time.Time `json:"deep_analyzed_at"`
	CommitAnalyzedAt *time.Time `json:"commit_analyzed_at"`
}

// DecodeJobRecord decodes a job detail response. The backend uses kind
// prefixed field names (commit_analysis_status, ...); the generic
// status/result/error/at names are accepted as well.
func DecodeJobRecord(kind JobKind, data []byte) (JobRecord, error) {
	var w jobRecordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return JobRecord{}, fmt.Errorf("failed to parse %s job record: %w", kind, err)
	}
	rec := JobRecord{Kind: kind, Status: w.Status, Result: w.Result, Error: w.Error, At: w.At}
	pick := func(st *JobStatus, res, e *string, at *time.Time) {
		if st != nil {
			rec.Status = *st
		}
		if res != nil {
			rec.Result = res
		}
		if e != nil {
			rec.Error = e
		}
		if at != nil {
			rec.At = at
		}
	}
	switch kind {
	case JobOverview:
		pick(w.AnalysisStatus, w.AnalysisResult, w.AnalysisError, w.AnalyzedAt)
	case JobDeep:
		pick(w.DeepAnalysisStatus, w.DeepAnalysisResult, w.DeepAnalysisError, w.DeepAnalyzedAt)
	case JobCommit:
		pick(w.CommitAnalysisStatus, w.CommitAnalysisResult, w.CommitAnalysisError, w.CommitAnalyzedAt)
	}
	return rec, nil
}
