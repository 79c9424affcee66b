package types

import (
	"encoding/json"
	"testing"
)

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobNone, JobPending, true},
		{JobPending, JobAnalyzing, true},
		{JobAnalyzing, JobCompleted, true},
		{JobAnalyzing, JobFailed, true},
		{JobAnalyzing, JobAnalyzing, true},
		{JobCompleted, JobPending, false},
		{JobFailed, JobPending, false},
		{JobAnalyzing, JobPending, false},
		{JobCompleted, JobAnalyzing, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanAdvanceTo(tt.to); got != tt.want {
			t.Errorf("%v.CanAdvanceTo(%v) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestJobStatusActive(t *testing.T) {
	active := map[JobStatus]bool{
		JobNone:      false,
		JobPending:   true,
		JobAnalyzing: true,
		JobCompleted: false,
		JobFailed:    false,
	}
	for s, want := range active {
		if s.Active() != want {
			t.Errorf("%v.Active() = %v, want %v", s, s.Active(), want)
		}
		if s.Terminal() == want {
			t.Errorf("%v.Terminal() = %v, want %v", s, s.Terminal(), !want)
		}
	}
}

func TestConnectedRepoJSON(t *testing.T) {
	raw := `{"id":4,"full_name":"octo/cat","name":"cat",
	"analysis_status":"completed","analysis_result":"ok",
	"deep_analysis_status":null,
	"commit_analysis_status":"analyzing"}`
	var r ConnectedRepo
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got := r.Job(JobOverview).Status; got != JobCompleted {
		t.Errorf("overview status = %v, want completed", got)
	}
	if got := r.Job(JobDeep).Status; got != JobNone {
		t.Errorf("deep status = %v, want none", got)
	}
	if got := r.Job(JobCommit).Status; got != JobAnalyzing {
		t.Errorf("commit status = %v, want analyzing", got)
	}
	if !r.AnyActive() {
		t.Error("AnyActive() = false, want true")
	}

	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal map: %v", err)
	}
	if back["deep_analysis_status"] != nil {
		t.Errorf("deep_analysis_status = %v, want null", back["deep_analysis_status"])
	}
}

func TestJobStatusUnmarshalUnknown(t *testing.T) {
	var s JobStatus
	if err := json.Unmarshal([]byte(`"exploded"`), &s); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestDecodeJobRecord(t *testing.T) {
	raw := []byte(`{"commit_analysis_status":"failed","commit_analysis_error":"rate limited"}`)
	rec, err := DecodeJobRecord(JobCommit, raw)
	if err != nil {
		t.Fatalf("DecodeJobRecord: %v", err)
	}
	if rec.Status != JobFailed {
		t.Errorf("Status = %v, want failed", rec.Status)
	}
	if rec.Error == nil || *rec.Error != "rate limited" {
		t.Errorf("Error = %v, want rate limited", rec.Error)
	}

	rec, err = DecodeJobRecord(JobDeep, []byte(`{"status":"pending"}`))
	if err != nil {
		t.Fatalf("DecodeJobRecord: %v", err)
	}
	if rec.Status != JobPending || rec.Kind != JobDeep {
		t.Errorf("rec = %+v, want pending deep", rec)
	}
}

func TestParseJobKind(t *testing.T) {
	for _, k := range JobKinds {
		got, err := ParseJobKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseJobKind(%q) = %v, %v", k.String(), got, err)
		}
		got, err = ParseJobKind(k.Segment())
		if err != nil || got != k {
			t.Errorf("ParseJobKind(%q) = %v, %v", k.Segment(), got, err)
		}
	}
	if _, err := ParseJobKind("weekly"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
