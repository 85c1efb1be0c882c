package job

import (
	"testing"

	"github.com/speechkit/transcribe-api/internal/enhance"
	"github.com/speechkit/transcribe-api/internal/segment"
)

func TestNew(t *testing.T) {
	j := New()

	if j.ID == "" {
		t.Error("expected generated ID")
	}
	if j.Status != StatusInQueue {
		t.Errorf("expected status %s, got %s", StatusInQueue, j.Status)
	}
	if j.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestJob_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"queue to running", StatusInQueue, StatusRunning, false},
		{"queue to cancelled", StatusInQueue, StatusCancelled, false},
		{"queue to timed out", StatusInQueue, StatusTimedOut, false},
		{"queue to completed skips running", StatusInQueue, StatusCompleted, true},
		{"running to completed", StatusRunning, StatusCompleted, false},
		{"running to failed", StatusRunning, StatusFailed, false},
		{"completed is terminal", StatusCompleted, StatusRunning, true},
		{"failed is terminal", StatusFailed, StatusRunning, true},
		{"cancelled is terminal", StatusCancelled, StatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := NewWithID("job-test")
			j.Status = tt.from

			err := j.TransitionTo(tt.to)
			if tt.wantErr && err != ErrInvalidTransition {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestJob_Lifecycle(t *testing.T) {
	j := New()

	if err := j.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if j.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}

	if err := j.Complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if j.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
	if !j.IsTerminal() {
		t.Error("expected completed job to be terminal")
	}
}

func TestJob_Fail(t *testing.T) {
	j := New()
	_ = j.Start()

	if err := j.Fail("engine crashed"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if j.Error != "engine crashed" {
		t.Errorf("expected error message, got %q", j.Error)
	}
	if j.GetStatus() != StatusFailed {
		t.Errorf("expected status FAILED, got %s", j.GetStatus())
	}
}

func TestJob_CloneIsDeep(t *testing.T) {
	j := New()
	j.SetResult(Result{
		Segments: []segment.Segment{
			{Start: 0, End: 1, Text: "a", Words: []segment.Word{{Start: 0, End: 1, Text: "a"}}},
		},
		Language: "en",
		Enhancement: enhance.RunMetadata{
			Enabled: true,
			Stages:  []enhance.StageRun{{Stage: enhance.StageVad}},
		},
	})

	c := j.Clone()
	c.Result.Segments[0].Text = "mutated"
	c.Result.Segments[0].Words[0].Text = "mutated"
	c.Result.Enhancement.Stages[0].Degraded = true

	if j.Result.Segments[0].Text != "a" {
		t.Error("clone shares segment backing array")
	}
	if j.Result.Segments[0].Words[0].Text != "a" {
		t.Error("clone shares word backing array")
	}
	if j.Result.Enhancement.Stages[0].Degraded {
		t.Error("clone shares stage metadata backing array")
	}
}
