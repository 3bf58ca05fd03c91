package domain

import (
	"errors"
	"testing"
)

// --- State Tests ---

func TestState_Percentage(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  int
	}{
		{"half", Downloading(50, 100), 50},
		{"floor", Downloading(2, 3), 66},
		{"complete", Downloading(100, 100), 100},
		{"zero total", Downloading(50, 0), 0},
		{"unknown total", Downloading(50, -1), 0},
		{"not downloading", NewState(StateCompleted), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Percentage(); got != tt.want {
				t.Errorf("Percentage() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	got := Downloading(50, 100).String()
	want := "downloading: 50% bytes_written=50, total_bytes=100"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if s := NewState(StateCancelled).String(); s != "cancelled" {
		t.Errorf("expected cancelled, got %q", s)
	}
}

func TestState_Predicates(t *testing.T) {
	if !NewState(StateEnqueued).CanCancel() || !Downloading(1, 2).CanCancel() {
		t.Error("enqueued and downloading should be cancellable")
	}
	if NewState(StateCompleted).CanCancel() {
		t.Error("completed should not be cancellable")
	}
	if NewState(StateCancelled).CanDownload() {
		t.Error("cancelled task should not be downloadable")
	}
	if !NewState(StateFailed).CanDownload() {
		t.Error("failed task should be downloadable again")
	}
	if !NewState(StateFailed).IsTerminal() || NewState(StateEnqueued).IsTerminal() {
		t.Error("unexpected IsTerminal result")
	}
}

func TestParseStateKind(t *testing.T) {
	if ParseStateKind("DOWNLOADING") != StateDownloading {
		t.Error("expected DOWNLOADING")
	}
	if ParseStateKind("garbage") != StateUndefined {
		t.Error("unknown kinds should map to UNDEFINED")
	}
}

// --- State Machine Tests ---

func TestCanTransition_FromCancelled(t *testing.T) {
	cancelled := NewState(StateCancelled)

	allowed := []State{NewState(StateUndefined), NewState(StateEnqueued)}
	for _, target := range allowed {
		if !CanTransition(cancelled, target) {
			t.Errorf("cancelled → %s should be allowed", target.Kind)
		}
	}

	rejected := []State{
		Downloading(0, 100),
		NewState(StateCompleted),
		NewState(StateFailed),
		NewState(StateCancelled),
	}
	for _, target := range rejected {
		if CanTransition(cancelled, target) {
			t.Errorf("cancelled → %s should be rejected", target.Kind)
		}
	}
}

func TestCanTransition_FromOtherStates(t *testing.T) {
	sources := []State{
		NewState(StateUndefined),
		NewState(StateEnqueued),
		Downloading(10, 100),
		NewState(StateCompleted),
		NewState(StateFailed),
	}
	targets := []State{
		NewState(StateUndefined),
		NewState(StateEnqueued),
		Downloading(20, 100),
		NewState(StateCompleted),
		NewState(StateFailed),
		NewState(StateCancelled),
	}

	for _, from := range sources {
		for _, to := range targets {
			if !CanTransition(from, to) {
				t.Errorf("%s → %s should be allowed", from.Kind, to.Kind)
			}
		}
	}
}

// --- Request / Command / Result Tests ---

func TestRequest_Validate(t *testing.T) {
	valid := Request{ID: "a", URL: "https://example.com/file.bin", Destination: "/tmp/file.bin"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	invalid := []Request{
		{URL: "https://example.com/x", Destination: "/tmp/x"},
		{ID: "a", URL: "not a url", Destination: "/tmp/x"},
		{ID: "a", URL: "https://example.com/x"},
	}
	for _, req := range invalid {
		if err := req.Validate(); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}
}

func TestCommand_Cancels(t *testing.T) {
	if !CancelCommand("a").Cancels("a") {
		t.Error("cancel(a) should cancel a")
	}
	if CancelCommand("a").Cancels("b") {
		t.Error("cancel(a) should not cancel b")
	}
	if !CancelAllCommand().Cancels("anything") {
		t.Error("cancel all should cancel every task")
	}
	if EnqueueCommand(Request{ID: "a"}).Cancels("a") {
		t.Error("enqueue should not cancel")
	}
}

func TestTask_SameAs_IgnoresUpdatedAt(t *testing.T) {
	a := Task{ID: "a", URL: "u", Destination: "d", State: NewState(StateEnqueued)}
	b := a
	b.UpdatedAt = b.UpdatedAt.Add(1)

	if !a.SameAs(b) {
		t.Error("tasks differing only by UpdatedAt should be the same")
	}

	b.State = Downloading(1, 2)
	if a.SameAs(b) {
		t.Error("tasks with different state should differ")
	}
}

func TestFailed_NilError(t *testing.T) {
	r := Failed(Request{ID: "a"}, nil)
	if r.Err == nil || r.ErrMessage() == "" {
		t.Error("failure result should always carry an error")
	}
}
