package research

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestApplyMergesDelta(t *testing.T) {
	state := NewState("s1", "query")
	plan := DefaultPlan("query")

	state.Apply(Update{
		Plan:             plan,
		Phase:            PhaseResearching,
		SubQuestionIndex: ptr(2),
		Citations:        []Citation{{ID: "[1]", URL: "u1"}},
	})

	if state.Plan != plan {
		t.Error("plan not applied")
	}
	if state.Phase != PhaseResearching {
		t.Errorf("phase = %q", state.Phase)
	}
	if state.SubQuestionIndex != 2 {
		t.Errorf("sub-question index = %d", state.SubQuestionIndex)
	}

	// Nil fields leave existing values untouched; slices append.
	state.Apply(Update{Citations: []Citation{{ID: "[2]", URL: "u2"}}})

	if state.Phase != PhaseResearching || state.SubQuestionIndex != 2 {
		t.Error("empty update must not reset prior values")
	}
	if len(state.Citations) != 2 {
		t.Errorf("citations = %d, want 2 (append-only)", len(state.Citations))
	}
}

func TestApplyEmptyPhaseKeepsCurrent(t *testing.T) {
	state := NewState("s1", "query")
	state.Phase = PhaseCritiquing
	state.Apply(Update{Iteration: ptr(3)})
	if state.Phase != PhaseCritiquing {
		t.Errorf("phase = %q, want critiquing", state.Phase)
	}
	if state.Iteration != 3 {
		t.Errorf("iteration = %d, want 3", state.Iteration)
	}
}

func TestStateRoundTripsThroughJSON(t *testing.T) {
	state := NewState("s1", "quantum computing")
	state.Plan = DefaultPlan("quantum computing")
	state.Draft = UpdateDraft(nil, NewSection("Introduction", "Qubits [1].", []string{"[1]"}), "quantum computing")
	state.Citations = []Citation{{ID: "[1]", URL: "u1", Title: "T", Snippet: "s", AccessedFor: "sq_x"}}
	state.Phase = PhaseCritiquing
	state.Iteration = 2
	critique, _ := FallbackCritique(state.Draft, state.Plan, state.Citations, 2, DefaultStopConfig())
	state.CritiqueHistory = []CritiqueResult{critique}
	state.LatestCritique = &critique
	state.SearchResults = "### Search Query: \"q\"\n**Source 1:** T"

	blob, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var restored State
	if err := json.Unmarshal(blob, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !reflect.DeepEqual(state, &restored) {
		t.Errorf("state did not round-trip:\nbefore: %+v\nafter:  %+v", state, &restored)
	}
}

func TestNewStateGeneratesID(t *testing.T) {
	state := NewState("", "  query with spaces  ")
	if state.ID == "" {
		t.Error("expected generated session id")
	}
	if state.OriginalQuery != "query with spaces" {
		t.Errorf("query not trimmed: %q", state.OriginalQuery)
	}
	if state.Phase != PhasePlanning {
		t.Errorf("initial phase = %q, want planning", state.Phase)
	}

	keep := NewState("my-session", "q")
	if keep.ID != "my-session" {
		t.Errorf("explicit id not kept: %q", keep.ID)
	}
}

func TestCompletedSubQuestions(t *testing.T) {
	plan := DefaultPlan("x")
	plan.SubQuestions[0].Status = StatusCompleted
	plan.SubQuestions[3].Status = StatusCompleted
	if got := plan.CompletedSubQuestions(); got != 2 {
		t.Errorf("completed = %d, want 2", got)
	}
}
