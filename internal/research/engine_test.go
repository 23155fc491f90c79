package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/TobiSchelling/deepresearch/internal/search"
)

// mockLLM replies to prompts by prefix so each agent can be scripted
// independently.
type mockLLM struct {
	responses map[string]string
	err       error
	calls     int
}

func (m *mockLLM) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	for prefix, response := range m.responses {
		if strings.HasPrefix(prompt, prefix) {
			return response, nil
		}
	}
	return "", fmt.Errorf("no scripted response for prompt: %s", prompt[:40])
}

func (m *mockLLM) IsConfigured() bool { return true }

type fixedSearch struct {
	results []search.Result
	err     error
}

func (f *fixedSearch) Search(ctx context.Context, query string) ([]search.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type memoryStore struct {
	saves  int
	lastID string
}

func (m *memoryStore) SaveState(ctx context.Context, state *State) error {
	m.saves++
	m.lastID = state.ID
	return nil
}

const scriptedPlanJSON = `{
	"objective": "Understand quantum computing fundamentals",
	"scope": "Hardware and near-term applications",
	"sub_questions": [
		{"question": "What is quantum computing?", "priority": 1},
		{"question": "How do quantum computers differ from classical ones?", "priority": 2},
		{"question": "What are the future prospects of quantum computing?", "priority": 3}
	],
	"methodology": "Iterative search and synthesis",
	"expected_sections": ["Introduction", "Key Findings", "Conclusion"]
}`

func scriptedEngine(t *testing.T) (*Engine, *memoryStore) {
	t.Helper()

	provider := &mockLLM{responses: map[string]string{
		"You are an expert research planner":           scriptedPlanJSON,
		"You are an expert research analyst":           `{"search_queries": ["quantum computing basics"], "strategy": "start broad"}`,
		"You are an expert research synthesizer":       `{"section_title": "Introduction", "content": "Quantum computers use qubits to represent information [1]. They exploit superposition [2].", "citations_used": ["[1]", "[2]"], "synthesis_notes": "integrated basics"}`,
		"You are an expert research quality evaluator": `{"is_complete": true, "quality_metrics": {"coverage_score": 0.8, "depth_score": 0.75, "citation_density": 0.8, "coherence_score": 0.8, "completeness_score": 0.8}, "reasoning": "Draft covers the fundamentals well", "next_action": "finalize"}`,
		"You are an expert technical writer":           `{"final_report": "# Quantum Computing\n## Executive Summary\nQubits enable new computation [1].\n## References\n[1] Primer", "title": "Quantum Computing"}`,
	}}

	searcher := &fixedSearch{results: []search.Result{
		{URL: "https://a.test/1", Title: "Qubit Primer", Content: "Qubits store quantum information."},
		{URL: "https://a.test/2", Title: "Superposition", Content: "Superposition enables parallelism."},
	}}

	store := &memoryStore{}
	engine := NewEngine(provider, searcher, DefaultStopConfig(), 2)
	engine.SetStore(store)
	return engine, store
}

func TestEngineSingleCycleCompletion(t *testing.T) {
	engine, store := scriptedEngine(t)
	state := NewState("", "quantum computing")

	final, err := engine.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if final.Phase != PhaseComplete {
		t.Errorf("phase = %q, want complete", final.Phase)
	}
	if !final.IsComplete {
		t.Error("session should be complete")
	}
	if final.Iteration != 1 {
		t.Errorf("iteration = %d, want 1", final.Iteration)
	}
	if final.CompletionReason != "Quality thresholds met" {
		t.Errorf("completion reason = %q", final.CompletionReason)
	}

	if final.Plan == nil || len(final.Plan.SubQuestions) != 3 {
		t.Fatal("expected scripted plan with 3 sub-questions")
	}
	if final.Plan.SubQuestions[0].Status != StatusCompleted {
		t.Errorf("first sub-question status = %q, want completed", final.Plan.SubQuestions[0].Status)
	}

	if len(final.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(final.Citations))
	}
	if final.Citations[0].ID != "[1]" || final.Citations[1].ID != "[2]" {
		t.Errorf("citation ids = %s, %s", final.Citations[0].ID, final.Citations[1].ID)
	}

	if len(final.CritiqueHistory) != 1 {
		t.Errorf("critique history length = %d, want 1", len(final.CritiqueHistory))
	}
	if !strings.Contains(final.FinalReport, "Executive Summary") {
		t.Error("final report missing executive summary")
	}
	if final.ReportMetadata == nil {
		t.Fatal("report metadata missing")
	}
	if final.ReportMetadata.Fallback {
		t.Error("scripted run should not use the fallback report")
	}
	if final.ReportMetadata.Iterations != 1 {
		t.Errorf("metadata iterations = %d, want 1", final.ReportMetadata.Iterations)
	}

	// planning, researching, synthesizing, critiquing, finalizing.
	if store.saves != 5 {
		t.Errorf("checkpoint saves = %d, want 5", store.saves)
	}
	if store.lastID != final.ID {
		t.Errorf("checkpoints keyed by %q, session is %q", store.lastID, final.ID)
	}
}

func TestEngineAllFallbacksCompletes(t *testing.T) {
	provider := &mockLLM{err: errors.New("model unavailable")}
	searcher := &fixedSearch{results: []search.Result{
		{URL: "https://b.test/1", Title: "Source A", Content: "short finding one"},
		{URL: "https://b.test/2", Title: "Source B", Content: "short finding two"},
	}}

	engine := NewEngine(provider, searcher, DefaultStopConfig(), 0)
	state := NewState("session-1", "edge computing")

	final, err := engine.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if final.Phase != PhaseComplete {
		t.Fatalf("phase = %q, want complete", final.Phase)
	}
	if final.CompletionReason != "Maximum iterations reached" {
		t.Errorf("completion reason = %q", final.CompletionReason)
	}
	if final.Iteration != DefaultStopConfig().MaxIterations {
		t.Errorf("iteration = %d, want %d", final.Iteration, DefaultStopConfig().MaxIterations)
	}

	// The default plan drives the session; every sub-question gets one pass.
	if final.Plan == nil || len(final.Plan.SubQuestions) != 5 {
		t.Fatal("expected default plan with 5 sub-questions")
	}
	for i, sq := range final.Plan.SubQuestions {
		if sq.Status != StatusCompleted {
			t.Errorf("sub-question %d status = %q, want completed", i, sq.Status)
		}
	}

	if final.Draft == nil || len(final.Draft.Sections) == 0 {
		t.Fatal("fallback synthesis should still build a draft")
	}
	if len(final.Citations) != 10 {
		t.Errorf("citations = %d, want 10 (2 per research pass)", len(final.Citations))
	}
	if final.ReportMetadata == nil || !final.ReportMetadata.Fallback {
		t.Error("report should be marked as fallback")
	}
	if !strings.Contains(final.FinalReport, "## References") {
		t.Error("fallback report missing references section")
	}
}

func TestEngineNilLLMRunsOnFallbacks(t *testing.T) {
	searcher := &fixedSearch{results: []search.Result{
		{URL: "https://c.test/1", Title: "Source", Content: "a finding"},
	}}

	engine := NewEngine(nil, searcher, DefaultStopConfig(), 0)
	state := NewState("", "serverless databases")

	final, err := engine.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if final.Phase != PhaseComplete {
		t.Fatalf("phase = %q, want complete", final.Phase)
	}
	if final.Plan == nil || len(final.Plan.SubQuestions) != 5 {
		t.Fatal("expected default plan with 5 sub-questions")
	}
	if final.FinalReport == "" {
		t.Error("expected a fallback report")
	}
	if final.ReportMetadata == nil || !final.ReportMetadata.Fallback {
		t.Error("report should be marked as fallback")
	}
}

func TestEngineResumesFromCheckpointedPhase(t *testing.T) {
	engine, _ := scriptedEngine(t)

	// A state checkpointed mid-session resumes at its recorded phase
	// instead of replanning.
	state := NewState("resume-1", "quantum computing")
	state.Phase = PhaseResearching
	state.Plan = DefaultPlan("quantum computing")

	final, err := engine.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final.Phase != PhaseComplete {
		t.Errorf("phase = %q, want complete", final.Phase)
	}
	// The default plan survives the resumed run untouched by the planner.
	if len(final.Plan.SubQuestions) != 5 {
		t.Errorf("resumed plan has %d sub-questions, want the original 5", len(final.Plan.SubQuestions))
	}
}

func TestEngineHonorsContextCancellation(t *testing.T) {
	engine, _ := scriptedEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := NewState("", "quantum computing")
	if _, err := engine.Run(ctx, state); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEngineUnknownPhase(t *testing.T) {
	engine, _ := scriptedEngine(t)
	state := NewState("", "quantum computing")
	state.Phase = Phase("bogus")

	if _, err := engine.Run(context.Background(), state); err == nil {
		t.Error("expected error for unknown phase")
	}
}
