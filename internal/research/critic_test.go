package research

import (
	"math"
	"reflect"
	"testing"
)

func critiqueWithScores(avg float64) CritiqueResult {
	return CritiqueResult{
		QualityMetrics: QualityMetrics{
			CoverageScore:     avg,
			DepthScore:        avg,
			CitationDensity:   avg,
			CoherenceScore:    avg,
			CompletenessScore: avg,
		},
	}
}

func TestShouldStopMaxIterations(t *testing.T) {
	cfg := DefaultStopConfig()

	// Scores are irrelevant once the iteration ceiling is hit.
	for _, avg := range []float64{0.0, 0.5, 1.0} {
		stop, reason := ShouldStop(critiqueWithScores(avg), cfg.MaxIterations, cfg, nil)
		if !stop {
			t.Errorf("avg=%.1f: expected stop at max iterations", avg)
		}
		if reason != "Maximum iterations reached" {
			t.Errorf("avg=%.1f: reason = %q", avg, reason)
		}
	}
}

func TestShouldStopQualityThresholds(t *testing.T) {
	cfg := StopConditionConfig{
		MinCoverageScore:            0.7,
		MinDepthScore:               0.6,
		MinCompletenessScore:        0.7,
		MaxIterations:               5,
		MaxConsecutiveNoImprovement: 2,
	}

	critique := CritiqueResult{
		QualityMetrics: QualityMetrics{
			CoverageScore:     0.75,
			DepthScore:        0.65,
			CompletenessScore: 0.72,
		},
	}

	stop, reason := ShouldStop(critique, 2, cfg, nil)
	if !stop {
		t.Fatal("expected stop when coverage, depth, and completeness meet thresholds")
	}
	if reason != "Quality thresholds met" {
		t.Errorf("reason = %q", reason)
	}

	// One score below threshold keeps the loop going.
	critique.QualityMetrics.DepthScore = 0.55
	if stop, _ := ShouldStop(critique, 2, cfg, nil); stop {
		t.Error("expected continue when depth is below threshold")
	}
}

func TestShouldStopStagnation(t *testing.T) {
	cfg := DefaultStopConfig()

	history := []CritiqueResult{
		critiqueWithScores(0.50),
		critiqueWithScores(0.505), // delta 0.005 <= 0.01
	}

	stop, reason := ShouldStop(critiqueWithScores(0.505), 2, cfg, history)
	if !stop {
		t.Fatal("expected stop on stagnation")
	}
	if reason != "No improvement in recent iterations" {
		t.Errorf("reason = %q", reason)
	}

	// A clear improvement resets the decision.
	history[1] = critiqueWithScores(0.55)
	if stop, _ := ShouldStop(critiqueWithScores(0.55), 2, cfg, history); stop {
		t.Error("expected continue when scores are still improving")
	}
}

func TestShouldStopContinues(t *testing.T) {
	cfg := DefaultStopConfig()
	stop, reason := ShouldStop(critiqueWithScores(0.3), 1, cfg, []CritiqueResult{critiqueWithScores(0.3)})
	if stop {
		t.Fatal("expected continue on first low-scoring iteration")
	}
	if reason != "" {
		t.Errorf("expected empty reason, got %q", reason)
	}
}

func TestFallbackCritiqueArithmetic(t *testing.T) {
	plan := validTestPlan()
	plan.SubQuestions[0].Status = StatusCompleted
	plan.SubQuestions[1].Status = StatusCompleted

	// 500 words across 2 sections, 4 citations.
	content := ""
	for i := 0; i < 250; i++ {
		content += "word "
	}
	draft := &ResearchDraft{
		Title: "Test",
		Sections: []DraftSection{
			{Title: "A", Content: content},
			{Title: "B", Content: content},
		},
	}
	citations := []Citation{
		{ID: "[1]", URL: "u1"}, {ID: "[2]", URL: "u2"},
		{ID: "[3]", URL: "u3"}, {ID: "[4]", URL: "u4"},
	}

	critique, action := FallbackCritique(draft, plan, citations, 1, DefaultStopConfig())
	m := critique.QualityMetrics

	wantCoverage := 2.0 / 3.0
	wantDepth := 500.0 / 2000.0
	wantDensity := 4.0 / 6.0
	wantCoherence := 0.4 // fewer than 3 sections
	wantCompleteness := (wantCoverage + wantDepth + wantDensity + wantCoherence) / 4

	approx := func(got, want float64, name string) {
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
	approx(m.CoverageScore, wantCoverage, "coverage")
	approx(m.DepthScore, wantDepth, "depth")
	approx(m.CitationDensity, wantDensity, "citation density")
	approx(m.CoherenceScore, wantCoherence, "coherence")
	approx(m.CompletenessScore, wantCompleteness, "completeness")

	if action != ActionContinue {
		t.Errorf("action = %q, want continue", action)
	}
	if critique.IsComplete {
		t.Error("critique should not be complete")
	}
	if len(m.GapsIdentified) != 1 {
		t.Errorf("expected 1 gap (the pending sub-question), got %v", m.GapsIdentified)
	}
}

func TestFallbackCritiqueIdempotent(t *testing.T) {
	plan := validTestPlan()
	plan.SubQuestions[0].Status = StatusCompleted
	draft := &ResearchDraft{
		Title:    "Test",
		Sections: []DraftSection{{Title: "A", Content: "some findings here"}},
	}
	citations := []Citation{{ID: "[1]", URL: "u1"}}
	cfg := DefaultStopConfig()

	first, firstAction := FallbackCritique(draft, plan, citations, 1, cfg)
	second, secondAction := FallbackCritique(draft, plan, citations, 1, cfg)

	if !reflect.DeepEqual(first.QualityMetrics, second.QualityMetrics) ||
		firstAction != secondAction {
		t.Errorf("fallback critique is not deterministic:\nfirst:  %+v %s\nsecond: %+v %s",
			first.QualityMetrics, firstAction, second.QualityMetrics, secondAction)
	}
}

func TestFallbackCritiqueStopsAtMaxIterations(t *testing.T) {
	cfg := DefaultStopConfig()
	critique, action := FallbackCritique(nil, validTestPlan(), nil, cfg.MaxIterations, cfg)

	if action != ActionStop {
		t.Errorf("action = %q, want stop", action)
	}
	if !critique.IsComplete {
		t.Error("critique should be complete at max iterations")
	}
	if critique.Reasoning != "Maximum iterations reached" {
		t.Errorf("reasoning = %q", critique.Reasoning)
	}
}

func TestFallbackCritiqueFinalizesOnCompleteness(t *testing.T) {
	plan := validTestPlan()
	for i := range plan.SubQuestions {
		plan.SubQuestions[i].Status = StatusCompleted
	}

	// 3 sections (coherence 0.7), 2500 words (depth 1.0), 9 citations
	// (density 1.0) and full coverage push completeness over 0.7.
	content := ""
	for i := 0; i < 850; i++ {
		content += "word "
	}
	draft := &ResearchDraft{
		Title: "Test",
		Sections: []DraftSection{
			{Title: "A", Content: content},
			{Title: "B", Content: content},
			{Title: "C", Content: content},
		},
	}
	var citations []Citation
	for i := 0; i < 9; i++ {
		citations = append(citations, Citation{ID: "[x]", URL: "u"})
	}

	critique, action := FallbackCritique(draft, plan, citations, 1, DefaultStopConfig())
	if action != ActionFinalize {
		t.Errorf("action = %q, want finalize (completeness %.2f)", action, critique.QualityMetrics.CompletenessScore)
	}
	if critique.Reasoning != "Quality thresholds met" {
		t.Errorf("reasoning = %q", critique.Reasoning)
	}
}

func TestQualityMetricsAverage(t *testing.T) {
	m := QualityMetrics{
		CoverageScore:     0.5,
		DepthScore:        0.6,
		CitationDensity:   0.7,
		CoherenceScore:    0.8,
		CompletenessScore: 0.9,
	}
	if got := m.Average(); math.Abs(got-0.7) > 1e-9 {
		t.Errorf("Average() = %v, want 0.7", got)
	}
}
