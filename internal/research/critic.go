package research

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/TobiSchelling/deepresearch/internal/llm"
)

const criticPrompt = `You are an expert research quality evaluator reviewing a deep research draft.

## Research Context:
- Original Query: %s
- Research Objective: %s
- Research Scope: %s

## Sub-Questions Status:
%s

## Current Draft:
%s

## Citations Used:
%s

## Iteration Info:
- Current Iteration: %d
- Maximum Iterations: %d
- Previous Critique Scores: %s

Score each dimension from 0 to 1:
- coverage_score: how well the draft addresses all sub-questions
- depth_score: how deep the analysis goes
- citation_density: how well claims are supported by citations
- coherence_score: how well the draft flows
- completeness_score: overall readiness for publication

Stop condition thresholds: coverage >= %.2f, depth >= %.2f, citations >= %.2f, completeness >= %.2f.

Recommend "finalize" when completeness and coverage meet their thresholds and no critical gaps remain.
Recommend "continue" when scores are below thresholds but specific improvements are achievable.
Recommend "stop" when max iterations are reached or returns are diminishing.

Respond with ONLY this JSON:
{
    "is_complete": true or false,
    "quality_metrics": {
        "coverage_score": 0.0,
        "depth_score": 0.0,
        "citation_density": 0.0,
        "coherence_score": 0.0,
        "completeness_score": 0.0,
        "gaps_identified": ["gap 1"],
        "recommendations": ["recommendation 1"]
    },
    "additional_questions": [],
    "suggested_improvements": [],
    "reasoning": "One paragraph justifying the scores",
    "next_action": "continue" | "finalize" | "stop"
}

Be strict but fair. The goal is quality research, not endless iteration.%s`

type criticOutput struct {
	CritiqueResult
	NextAction string `json:"next_action"`
}

// critiqueDraft scores the draft with the LLM; after retries the heuristic
// fallback produces the same-shaped result. Returns the critique and the
// recommended next action.
func (e *Engine) critiqueDraft(ctx context.Context, state *State, iteration int) (CritiqueResult, string) {
	plan := state.Plan
	cfg := e.stopConfig

	out := withRetry(ctx, "critic", e.maxRetries,
		func(ctx context.Context, errFeedback string) (criticOutput, error) {
			feedback := ""
			if errFeedback != "" {
				feedback = "\n\nThe previous attempt failed: " + errFeedback + "\nFix the problem and respond again with valid JSON."
			}
			prompt := fmt.Sprintf(criticPrompt,
				plan.MainQuery, plan.Objective, plan.Scope,
				formatSubQuestionStatus(plan.SubQuestions),
				formatDraftForCritic(state.Draft),
				formatCitationSummary(state.Citations),
				iteration, cfg.MaxIterations,
				formatPreviousScores(state.CritiqueHistory),
				cfg.MinCoverageScore, cfg.MinDepthScore, cfg.MinCitationDensity, cfg.MinCompletenessScore,
				feedback)

			response, err := e.llm.Generate(ctx, prompt, 2048)
			if err != nil {
				return criticOutput{}, err
			}

			var out criticOutput
			if err := llm.DecodeJSONResponse(response, &out); err != nil {
				return criticOutput{}, err
			}
			switch out.NextAction {
			case ActionContinue, ActionFinalize, ActionStop:
			default:
				return criticOutput{}, fmt.Errorf("invalid next_action %q", out.NextAction)
			}
			return out, nil
		},
		func() criticOutput {
			critique, action := FallbackCritique(state.Draft, plan, state.Citations, iteration, cfg)
			return criticOutput{CritiqueResult: critique, NextAction: action}
		})

	return out.CritiqueResult, out.NextAction
}

// FallbackCritique computes a heuristic critique from the session contents
// alone. It is a pure function of its inputs.
func FallbackCritique(draft *ResearchDraft, plan *ResearchPlan, citations []Citation, iteration int, cfg StopConditionConfig) (CritiqueResult, string) {
	totalSQ := len(plan.SubQuestions)
	coverage := 0.0
	if totalSQ > 0 {
		coverage = float64(plan.CompletedSubQuestions()) / float64(totalSQ)
	}

	sectionCount := 0
	totalWords := 0
	if draft != nil {
		sectionCount = len(draft.Sections)
		for _, sec := range draft.Sections {
			totalWords += len(strings.Fields(sec.Content))
		}
	}

	depth := min(1.0, float64(totalWords)/2000)
	citationDensity := 0.0
	if sectionCount > 0 {
		citationDensity = min(1.0, float64(len(citations))/float64(sectionCount*3))
	}
	coherence := 0.4
	if sectionCount >= 3 {
		coherence = 0.7
	}
	completeness := (coverage + depth + citationDensity + coherence) / 4

	var gaps []string
	for _, sq := range plan.SubQuestions {
		if sq.Status != StatusCompleted {
			gaps = append(gaps, sq.Question)
		}
	}
	var improvements []string
	for _, sq := range plan.SubQuestions {
		if sq.Status == StatusPending && len(improvements) < 3 {
			improvements = append(improvements, "Address: "+sq.Question)
		}
	}

	metrics := QualityMetrics{
		CoverageScore:     coverage,
		DepthScore:        depth,
		CitationDensity:   citationDensity,
		CoherenceScore:    coherence,
		CompletenessScore: completeness,
		GapsIdentified:    gaps,
		Recommendations:   []string{"Continue researching remaining sub-questions"},
	}

	var action, reason string
	var isComplete bool
	switch {
	case iteration >= cfg.MaxIterations:
		action, isComplete, reason = ActionStop, true, "Maximum iterations reached"
	case completeness >= cfg.MinCompletenessScore:
		action, isComplete, reason = ActionFinalize, true, "Quality thresholds met"
	default:
		action, isComplete = ActionContinue, false
		reason = fmt.Sprintf("Completeness %.2f below threshold %.2f", completeness, cfg.MinCompletenessScore)
	}

	return CritiqueResult{
		IsComplete:            isComplete,
		QualityMetrics:        metrics,
		SuggestedImprovements: improvements,
		Reasoning:             reason,
	}, action
}

// ShouldStop decides whether the research loop should terminate. Pure
// function; first matching rule wins.
func ShouldStop(critique CritiqueResult, iteration int, cfg StopConditionConfig, history []CritiqueResult) (bool, string) {
	if iteration >= cfg.MaxIterations {
		return true, "Maximum iterations reached"
	}

	m := critique.QualityMetrics
	if m.CoverageScore >= cfg.MinCoverageScore &&
		m.DepthScore >= cfg.MinDepthScore &&
		m.CompletenessScore >= cfg.MinCompletenessScore {
		return true, "Quality thresholds met"
	}

	if cfg.MaxConsecutiveNoImprovement > 0 && len(history) >= cfg.MaxConsecutiveNoImprovement {
		recent := history[len(history)-cfg.MaxConsecutiveNoImprovement:]
		stagnant := true
		for i := 1; i < len(recent); i++ {
			if calculateImprovement(recent[i].QualityMetrics, recent[i-1].QualityMetrics) > 0.01 {
				stagnant = false
				break
			}
		}
		if stagnant {
			return true, "No improvement in recent iterations"
		}
	}

	return false, ""
}

// calculateImprovement is the delta between two critiques' average scores.
func calculateImprovement(current, previous QualityMetrics) float64 {
	return current.Average() - previous.Average()
}

// critiquePhase scores the draft, advances the iteration counter, and routes
// to researching or finalizing. The ShouldStop evaluator is authoritative:
// the loop finalizes when either the critic recommends it or the evaluator
// fires.
func (e *Engine) critiquePhase(ctx context.Context, state *State) Update {
	iteration := state.Iteration + 1
	log.Printf("[critic] evaluating draft, iteration %d/%d", iteration, e.stopConfig.MaxIterations)

	critique, action := e.critiqueDraft(ctx, state, iteration)

	m := critique.QualityMetrics
	log.Printf("[critic] coverage=%.2f depth=%.2f citations=%.2f coherence=%.2f completeness=%.2f",
		m.CoverageScore, m.DepthScore, m.CitationDensity, m.CoherenceScore, m.CompletenessScore)
	log.Printf("[critic] recommended action: %s", action)

	stop, stopReason := ShouldStop(critique, iteration, e.stopConfig, append(state.CritiqueHistory, critique))

	update := Update{
		LatestCritique:  &critique,
		CritiqueHistory: []CritiqueResult{critique},
		Iteration:       ptr(iteration),
	}

	if action != ActionContinue || stop {
		reason := critique.Reasoning
		if stop {
			reason = stopReason
		}
		update.Phase = PhaseFinalizing
		update.IsComplete = ptr(true)
		update.CompletionReason = ptr(reason)
	} else {
		update.Phase = PhaseResearching
		update.IsComplete = ptr(false)
	}
	return update
}

func formatSubQuestionStatus(subQuestions []SubQuestion) string {
	var lines []string
	for _, sq := range subQuestions {
		line := fmt.Sprintf("[%d] %s (status: %s, citations: %d)", sq.Priority, sq.Question, sq.Status, len(sq.Citations))
		if sq.Findings != "" {
			line += " | Findings: " + truncate(sq.Findings, 100)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatDraftForCritic(draft *ResearchDraft) string {
	if draft == nil {
		return "No draft exists yet."
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("# %s (Version %d)\n", draft.Title, draft.Version))
	if draft.Abstract != "" {
		parts = append(parts, fmt.Sprintf("## Abstract\n%s\n", draft.Abstract))
	}

	totalWords := 0
	totalCitations := 0
	for _, sec := range draft.Sections {
		words := len(strings.Fields(sec.Content))
		totalWords += words
		totalCitations += len(sec.Citations)
		parts = append(parts, fmt.Sprintf("## %s (v%d, %d words, %d citations)\n%s\n",
			sec.Title, sec.Version, words, len(sec.Citations), sec.Content))
	}
	if draft.Conclusion != "" {
		parts = append(parts, fmt.Sprintf("## Conclusion\n%s\n", draft.Conclusion))
	}
	parts = append(parts, fmt.Sprintf("\n---\nTotal: %d sections, %d words, %d citations",
		len(draft.Sections), totalWords, totalCitations))

	return strings.Join(parts, "\n")
}

func formatCitationSummary(citations []Citation) string {
	if len(citations) == 0 {
		return "No citations collected yet."
	}

	byQuestion := make(map[string]int)
	var order []string
	for _, c := range citations {
		if _, ok := byQuestion[c.AccessedFor]; !ok {
			order = append(order, c.AccessedFor)
		}
		byQuestion[c.AccessedFor]++
	}

	lines := []string{fmt.Sprintf("Total Citations: %d", len(citations))}
	for _, sqID := range order {
		lines = append(lines, fmt.Sprintf("  - %s: %d citations", sqID, byQuestion[sqID]))
	}
	return strings.Join(lines, "\n")
}

func formatPreviousScores(history []CritiqueResult) string {
	if len(history) == 0 {
		return "No previous critiques."
	}

	recent := history
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	var lines []string
	for i, c := range recent {
		m := c.QualityMetrics
		lines = append(lines, fmt.Sprintf("Iteration %d: Coverage=%.2f, Depth=%.2f, Completeness=%.2f",
			i+1, m.CoverageScore, m.DepthScore, m.CompletenessScore))
	}
	return strings.Join(lines, "\n")
}
