package research

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/TobiSchelling/deepresearch/internal/llm"
)

const reportPrompt = `You are an expert technical writer transforming a research draft into a polished, publication-ready report.

## Research Context:
- Original Query: %s
- Research Objective: %s

## Current Draft to Polish:
%s

## All Available Citations:
%s

## Quality Metrics Achieved:
%s

Requirements for the final report:
- Open with a 150-200 word executive summary
- Restructure for logical flow, remove redundancy, keep a consistent professional tone
- Keep inline citations like [1], [2] next to every factual claim
- End with a References section listing every cited source with its URL
- Aim for at least 1500 words of main content, but favour quality over length

Respond with ONLY this JSON:
{
    "final_report": "The complete report in Markdown",
    "title": "The report title"
}%s`

type reportOutput struct {
	FinalReport string `json:"final_report"`
	Title       string `json:"title"`
}

// GenerateReport produces the final report text via the LLM, falling back to
// a deterministic concatenation of the draft.
func (e *Engine) GenerateReport(ctx context.Context, state *State) (string, bool) {
	plan := state.Plan

	var metrics QualityMetrics
	if state.LatestCritique != nil {
		metrics = state.LatestCritique.QualityMetrics
	} else {
		metrics = QualityMetrics{CoverageScore: 0.5, DepthScore: 0.5, CitationDensity: 0.5, CoherenceScore: 0.5, CompletenessScore: 0.5}
	}

	usedFallback := false
	report := withRetry(ctx, "report", e.maxRetries,
		func(ctx context.Context, errFeedback string) (string, error) {
			feedback := ""
			if errFeedback != "" {
				feedback = "\n\nThe previous attempt failed: " + errFeedback + "\nFix the problem and respond again with valid JSON."
			}
			prompt := fmt.Sprintf(reportPrompt,
				plan.MainQuery, plan.Objective,
				formatDraftForReport(state.Draft),
				formatCitationsForReport(state.Citations),
				formatQualitySummary(metrics),
				feedback)

			response, err := e.llm.Generate(ctx, prompt, 8192)
			if err != nil {
				return "", err
			}

			var out reportOutput
			if err := llm.DecodeJSONResponse(response, &out); err != nil {
				return "", err
			}
			if strings.TrimSpace(out.FinalReport) == "" {
				return "", fmt.Errorf("empty final report")
			}
			return out.FinalReport, nil
		},
		func() string {
			usedFallback = true
			return FallbackReport(state.Draft, plan, state.Citations)
		})

	return report, usedFallback
}

// FallbackReport concatenates the draft sections with a references list.
func FallbackReport(draft *ResearchDraft, plan *ResearchPlan, citations []Citation) string {
	var parts []string
	parts = append(parts,
		fmt.Sprintf("# Research Report: %s\n", plan.MainQuery),
		fmt.Sprintf("**Generated:** %s\n", timestamp()),
		"---\n",
		"## Executive Summary\n",
		plan.Objective+"\n",
		fmt.Sprintf("This report investigates %s through systematic research and analysis.\n", plan.MainQuery),
		"---\n")

	if draft != nil {
		for i, sec := range draft.Sections {
			parts = append(parts,
				fmt.Sprintf("## %d. %s\n", i+1, sec.Title),
				sec.Content+"\n",
				"---\n")
		}
		if draft.Conclusion != "" {
			parts = append(parts, "## Conclusion\n", draft.Conclusion+"\n", "---\n")
		}
	}

	parts = append(parts, ReferencesSection(citations))
	return strings.Join(parts, "\n")
}

// ReferencesSection formats the citation list, deduplicated by URL.
func ReferencesSection(citations []Citation) string {
	if len(citations) == 0 {
		return "## References\n\nNo references available."
	}

	seen := make(map[string]bool, len(citations))
	lines := []string{"## References\n"}
	for _, c := range citations {
		if seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		title := c.Title
		if title == "" {
			title = "Untitled"
		}
		lines = append(lines, fmt.Sprintf("%s %s. Retrieved from %s", c.ID, title, c.URL))
	}
	return strings.Join(lines, "\n\n")
}

// FormatMarkdown normalizes heading spacing so every heading sits on its own
// paragraph.
func FormatMarkdown(report string) string {
	report = strings.TrimSpace(report)

	var formatted []string
	for _, line := range strings.Split(report, "\n") {
		if strings.HasPrefix(line, "# ") || strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "### ") {
			formatted = append(formatted, "", line, "")
		} else {
			formatted = append(formatted, line)
		}
	}
	return strings.Join(formatted, "\n")
}

var citationRefPattern = regexp.MustCompile(`\[\d+\]`)

// ReportStatistics computes the metadata block for a finished report.
func ReportStatistics(report string, citations []Citation) ReportMetadata {
	words := strings.Fields(report)

	sectionCount := 0
	for _, line := range strings.Split(report, "\n") {
		if strings.HasPrefix(line, "## ") {
			sectionCount++
		}
	}

	refs := citationRefPattern.FindAllString(report, -1)
	unique := make(map[string]bool, len(refs))
	for _, r := range refs {
		unique[r] = true
	}

	return ReportMetadata{
		GeneratedAt:        timestamp(),
		WordCount:          len(words),
		CharacterCount:     len(report),
		SectionCount:       sectionCount,
		CitationReferences: len(refs),
		UniqueCitations:    len(unique),
		TotalCitations:     len(citations),
		ReadingTimeMinutes: max(1, len(words)/200),
	}
}

func formatDraftForReport(draft *ResearchDraft) string {
	if draft == nil {
		return "No draft content available."
	}

	var parts []string
	if draft.Abstract != "" {
		parts = append(parts, fmt.Sprintf("**Current Abstract:**\n%s\n", draft.Abstract))
	}
	for _, sec := range draft.Sections {
		parts = append(parts, fmt.Sprintf("**Section: %s** (v%d)\n%s\n", sec.Title, sec.Version, sec.Content))
	}
	if draft.Conclusion != "" {
		parts = append(parts, fmt.Sprintf("**Current Conclusion:**\n%s\n", draft.Conclusion))
	}
	return strings.Join(parts, "\n---\n")
}

func formatCitationsForReport(citations []Citation) string {
	if len(citations) == 0 {
		return "No citations available."
	}

	var lines []string
	for _, c := range citations {
		title := c.Title
		if title == "" {
			title = "No title"
		}
		lines = append(lines, fmt.Sprintf("%s %s\n   URL: %s\n   Excerpt: %s", c.ID, title, c.URL, truncate(c.Snippet, 150)))
	}
	return strings.Join(lines, "\n\n")
}

func formatQualitySummary(m QualityMetrics) string {
	return fmt.Sprintf(`- Coverage Score: %.2f/1.0
- Depth Score: %.2f/1.0
- Citation Density: %.2f/1.0
- Coherence Score: %.2f/1.0
- Overall Completeness: %.2f/1.0`,
		m.CoverageScore, m.DepthScore, m.CitationDensity, m.CoherenceScore, m.CompletenessScore)
}

// finalizePhase generates, formats, and records the final report.
func (e *Engine) finalizePhase(ctx context.Context, state *State) Update {
	log.Println("[report] generating final report")

	if state.Draft == nil {
		report := "Error: no draft available to finalize"
		meta := &ReportMetadata{GeneratedAt: timestamp(), CompletionReason: state.CompletionReason, Iterations: state.Iteration}
		return Update{
			FinalReport:    &report,
			ReportMetadata: meta,
			Phase:          PhaseComplete,
			IsComplete:     ptr(true),
		}
	}

	report, usedFallback := e.GenerateReport(ctx, state)
	report = FormatMarkdown(report)

	meta := ReportStatistics(report, state.Citations)
	meta.CompletionReason = state.CompletionReason
	meta.Iterations = state.Iteration
	meta.Fallback = usedFallback

	log.Printf("[report] %d words, %d sections, %d citation references",
		meta.WordCount, meta.SectionCount, meta.CitationReferences)

	return Update{
		FinalReport:    &report,
		ReportMetadata: &meta,
		Phase:          PhaseComplete,
		IsComplete:     ptr(true),
	}
}
