package research

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/TobiSchelling/deepresearch/internal/llm"
)

const synthesizerPrompt = `You are an expert research synthesizer integrating new findings into an evolving research draft.

Main Research Query: %s
Current Sub-Question Being Addressed: %s
Target Section: %s

## Current Draft State:
%s

## Available Citations:
%s

## New Search Results to Integrate:
%s

Your responsibilities:
- Extract key insights, facts, and statistics from the search results
- If the target section exists, enhance and expand it; otherwise write it fresh
- Place citation markers like [1] or [1][2] immediately after each factual claim
- Write clear, professional prose with specific data and examples
- Aim for at least 200 words of substantive coverage

Respond with ONLY this JSON:
{
    "section_title": "%s",
    "content": "The full section text with inline citation markers",
    "citations_used": ["[1]", "[2]"],
    "synthesis_notes": "One sentence on what was integrated"
}%s`

type synthesizerOutput struct {
	SectionTitle   string   `json:"section_title"`
	Content        string   `json:"content"`
	CitationsUsed  []string `json:"citations_used"`
	SynthesisNotes string   `json:"synthesis_notes"`
}

// TargetSection maps a sub-question to the draft section its findings belong
// in, by keyword first and priority as the tie-breaker.
func TargetSection(sq SubQuestion) string {
	q := strings.ToLower(sq.Question)

	containsAny := func(keywords ...string) bool {
		for _, kw := range keywords {
			if strings.Contains(q, kw) {
				return true
			}
		}
		return false
	}

	switch {
	case containsAny("what is", "definition", "background", "overview", "introduction"):
		return "Introduction & Background"
	case containsAny("how", "compare", "analysis", "evaluate", "key"):
		return "Key Findings & Analysis"
	case containsAny("challenge", "problem", "issue", "limitation"):
		return "Challenges & Considerations"
	case containsAny("trend", "future", "predict", "outlook"):
		return "Future Outlook & Trends"
	case containsAny("example", "case", "startup", "company", "player"):
		return "Key Players & Examples"
	}

	switch sq.Priority {
	case 1:
		return "Introduction & Background"
	case 2:
		return "Key Findings & Analysis"
	default:
		return "Discussion & Implications"
	}
}

// NewSection creates a version-1 draft section.
func NewSection(title, content string, citations []string) DraftSection {
	return DraftSection{
		ID:          newID("sec"),
		Title:       title,
		Content:     content,
		Citations:   citations,
		LastUpdated: timestamp(),
		Version:     1,
	}
}

// MergeSection appends new content to an existing section. Content is
// concatenated, never overwritten; citations are unioned preserving order.
func MergeSection(existing DraftSection, newContent string, additionalCitations []string) DraftSection {
	seen := make(map[string]bool, len(existing.Citations))
	citations := make([]string, 0, len(existing.Citations)+len(additionalCitations))
	for _, c := range existing.Citations {
		if !seen[c] {
			seen[c] = true
			citations = append(citations, c)
		}
	}
	for _, c := range additionalCitations {
		if !seen[c] {
			seen[c] = true
			citations = append(citations, c)
		}
	}

	return DraftSection{
		ID:          existing.ID,
		Title:       existing.Title,
		Content:     existing.Content + "\n\n" + newContent,
		Citations:   citations,
		LastUpdated: timestamp(),
		Version:     existing.Version + 1,
	}
}

// InitializeDraft creates an empty draft for the session.
func InitializeDraft(mainQuery string) *ResearchDraft {
	return &ResearchDraft{
		Title:   fmt.Sprintf("Research Report: %s", mainQuery),
		Version: 1,
	}
}

// UpdateDraft merges a section into the draft by title and bumps the draft
// version. A nil draft is initialized first.
func UpdateDraft(draft *ResearchDraft, section DraftSection, mainQuery string) *ResearchDraft {
	if draft == nil {
		draft = InitializeDraft(mainQuery)
	}

	merged := false
	for i, sec := range draft.Sections {
		if sec.Title == section.Title {
			draft.Sections[i] = MergeSection(sec, section.Content, section.Citations)
			merged = true
			break
		}
	}
	if !merged {
		draft.Sections = append(draft.Sections, section)
	}

	draft.Version++
	return draft
}

// formatDraft renders the draft for inclusion in a prompt.
func formatDraft(draft *ResearchDraft) string {
	if draft == nil {
		return "No draft exists yet. This will be the first content."
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("# %s\n", draft.Title))
	if draft.Abstract != "" {
		parts = append(parts, fmt.Sprintf("## Abstract\n%s\n", draft.Abstract))
	}
	for _, sec := range draft.Sections {
		parts = append(parts, fmt.Sprintf("## %s\n%s\n", sec.Title, sec.Content))
	}
	if draft.Conclusion != "" {
		parts = append(parts, fmt.Sprintf("## Conclusion\n%s\n", draft.Conclusion))
	}
	return strings.Join(parts, "\n")
}

// formatCitationList renders citations for inclusion in a prompt.
func formatCitationList(citations []Citation) string {
	if len(citations) == 0 {
		return "No citations available yet."
	}

	var parts []string
	for _, c := range citations {
		title := c.Title
		if title == "" {
			title = "No title"
		}
		parts = append(parts, fmt.Sprintf("%s - %s\n  URL: %s\n  Snippet: %s", c.ID, title, c.URL, truncate(c.Snippet, 200)))
	}
	return strings.Join(parts, "\n")
}

// synthesizePhase integrates the current search results into the draft and
// marks the active sub-question completed.
func (e *Engine) synthesizePhase(ctx context.Context, state *State) Update {
	if state.SearchResults == "" {
		log.Println("[synthesizer] no search results to synthesize")
		return Update{Phase: PhaseCritiquing}
	}

	plan := state.Plan
	sq := &plan.SubQuestions[state.SubQuestionIndex]
	targetSection := TargetSection(*sq)

	log.Printf("[synthesizer] integrating findings into: %s", targetSection)

	section := withRetry(ctx, "synthesizer", e.maxRetries,
		func(ctx context.Context, errFeedback string) (DraftSection, error) {
			feedback := ""
			if errFeedback != "" {
				feedback = "\n\nThe previous attempt failed: " + errFeedback + "\nFix the problem and respond again with valid JSON."
			}
			prompt := fmt.Sprintf(synthesizerPrompt,
				state.OriginalQuery, sq.Question, targetSection,
				formatDraft(state.Draft), formatCitationList(state.Citations),
				state.SearchResults, targetSection, feedback)

			response, err := e.llm.Generate(ctx, prompt, 4096)
			if err != nil {
				return DraftSection{}, err
			}

			var out synthesizerOutput
			if err := llm.DecodeJSONResponse(response, &out); err != nil {
				return DraftSection{}, err
			}
			if strings.TrimSpace(out.Content) == "" {
				return DraftSection{}, fmt.Errorf("empty section content")
			}

			title := out.SectionTitle
			if title == "" {
				title = targetSection
			}
			return NewSection(title, out.Content, out.CitationsUsed), nil
		},
		func() DraftSection {
			// Recent citation ids become the fallback section's citations.
			recent := state.Citations
			if len(recent) > 5 {
				recent = recent[len(recent)-5:]
			}
			ids := make([]string, 0, len(recent))
			for _, c := range recent {
				ids = append(ids, c.ID)
			}
			content := fmt.Sprintf("## Findings for: %s\n\n%s", sq.Question, truncateRaw(state.SearchResults, 2000))
			return NewSection(targetSection, content, ids)
		})

	draft := UpdateDraft(state.Draft, section, state.OriginalQuery)

	sq.Status = StatusCompleted
	sq.Findings = truncate(section.Content, 500)
	sq.Citations = section.Citations

	log.Printf("[synthesizer] draft now has %d sections (version %d)", len(draft.Sections), draft.Version)

	return Update{
		Plan:  plan,
		Draft: draft,
		Phase: PhaseCritiquing,
	}
}
