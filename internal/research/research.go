package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/TobiSchelling/deepresearch/internal/llm"
	"github.com/TobiSchelling/deepresearch/internal/search"
)

const researcherPrompt = `You are an expert research analyst generating search queries for one facet of a larger research effort.

Main Research Query: %s
Current Sub-Question: %s
Previous Findings (if any): %s

Create 2-4 specific, targeted search queries that will:
- Find authoritative sources
- Cover different aspects of the sub-question
- Use specific keywords, not vague terms
- Avoid redundancy with previous searches

Respond with ONLY this JSON:
{
    "search_queries": ["query 1", "query 2"],
    "strategy": "One sentence explaining why you chose these queries"
}%s`

type researcherOutput struct {
	SearchQueries []string `json:"search_queries"`
	Strategy      string   `json:"strategy"`
}

// researchPhase researches the first pending sub-question: generate search
// queries, run them, and turn the hits into citations. When every
// sub-question is done the phase routes straight to critiquing.
func (e *Engine) researchPhase(ctx context.Context, state *State) Update {
	plan := state.Plan

	idx := -1
	for i, sq := range plan.SubQuestions {
		if sq.Status == StatusPending || sq.Status == StatusInProgress {
			idx = i
			break
		}
	}
	if idx == -1 {
		log.Println("[researcher] no pending sub-questions")
		return Update{
			Phase:         PhaseCritiquing,
			SearchResults: ptr(""),
		}
	}

	sq := &plan.SubQuestions[idx]
	sq.Status = StatusInProgress
	log.Printf("[researcher] researching: %s", sq.Question)

	queries := e.generateQueries(ctx, state, sq)
	sq.SearchQueries = queries

	results, err := search.ExecuteQueries(ctx, e.search, queries)
	if err != nil {
		log.Printf("[researcher] all searches failed: %v", err)
	}

	content := FormatSearchResults(results)
	citations := BuildCitations(results, sq.ID, len(state.Citations))
	e.enrichCitations(ctx, citations)

	log.Printf("[researcher] found %d new sources", len(citations))

	return Update{
		Plan:             plan,
		SubQuestionIndex: ptr(idx),
		SearchResults:    ptr(content),
		Citations:        citations,
		Phase:            PhaseSynthesizing,
	}
}

// generateQueries asks the LLM for search queries; the raw sub-question text
// is the fallback query.
func (e *Engine) generateQueries(ctx context.Context, state *State, sq *SubQuestion) []string {
	previousFindings := "None yet"
	if state.Draft != nil {
		var parts []string
		for _, sec := range state.Draft.Sections {
			parts = append(parts, truncate(sec.Content, 500))
		}
		if len(parts) > 0 {
			previousFindings = strings.Join(parts, "\n")
		}
	}

	return withRetry(ctx, "researcher", e.maxRetries,
		func(ctx context.Context, errFeedback string) ([]string, error) {
			feedback := ""
			if errFeedback != "" {
				feedback = "\n\nThe previous attempt failed: " + errFeedback + "\nFix the problem and respond again with valid JSON."
			}
			prompt := fmt.Sprintf(researcherPrompt, state.OriginalQuery, sq.Question, previousFindings, feedback)

			response, err := e.llm.Generate(ctx, prompt, 512)
			if err != nil {
				return nil, err
			}

			var out researcherOutput
			if err := llm.DecodeJSONResponse(response, &out); err != nil {
				return nil, err
			}
			if len(out.SearchQueries) == 0 {
				return nil, fmt.Errorf("no search queries in response")
			}
			if len(out.SearchQueries) > 4 {
				out.SearchQueries = out.SearchQueries[:4]
			}
			return out.SearchQueries, nil
		},
		func() []string {
			return []string{sq.Question}
		})
}

// FormatSearchResults renders hits as the text block the synthesizer reads.
func FormatSearchResults(results []search.QueryResult) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	currentQuery := ""
	rank := 0
	for _, r := range results {
		if r.Query != currentQuery {
			currentQuery = r.Query
			rank = 0
			fmt.Fprintf(&b, "\n### Search Query: %q\n", r.Query)
		}
		rank++
		fmt.Fprintf(&b, "\n**Source %d:** %s\n- URL: %s\n- Content: %s\n", rank, r.Result.Title, r.Result.URL, r.Result.Content)
	}
	return b.String()
}

// BuildCitations turns raw hits into citations. Display ids continue the
// running total, so the third citation of a session is always "[3]".
func BuildCitations(results []search.QueryResult, subQuestionID string, existingCount int) []Citation {
	citations := make([]Citation, 0, len(results))
	for i, r := range results {
		citations = append(citations, Citation{
			ID:          fmt.Sprintf("[%d]", existingCount+i+1),
			URL:         r.Result.URL,
			Title:       r.Result.Title,
			Snippet:     truncateRaw(r.Result.Content, 500),
			AccessedFor: subQuestionID,
		})
	}
	return citations
}

// enrichCitations replaces thin snippets with readable page text when a
// fetcher is configured. Capped at two fetches per research pass.
func (e *Engine) enrichCitations(ctx context.Context, citations []Citation) {
	if e.fetcher == nil {
		return
	}

	fetched := 0
	for i := range citations {
		if fetched >= 2 {
			break
		}
		if len(citations[i].Snippet) >= 200 {
			continue
		}

		text, err := e.fetcher.Fetch(ctx, citations[i].URL)
		if err != nil {
			log.Printf("[researcher] fetch failed for %s: %v", citations[i].URL, err)
			continue
		}
		fetched++
		if len(text) > len(citations[i].Snippet) {
			citations[i].Snippet = truncateRaw(text, 500)
		}
	}
}

// truncateRaw cuts s to at most n bytes without splitting a UTF-8 rune.
func truncateRaw(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
