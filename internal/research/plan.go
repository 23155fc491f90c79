package research

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/TobiSchelling/deepresearch/internal/llm"
)

const plannerPrompt = `You are an expert research planner creating a strategy for a deep research session.

Analyze the research query and break it into a concrete, executable plan.

Research Query: %s

Guidelines for sub-questions:
- Create 4-7 specific, answerable sub-questions that together cover the query
- Start with foundational questions (definitions, context) at priority 1
- Move to analytical questions (comparisons, evaluations) at priority 2
- End with forward-looking questions (trends, predictions) at priority 3
- No two sub-questions may ask the same thing

Respond with ONLY this JSON:
{
    "objective": "One sentence stating the research goal",
    "scope": "What is in and out of scope",
    "sub_questions": [
        {"question": "...", "priority": 1}
    ],
    "methodology": "How the research will be conducted",
    "expected_sections": ["Section title 1", "Section title 2", "Section title 3"]
}%s`

// plannerOutput is the JSON shape the planner LLM must produce.
type plannerOutput struct {
	Objective    string `json:"objective"`
	Scope        string `json:"scope"`
	SubQuestions []struct {
		Question string `json:"question"`
		Priority int    `json:"priority"`
	} `json:"sub_questions"`
	Methodology      string   `json:"methodology"`
	ExpectedSections []string `json:"expected_sections"`
}

// NewSubQuestion creates a pending sub-question with a fresh id.
func NewSubQuestion(question string, priority int) SubQuestion {
	return SubQuestion{
		ID:       newID("sq"),
		Question: question,
		Priority: priority,
		Status:   StatusPending,
	}
}

// DefaultPlan is the deterministic plan used when the planner LLM fails.
func DefaultPlan(query string) *ResearchPlan {
	return &ResearchPlan{
		MainQuery: query,
		Objective: fmt.Sprintf("Conduct comprehensive research on: %s", query),
		Scope:     "General exploration of the topic with focus on key aspects",
		SubQuestions: []SubQuestion{
			NewSubQuestion(fmt.Sprintf("What is the definition and background of %s?", query), 1),
			NewSubQuestion(fmt.Sprintf("What are the key components or aspects of %s?", query), 1),
			NewSubQuestion(fmt.Sprintf("What are the current trends and developments in %s?", query), 2),
			NewSubQuestion(fmt.Sprintf("What are the challenges and considerations in %s?", query), 2),
			NewSubQuestion(fmt.Sprintf("What are the future prospects and predictions for %s?", query), 3),
		},
		Methodology: "Iterative search and synthesis approach with quality assessment",
		ExpectedSections: []string{
			"Executive Summary",
			"Introduction & Background",
			"Key Findings",
			"Analysis & Discussion",
			"Conclusions & Recommendations",
		},
	}
}

// ValidatePlan checks a plan for structural problems. It returns true and an
// empty list when the plan is usable, otherwise false and one issue per
// violation.
func ValidatePlan(plan *ResearchPlan) (bool, []string) {
	var issues []string

	if strings.TrimSpace(plan.MainQuery) == "" {
		issues = append(issues, "missing main query")
	}

	if len(plan.SubQuestions) < 3 {
		issues = append(issues, "need at least 3 sub-questions")
	}
	if len(plan.SubQuestions) > 10 {
		issues = append(issues, "too many sub-questions (max 10)")
	}

	if len(plan.ExpectedSections) < 3 {
		issues = append(issues, "need at least 3 expected sections")
	}

	seen := make(map[string]bool, len(plan.SubQuestions))
	for _, sq := range plan.SubQuestions {
		key := strings.ToLower(strings.TrimSpace(sq.Question))
		if seen[key] {
			issues = append(issues, "duplicate sub-questions detected")
			break
		}
		seen[key] = true
	}

	return len(issues) == 0, issues
}

// planPhase asks the LLM for a research plan. A plan that fails validation is
// treated the same as a failed call; after retries the default plan is used.
func (e *Engine) planPhase(ctx context.Context, state *State) Update {
	log.Printf("[planner] creating research plan for: %s", truncate(state.OriginalQuery, 100))

	plan := withRetry(ctx, "planner", e.maxRetries,
		func(ctx context.Context, errFeedback string) (*ResearchPlan, error) {
			feedback := ""
			if errFeedback != "" {
				feedback = "\n\nThe previous attempt failed: " + errFeedback + "\nFix the problem and respond again with valid JSON."
			}
			prompt := fmt.Sprintf(plannerPrompt, state.OriginalQuery, feedback)

			response, err := e.llm.Generate(ctx, prompt, 2048)
			if err != nil {
				return nil, err
			}

			var out plannerOutput
			if err := llm.DecodeJSONResponse(response, &out); err != nil {
				return nil, err
			}

			plan := &ResearchPlan{
				MainQuery:        state.OriginalQuery,
				Objective:        out.Objective,
				Scope:            out.Scope,
				Methodology:      out.Methodology,
				ExpectedSections: out.ExpectedSections,
			}
			for _, sq := range out.SubQuestions {
				priority := sq.Priority
				if priority < 1 || priority > 3 {
					priority = 2
				}
				plan.SubQuestions = append(plan.SubQuestions, NewSubQuestion(sq.Question, priority))
			}

			if ok, issues := ValidatePlan(plan); !ok {
				return nil, fmt.Errorf("plan validation failed: %s", strings.Join(issues, "; "))
			}
			return plan, nil
		},
		func() *ResearchPlan {
			log.Println("[planner] using default plan")
			return DefaultPlan(state.OriginalQuery)
		})

	log.Printf("[planner] plan has %d sub-questions, %d expected sections",
		len(plan.SubQuestions), len(plan.ExpectedSections))
	for _, sq := range plan.SubQuestions {
		log.Printf("  [%d] %s", sq.Priority, sq.Question)
	}

	return Update{
		Plan:             plan,
		Phase:            PhaseResearching,
		SubQuestionIndex: ptr(0),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return truncateRaw(s, n) + "..."
}
