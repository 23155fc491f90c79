package research

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Phase is the current stage of a research session.
type Phase string

const (
	PhasePlanning     Phase = "planning"
	PhaseResearching  Phase = "researching"
	PhaseSynthesizing Phase = "synthesizing"
	PhaseCritiquing   Phase = "critiquing"
	PhaseFinalizing   Phase = "finalizing"
	PhaseComplete     Phase = "complete"
)

// Sub-question lifecycle statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusSkipped    = "skipped"
)

// SubQuestion is one investigable facet of the main research query.
type SubQuestion struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Priority      int      `json:"priority"` // 1=highest, 3=lowest
	Status        string   `json:"status"`
	Findings      string   `json:"findings,omitempty"`
	SearchQueries []string `json:"search_queries,omitempty"`
	Citations     []string `json:"citations,omitempty"`
}

// ResearchPlan is the decomposition of the main query into sub-questions
// plus the intended shape of the final report.
type ResearchPlan struct {
	MainQuery        string        `json:"main_query"`
	Objective        string        `json:"objective"`
	Scope            string        `json:"scope"`
	SubQuestions     []SubQuestion `json:"sub_questions"`
	Methodology      string        `json:"methodology"`
	ExpectedSections []string      `json:"expected_sections"`
}

// Citation ties a source back to the sub-question it supports.
// Citations are append-only; display IDs like "[3]" continue the running total.
type Citation struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Snippet     string `json:"snippet"`
	AccessedFor string `json:"accessed_for"`
}

// DraftSection is one section of the evolving draft. Repeat synthesis passes
// on the same title concatenate content and bump the version, never overwrite.
type DraftSection struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Citations   []string `json:"citations,omitempty"`
	LastUpdated string   `json:"last_updated"`
	Version     int      `json:"version"`
}

// ResearchDraft is the section-structured document built across iterations.
type ResearchDraft struct {
	Title      string         `json:"title"`
	Abstract   string         `json:"abstract,omitempty"`
	Sections   []DraftSection `json:"sections"`
	Conclusion string         `json:"conclusion,omitempty"`
	Version    int            `json:"version"`
}

// QualityMetrics holds the five [0,1] critique scores.
type QualityMetrics struct {
	CoverageScore     float64  `json:"coverage_score"`
	DepthScore        float64  `json:"depth_score"`
	CitationDensity   float64  `json:"citation_density"`
	CoherenceScore    float64  `json:"coherence_score"`
	CompletenessScore float64  `json:"completeness_score"`
	GapsIdentified    []string `json:"gaps_identified,omitempty"`
	Recommendations   []string `json:"recommendations,omitempty"`
}

// Average returns the mean of the five scores.
func (m QualityMetrics) Average() float64 {
	return (m.CoverageScore + m.DepthScore + m.CitationDensity +
		m.CoherenceScore + m.CompletenessScore) / 5
}

// CritiqueResult is one scored evaluation pass over the draft.
type CritiqueResult struct {
	IsComplete            bool           `json:"is_complete"`
	QualityMetrics        QualityMetrics `json:"quality_metrics"`
	AdditionalQuestions   []string       `json:"additional_questions,omitempty"`
	SuggestedImprovements []string       `json:"suggested_improvements,omitempty"`
	Reasoning             string         `json:"reasoning"`
}

// Recommended next actions produced by the critique step.
const (
	ActionContinue = "continue"
	ActionFinalize = "finalize"
	ActionStop     = "stop"
)

// StopConditionConfig holds the thresholds that end a research session.
type StopConditionConfig struct {
	MinCoverageScore            float64 `json:"min_coverage_score"`
	MinDepthScore               float64 `json:"min_depth_score"`
	MinCitationDensity          float64 `json:"min_citation_density"`
	MinCompletenessScore        float64 `json:"min_completeness_score"`
	MaxIterations               int     `json:"max_iterations"`
	MaxConsecutiveNoImprovement int     `json:"max_consecutive_no_improvement"`
	MinSubQuestionsCompleted    float64 `json:"min_sub_questions_completed"`
}

// DefaultStopConfig returns the standard stop-condition thresholds.
func DefaultStopConfig() StopConditionConfig {
	return StopConditionConfig{
		MinCoverageScore:            0.7,
		MinDepthScore:               0.6,
		MinCitationDensity:          0.5,
		MinCompletenessScore:        0.7,
		MaxIterations:               5,
		MaxConsecutiveNoImprovement: 2,
		MinSubQuestionsCompleted:    0.8,
	}
}

// ReportMetadata describes the final report.
type ReportMetadata struct {
	GeneratedAt          string `json:"generated_at"`
	WordCount            int    `json:"word_count"`
	CharacterCount       int    `json:"character_count,omitempty"`
	SectionCount         int    `json:"section_count"`
	CitationReferences   int    `json:"citation_references"`
	UniqueCitations      int    `json:"unique_citations"`
	TotalCitations       int    `json:"total_citations_available"`
	ReadingTimeMinutes   int    `json:"estimated_reading_time_minutes"`
	CompletionReason     string `json:"completion_reason,omitempty"`
	Iterations           int    `json:"iterations"`
	Fallback             bool   `json:"fallback,omitempty"`
}

// State is the full record of a research session. It is the unit of
// checkpointing and must round-trip through encoding/json.
type State struct {
	ID            string `json:"id"`
	OriginalQuery string `json:"original_query"`

	Plan      *ResearchPlan  `json:"research_plan,omitempty"`
	Draft     *ResearchDraft `json:"draft,omitempty"`
	Citations []Citation     `json:"citations,omitempty"`

	Phase            Phase `json:"phase"`
	SubQuestionIndex int   `json:"current_sub_question_index"`
	Iteration        int   `json:"iteration"`

	CritiqueHistory []CritiqueResult `json:"critique_history,omitempty"`
	LatestCritique  *CritiqueResult  `json:"latest_critique,omitempty"`

	// Formatted search results for the current iteration, consumed by the
	// synthesizing phase and replaced on the next research pass.
	SearchResults string `json:"current_search_results,omitempty"`

	IsComplete       bool   `json:"is_complete"`
	CompletionReason string `json:"completion_reason,omitempty"`

	FinalReport    string          `json:"final_report,omitempty"`
	ReportMetadata *ReportMetadata `json:"report_metadata,omitempty"`
}

// NewState creates the initial session state for a query.
func NewState(sessionID, query string) *State {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	return &State{
		ID:            sessionID,
		OriginalQuery: strings.TrimSpace(query),
		Phase:         PhasePlanning,
	}
}

// Update is a partial state delta returned by a phase function.
// Nil pointer fields leave the current value untouched; slice fields are
// appended, matching the append-only collections in State.
type Update struct {
	Plan             *ResearchPlan
	Draft            *ResearchDraft
	Citations        []Citation
	Phase            Phase
	SubQuestionIndex *int
	Iteration        *int
	CritiqueHistory  []CritiqueResult
	LatestCritique   *CritiqueResult
	SearchResults    *string
	IsComplete       *bool
	CompletionReason *string
	FinalReport      *string
	ReportMetadata   *ReportMetadata
}

// Apply merges a phase update into the state.
func (s *State) Apply(u Update) {
	if u.Plan != nil {
		s.Plan = u.Plan
	}
	if u.Draft != nil {
		s.Draft = u.Draft
	}
	s.Citations = append(s.Citations, u.Citations...)
	if u.Phase != "" {
		s.Phase = u.Phase
	}
	if u.SubQuestionIndex != nil {
		s.SubQuestionIndex = *u.SubQuestionIndex
	}
	if u.Iteration != nil {
		s.Iteration = *u.Iteration
	}
	s.CritiqueHistory = append(s.CritiqueHistory, u.CritiqueHistory...)
	if u.LatestCritique != nil {
		s.LatestCritique = u.LatestCritique
	}
	if u.SearchResults != nil {
		s.SearchResults = *u.SearchResults
	}
	if u.IsComplete != nil {
		s.IsComplete = *u.IsComplete
	}
	if u.CompletionReason != nil {
		s.CompletionReason = *u.CompletionReason
	}
	if u.FinalReport != nil {
		s.FinalReport = *u.FinalReport
	}
	if u.ReportMetadata != nil {
		s.ReportMetadata = u.ReportMetadata
	}
}

// CompletedSubQuestions counts sub-questions with status completed.
func (p *ResearchPlan) CompletedSubQuestions() int {
	n := 0
	for _, sq := range p.SubQuestions {
		if sq.Status == StatusCompleted {
			n++
		}
	}
	return n
}

// newID returns a short unique identifier with the given prefix,
// e.g. "sq_1a2b3c4d".
func newID(prefix string) string {
	id := uuid.New()
	hex := strings.ReplaceAll(id.String(), "-", "")
	return prefix + "_" + hex[:8]
}

func timestamp() string {
	return time.Now().Format(time.RFC3339)
}

func ptr[T any](v T) *T { return &v }
