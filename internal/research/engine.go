package research

import (
	"context"
	"fmt"
	"log"

	"github.com/TobiSchelling/deepresearch/internal/llm"
	"github.com/TobiSchelling/deepresearch/internal/search"
)

// Fetcher retrieves readable page text for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Store persists session snapshots so a crashed or paused session can resume
// from its last completed phase.
type Store interface {
	SaveState(ctx context.Context, state *State) error
}

// Engine drives a research session through its phases until completion.
// Collaborators are injected so tests can substitute doubles.
type Engine struct {
	llm        llm.Provider
	search     search.Provider
	fetcher    Fetcher
	store      Store
	stopConfig StopConditionConfig
	maxRetries int
}

// NewEngine creates a research engine. A nil LLM provider is replaced by a
// stand-in whose calls always fail, so every phase runs its deterministic
// fallback instead of dereferencing nil.
func NewEngine(llmProvider llm.Provider, searchProvider search.Provider, stopConfig StopConditionConfig, maxRetries int) *Engine {
	if llmProvider == nil {
		llmProvider = unavailableLLM{}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if stopConfig.MaxIterations <= 0 {
		stopConfig.MaxIterations = DefaultStopConfig().MaxIterations
	}
	return &Engine{
		llm:        llmProvider,
		search:     searchProvider,
		stopConfig: stopConfig,
		maxRetries: maxRetries,
	}
}

// SetFetcher enables citation enrichment from full page content.
func (e *Engine) SetFetcher(f Fetcher) { e.fetcher = f }

// SetStore enables checkpointing after every phase transition.
func (e *Engine) SetStore(s Store) { e.store = s }

// Run executes the research loop on the given state until the session is
// complete. It can be called with a fresh state or one loaded from a
// checkpoint; the loop resumes at whatever phase the state records. The hard
// step ceiling is a safety stop independent of the critique evaluator.
func (e *Engine) Run(ctx context.Context, state *State) (*State, error) {
	if state.Phase == "" {
		state.Phase = PhasePlanning
	}

	// Each iteration costs at most four phases; the constant covers
	// planning and finalizing.
	maxSteps := e.stopConfig.MaxIterations*4 + 8

	for step := 0; state.Phase != PhaseComplete; step++ {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		if step >= maxSteps {
			log.Printf("[engine] step ceiling reached at phase %s", state.Phase)
			state.IsComplete = true
			state.CompletionReason = "Maximum iterations reached"
			state.Phase = PhaseComplete
			break
		}

		update, err := e.step(ctx, state)
		if err != nil {
			return state, err
		}
		state.Apply(update)
		e.checkpoint(ctx, state)
	}

	return state, nil
}

// step executes the phase the state currently records and returns its delta.
func (e *Engine) step(ctx context.Context, state *State) (Update, error) {
	switch state.Phase {
	case PhasePlanning:
		return e.planPhase(ctx, state), nil
	case PhaseResearching:
		return e.researchPhase(ctx, state), nil
	case PhaseSynthesizing:
		return e.synthesizePhase(ctx, state), nil
	case PhaseCritiquing:
		return e.critiquePhase(ctx, state), nil
	case PhaseFinalizing:
		return e.finalizePhase(ctx, state), nil
	default:
		return Update{}, fmt.Errorf("unknown phase %q", state.Phase)
	}
}

// unavailableLLM stands in when no provider is configured.
type unavailableLLM struct{}

func (unavailableLLM) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return "", fmt.Errorf("no LLM provider configured")
}

func (unavailableLLM) IsConfigured() bool { return false }

// checkpoint saves the state after a phase transition. Snapshot failures are
// logged, not fatal; the in-memory session keeps running.
func (e *Engine) checkpoint(ctx context.Context, state *State) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveState(ctx, state); err != nil {
		log.Printf("[engine] checkpoint failed for session %s: %v", state.ID, err)
	}
}
