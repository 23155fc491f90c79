package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/deepresearch/internal/config"
	"github.com/TobiSchelling/deepresearch/internal/fetch"
	"github.com/TobiSchelling/deepresearch/internal/llm"
	"github.com/TobiSchelling/deepresearch/internal/research"
	"github.com/TobiSchelling/deepresearch/internal/search"
	"github.com/TobiSchelling/deepresearch/internal/server"
	"github.com/TobiSchelling/deepresearch/internal/session"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "deepresearch",
	Short:   "Iterative deep research reports",
	Long:    "deepresearch plans, searches, synthesizes, and critiques its way to a cited research report on any question.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(researchCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("deepresearch", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/deepresearch/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure search, API keys, and LLM provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", store.Path())
		fmt.Println("Sessions:")
		fmt.Printf("  Total: %d\n", stats.Sessions)
		fmt.Printf("  Completed: %d\n", stats.Completed)
		fmt.Printf("  Reports: %d\n", stats.Reports)
		return nil
	},
}

// --- research command ---

var (
	sessionID     string
	outputPath    string
	maxIterations int
)

var researchCmd = &cobra.Command{
	Use:   "research [query]",
	Short: "Run a research session on a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		state := research.NewState(sessionID, args[0])
		if state.OriginalQuery == "" {
			return fmt.Errorf("query must not be empty")
		}

		fmt.Printf("Researching: %s\n", state.OriginalQuery)
		fmt.Printf("Session: %s\n\n", state.ID)

		return runSession(cmd.Context(), store, state)
	},
}

func init() {
	researchCmd.Flags().StringVar(&sessionID, "session-id", "", "Use a fixed session ID instead of a generated one")
	researchCmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Override max research iterations")
	researchCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the final report markdown to a file")
	resumeCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the final report markdown to a file")
}

// --- resume command ---

var resumeCmd = &cobra.Command{
	Use:   "resume [session-id]",
	Short: "Resume a checkpointed research session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		state, err := store.LoadState(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if state == nil {
			return fmt.Errorf("session %s not found", args[0])
		}
		if state.IsComplete {
			fmt.Printf("Session %s is already complete: %s\n", state.ID, state.CompletionReason)
			return nil
		}

		fmt.Printf("Resuming: %s\n", state.OriginalQuery)
		fmt.Printf("Session: %s (phase %s, iteration %d)\n\n", state.ID, state.Phase, state.Iteration)

		return runSession(cmd.Context(), store, state)
	},
}

// runSession drives the engine to completion and persists the result.
func runSession(ctx context.Context, store *session.Store, state *research.State) error {
	llmProvider := llm.CreateProvider(cfg.LLM.Provider, cfg.LLM.Model,
		cfg.LLM.OllamaURL, cfg.LLM.OpenAIModel, cfg.LLM.APIKeyEnv)
	if llmProvider == nil {
		fmt.Println("Warning: no LLM available, running with deterministic fallbacks only.")
	}

	feeds := make([]search.FeedConfig, 0, len(cfg.Search.Feeds))
	for _, f := range cfg.Search.Feeds {
		feeds = append(feeds, search.FeedConfig{URL: f.URL, Name: f.Name})
	}
	searchProvider := search.CreateProvider(cfg.Search.Provider, cfg.Search.TavilyKeyEnv,
		feeds, cfg.Search.MaxResults)

	stopConfig := cfg.StopConfig()
	if maxIterations > 0 {
		stopConfig.MaxIterations = maxIterations
	}

	engine := research.NewEngine(llmProvider, searchProvider, stopConfig, cfg.Research.MaxRetries)
	engine.SetStore(store)
	if cfg.Research.FetchContent {
		engine.SetFetcher(fetch.NewPageFetcher(15 * time.Second))
	}

	start := time.Now()
	final, err := engine.Run(ctx, state)
	if err != nil {
		return fmt.Errorf("research run: %w", err)
	}

	if final.FinalReport != "" {
		if err := store.SaveReport(ctx, final); err != nil {
			return err
		}
	}

	fmt.Printf("\nDone in %s: %s\n", time.Since(start).Round(time.Second), final.CompletionReason)
	fmt.Printf("  Iterations: %d\n", final.Iteration)
	if final.Plan != nil {
		fmt.Printf("  Sub-questions completed: %d/%d\n",
			final.Plan.CompletedSubQuestions(), len(final.Plan.SubQuestions))
	}
	fmt.Printf("  Citations: %d\n", len(final.Citations))
	if final.ReportMetadata != nil {
		fmt.Printf("  Report: %d words, %d sections, ~%d min read\n",
			final.ReportMetadata.WordCount, final.ReportMetadata.SectionCount,
			final.ReportMetadata.ReadingTimeMinutes)
	}

	if outputPath != "" && final.FinalReport != "" {
		if err := os.WriteFile(outputPath, []byte(final.FinalReport), 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Printf("  Saved to: %s\n", outputPath)
	}

	fmt.Println("\nRun 'deepresearch serve' to browse the report.")
	return nil
}

// --- sessions command ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List research sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		items, err := store.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No sessions yet. Start one with: deepresearch research \"your question\"")
			return nil
		}

		fmt.Println("Research Sessions:")
		fmt.Println()
		for _, s := range items {
			icon := " "
			if s.IsComplete {
				icon = "*"
			}
			fmt.Printf("  %s %s  [%s, iteration %d]\n", icon, s.ID, s.Phase, s.Iteration)
			query := s.Query
			if len(query) > 70 {
				query = query[:70] + "..."
			}
			fmt.Printf("      %s\n", query)
		}
		return nil
	},
}

// --- inspect command ---

var inspectCmd = &cobra.Command{
	Use:   "inspect [session-id]",
	Short: "Show the state of a research session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		state, err := store.LoadState(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if state == nil {
			return fmt.Errorf("session %s not found", args[0])
		}

		fmt.Printf("Session: %s\n", state.ID)
		fmt.Printf("Query: %s\n", state.OriginalQuery)
		fmt.Printf("Phase: %s (iteration %d)\n", state.Phase, state.Iteration)
		if state.IsComplete {
			fmt.Printf("Complete: %s\n", state.CompletionReason)
		}

		if state.Plan != nil {
			fmt.Println("\nSub-questions:")
			for _, sq := range state.Plan.SubQuestions {
				fmt.Printf("  [%-11s] %s\n", sq.Status, sq.Question)
			}
		}

		if state.LatestCritique != nil {
			m := state.LatestCritique.QualityMetrics
			fmt.Println("\nLatest critique:")
			fmt.Printf("  Coverage: %.2f  Depth: %.2f  Citations: %.2f  Coherence: %.2f  Completeness: %.2f\n",
				m.CoverageScore, m.DepthScore, m.CitationDensity, m.CoherenceScore, m.CompletenessScore)
			if state.LatestCritique.Reasoning != "" {
				fmt.Printf("  Reasoning: %s\n", state.LatestCritique.Reasoning)
			}
		}

		fmt.Printf("\nCitations: %d\n", len(state.Citations))
		if state.Draft != nil {
			fmt.Printf("Draft: %d sections (version %d)\n", len(state.Draft.Sections), state.Draft.Version)
		}
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(store, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

func openStore() (*session.Store, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "deepresearch.db")
	return session.Open(dbPath)
}
