package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/deepresearch/internal/research"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	LLM      LLM      `yaml:"llm"`
	Search   Search   `yaml:"search"`
	Research Research `yaml:"research"`
	Output   Output   `yaml:"output"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
}

type LLM struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	APIKeyEnv   string `yaml:"api_key_env"`
}

type Search struct {
	Provider     string `yaml:"provider"`
	TavilyKeyEnv string `yaml:"tavily_key_env"`
	MaxResults   int    `yaml:"max_results"`
	Feeds        []Feed `yaml:"feeds"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Research struct {
	MaxIterations               int     `yaml:"max_iterations"`
	MaxRetries                  int     `yaml:"max_retries"`
	FetchContent                bool    `yaml:"fetch_content"`
	MinCoverageScore            float64 `yaml:"min_coverage_score"`
	MinDepthScore               float64 `yaml:"min_depth_score"`
	MinCitationDensity          float64 `yaml:"min_citation_density"`
	MinCompletenessScore        float64 `yaml:"min_completeness_score"`
	MaxConsecutiveNoImprovement int     `yaml:"max_consecutive_no_improvement"`
	MinSubQuestionsCompleted    float64 `yaml:"min_sub_questions_completed"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for deepresearch.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "deepresearch")
}

// DataDir returns the XDG data directory for deepresearch.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "deepresearch")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/deepresearch/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'deepresearch init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	stop := research.DefaultStopConfig()
	cfg := &Config{
		LLM: LLM{
			Provider:    "ollama",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
		},
		Search: Search{
			Provider:     "duckduckgo",
			TavilyKeyEnv: "TAVILY_API_KEY",
			MaxResults:   5,
		},
		Research: Research{
			MaxIterations:               stop.MaxIterations,
			MaxRetries:                  2,
			FetchContent:                true,
			MinCoverageScore:            stop.MinCoverageScore,
			MinDepthScore:               stop.MinDepthScore,
			MinCitationDensity:          stop.MinCitationDensity,
			MinCompletenessScore:        stop.MinCompletenessScore,
			MaxConsecutiveNoImprovement: stop.MaxConsecutiveNoImprovement,
			MinSubQuestionsCompleted:    stop.MinSubQuestionsCompleted,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// StopConfig converts the research thresholds to engine configuration.
func (c *Config) StopConfig() research.StopConditionConfig {
	return research.StopConditionConfig{
		MinCoverageScore:            c.Research.MinCoverageScore,
		MinDepthScore:               c.Research.MinDepthScore,
		MinCitationDensity:          c.Research.MinCitationDensity,
		MinCompletenessScore:        c.Research.MinCompletenessScore,
		MaxIterations:               c.Research.MaxIterations,
		MaxConsecutiveNoImprovement: c.Research.MaxConsecutiveNoImprovement,
		MinSubQuestionsCompleted:    c.Research.MinSubQuestionsCompleted,
	}
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
