package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Tuning holds the heuristic knobs of the reconstruction pipeline. The
// word-count bands separating short, medium and long documents are tuning
// values, not invariants, so they live in configuration.
type Tuning struct {
	MediumMinWords         int           `yaml:"medium_min_words"`
	MediumMaxWords         int           `yaml:"medium_max_words"`
	MaxWordsPerChunk       int           `yaml:"max_words_per_chunk"`
	WordsPerSection        int           `yaml:"words_per_section"`
	SmallInputWords        int           `yaml:"small_input_words"`
	DefaultExpansionTarget int           `yaml:"default_expansion_target"`
	SectionRetries         uint          `yaml:"section_retries"`
	ChunkRetries           uint          `yaml:"chunk_retries"`
	SectionConcurrency     int           `yaml:"section_concurrency"`
	CallTimeout            time.Duration `yaml:"call_timeout"`
}

func DefaultTuning() Tuning {
	return Tuning{
		MediumMinWords:         1200,
		MediumMaxWords:         25000,
		MaxWordsPerChunk:       1000,
		WordsPerSection:        600,
		SmallInputWords:        500,
		DefaultExpansionTarget: 5000,
		SectionRetries:         2,
		ChunkRetries:           2,
		SectionConcurrency:     3,
		CallTimeout:            2 * time.Minute,
	}
}

type Config struct {
	Port            int
	DatabasePath    string
	DefaultProvider string

	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	DeepSeekAPIKey  string
	DeepSeekModel   string

	Tuning Tuning
}

// Load reads configuration from the environment, with an optional .env file
// and an optional YAML tuning file named by NEUROTEXT_TUNING.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may be fully set already.
	_ = godotenv.Load()

	cfg := &Config{
		Port:            envInt("NEUROTEXT_PORT", 8080),
		DatabasePath:    envDefault("NEUROTEXT_DB", "neurotext.db"),
		DefaultProvider: envDefault("NEUROTEXT_PROVIDER", "anthropic"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  os.Getenv("NEUROTEXT_ANTHROPIC_MODEL"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     os.Getenv("NEUROTEXT_OPENAI_MODEL"),
		DeepSeekAPIKey:  os.Getenv("DEEPSEEK_API_KEY"),
		DeepSeekModel:   os.Getenv("NEUROTEXT_DEEPSEEK_MODEL"),
		Tuning:          DefaultTuning(),
	}

	if path := os.Getenv("NEUROTEXT_TUNING"); path != "" {
		if err := loadTuning(path, &cfg.Tuning); err != nil {
			return nil, err
		}
	}

	if cfg.AnthropicAPIKey == "" && cfg.OpenAIAPIKey == "" && cfg.DeepSeekAPIKey == "" {
		return nil, fmt.Errorf("no provider API key configured; set at least one of ANTHROPIC_API_KEY, OPENAI_API_KEY, DEEPSEEK_API_KEY")
	}

	return cfg, nil
}

func loadTuning(path string, tuning *Tuning) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, tuning); err != nil {
		return fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	return nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
