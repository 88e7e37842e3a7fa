package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"jansahay/internal/domain"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// HuggingFaceEmbedderConfig holds configuration for the HuggingFace inference embedder.
type HuggingFaceEmbedderConfig struct {
	Model    string `yaml:"model"`
	TokenEnv string `yaml:"token_env"`
	URL      string `yaml:"url"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string                     `yaml:"type"`
	OpenAI      *OpenAIEmbedderConfig      `yaml:"openai,omitempty"`
	HuggingFace *HuggingFaceEmbedderConfig `yaml:"huggingface,omitempty"`
}

// IndexConfig selects how the eligible schemes are indexed.
// Mode "rebuild" builds a fresh index per query; "persistent" keeps vectors in Path.
type IndexConfig struct {
	Mode   string        `yaml:"mode"`
	Store  string        `yaml:"store"`
	Path   string        `yaml:"path"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Catalog  string             `yaml:"catalog"`
	Profile  domain.UserProfile `yaml:"profile"`
	Query    string             `yaml:"query"`
	TopK     int                `yaml:"top_k"`
	Embedder EmbedderConfig     `yaml:"embedder"`
	Index    IndexConfig        `yaml:"index"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// The result is not validated; callers apply overrides first and then call Validate.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	cfg.Profile = domain.UserProfile{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	var raw struct {
		Profile map[string]any `yaml:"profile"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if raw.Profile == nil {
		cfg.Profile = DefaultProfile()
	} else if missing := missingProfileFields(raw.Profile); len(missing) > 0 {
		return nil, fmt.Errorf("%s: profile is missing %s", path, strings.Join(missing, ", "))
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

var profileFields = []string{"age", "gender", "income", "state", "category", "occupation"}

// missingProfileFields lists the profile keys a partial profile leaves out.
func missingProfileFields(profile map[string]any) []string {
	var missing []string
	for _, f := range profileFields {
		if _, ok := profile[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// LoadDefault tries ./config.yaml first, then ~/.config/jansahay/config.yaml.
// If neither exists, it writes defaults to ~/.config/jansahay/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	if c.Catalog == "" {
		return errors.New("catalog path is required")
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.Profile.Age < 0 || c.Profile.Income < 0 {
		return errors.New("profile age and income must not be negative")
	}
	switch c.Embedder.Type {
	case "tfidf", "openai", "huggingface":
	default:
		return fmt.Errorf("unknown embedder: %s", c.Embedder.Type)
	}
	switch c.Index.Mode {
	case "rebuild", "persistent":
	default:
		return fmt.Errorf("unknown index mode: %s", c.Index.Mode)
	}
	switch c.Index.Store {
	case "memory":
	case "qdrant":
		if c.Index.Qdrant == nil || c.Index.Qdrant.URL == "" {
			return errors.New("qdrant config missing")
		}
	default:
		return fmt.Errorf("unknown vector store: %s", c.Index.Store)
	}
	if c.Index.Mode == "persistent" && c.Index.Path == "" {
		return errors.New("index.path is required in persistent mode")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown logging format: %s", c.Logging.Format)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "jansahay", "config.yaml"), nil
}

// DefaultProfile is the profile used when none is configured.
func DefaultProfile() domain.UserProfile {
	return domain.UserProfile{
		Age:        25,
		Gender:     "Female",
		Income:     180000,
		State:      "Bihar",
		Category:   "BPL",
		Occupation: "None",
	}
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Catalog:  "schemes.json",
		Profile:  DefaultProfile(),
		Query:    "Which schemes can I apply for?",
		TopK:     3,
		Embedder: EmbedderConfig{Type: "tfidf"},
		Index:    IndexConfig{Mode: "rebuild", Store: "memory"},
		Logging:  LoggingConfig{Level: "info", Format: "console"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Index.Mode == "" {
		cfg.Index.Mode = "rebuild"
	}
	if cfg.Index.Store == "" {
		cfg.Index.Store = "memory"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Index.Mode == "persistent" && cfg.Index.Path == "" {
		cfg.Index.Path = "jansahay_vector_db"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.Embedder.Type == "huggingface" {
		if cfg.Embedder.HuggingFace == nil {
			cfg.Embedder.HuggingFace = &HuggingFaceEmbedderConfig{}
		}
		if cfg.Embedder.HuggingFace.Model == "" {
			cfg.Embedder.HuggingFace.Model = "sentence-transformers/all-MiniLM-L6-v2"
		}
		if cfg.Embedder.HuggingFace.TokenEnv == "" {
			cfg.Embedder.HuggingFace.TokenEnv = "HUGGINGFACEHUB_API_TOKEN"
		}
	}
	if cfg.Index.Qdrant != nil {
		if cfg.Index.Qdrant.Collection == "" {
			cfg.Index.Qdrant.Collection = "jansahay_schemes"
		}
		if cfg.Index.Qdrant.TimeoutSecs == 0 {
			cfg.Index.Qdrant.TimeoutSecs = 15
		}
	}
}
