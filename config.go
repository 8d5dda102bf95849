package main

import (
	_ "embed"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir = ".datasmith"
	defaultChunkSize = 25
	maxTargetRows    = 300
	maxTargetURLs    = 15
)

// Embedded configuration files
//
//go:embed .datasmith/settings.yaml
var defaultSettings string

//go:embed .datasmith/extractor-system-prompt.md
var defaultExtractorPrompt string

//go:embed .datasmith/extractor-output-schema.json
var defaultExtractorSchema string

// ConfigOverrides allows overriding embedded defaults with file paths.
type ConfigOverrides struct {
	SettingsPath        *string
	ExtractorPromptPath *string
	ExtractorSchemaPath *string
}

// Settings is the YAML configuration structure.
type Settings struct {
	ListenAddr      string `yaml:"listen_addr"`
	OutputDirectory string `yaml:"output_directory"`
	Services        struct {
		CrawlURL  string `yaml:"crawl_url"`
		SearchURL string `yaml:"search_url"`
	} `yaml:"services"`
	Scraper struct {
		BatchSize         int      `yaml:"batch_size"`
		MaxAttempts       int      `yaml:"max_attempts"`
		BackoffMS         int      `yaml:"backoff_ms"`
		HealthTimeoutS    int      `yaml:"health_timeout_s"`
		CrawlTimeoutS     int      `yaml:"crawl_timeout_s"`
		RequestsPerSecond int      `yaml:"requests_per_second"`
		ContentPriority   []string `yaml:"content_priority"`
	} `yaml:"scraper"`
	Pipeline struct {
		ChunkSize int `yaml:"chunk_size"`
		MaxRows   int `yaml:"max_rows"`
		MaxURLs   int `yaml:"max_urls"`
	} `yaml:"pipeline"`
	Extractor struct {
		Model            string  `yaml:"model"`
		MaxTokens        int     `yaml:"max_tokens"`
		Temperature      float64 `yaml:"temperature"`
		ContentMaxTokens int     `yaml:"content_max_tokens"`
	} `yaml:"extractor"`
}

// Config holds settings and overrides.
type Config struct {
	Settings  *Settings
	Overrides *ConfigOverrides
}

// NewConfig loads settings (writing embedded defaults on first run) and
// applies overrides.
func NewConfig(overrides *ConfigOverrides) (*Config, error) {
	if err := ensureConfigExists(); err != nil {
		return nil, errors.Wrap(err, "ensuring config files exist")
	}

	settingsPath := getConfigPath("settings.yaml")
	if overrides != nil && overrides.SettingsPath != nil {
		settingsPath = *overrides.SettingsPath
	}

	settings, err := loadSettings(settingsPath)
	if err != nil {
		return nil, errors.Wrap(err, "loading settings")
	}

	return &Config{Settings: settings, Overrides: overrides}, nil
}

// GetExtractorPrompt returns the extraction system prompt (override file or
// embedded).
func (c *Config) GetExtractorPrompt() string {
	if c.Overrides != nil && c.Overrides.ExtractorPromptPath != nil {
		if content, err := os.ReadFile(*c.Overrides.ExtractorPromptPath); err == nil {
			return string(content)
		}
	}
	return defaultExtractorPrompt
}

// GetExtractorSchema returns the structured-output JSON schema (override file
// or embedded).
func (c *Config) GetExtractorSchema() string {
	if c.Overrides != nil && c.Overrides.ExtractorSchemaPath != nil {
		if content, err := os.ReadFile(*c.Overrides.ExtractorSchemaPath); err == nil {
			return string(content)
		}
	}
	return defaultExtractorSchema
}

func loadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading settings file %s", path)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, errors.Wrap(err, "parsing settings YAML")
	}
	applySettingsDefaults(&settings)
	return &settings, nil
}

func applySettingsDefaults(s *Settings) {
	if s.ListenAddr == "" {
		s.ListenAddr = ":8090"
	}
	if s.OutputDirectory == "" {
		s.OutputDirectory = "datasets"
	}
	if s.Scraper.BatchSize <= 0 {
		s.Scraper.BatchSize = 5
	}
	if s.Scraper.MaxAttempts <= 0 {
		s.Scraper.MaxAttempts = 3
	}
	if s.Scraper.BackoffMS <= 0 {
		s.Scraper.BackoffMS = 1000
	}
	if s.Scraper.HealthTimeoutS <= 0 {
		s.Scraper.HealthTimeoutS = 30
	}
	if s.Scraper.CrawlTimeoutS <= 0 {
		s.Scraper.CrawlTimeoutS = 180
	}
	if s.Scraper.RequestsPerSecond <= 0 {
		s.Scraper.RequestsPerSecond = 2
	}
	if len(s.Scraper.ContentPriority) == 0 {
		s.Scraper.ContentPriority = []string{"markdown", "extracted_content", "cleaned_html", "html"}
	}
	if s.Pipeline.ChunkSize <= 0 {
		s.Pipeline.ChunkSize = defaultChunkSize
	}
	if s.Pipeline.MaxRows <= 0 {
		s.Pipeline.MaxRows = maxTargetRows
	}
	if s.Pipeline.MaxURLs <= 0 {
		s.Pipeline.MaxURLs = maxTargetURLs
	}
	if s.Extractor.Model == "" {
		s.Extractor.Model = "claude-sonnet-4-20250514"
	}
	if s.Extractor.MaxTokens <= 0 {
		s.Extractor.MaxTokens = 8000
	}
	if s.Extractor.ContentMaxTokens <= 0 {
		s.Extractor.ContentMaxTokens = 60000
	}
}

func getConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// ensureConfigExists creates the config directory and writes settings.yaml on
// first run so users have a file to customize.
func ensureConfigExists() error {
	if err := os.MkdirAll(defaultConfigDir, 0755); err != nil {
		return errors.Wrap(err, "creating config directory")
	}

	settingsPath := getConfigPath("settings.yaml")
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, []byte(defaultSettings), 0644); err != nil {
			return errors.Wrap(err, "writing settings.yaml")
		}
	}
	return nil
}
