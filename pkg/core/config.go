package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/lorekeep/lorekeep-go/pkg/memory"
)

// Config contains the complete configuration for a Lorekeep engine.
//
// It covers the text-generation collaborator, the vector collaborator, the
// durable record store, the canonical world and quest definition files,
// and memory selection tuning.
//
// Example:
//
//	config := &core.Config{
//	    Generator: core.GeneratorConfig{
//	        Provider: "openai",
//	        APIKey:   "sk-...",
//	        Model:    "gpt-4o-mini",
//	    },
//	    Vector: core.VectorConfig{
//	        Provider: "chroma",
//	        BaseURL:  "http://localhost:8001",
//	    },
//	    Records: core.RecordStoreConfig{
//	        Provider: "sqlite",
//	        Config:   map[string]interface{}{"db_path": "./lorekeep.db"},
//	    },
//	    WorldFile: "world.yaml",
//	    QuestFile: "quests.yaml",
//	}
type Config struct {
	// Generator configures the text-generation collaborator.
	Generator GeneratorConfig `json:"generator"`

	// Vector configures the semantic retrieval collaborator.
	Vector VectorConfig `json:"vector"`

	// Records configures the durable memory record store.
	Records RecordStoreConfig `json:"records"`

	// WorldFile is the canonical world definition (YAML). Optional: an
	// empty path starts with an empty knowledge base.
	WorldFile string `json:"world_file,omitempty"`

	// QuestFile is the quest definition file (YAML). Optional.
	QuestFile string `json:"quest_file,omitempty"`

	// SelectionBudget is the memory context character budget per turn.
	// Zero selects DefaultSelectionBudget.
	SelectionBudget int `json:"selection_budget,omitempty"`

	// Scoring overrides memory scoring parameters (optional).
	Scoring *memory.ScoringConfig `json:"scoring,omitempty"`
}

// DefaultSelectionBudget is the per-turn memory context budget in
// characters.
const DefaultSelectionBudget = 2000

// GeneratorConfig configures the text-generation provider.
//
// Supported providers: openai, none. "none" disables generation; the
// engine then only accepts pre-built payloads via ProcessPayload.
type GeneratorConfig struct {
	// Provider is the generation provider name (openai, none).
	Provider string `json:"provider"`

	// APIKey is the API key for the provider.
	APIKey string `json:"api_key"`

	// Model is the model name (e.g. "gpt-4o-mini").
	Model string `json:"model,omitempty"`

	// BaseURL overrides the API base URL (optional).
	BaseURL string `json:"base_url,omitempty"`

	// TimeoutSeconds bounds each generation call (default 10).
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// VectorConfig configures the semantic retrieval collaborator.
//
// Supported providers: chroma, none. "none" degrades memory selection to
// protected and high-signal items only.
type VectorConfig struct {
	// Provider is the vector provider name (chroma, none).
	Provider string `json:"provider"`

	// BaseURL is the bridge base URL (e.g. "http://localhost:8001").
	BaseURL string `json:"base_url,omitempty"`

	// TimeoutSeconds bounds each vector call (default 5).
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// RecordStoreConfig configures the durable memory record store.
//
// Supported providers: sqlite, postgres, none. "none" keeps collections
// in memory only.
type RecordStoreConfig struct {
	// Provider is the record store provider name (sqlite, postgres, none).
	Provider string `json:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path, table_name
	// For PostgreSQL: host, port, user, password, db_name, table_name, ssl_mode
	Config map[string]interface{} `json:"config,omitempty"`
}

// Validate checks the configuration for obvious misuse.
func (c *Config) Validate() error {
	switch c.Generator.Provider {
	case "openai", "none", "":
	default:
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	switch c.Vector.Provider {
	case "chroma", "none", "":
	default:
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	switch c.Records.Provider {
	case "sqlite", "postgres", "none", "":
	default:
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	if c.SelectionBudget < 0 {
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	return nil
}

// generatorTimeout returns the configured generation timeout.
func (c *GeneratorConfig) timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *VectorConfig) timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - LOREKEEP_RECORDS_PROVIDER (sqlite, postgres, none)
//   - LOREKEEP_SQLITE_PATH, LOREKEEP_SQLITE_TABLE
//   - LOREKEEP_POSTGRES_HOST, LOREKEEP_POSTGRES_PORT, LOREKEEP_POSTGRES_USER,
//     LOREKEEP_POSTGRES_PASSWORD, LOREKEEP_POSTGRES_DATABASE,
//     LOREKEEP_POSTGRES_TABLE, LOREKEEP_POSTGRES_SSLMODE
//   - LOREKEEP_VECTOR_PROVIDER (chroma, none), LOREKEEP_CHROMA_URL,
//     LOREKEEP_CHROMA_TIMEOUT
//   - LOREKEEP_GENAI_PROVIDER (openai, none), LOREKEEP_OPENAI_API_KEY
//     (falls back to OPENAI_API_KEY), LOREKEEP_OPENAI_MODEL,
//     LOREKEEP_OPENAI_BASE_URL, LOREKEEP_GENAI_TIMEOUT
//   - LOREKEEP_WORLD_FILE, LOREKEEP_QUEST_FILE, LOREKEEP_BUDGET
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		WorldFile: os.Getenv("LOREKEEP_WORLD_FILE"),
		QuestFile: os.Getenv("LOREKEEP_QUEST_FILE"),
	}
	if budget, err := strconv.Atoi(getEnvOrDefault("LOREKEEP_BUDGET", "0")); err == nil {
		cfg.SelectionBudget = budget
	}

	recProvider := getEnvOrDefault("LOREKEEP_RECORDS_PROVIDER", "sqlite")
	cfg.Records.Provider = recProvider
	switch recProvider {
	case "sqlite":
		cfg.Records.Config = map[string]interface{}{
			"db_path":    getEnvOrDefault("LOREKEEP_SQLITE_PATH", "./lorekeep.db"),
			"table_name": getEnvOrDefault("LOREKEEP_SQLITE_TABLE", "memories"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("LOREKEEP_POSTGRES_PORT", "5432"))
		cfg.Records.Config = map[string]interface{}{
			"host":       getEnvOrDefault("LOREKEEP_POSTGRES_HOST", "localhost"),
			"port":       port,
			"user":       getEnvOrDefault("LOREKEEP_POSTGRES_USER", "postgres"),
			"password":   os.Getenv("LOREKEEP_POSTGRES_PASSWORD"),
			"db_name":    getEnvOrDefault("LOREKEEP_POSTGRES_DATABASE", "lorekeep"),
			"table_name": getEnvOrDefault("LOREKEEP_POSTGRES_TABLE", "memories"),
			"ssl_mode":   getEnvOrDefault("LOREKEEP_POSTGRES_SSLMODE", "disable"),
		}
	}

	cfg.Vector.Provider = getEnvOrDefault("LOREKEEP_VECTOR_PROVIDER", "chroma")
	cfg.Vector.BaseURL = getEnvOrDefault("LOREKEEP_CHROMA_URL", "http://localhost:8001")
	if secs, err := strconv.Atoi(getEnvOrDefault("LOREKEEP_CHROMA_TIMEOUT", "0")); err == nil {
		cfg.Vector.TimeoutSeconds = secs
	}

	cfg.Generator.Provider = getEnvOrDefault("LOREKEEP_GENAI_PROVIDER", "openai")
	cfg.Generator.APIKey = getEnvOrDefault("LOREKEEP_OPENAI_API_KEY", os.Getenv("OPENAI_API_KEY"))
	cfg.Generator.Model = os.Getenv("LOREKEEP_OPENAI_MODEL")
	cfg.Generator.BaseURL = os.Getenv("LOREKEEP_OPENAI_BASE_URL")
	if secs, err := strconv.Atoi(getEnvOrDefault("LOREKEEP_GENAI_TIMEOUT", "0")); err == nil {
		cfg.Generator.TimeoutSeconds = secs
	}

	return cfg, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, NewEngineError("LoadConfigFromEnvFile", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}
	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search checks the current directory first, then up to 5 directory
// levels up, and returns the first file found.
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}
