package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config is the process-wide settings value, built once at startup. Every
// component receives it by explicit parameter, never by global lookup.
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Security    SecurityConfig  `toml:"security"`
	Logging     LoggingConfig   `toml:"logging"`
	LLM         LLMConfig       `toml:"llm"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Upload      UploadConfig    `toml:"upload"`
	RAG         RAGConfig       `toml:"rag"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host"`
	// RateLimit is admin requests per minute per client IP.
	RateLimit   int      `toml:"rate_limit" validate:"gte=0"`
	CORSOrigins []string `toml:"cors_origins"`
}

type StorageConfig struct {
	// BaseDir is the root of every derived path.
	BaseDir     string `toml:"base_dir"`
	SampleLimit int    `toml:"sample_limit" validate:"gt=0"`
	// VectorBackend selects the vector store: "dense", "remote" or "sql".
	VectorBackend string `toml:"vector_backend" validate:"oneof=dense remote sql"`
	// RemoteVectorURL is the external collection service endpoint for the
	// remote backend.
	RemoteVectorURL string `toml:"remote_vector_url"`
}

type SecurityConfig struct {
	// APIKey, when set, is required on /api/admin/* routes.
	APIKey string `toml:"api_key"`
	// EncryptionKey overrides the auto-generated at-rest key file.
	EncryptionKey string `toml:"encryption_key"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"`
	Output []string `toml:"output"`
}

// LLMProvider selects the generation backend.
type LLMProvider string

const (
	LLMProviderOllama LLMProvider = "ollama"
	LLMProviderClaude LLMProvider = "claude"
	LLMProviderGemini LLMProvider = "gemini"
)

type LLMConfig struct {
	Provider      LLMProvider `toml:"provider" validate:"oneof=ollama claude gemini"`
	OllamaBaseURL string      `toml:"ollama_base_url"`
	OllamaModel   string      `toml:"ollama_model"`
	ClaudeAPIKey  string      `toml:"claude_api_key"`
	ClaudeModel   string      `toml:"claude_model"`
	GeminiAPIKey  string      `toml:"gemini_api_key"`
	GeminiModel   string      `toml:"gemini_model"`
	// GenerateTimeout and EmbedTimeout are duration strings ("120s", "30s").
	GenerateTimeout string `toml:"generate_timeout"`
	EmbedTimeout    string `toml:"embed_timeout"`
}

type SchedulerConfig struct {
	MaxWorkers int `toml:"max_workers" validate:"gt=0"`
	// SubtaskTimeoutMinutes bounds one subtask's wall clock.
	SubtaskTimeoutMinutes int `toml:"subtask_timeout_minutes" validate:"gt=0"`
	// OrphanGraceMinutes: a job still "running" from a previous process and
	// older than this window is reconciled to failed on startup.
	OrphanGraceMinutes int `toml:"orphan_grace_minutes" validate:"gt=0"`
	// ShutdownDeadlineSeconds bounds graceful drain before exit code 1.
	ShutdownDeadlineSeconds int `toml:"shutdown_deadline_seconds" validate:"gt=0"`
}

type UploadConfig struct {
	MaxBytes          int64    `toml:"max_bytes" validate:"gt=0"`
	AllowedExtensions []string `toml:"allowed_extensions"`
}

type RAGConfig struct {
	TopK              int     `toml:"top_k" validate:"gt=0"`
	ScoreFloor        float64 `toml:"score_floor"`
	DedupeThreshold   float64 `toml:"dedupe_threshold"`
	ContextTokenLimit int     `toml:"context_token_limit" validate:"gt=0"`
	CacheTTLSeconds   int     `toml:"cache_ttl_seconds" validate:"gt=0"`
	EmbeddingDim      int     `toml:"embedding_dim" validate:"gt=0"`
}

// NewDefaultConfig creates a configuration with default values. Only
// user-facing settings are exposed in trutina.toml and BANKING_* env vars.
func NewDefaultConfig() *Config {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:      8080,
			Host:      "localhost",
			RateLimit: 100,
			CORSOrigins: []string{
				"http://localhost:5173",
				"http://localhost:3000",
			},
		},
		Storage: StorageConfig{
			BaseDir:       ".",
			SampleLimit:   500000,
			VectorBackend: "dense",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		LLM: LLMConfig{
			Provider:        LLMProviderOllama,
			OllamaBaseURL:   "http://localhost:11434",
			OllamaModel:     "llama3.2",
			ClaudeModel:     "claude-haiku-3-5-20241022",
			GeminiModel:     "gemini-3-flash-preview",
			GenerateTimeout: "120s",
			EmbedTimeout:    "30s",
		},
		Scheduler: SchedulerConfig{
			MaxWorkers:              workers,
			SubtaskTimeoutMinutes:   30,
			OrphanGraceMinutes:      10,
			ShutdownDeadlineSeconds: 60,
		},
		Upload: UploadConfig{
			MaxBytes:          524288000, // 500 MiB
			AllowedExtensions: []string{".csv", ".json", ".xlsx"},
		},
		RAG: RAGConfig{
			TopK:              5,
			ScoreFloor:        0.2,
			DedupeThreshold:   0.9,
			ContextTokenLimit: 3000,
			CacheTTLSeconds:   3600,
			EmbeddingDim:      384,
		},
	}
}

// LoadFromFiles loads configuration with priority:
// defaults -> config files (later overrides earlier) -> BANKING_* env.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides applies BANKING_* environment variables over file values.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("BANKING_BASE_DIR"); v != "" {
		config.Storage.BaseDir = v
	}
	if v := os.Getenv("BANKING_API_KEY"); v != "" {
		config.Security.APIKey = v
	}
	if v := os.Getenv("BANKING_ENCRYPTION_KEY"); v != "" {
		config.Security.EncryptionKey = v
	}
	if v := os.Getenv("BANKING_OLLAMA_BASE_URL"); v != "" {
		config.LLM.OllamaBaseURL = v
	}
	if v := os.Getenv("BANKING_OLLAMA_MODEL"); v != "" {
		config.LLM.OllamaModel = v
	}
	if v := os.Getenv("BANKING_LLM_PROVIDER"); v != "" {
		config.LLM.Provider = LLMProvider(v)
	}
	if v := os.Getenv("BANKING_SAMPLE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Storage.SampleLimit = n
		}
	}
	if v := os.Getenv("BANKING_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Scheduler.MaxWorkers = n
		}
	}
	if v := os.Getenv("BANKING_MAX_UPLOAD_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Upload.MaxBytes = n
		}
	}
	if v := os.Getenv("BANKING_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Server.RateLimit = n
		}
	}
	if v := os.Getenv("BANKING_LOG_LEVEL"); v != "" {
		config.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("BANKING_CORS_ORIGINS"); v != "" {
		origins := []string{}
		for _, o := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		if len(origins) > 0 {
			config.Server.CORSOrigins = origins
		}
	}
	if v := os.Getenv("BANKING_SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Server.Port = n
		}
	}
	if v := os.Getenv("BANKING_SERVER_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("BANKING_VECTOR_BACKEND"); v != "" {
		config.Storage.VectorBackend = v
	}
	if v := os.Getenv("BANKING_REMOTE_VECTOR_URL"); v != "" {
		config.Storage.RemoteVectorURL = v
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority).
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate fails fast on invalid settings.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Storage.VectorBackend == "remote" && c.Storage.RemoteVectorURL == "" {
		return fmt.Errorf("invalid configuration: remote vector backend requires remote_vector_url")
	}
	return nil
}

// IsProduction reports whether the environment is production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// Derived paths. All persistent state lives under BaseDir.

func (c *Config) AdminDBPath() string {
	return filepath.Join(c.Storage.BaseDir, "admin.db")
}

func (c *Config) ResultsDBPath() string {
	return filepath.Join(c.Storage.BaseDir, "ml_pipeline_results.db")
}

func (c *Config) PreprocessingDBPath() string {
	return filepath.Join(c.Storage.BaseDir, "preprocessing_results.db")
}

func (c *Config) CacheDBPath() string {
	return filepath.Join(c.Storage.BaseDir, "rag_cache.db")
}

func (c *Config) UnifiedDBPath() string {
	return filepath.Join(c.Storage.BaseDir, "banking_unified.db")
}

func (c *Config) VectorStoreDir() string {
	return filepath.Join(c.Storage.BaseDir, "vector_store")
}

func (c *Config) PreprocessingOutputDir() string {
	return filepath.Join(c.Storage.BaseDir, "preprocessing_output")
}

func (c *Config) ModelsDir() string {
	return filepath.Join(c.Storage.BaseDir, "models")
}

func (c *Config) UploadsDir() string {
	return filepath.Join(c.Storage.BaseDir, "uploads")
}

func (c *Config) LogsDir() string {
	return filepath.Join(c.Storage.BaseDir, "logs")
}

func (c *Config) EncryptionKeyPath() string {
	return filepath.Join(c.Storage.BaseDir, ".encryption.key")
}

// EnsureDirs creates every derived directory that components write into.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		c.Storage.BaseDir,
		c.VectorStoreDir(),
		c.PreprocessingOutputDir(),
		c.ModelsDir(),
		c.UploadsDir(),
		c.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
