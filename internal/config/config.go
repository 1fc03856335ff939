package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Completion service
	LLMProvider        string
	StandardModel      string
	AdvancedModel      string
	StandardCostPer1K  float64
	AdvancedCostPer1K  float64
	AnthropicAPIKey    string
	OpenAIAPIKey       string
	OllamaHost         string
	AWSRegion          string
	CompletionURL      string
	CompletionToken    string
	CompletionTimeout  time.Duration
	MaxTranscriptChars int
	DefaultSpecialty   string
	VocabularyFile     string

	// Persistence
	BackupPath      string
	BackupRetention int
	EncryptionKey   string
	SaveMaxRetries  int
	SaveRetryDelay  time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "scribe"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "notes"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:        strings.ToLower(getEnv("SCRIBE_LLM_PROVIDER", "anthropic")),
		StandardModel:      getEnv("SCRIBE_STANDARD_MODEL", "claude-haiku-4-5"),
		AdvancedModel:      getEnv("SCRIBE_ADVANCED_MODEL", "claude-sonnet-4-5"),
		StandardCostPer1K:  getEnvFloat("SCRIBE_STANDARD_COST_PER_1K", 0.001),
		AdvancedCostPer1K:  getEnvFloat("SCRIBE_ADVANCED_COST_PER_1K", 0.015),
		AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OllamaHost:         getEnv("OLLAMA_HOST", "http://localhost:11434"),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		CompletionURL:      getEnv("SCRIBE_COMPLETION_URL", ""),
		CompletionToken:    getEnv("SCRIBE_COMPLETION_TOKEN", ""),
		CompletionTimeout:  getEnvDuration("SCRIBE_COMPLETION_TIMEOUT", 120*time.Second),
		MaxTranscriptChars: getEnvInt("SCRIBE_MAX_TRANSCRIPT_CHARS", 12000),
		DefaultSpecialty:   getEnv("SCRIBE_DEFAULT_SPECIALTY", "physiotherapy"),
		VocabularyFile:     getEnv("SCRIBE_VOCAB_FILE", ""),

		BackupPath:      getEnv("SCRIBE_BACKUP_PATH", defaultBackupPath()),
		BackupRetention: getEnvInt("SCRIBE_BACKUP_RETENTION", 10),
		EncryptionKey:   getEnv("SCRIBE_ENCRYPTION_KEY", ""),
		SaveMaxRetries:  getEnvInt("SCRIBE_SAVE_MAX_RETRIES", 3),
		SaveRetryDelay:  getEnvDuration("SCRIBE_SAVE_RETRY_DELAY", time.Second),

		LogFile:  getEnv("SCRIBE_LOG_FILE", filepath.Join(os.TempDir(), "scribe.log")),
		LogLevel: parseLogLevel(getEnv("SCRIBE_LOG_LEVEL", "INFO")),
	}
}

func defaultBackupPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "scribe-backups.db")
	}
	return filepath.Join(home, ".scribe", "backups.db")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvFloat(key string, defaultVal float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
