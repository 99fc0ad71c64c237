package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort    string
	DatabaseURL string
	LogLevel    string
	LogMode     string
	JWTSecret   string
	JWTTTL      time.Duration

	// Embeddings (Gemini)
	GoogleAPIKey        string
	EmbeddingModel      string
	EmbeddingRatePerSec int

	// Vector index
	VectorIndex       string // "pinecone" or "memory"
	PineconeAPIKey    string
	PineconeIndexName string
	PineconeIndexHost string
	PineconeNamespace string

	// Completion (OpenAI-compatible endpoint, Groq by default)
	CompletionAPIKey      string
	CompletionBaseURL     string
	CompletionModel       string
	CompletionMaxTokens   int
	CompletionTemperature float64

	RemoteTimeout     time.Duration
	ChunkSize         int
	ChunkOverlap      int
	RetrievalTopK     int
	HistoryCharBudget int

	UploadDir      string
	MaxUploadBytes int64
	IngestWorkers  int
}

// Load reads a .env file if one exists and builds the configuration from the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	return &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "persona_chat.db"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		LogMode:     getEnv("LOG_MODE", "development"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTTTL:      getEnvAsDuration("JWT_TTL", 24*time.Hour),

		GoogleAPIKey:        getEnv("GOOGLE_API_KEY", ""),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		EmbeddingRatePerSec: getEnvAsInt("EMBEDDING_RATE_PER_SEC", 25),

		VectorIndex:       getEnv("VECTOR_INDEX", "pinecone"),
		PineconeAPIKey:    getEnv("PINECONE_API_KEY", ""),
		PineconeIndexName: getEnv("PINECONE_INDEX_NAME", ""),
		PineconeIndexHost: getEnv("PINECONE_INDEX_HOST", ""),
		PineconeNamespace: getEnv("PINECONE_NAMESPACE", ""),

		CompletionAPIKey:      getEnv("GROQ_API_KEY", ""),
		CompletionBaseURL:     getEnv("COMPLETION_BASE_URL", "https://api.groq.com/openai/v1"),
		CompletionModel:       getEnv("COMPLETION_MODEL", "llama-3.3-70b-versatile"),
		CompletionMaxTokens:   getEnvAsInt("COMPLETION_MAX_TOKENS", 500),
		CompletionTemperature: getEnvAsFloat("COMPLETION_TEMPERATURE", 0.7),

		RemoteTimeout:     getEnvAsDuration("REMOTE_TIMEOUT", 30*time.Second),
		ChunkSize:         getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:      getEnvAsInt("CHUNK_OVERLAP", 200),
		RetrievalTopK:     getEnvAsInt("RETRIEVAL_TOP_K", 3),
		HistoryCharBudget: getEnvAsInt("HISTORY_CHAR_BUDGET", 24000),

		UploadDir:      getEnv("UPLOAD_DIR", "public/uploads"),
		MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
		IngestWorkers:  getEnvAsInt("INGEST_WORKERS", 4),
	}
}

// Validate checks the settings the server cannot start without. AI credentials are
// optional: retrieval degrades without them and ingestion reports them missing.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("invalid chunking config: size=%d overlap=%d", c.ChunkSize, c.ChunkOverlap)
	}
	if c.VectorIndex != "pinecone" && c.VectorIndex != "memory" {
		return fmt.Errorf("VECTOR_INDEX must be pinecone or memory, got %q", c.VectorIndex)
	}
	return nil
}

// EmbeddingConfigured reports whether the embedding service credentials are set.
func (c *Config) EmbeddingConfigured() bool {
	return c.GoogleAPIKey != ""
}

// PineconeConfigured reports whether the remote vector index credentials are set.
func (c *Config) PineconeConfigured() bool {
	return c.PineconeAPIKey != "" && (c.PineconeIndexName != "" || c.PineconeIndexHost != "")
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
