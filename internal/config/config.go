package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by DOXA_ENV (or .env by default), then
// loads the corresponding .secret file if it exists. All config is flat env
// vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("DOXA_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func getInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return f
}

func getString(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func ServerPort() int {
	return getInt("SERVER_PORT", 8080)
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func Development() bool {
	return os.Getenv("DOXA_ENV") == "development"
}

// DatabaseURL selects the Postgres backend when set.
func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// SQLitePath selects the embedded backend when set and DATABASE_URL is not.
func SQLitePath() string {
	return os.Getenv("SQLITE_PATH")
}

// MemoryStrategy overrides similarity-strategy selection.
// Valid values: auto, vector, text, fallback.
func MemoryStrategy() string {
	return getString("MEMORY_STRATEGY", "auto")
}

func MemoryBatchSize() int {
	return getInt("MEMORY_BATCH_SIZE", 100)
}

func MemoryMaxSimilarityResults() int {
	return getInt("MEMORY_MAX_SIMILARITY_RESULTS", 50)
}

func MemorySimilarityThreshold() float64 {
	return getFloat("MEMORY_SIMILARITY_THRESHOLD", 0)
}

func EmbeddingDimension() int {
	return getInt("EMBEDDING_DIMENSION", 1536)
}

// EmbeddingProvider returns the configured embedding provider.
// Valid values: mock, none.
func EmbeddingProvider() string {
	return getString("EMBEDDING_PROVIDER", "none")
}

// EmbeddingRPS caps embedding calls per second. Zero disables the cap.
func EmbeddingRPS() float64 {
	return getFloat("EMBEDDING_RPS", 0)
}

func EmbeddingBurst() int {
	return getInt("EMBEDDING_BURST", 5)
}

// ExtractProvider returns the configured belief extraction provider.
// Valid values: heuristic, mock.
func ExtractProvider() string {
	return getString("EXTRACT_PROVIDER", "heuristic")
}

// BeliefAnalysisEnabled gates the belief pass of ingestion. Memories are
// still stored when it is off.
func BeliefAnalysisEnabled() bool {
	return getBool("BELIEF_ANALYSIS_ENABLED", true)
}

// BeliefResolutionStrategies parses BELIEF_RESOLUTION_STRATEGIES, a
// comma-separated list of category=strategy pairs, e.g.
// "preference=newer-wins,fact=manual-review". Malformed pairs are dropped;
// strategy names are validated where the map is consumed.
func BeliefResolutionStrategies() map[string]string {
	raw := os.Getenv("BELIEF_RESOLUTION_STRATEGIES")
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		category, strategy, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		category = strings.TrimSpace(category)
		strategy = strings.TrimSpace(strategy)
		if category == "" || strategy == "" {
			continue
		}
		out[category] = strategy
	}
	return out
}

func BeliefMinCandidateConfidence() float64 {
	return getFloat("BELIEF_MIN_CANDIDATE_CONFIDENCE", 0.3)
}

func BeliefReinforceThreshold() float64 {
	return getFloat("BELIEF_REINFORCE_THRESHOLD", 0.85)
}

func BeliefRelatedThreshold() float64 {
	return getFloat("BELIEF_RELATED_THRESHOLD", 0.6)
}

func IngestMaxContentLength() int {
	return getInt("INGEST_MAX_CONTENT_LENGTH", 10000)
}

func MaintenanceInterval() time.Duration {
	return time.Duration(getInt("MAINTENANCE_INTERVAL_SECONDS", 3600)) * time.Second
}

// RelationshipRetention is how long deactivated edges are kept before the
// maintenance sweep prunes them. Zero disables pruning.
func RelationshipRetention() time.Duration {
	return time.Duration(getInt("RELATIONSHIP_RETENTION_HOURS", 0)) * time.Hour
}

// RateLimitRPS returns the requests-per-second limit per client IP.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps := getFloat("RATE_LIMIT_RPS", 100)
	if rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst := getInt("RATE_LIMIT_BURST", 20)
	if burst <= 0 {
		return 20
	}
	return burst
}
