// Package config loads runtime configuration from the environment (with
// .env support) and an optional board-tuning YAML file, reading env vars
// first and falling back to documented defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DatabaseBackendConfig selects and configures one storage backend.
type DatabaseBackendConfig struct {
	Backend    string `yaml:"backend"` // ""/memory, postgres|pg, pgvector, qdrant, redis; accepted values depend on the component
	DSN        string `yaml:"dsn"`
	Collection string `yaml:"collection"`
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"`
}

// EmbeddingConfig configures the embedding service client.
type EmbeddingConfig struct {
	BaseURL    string            `yaml:"base_url"`
	Model      string            `yaml:"model"`
	APIKey     string            `yaml:"api_key"`
	APIHeader  string            `yaml:"api_header"`
	Headers    map[string]string `yaml:"headers"`
	Dimensions int               `yaml:"dimensions"`
	Timeout    time.Duration     `yaml:"timeout"`
}

// ChatConfig configures the blocking chat LLM used for temporal-intent
// parsing and answer composition.
type ChatConfig struct {
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// ContentAPIConfig configures the OCR/document-parse external service.
type ContentAPIConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// RerankerConfig selects the pluggable cross-encoder reranker.
type RerankerConfig struct {
	Type     string `yaml:"type"` // bge|cohere
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	UseFP16  bool   `yaml:"use_fp16"`
	BaseURL  string `yaml:"base_url"`
}

// BoardConfig carries per-board crawl tuning: the id floor that bounds
// backfill, and the CSS selectors used to extract title/body/date/images.
type BoardConfig struct {
	Type            string `yaml:"type"`
	RootURL         string `yaml:"root_url"`
	IDFloor         int    `yaml:"id_floor"`
	TitleSelector   string `yaml:"title_selector"`
	BodySelector    string `yaml:"body_selector"`
	DateSelector    string `yaml:"date_selector"`
	ImageSelector   string `yaml:"image_selector"`
	AttachSelector  string `yaml:"attachment_selector"`
	FixedBaselineAt string `yaml:"fixed_baseline_date"` // for faculty/staff boards
}

// IngestionConfig tunes crawl/chunk/ingest behaviour.
type IngestionConfig struct {
	MaxWorkers     int           `yaml:"max_workers"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	ChunkSize      int           `yaml:"chunk_size"`
	ChunkOverlap   int           `yaml:"chunk_overlap"`
	MaxZipSize     int64         `yaml:"max_zip_size"`
	MaxZipMembers  int           `yaml:"max_zip_members"`
	MaxZipExpanded int64         `yaml:"max_zip_expanded"`
	Boards         []BoardConfig `yaml:"boards"`
}

// RetrievalConfig tunes BM25/dense/combine/recency behaviour. Defaults
// mirror the accumulated tuning values with no further documented
// derivation, used as the out-of-the-box baseline.
type RetrievalConfig struct {
	BM25K1                     float64 `yaml:"bm25_k1"`
	BM25B                      float64 `yaml:"bm25_b"`
	BM25Workers                int     `yaml:"bm25_workers"`
	BM25NormalizeFactor        float64 `yaml:"bm25_normalize_factor"`
	TopKDocuments              int     `yaml:"top_k_documents"`
	ClusterSimilarityThreshold float64 `yaml:"cluster_similarity_threshold"`
	MinimumSimilarityScore     float64 `yaml:"minimum_similarity_score"`
	DenseTopK                  int     `yaml:"dense_top_k"`
	DenseScaleFactor           float64 `yaml:"dense_scale_factor"`
	ContextCharBudget          int     `yaml:"context_char_budget"`
}

// ObsConfig configures optional OpenTelemetry export.
type ObsConfig struct {
	ServiceName    string `yaml:"service_name"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
}

// Config is the top-level process configuration.
type Config struct {
	Host       string
	Port       int
	LogLevel   string
	LogPath    string

	DocStore  DatabaseBackendConfig
	Vector    DatabaseBackendConfig
	Cache     DatabaseBackendConfig

	Embedding EmbeddingConfig
	Chat      ChatConfig
	ContentAPI ContentAPIConfig
	Reranker  RerankerConfig

	Ingestion IngestionConfig
	Retrieval RetrievalConfig
	Obs       ObsConfig
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseIntDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseFloatDefault(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func parseDurationDefault(s string, def time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func parseBoolDefault(s string, def bool) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return strings.EqualFold(s, "true") || s == "1" || strings.EqualFold(s, "yes")
}

// Load reads environment variables (a ".env" file is applied first and is
// overridden by real environment variables) and applies the documented
// default values for anything left unset.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	cfg.Host = firstNonEmpty(os.Getenv("HOST"), "0.0.0.0")
	cfg.Port = parseIntDefault(os.Getenv("PORT"), 8080)
	cfg.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), "info")
	cfg.LogPath = os.Getenv("LOG_PATH")

	cfg.DocStore = DatabaseBackendConfig{
		Backend: firstNonEmpty(os.Getenv("DOCSTORE_BACKEND"), "memory"),
		DSN:     os.Getenv("DOCSTORE_DSN"),
	}
	cfg.Vector = DatabaseBackendConfig{
		Backend:    firstNonEmpty(os.Getenv("VECTOR_BACKEND"), "memory"),
		DSN:        os.Getenv("VECTOR_DSN"),
		Collection: firstNonEmpty(os.Getenv("VECTOR_COLLECTION"), "campus_notices"),
		Dimensions: parseIntDefault(os.Getenv("VECTOR_DIMENSIONS"), 1536),
		Metric:     firstNonEmpty(os.Getenv("VECTOR_METRIC"), "cosine"),
	}
	cfg.Cache = DatabaseBackendConfig{
		Backend: firstNonEmpty(os.Getenv("CACHE_BACKEND"), "memory"),
		DSN:     os.Getenv("CACHE_DSN"),
	}

	cfg.Embedding = EmbeddingConfig{
		BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
		Model:      firstNonEmpty(os.Getenv("EMBEDDING_MODEL"), "text-embedding-3-small"),
		APIKey:     os.Getenv("EMBEDDING_API_KEY"),
		APIHeader:  os.Getenv("EMBEDDING_API_HEADER"),
		Dimensions: parseIntDefault(os.Getenv("EMBEDDING_DIMENSIONS"), 1536),
		Timeout:    parseDurationDefault(os.Getenv("EMBEDDING_TIMEOUT"), 30*time.Second),
	}
	cfg.Chat = ChatConfig{
		BaseURL: os.Getenv("CHAT_BASE_URL"),
		Model:   firstNonEmpty(os.Getenv("CHAT_MODEL"), "gpt-4o-mini"),
		APIKey:  os.Getenv("CHAT_API_KEY"),
		Timeout: parseDurationDefault(os.Getenv("CHAT_TIMEOUT"), 60*time.Second),
	}
	cfg.ContentAPI = ContentAPIConfig{
		BaseURL: os.Getenv("CONTENT_API_BASE_URL"),
		APIKey:  os.Getenv("CONTENT_API_KEY"),
		Model:   os.Getenv("CONTENT_API_MODEL"),
		Timeout: parseDurationDefault(os.Getenv("CONTENT_API_TIMEOUT"), 60*time.Second),
	}
	cfg.Reranker = RerankerConfig{
		Type:    firstNonEmpty(os.Getenv("RERANKER_TYPE"), "bge"),
		Model:   os.Getenv("RERANKER_MODEL"),
		APIKey:  os.Getenv("RERANKER_API_KEY"),
		BaseURL: os.Getenv("RERANKER_BASE_URL"),
		UseFP16: parseBoolDefault(os.Getenv("RERANKER_USE_FP16"), false),
	}

	cfg.Ingestion = IngestionConfig{
		MaxWorkers:     parseIntDefault(os.Getenv("MAX_WORKERS"), 3),
		MaxRetries:     parseIntDefault(os.Getenv("MAX_RETRIES"), 3),
		RetryDelay:     parseDurationDefault(os.Getenv("RETRY_DELAY"), time.Second),
		ChunkSize:      parseIntDefault(os.Getenv("CHUNK_SIZE"), 850),
		ChunkOverlap:   parseIntDefault(os.Getenv("CHUNK_OVERLAP"), 100),
		MaxZipSize:     int64(parseIntDefault(os.Getenv("MAX_ZIP_SIZE"), 100*1024*1024)),
		MaxZipMembers:  parseIntDefault(os.Getenv("MAX_TOTAL_FILES"), 50),
		MaxZipExpanded: int64(parseIntDefault(os.Getenv("MAX_EXTRACTION_SIZE"), 500*1024*1024)),
	}

	cfg.Retrieval = RetrievalConfig{
		BM25K1:                     parseFloatDefault(os.Getenv("BM25_K1"), 1.5),
		BM25B:                      parseFloatDefault(os.Getenv("BM25_B"), 0.75),
		BM25Workers:                parseIntDefault(os.Getenv("BM25_WORKERS"), 0),
		BM25NormalizeFactor:        parseFloatDefault(os.Getenv("BM25_NORMALIZE_FACTOR"), 24.0),
		TopKDocuments:              parseIntDefault(os.Getenv("TOP_K_DOCUMENTS"), 30),
		ClusterSimilarityThreshold: parseFloatDefault(os.Getenv("CLUSTER_SIMILARITY_THRESHOLD"), 0.89),
		MinimumSimilarityScore:     parseFloatDefault(os.Getenv("MINIMUM_SIMILARITY_SCORE"), 1.8),
		DenseTopK:                  parseIntDefault(os.Getenv("DENSE_TOP_K"), 50),
		DenseScaleFactor:           parseFloatDefault(os.Getenv("DENSE_SCALE_FACTOR"), 3.26),
		ContextCharBudget:          parseIntDefault(os.Getenv("CONTEXT_CHAR_BUDGET"), 50000),
	}

	cfg.Obs = ObsConfig{
		ServiceName:    firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "campusrag"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		MetricsEnabled: parseBoolDefault(os.Getenv("OTEL_METRICS_ENABLED"), false),
		TracingEnabled: parseBoolDefault(os.Getenv("OTEL_TRACING_ENABLED"), false),
	}

	if boardsPath := os.Getenv("BOARDS_CONFIG_PATH"); boardsPath != "" {
		boards, err := LoadBoards(boardsPath)
		if err != nil {
			return cfg, fmt.Errorf("config: load boards file: %w", err)
		}
		cfg.Ingestion.Boards = boards
	}

	return cfg, nil
}

// LoadBoards reads the per-board selector/floor tuning from a YAML file,
// kept separate from environment configuration because it is structured
// and board-specific rather than a flat set of scalars.
func LoadBoards(path string) ([]BoardConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Boards []BoardConfig `yaml:"boards"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse boards yaml: %w", err)
	}
	return doc.Boards, nil
}
