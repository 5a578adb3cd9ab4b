// Package config provides configuration loading for forgetfuld.
//
// Configuration is loaded from a YAML file with environment variable
// overrides and sensible defaults. This package supports server, storage,
// embeddings, reranker, scope, and observability settings.
package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forgetful-ai/forgetful/internal/scope"
)

// Config holds the complete forgetfuld configuration.
type Config struct {
	Server        ServerConfig
	Observability ObservabilityConfig
	Storage       StorageConfig
	Embeddings    EmbeddingsConfig
	Reranker      RerankerConfig
	Scope         ScopeConfig
	TokenBudget   TokenBudgetConfig
	Events        EventsConfig
	Auth          AuthConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry   bool   `koanf:"enable_telemetry"`
	ServiceName       string `koanf:"service_name"`
	OTLPEndpoint      string `koanf:"otlp_endpoint"`        // OTLP endpoint (default: localhost:4317)
	OTLPProtocol      string `koanf:"otlp_protocol"`        // "grpc" or "http/protobuf" (default: grpc)
	OTLPInsecure      bool   `koanf:"otlp_insecure"`        // Use insecure connection (default: true for localhost)
	OTLPTLSSkipVerify bool   `koanf:"otlp_tls_skip_verify"` // Skip TLS verification for internal CAs
}

// StorageConfig selects and configures the storage.Repository backend.
// Exactly one of Embedded or Qdrant is active depending on Backend.
type StorageConfig struct {
	// Backend is "embedded" (chromem-go, default, no external deps) or
	// "qdrant" (external server, for multi-process deployments).
	Backend  string         `koanf:"backend"`
	Embedded EmbeddedConfig `koanf:"embedded"`
	Qdrant   QdrantConfig   `koanf:"qdrant"`
}

// Validate validates StorageConfig.
func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case "embedded":
		return c.Embedded.Validate()
	case "qdrant":
		return c.Qdrant.Validate()
	default:
		return fmt.Errorf("unsupported storage backend: %s (supported: embedded, qdrant)", c.Backend)
	}
}

// EmbeddedConfig holds chromem-go embedded vector database configuration.
type EmbeddedConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/forgetful/vectorstore"
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`
}

// Validate validates EmbeddedConfig.
func (c *EmbeddedConfig) Validate() error {
	return validatePath(c.Path)
}

// QdrantConfig holds Qdrant vector database configuration.
type QdrantConfig struct {
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	HTTPPort       int    `koanf:"http_port"`
	CollectionName string `koanf:"collection_name"`
	APIKey         Secret `koanf:"api_key"`
	UseTLS         bool   `koanf:"use_tls"`
}

// Validate validates QdrantConfig.
func (c *QdrantConfig) Validate() error {
	if err := validateHostname(c.Host); err != nil {
		return fmt.Errorf("invalid qdrant host: %w", err)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid qdrant port: %d (must be 1-65535)", c.Port)
	}
	if c.CollectionName == "" {
		return errors.New("qdrant collection_name is required")
	}
	return nil
}

// EmbeddingsConfig holds embeddings service configuration.
type EmbeddingsConfig struct {
	Provider string `koanf:"provider"` // "fastembed" or "tei"
	BaseURL  string `koanf:"base_url"` // TEI URL (if using TEI)
	Model    string `koanf:"model"`
	CacheDir string `koanf:"cache_dir"` // Model cache directory (for fastembed)

	// Dimensions is the embedding vector length this deployment expects.
	// The adapter's actual output length is checked against this exactly
	// at startup; a mismatch is fatal rather than silently truncated or
	// padded.
	Dimensions int `koanf:"dimensions"`
}

// Validate validates EmbeddingsConfig.
func (c *EmbeddingsConfig) Validate() error {
	switch c.Provider {
	case "fastembed", "tei":
	default:
		return fmt.Errorf("unsupported embeddings provider: %s (supported: fastembed, tei)", c.Provider)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("embeddings dimensions must be positive, got %d", c.Dimensions)
	}
	if c.BaseURL != "" {
		if err := validateURL(c.BaseURL); err != nil {
			return fmt.Errorf("invalid embeddings base_url: %w", err)
		}
	}
	if c.CacheDir != "" {
		if err := validatePath(c.CacheDir); err != nil {
			return fmt.Errorf("invalid embeddings cache_dir: %w", err)
		}
	}
	return nil
}

// RerankerConfig holds reranker adapter configuration.
type RerankerConfig struct {
	// Provider is "simple" (the in-process term-overlap reranker, default) or
	// "crossencoder" (an HTTP cross-encoder service).
	Provider string `koanf:"provider"`
	BaseURL  string `koanf:"base_url"` // cross-encoder endpoint, if Provider == "crossencoder"
}

// Validate validates RerankerConfig.
func (c *RerankerConfig) Validate() error {
	switch c.Provider {
	case "simple":
		return nil
	case "crossencoder":
		if c.BaseURL == "" {
			return errors.New("reranker base_url is required when provider is crossencoder")
		}
		return validateURL(c.BaseURL)
	default:
		return fmt.Errorf("unsupported reranker provider: %s (supported: simple, crossencoder)", c.Provider)
	}
}

// ScopeConfig holds the instance-wide scope ceiling (FORGETFUL_SCOPES):
// the upper bound every session/tool-call scope is intersected against.
type ScopeConfig struct {
	// Instance is the raw scope string, e.g. "*" or "read,write:memory".
	Instance string `koanf:"instance"`
}

// Parse validates and parses Instance into scope.Scopes.
func (c *ScopeConfig) Parse() (scope.Scopes, error) {
	return scope.ParseScopes(c.Instance)
}

// Validate validates ScopeConfig by parsing it.
func (c *ScopeConfig) Validate() error {
	_, err := c.Parse()
	return err
}

// TokenBudgetConfig holds the instance-level token budget for composed
// memory results. The value is defaulted and validated here, but neither
// the HTTP search handler nor the query_memory tool reads it: each
// applies its own 4000-token default when a request omits
// token_context_threshold.
type TokenBudgetConfig struct {
	MemoryTokenBudget int `koanf:"memory_token_budget"`
}

// Validate validates TokenBudgetConfig.
func (c *TokenBudgetConfig) Validate() error {
	if c.MemoryTokenBudget <= 0 {
		return fmt.Errorf("memory_token_budget must be positive, got %d", c.MemoryTokenBudget)
	}
	return nil
}

// EventsConfig holds activity event bus configuration.
type EventsConfig struct {
	// NATSURL is an external NATS server URL. Empty starts an embedded
	// nats-server instead (no external dependency required).
	NATSURL string `koanf:"nats_url"`

	// TrackReads gates whether Read/Queried activity events are emitted,
	// in addition to the always-emitted mutation events.
	TrackReads bool `koanf:"track_reads"`
}

// AuthConfig holds bearer-token identity resolution configuration.
type AuthConfig struct {
	// Namespace is the UUID namespace used to deterministically derive a
	// user's UUID from their bearer token (internal/auth.Resolver).
	Namespace string `koanf:"namespace"`
}

// ParseNamespace parses Namespace into a uuid.UUID.
func (c *AuthConfig) ParseNamespace() (uuid.UUID, error) {
	if c.Namespace == "" {
		return uuid.UUID{}, errors.New("auth namespace is required")
	}
	return uuid.Parse(c.Namespace)
}

// Validate validates AuthConfig.
func (c *AuthConfig) Validate() error {
	_, err := c.ParseNamespace()
	return err
}

// Validate validates the complete configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := c.Embeddings.Validate(); err != nil {
		return fmt.Errorf("embeddings config: %w", err)
	}
	if err := c.Reranker.Validate(); err != nil {
		return fmt.Errorf("reranker config: %w", err)
	}
	if err := c.Scope.Validate(); err != nil {
		return fmt.Errorf("scope config: %w", err)
	}
	if err := c.TokenBudget.Validate(); err != nil {
		return fmt.Errorf("token budget config: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}
	return nil
}

// validateHostname checks if a hostname is safe (no command injection attempts).
// Uses positive validation with net.ParseIP for IP addresses and regexp for hostnames.
func validateHostname(host string) error {
	if host == "" {
		return nil
	}
	if net.ParseIP(host) != nil {
		return nil
	}

	hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format: %s", host)
	}

	invalidChars := []string{";", "\n", "\r", "$", "`", "|", "&", "<", ">", "(", ")"}
	for _, char := range invalidChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("invalid hostname: contains forbidden character %q", char)
		}
	}
	return nil
}

// validatePath checks if a path is safe (no path traversal).
func validatePath(path string) error {
	if path == "" {
		return nil
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal sequence: %s", path)
	}

	if filepath.IsAbs(path) {
		clean := filepath.Clean(path)
		origDepth := strings.Count(path, string(filepath.Separator))
		cleanDepth := strings.Count(clean, string(filepath.Separator))
		if cleanDepth < origDepth-1 {
			return fmt.Errorf("path traversal detected: %s (resolves to %s)", path, clean)
		}
	}
	return nil
}

// validateURL checks if a URL uses allowed schemes (http/https only).
func validateURL(urlStr string) error {
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		return fmt.Errorf("URL must use http:// or https:// scheme, got: %s", urlStr)
	}
	return nil
}
