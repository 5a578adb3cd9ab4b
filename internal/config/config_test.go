package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadWithFile_Defaults(t *testing.T) {
	restore := saveEnv()
	defer restore()

	home := t.TempDir()
	os.Setenv("HOME", home)

	cfg, err := LoadWithFile("")
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Observability.EnableTelemetry {
		t.Error("Observability.EnableTelemetry = true, want false by default")
	}
	if cfg.Observability.ServiceName != "forgetfuld" {
		t.Errorf("Observability.ServiceName = %q, want forgetfuld", cfg.Observability.ServiceName)
	}
	if cfg.Storage.Backend != "embedded" {
		t.Errorf("Storage.Backend = %q, want embedded", cfg.Storage.Backend)
	}
	if cfg.Embeddings.Provider != "fastembed" {
		t.Errorf("Embeddings.Provider = %q, want fastembed", cfg.Embeddings.Provider)
	}
	if cfg.Embeddings.Dimensions != 384 {
		t.Errorf("Embeddings.Dimensions = %d, want 384", cfg.Embeddings.Dimensions)
	}
	if cfg.Reranker.Provider != "simple" {
		t.Errorf("Reranker.Provider = %q, want simple", cfg.Reranker.Provider)
	}
	if cfg.Scope.Instance != "*" {
		t.Errorf("Scope.Instance = %q, want *", cfg.Scope.Instance)
	}
	if cfg.TokenBudget.MemoryTokenBudget != 4000 {
		t.Errorf("TokenBudget.MemoryTokenBudget = %d, want 4000", cfg.TokenBudget.MemoryTokenBudget)
	}
}

func TestLoadWithFile_EnvOverrides(t *testing.T) {
	restore := saveEnv()
	defer restore()

	home := t.TempDir()
	os.Setenv("HOME", home)
	os.Setenv("SERVER_HTTP_PORT", "8080")
	os.Setenv("STORAGE_BACKEND", "qdrant")
	os.Setenv("STORAGE_QDRANT_HOST", "qdrant.internal")
	os.Setenv("STORAGE_QDRANT_COLLECTION_NAME", "custom_memories")
	os.Setenv("EMBEDDINGS_DIMENSIONS", "768")
	os.Setenv("FORGETFUL_SCOPES", "read,write:memory")

	cfg, err := LoadWithFile("")
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "qdrant" {
		t.Errorf("Storage.Backend = %q, want qdrant", cfg.Storage.Backend)
	}
	if cfg.Storage.Qdrant.Host != "qdrant.internal" {
		t.Errorf("Storage.Qdrant.Host = %q, want qdrant.internal", cfg.Storage.Qdrant.Host)
	}
	if cfg.Storage.Qdrant.CollectionName != "custom_memories" {
		t.Errorf("Storage.Qdrant.CollectionName = %q, want custom_memories", cfg.Storage.Qdrant.CollectionName)
	}
	if cfg.Embeddings.Dimensions != 768 {
		t.Errorf("Embeddings.Dimensions = %d, want 768", cfg.Embeddings.Dimensions)
	}
	if cfg.Scope.Instance != "read,write:memory" {
		t.Errorf("Scope.Instance = %q, want read,write:memory", cfg.Scope.Instance)
	}
}

func TestConfig_Validate_RejectsUnknownStorageBackend(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Storage.Backend = "dynamodb"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unknown storage backend")
	}
}

func TestConfig_Validate_RejectsNonPositiveDimensions(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Embeddings.Dimensions = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for zero embedding dimensions")
	}
}

func TestConfig_Validate_RejectsInvalidScopeString(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Scope.Instance = "write:nonsense"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for invalid scope token")
	}
}

func TestConfig_Validate_RejectsBadAuthNamespace(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Auth.Namespace = "not-a-uuid"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for malformed auth namespace")
	}
}

func TestConfig_Validate_AcceptsValidConfig(t *testing.T) {
	cfg := baseValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func baseValidConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// saveEnv snapshots relevant environment variables and returns a restore func.
func saveEnv() func() {
	keys := []string{
		"HOME", "SERVER_HTTP_PORT", "STORAGE_BACKEND",
		"STORAGE_QDRANT_HOST", "STORAGE_QDRANT_COLLECTION_NAME",
		"STORAGE_EMBEDDED_PATH", "EMBEDDINGS_DIMENSIONS",
		"EMBEDDINGS_BASE_URL", "FORGETFUL_SCOPES", "AUTH_NAMESPACE",
	}
	saved := make(map[string]string, len(keys))
	present := make(map[string]bool, len(keys))
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			saved[k] = v
			present[k] = true
		}
	}
	return func() {
		for _, k := range keys {
			if present[k] {
				os.Setenv(k, saved[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}
