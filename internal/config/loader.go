// Package config provides configuration loading for forgetfuld.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, STORAGE_BACKEND, SCOPE_INSTANCE, ...)
//  2. YAML config file (~/.config/forgetful/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, uses
// the default path: ~/.config/forgetful/config.yaml.
//
// # Security Considerations
//
// File Permissions: Configuration file MUST have 0600 or 0400 permissions
// (owner-only). Files with weaker permissions are rejected, since this file
// may carry API keys (Qdrant, TEI, cross-encoder endpoints).
//
// Path Validation: Only configuration files in allowed directories can be
// loaded: ~/.config/forgetful/ or /etc/forgetful/. Absolute paths outside
// these directories are rejected to prevent path traversal attacks.
//
// File Size Limit: Configuration files larger than 1MB are rejected.
//
// # Environment Variable Mapping
//
// Environment variables use underscore separator and are uppercased. The
// transformer splits on the first underscore (section.field pattern), and
// once more for storage's qdrant and embedded sub-sections:
//
//	SERVER_HTTP_PORT       -> server.http_port
//	STORAGE_BACKEND         -> storage.backend
//	STORAGE_QDRANT_HOST     -> storage.qdrant.host
//	EMBEDDINGS_DIMENSIONS   -> embeddings.dimensions
//	SCOPE_INSTANCE          -> scope.instance (FORGETFUL_SCOPES is mapped
//	                            to this field explicitly, see below)
//
// FORGETFUL_SCOPES does not follow the section_field convention since
// it names no section; it is read directly and assigned to
// Scope.Instance after the koanf env load. ACTIVITY_TRACK_READS is read
// the same way and assigned to Events.TrackReads.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "forgetful", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		if parts[0] == "storage" {
			for _, sub := range []string{"qdrant", "embedded"} {
				if strings.HasPrefix(parts[1], sub+"_") {
					return "storage." + sub + "." + strings.TrimPrefix(parts[1], sub+"_")
				}
			}
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// FORGETFUL_SCOPES is the env var for the instance scope ceiling; it
	// bypasses the section.field convention above.
	if scopes := os.Getenv("FORGETFUL_SCOPES"); scopes != "" {
		cfg.Scope.Instance = scopes
	}
	if raw := os.Getenv("ACTIVITY_TRACK_READS"); raw != "" {
		trackReads, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid ACTIVITY_TRACK_READS %q: %w", raw, err)
		}
		cfg.Events.TrackReads = trackReads
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureConfigDir creates the forgetful config directory if it doesn't
// exist, with 0700 permissions (owner read/write/execute only).
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "forgetful")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigPath checks if path is in allowed directories. This
// validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "forgetful"),
		"/etc/forgetful",
	}

	allowed := false
	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("config file must be in ~/.config/forgetful/ or /etc/forgetful/")
	}
	return nil
}

// validateConfigFileProperties checks file permissions and size. Takes
// FileInfo from an already-opened file descriptor to avoid TOCTOU races.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "forgetfuld"
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "embedded"
	}
	if cfg.Storage.Embedded.Path == "" {
		cfg.Storage.Embedded.Path = "~/.config/forgetful/vectorstore"
	}
	if cfg.Storage.Qdrant.Host == "" {
		cfg.Storage.Qdrant.Host = "localhost"
	}
	if cfg.Storage.Qdrant.Port == 0 {
		cfg.Storage.Qdrant.Port = 6334
	}
	if cfg.Storage.Qdrant.HTTPPort == 0 {
		cfg.Storage.Qdrant.HTTPPort = 6333
	}
	if cfg.Storage.Qdrant.CollectionName == "" {
		cfg.Storage.Qdrant.CollectionName = "forgetful_memories"
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Dimensions == 0 {
		cfg.Embeddings.Dimensions = 384 // bge-small-en-v1.5
	}

	if cfg.Reranker.Provider == "" {
		cfg.Reranker.Provider = "simple"
	}

	if cfg.Scope.Instance == "" {
		cfg.Scope.Instance = "*"
	}

	if cfg.TokenBudget.MemoryTokenBudget == 0 {
		cfg.TokenBudget.MemoryTokenBudget = 4000
	}

	if cfg.Auth.Namespace == "" {
		// Fixed default namespace so a fresh deployment resolves bearer
		// tokens to user IDs deterministically without extra setup;
		// production deployments should override AUTH_NAMESPACE.
		cfg.Auth.Namespace = defaultAuthNamespace
	}
}

// defaultAuthNamespace is forgetfuld's well-known UUID v5 namespace for
// deriving user IDs from bearer tokens when AUTH_NAMESPACE is unset.
const defaultAuthNamespace = "2c1c7b46-de63-4d3e-9a1e-2f6c9b9a6b42"
