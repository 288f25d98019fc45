// Package config centralizes gateway configuration. Configuration is loaded
// from environment variables with sensible defaults; missing required
// configuration causes startup to fail fast with a descriptive error.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all gateway process configuration.
type Config struct {
	// Server configuration
	Port int

	// Persistence configuration
	DBDriver string // "sqlite" or "postgres"
	DBDSN    string

	// Blob storage configuration
	S3Bucket string
	S3Region string

	// Kubernetes configuration
	Namespace  string
	Kubeconfig string

	// Auth configuration
	JWTSecret   string
	OIDCIssuer  string
	OIDCClientID string

	// Tunables (§6.4)
	HeartbeatScanInterval   time.Duration
	HeartbeatLivenessBound  time.Duration
	PendingResultCap        int
	PendingResultEvictBatch int
	ProcessBufferCap        int
	SnapshotRetention       int
	MemorySearchTopKMin     int
	MemorySearchTopKMax     int

	// Per-org connection ceiling (OrgQuota, SPEC_FULL §3 NEW)
	MaxConnectionsPerOrg int

	// Connect-rate limiting
	ConnectRateLimitPerSecond float64
	ConnectRateLimitBurst     int

	SkillPackageRoot string

	// LLMRoutingConfig is the runtime LLM routing config sent on every
	// connection's `init` frame alongside the sealed provider keys. There is
	// no per-org override store in this gateway's scope, so every org gets
	// this same process-wide default; broadcastLLMConfigUpdate exists for an
	// out-of-scope admin surface to push a runtime override later.
	LLMRoutingConfig map[string]any
}

// ValidationError is one configuration field failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Default values, per spec §6.4 and the ambient conventions of this stack.
const (
	DefaultPort                      = 8080
	DefaultDBDriver                  = "sqlite"
	DefaultDBDSN                     = "gateway.db"
	DefaultNamespace                 = "default"
	DefaultHeartbeatScanInterval     = 5 * time.Second
	DefaultHeartbeatLivenessBound    = 30 * time.Second
	DefaultPendingResultCap          = 200
	DefaultPendingResultEvictBatch   = 50
	DefaultProcessBufferCap          = 500
	DefaultSnapshotRetention         = 3
	DefaultMemorySearchTopKMin       = 1
	DefaultMemorySearchTopKMax       = 20
	DefaultMaxConnectionsPerOrg      = 50
	DefaultConnectRateLimitPerSecond = 5.0
	DefaultConnectRateLimitBurst     = 10
	DefaultSkillPackageRoot          = "./skill-packages"
)

// defaultLLMRoutingConfig is the fallback routing config used when
// GATEWAY_LLM_ROUTING_CONFIG is unset.
func defaultLLMRoutingConfig() map[string]any {
	return map[string]any{
		"default_provider": "anthropic",
		"fallback_order":   []any{"anthropic", "openai", "google"},
	}
}

// Load reads configuration from environment variables, applies defaults, and
// validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                      DefaultPort,
		DBDriver:                  DefaultDBDriver,
		DBDSN:                     DefaultDBDSN,
		Namespace:                 DefaultNamespace,
		HeartbeatScanInterval:     DefaultHeartbeatScanInterval,
		HeartbeatLivenessBound:    DefaultHeartbeatLivenessBound,
		PendingResultCap:          DefaultPendingResultCap,
		PendingResultEvictBatch:   DefaultPendingResultEvictBatch,
		ProcessBufferCap:          DefaultProcessBufferCap,
		SnapshotRetention:         DefaultSnapshotRetention,
		MemorySearchTopKMin:       DefaultMemorySearchTopKMin,
		MemorySearchTopKMax:       DefaultMemorySearchTopKMax,
		MaxConnectionsPerOrg:      DefaultMaxConnectionsPerOrg,
		ConnectRateLimitPerSecond: DefaultConnectRateLimitPerSecond,
		ConnectRateLimitBurst:     DefaultConnectRateLimitBurst,
		SkillPackageRoot:          DefaultSkillPackageRoot,
		LLMRoutingConfig:          defaultLLMRoutingConfig(),
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	var parseErrors ValidationErrors

	if v := os.Getenv("GATEWAY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			parseErrors = append(parseErrors, ValidationError{"GATEWAY_PORT", fmt.Sprintf("invalid port: %q", v)})
		} else {
			c.Port = port
		}
	}

	if v := os.Getenv("GATEWAY_DB_DRIVER"); v != "" {
		c.DBDriver = v
	}
	if v := os.Getenv("GATEWAY_DB_DSN"); v != "" {
		c.DBDSN = v
	}
	if v := os.Getenv("GATEWAY_S3_BUCKET"); v != "" {
		c.S3Bucket = v
	}
	if v := os.Getenv("GATEWAY_S3_REGION"); v != "" {
		c.S3Region = v
	}
	if v := os.Getenv("GATEWAY_NAMESPACE"); v != "" {
		c.Namespace = v
	}
	if v := os.Getenv("KUBECONFIG"); v != "" {
		c.Kubeconfig = v
	}
	if v := os.Getenv("GATEWAY_JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("GATEWAY_OIDC_ISSUER"); v != "" {
		c.OIDCIssuer = v
	}
	if v := os.Getenv("GATEWAY_OIDC_CLIENT_ID"); v != "" {
		c.OIDCClientID = v
	}
	if v := os.Getenv("GATEWAY_SKILL_PACKAGE_ROOT"); v != "" {
		c.SkillPackageRoot = v
	}
	if v := os.Getenv("GATEWAY_LLM_ROUTING_CONFIG"); v != "" {
		var routing map[string]any
		if err := json.Unmarshal([]byte(v), &routing); err != nil {
			parseErrors = append(parseErrors, ValidationError{"GATEWAY_LLM_ROUTING_CONFIG", fmt.Sprintf("must be a JSON object: %v", err)})
		} else {
			c.LLMRoutingConfig = routing
		}
	}

	if v := os.Getenv("GATEWAY_HEARTBEAT_SCAN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n <= 0 {
			parseErrors = append(parseErrors, ValidationError{"GATEWAY_HEARTBEAT_SCAN_SECONDS", fmt.Sprintf("must be a positive integer, got %q", v)})
		} else {
			c.HeartbeatScanInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("GATEWAY_HEARTBEAT_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n <= 0 {
			parseErrors = append(parseErrors, ValidationError{"GATEWAY_HEARTBEAT_TIMEOUT_SECONDS", fmt.Sprintf("must be a positive integer, got %q", v)})
		} else {
			c.HeartbeatLivenessBound = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("GATEWAY_PENDING_RESULT_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n <= 0 {
			parseErrors = append(parseErrors, ValidationError{"GATEWAY_PENDING_RESULT_CAP", fmt.Sprintf("must be a positive integer, got %q", v)})
		} else {
			c.PendingResultCap = n
		}
	}
	if v := os.Getenv("GATEWAY_PENDING_RESULT_EVICT_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n <= 0 {
			parseErrors = append(parseErrors, ValidationError{"GATEWAY_PENDING_RESULT_EVICT_BATCH", fmt.Sprintf("must be a positive integer, got %q", v)})
		} else {
			c.PendingResultEvictBatch = n
		}
	}
	if v := os.Getenv("GATEWAY_PROCESS_BUFFER_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n <= 0 {
			parseErrors = append(parseErrors, ValidationError{"GATEWAY_PROCESS_BUFFER_CAP", fmt.Sprintf("must be a positive integer, got %q", v)})
		} else {
			c.ProcessBufferCap = n
		}
	}
	if v := os.Getenv("GATEWAY_SNAPSHOT_RETENTION"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n <= 0 {
			parseErrors = append(parseErrors, ValidationError{"GATEWAY_SNAPSHOT_RETENTION", fmt.Sprintf("must be a positive integer, got %q", v)})
		} else {
			c.SnapshotRetention = n
		}
	}
	if v := os.Getenv("GATEWAY_MAX_CONNECTIONS_PER_ORG"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n <= 0 {
			parseErrors = append(parseErrors, ValidationError{"GATEWAY_MAX_CONNECTIONS_PER_ORG", fmt.Sprintf("must be a positive integer, got %q", v)})
		} else {
			c.MaxConnectionsPerOrg = n
		}
	}
	if v := os.Getenv("GATEWAY_CONNECT_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err != nil || f <= 0 {
			parseErrors = append(parseErrors, ValidationError{"GATEWAY_CONNECT_RATE_LIMIT", fmt.Sprintf("must be a positive number, got %q", v)})
		} else {
			c.ConnectRateLimitPerSecond = f
		}
	}
	if v := os.Getenv("GATEWAY_CONNECT_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n <= 0 {
			parseErrors = append(parseErrors, ValidationError{"GATEWAY_CONNECT_RATE_BURST", fmt.Sprintf("must be a positive integer, got %q", v)})
		} else {
			c.ConnectRateLimitBurst = n
		}
	}

	if len(parseErrors) > 0 {
		return parseErrors
	}
	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ValidationError{"GATEWAY_PORT", fmt.Sprintf("port must be between 1 and 65535, got %d", c.Port)})
	}
	if c.DBDriver != "sqlite" && c.DBDriver != "postgres" {
		errs = append(errs, ValidationError{"GATEWAY_DB_DRIVER", fmt.Sprintf("must be 'sqlite' or 'postgres', got %q", c.DBDriver)})
	}
	if c.DBDSN == "" {
		errs = append(errs, ValidationError{"GATEWAY_DB_DSN", "must not be empty"})
	}
	if c.JWTSecret == "" && c.OIDCIssuer == "" {
		errs = append(errs, ValidationError{"GATEWAY_JWT_SECRET", "either GATEWAY_JWT_SECRET or GATEWAY_OIDC_ISSUER must be set"})
	}
	if c.PendingResultEvictBatch > c.PendingResultCap {
		errs = append(errs, ValidationError{"GATEWAY_PENDING_RESULT_EVICT_BATCH", "eviction batch must not exceed the cache cap"})
	}
	if c.MemorySearchTopKMin > c.MemorySearchTopKMax {
		errs = append(errs, ValidationError{"GATEWAY_MEMORY_SEARCH_TOPK", "min must not exceed max"})
	}

	return errs
}

// ClampTopK bounds a requested memory-search top-k into [min,max] per §6.4.
func (c *Config) ClampTopK(k int) int {
	if k < c.MemorySearchTopKMin {
		return c.MemorySearchTopKMin
	}
	if k > c.MemorySearchTopKMax {
		return c.MemorySearchTopKMax
	}
	return k
}
