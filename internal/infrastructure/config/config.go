// Package config provides configuration loading for the appmap service.
// It handles the listen address, oracle settings, and mapping tunables from
// environment variables, with the Gemini API key sourced from HashiCorp
// Vault (preferred) or the environment (fallback).
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/vault"
)

// Environment variable names.
const (
	// EnvListenAddr is the HTTP listen address.
	EnvListenAddr = "APPMAP_LISTEN_ADDR"

	// EnvGeminiAPIKey is the Gemini API key (fallback when Vault is not configured).
	EnvGeminiAPIKey = "GEMINI_API_KEY"

	// EnvGeminiModel is the Gemini model name.
	EnvGeminiModel = "APPMAP_GEMINI_MODEL"

	// EnvUncertaintyThreshold is the similarity below which mappings are flagged.
	EnvUncertaintyThreshold = "APPMAP_UNCERTAINTY_THRESHOLD"

	// EnvOracleTimeout is the per-call oracle timeout (Go duration syntax).
	EnvOracleTimeout = "APPMAP_ORACLE_TIMEOUT"

	// EnvDefaultConcurrency is the concurrency used when a request omits it.
	EnvDefaultConcurrency = "APPMAP_DEFAULT_CONCURRENCY"

	// EnvMaxUploadBytes bounds dataset uploads.
	EnvMaxUploadBytes = "APPMAP_MAX_UPLOAD_BYTES"

	// EnvVaultGeminiKeyPath is the path in Vault KV where the API key is stored.
	EnvVaultGeminiKeyPath = "VAULT_GEMINI_KEY_PATH"

	// EnvVaultGeminiKeyMount is the Vault KV mount point (defaults to "secret").
	EnvVaultGeminiKeyMount = "VAULT_GEMINI_KEY_MOUNT"

	// EnvLogLevel is the log level (debug, info, error).
	EnvLogLevel = "LOG_LEVEL"

	// EnvLogAppName is the application name for log context.
	EnvLogAppName = "LOG_APP_NAME"
)

// Default values.
const (
	DefaultListenAddr           = ":8090"
	DefaultGeminiModel          = "gemini-2.0-flash"
	DefaultUncertaintyThreshold = 0.3
	DefaultOracleTimeout        = 60 * time.Second
	DefaultConcurrency          = 10
	DefaultMaxUploadBytes       = 20 << 20
	DefaultVaultGeminiMount     = "secret"
	DefaultLogLevel             = "info"
	DefaultLogAppName           = "appmap"
)

// vaultAPIKeyField is the key under which the API key is stored in the
// Vault secret.
const vaultAPIKeyField = "api_key"

// Configuration errors.
var (
	// ErrAPIKeyRequired indicates no Gemini API key source is available.
	ErrAPIKeyRequired = errors.New(
		"gemini API key required: set VAULT_GEMINI_KEY_PATH (with VAULT_ADDRESS, VAULT_ROLE_ID, VAULT_SECRET_ID) " +
			"or GEMINI_API_KEY",
	)

	// ErrVaultClientFailed indicates failure to create or authenticate with Vault.
	ErrVaultClientFailed = errors.New("failed to create Vault client")

	// ErrVaultSecretNotFound indicates the secret was not found in Vault.
	ErrVaultSecretNotFound = errors.New("gemini API key not found in Vault")

	// ErrVaultSecretMalformed indicates the Vault secret lacks the api_key field.
	ErrVaultSecretMalformed = errors.New("vault secret missing api_key field")

	// ErrInvalidSetting indicates an environment variable could not be parsed.
	ErrInvalidSetting = errors.New("invalid configuration setting")
)

// VaultClient defines the interface for Vault operations.
// This interface allows for dependency injection and testing.
type VaultClient interface {
	// GetKVSecret retrieves a secret from Vault's KV v2 secrets engine.
	GetKVSecret(ctx context.Context, path, mount string) (map[string]interface{}, error)
}

// VaultClientFactory creates a VaultClient using AppRole authentication.
// This is the default factory used in production.
type VaultClientFactory func(ctx context.Context) (VaultClient, error)

// DefaultVaultClientFactory creates a VaultClient using goLibMyCarrier/vault with AppRole auth.
func DefaultVaultClientFactory(ctx context.Context) (VaultClient, error) {
	// Uses: VAULT_ADDRESS, VAULT_ROLE_ID, VAULT_SECRET_ID
	vaultConfig, err := vault.VaultLoadConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	client, err := vault.CreateVaultClient(ctx, vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	return client, nil
}

// Config holds all application configuration.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string

	// GeminiAPIKey is the oracle API key.
	GeminiAPIKey string

	// GeminiModel is the oracle model name.
	GeminiModel string

	// UncertaintyThreshold is the similarity below which mappings are flagged.
	UncertaintyThreshold float64

	// OracleTimeout bounds each individual oracle call.
	OracleTimeout time.Duration

	// DefaultConcurrency is used when a request omits maxConcurrency.
	DefaultConcurrency int

	// MaxUploadBytes bounds dataset uploads.
	MaxUploadBytes int64

	// LogLevel is the logging level (debug, info, error).
	LogLevel string

	// LogAppName is the application name for log context.
	LogAppName string
}

// Load loads the application configuration from environment variables.
// The Gemini API key is loaded from Vault (preferred) or environment (fallback).
//
// For Vault loading, requires:
//   - VAULT_ADDRESS: Vault server address
//   - VAULT_ROLE_ID: AppRole role ID
//   - VAULT_SECRET_ID: AppRole secret ID
//   - VAULT_GEMINI_KEY_PATH: Path to the secret in Vault
//   - VAULT_GEMINI_KEY_MOUNT: KV mount point (optional, defaults to "secret")
//
// For environment loading (fallback):
//   - GEMINI_API_KEY
//
// Returns ErrAPIKeyRequired if no API key source is available.
func Load() (*Config, error) {
	return LoadWithVaultClient(context.Background(), nil)
}

// LoadWithVaultClient loads configuration using the provided VaultClient factory.
// If vaultClientFactory is nil, DefaultVaultClientFactory is used.
// This function enables dependency injection for testing.
func LoadWithVaultClient(ctx context.Context, vaultClientFactory VaultClientFactory) (*Config, error) {
	apiKey, err := loadAPIKey(ctx, vaultClientFactory)
	if err != nil {
		return nil, err
	}

	threshold, err := floatEnv(EnvUncertaintyThreshold, DefaultUncertaintyThreshold)
	if err != nil {
		return nil, err
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: %s must be in [0,1], got %v", ErrInvalidSetting, EnvUncertaintyThreshold, threshold)
	}

	timeout, err := durationEnv(EnvOracleTimeout, DefaultOracleTimeout)
	if err != nil {
		return nil, err
	}

	concurrency, err := intEnv(EnvDefaultConcurrency, DefaultConcurrency)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalidSetting, EnvDefaultConcurrency, concurrency)
	}

	maxUpload, err := intEnv(EnvMaxUploadBytes, DefaultMaxUploadBytes)
	if err != nil {
		return nil, err
	}

	return &Config{
		ListenAddr:           stringEnv(EnvListenAddr, DefaultListenAddr),
		GeminiAPIKey:         apiKey,
		GeminiModel:          stringEnv(EnvGeminiModel, DefaultGeminiModel),
		UncertaintyThreshold: threshold,
		OracleTimeout:        timeout,
		DefaultConcurrency:   concurrency,
		MaxUploadBytes:       int64(maxUpload),
		LogLevel:             stringEnv(EnvLogLevel, DefaultLogLevel),
		LogAppName:           stringEnv(EnvLogAppName, DefaultLogAppName),
	}, nil
}

// loadAPIKey attempts to load the Gemini API key from Vault first, falling
// back to the environment if Vault is not configured.
func loadAPIKey(ctx context.Context, vaultClientFactory VaultClientFactory) (string, error) {
	vaultPath := os.Getenv(EnvVaultGeminiKeyPath)
	if vaultPath != "" {
		return loadAPIKeyFromVault(ctx, vaultClientFactory, vaultPath)
	}

	if key := os.Getenv(EnvGeminiAPIKey); key != "" {
		return key, nil
	}

	return "", ErrAPIKeyRequired
}

// loadAPIKeyFromVault loads the API key from Vault KV v2.
func loadAPIKeyFromVault(ctx context.Context, vaultClientFactory VaultClientFactory, path string) (string, error) {
	if vaultClientFactory == nil {
		vaultClientFactory = DefaultVaultClientFactory
	}

	client, err := vaultClientFactory(ctx)
	if err != nil {
		return "", err
	}

	mount := os.Getenv(EnvVaultGeminiKeyMount)
	if mount == "" {
		mount = DefaultVaultGeminiMount
	}

	secretData, err := client.GetKVSecret(ctx, path, mount)
	if err != nil {
		return "", fmt.Errorf("%w at path %s: %w", ErrVaultSecretNotFound, path, err)
	}

	key, ok := secretData[vaultAPIKeyField].(string)
	if !ok || key == "" {
		return "", fmt.Errorf("%w at path %s", ErrVaultSecretMalformed, path)
	}
	return key, nil
}

// stringEnv returns the environment value or the default when unset.
func stringEnv(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// intEnv parses an integer environment value with a default.
func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidSetting, name, raw)
	}
	return v, nil
}

// floatEnv parses a float environment value with a default.
func floatEnv(name string, def float64) (float64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidSetting, name, raw)
	}
	return v, nil
}

// durationEnv parses a duration environment value with a default.
func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a duration", ErrInvalidSetting, name, raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidSetting, name)
	}
	return v, nil
}
