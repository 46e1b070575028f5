// Package config loads the server's environment from environment variables
// (optionally seeded from a .env file) with sane local-dev defaults. The
// only file it names is the rego policy at AuthzPolicyPath.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config is every externally-supplied setting the server needs to start.
type Config struct {
	ServicePort string

	// SQLDBHost set means Postgres; empty means the embedded sqlite dev path.
	SQLDBHost     string
	SQLDBUser     string
	SQLDBName     string
	SQLDBPassword string
	SQLDBSSLMode  string
	SQLitePath    string

	// SigningKeyPEM is the server's long-lived Ed25519 private key (PEM,
	// base64 of PEM, or base64 of the raw 64-byte key; see
	// signing.LoadPrivateKey).
	SigningKeyPEM string

	FirmwareAssetDir string

	// OIDCIssuerURL and OIDCClientID configure operator bearer-token
	// verification; AuthzPolicyPath points at the rego module deciding
	// tenant scope once a token verifies.
	OIDCIssuerURL  string
	OIDCClientID   string
	AuthzPolicyPath string

	AMQPConnectionString string
	AMQPExchange         string
}

// Load reads environment variables (after loading an optional .env file
// into the process environment) into a Config.
func Load(logger zerolog.Logger) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Msg("failed to load .env file")
	}

	cfg := Config{
		ServicePort:           getOrDefault("SERVICE_PORT", "8080"),
		SQLDBHost:             os.Getenv("TOON_SQLDB_HOST"),
		SQLDBUser:             os.Getenv("TOON_SQLDB_USER"),
		SQLDBName:             os.Getenv("TOON_SQLDB_NAME"),
		SQLDBPassword:         os.Getenv("TOON_SQLDB_PASSWORD"),
		SQLDBSSLMode:          getOrDefault("TOON_SQLDB_SSLMODE", "disable"),
		SQLitePath:            os.Getenv("TOON_SQLITE_PATH"),
		SigningKeyPEM:         os.Getenv("TOON_SIGNING_KEY"),
		FirmwareAssetDir:      getOrDefault("TOON_FIRMWARE_ASSET_DIR", "/opt/toon-fleet/firmware"),
		OIDCIssuerURL:         os.Getenv("TOON_OIDC_ISSUER_URL"),
		OIDCClientID:          os.Getenv("TOON_OIDC_CLIENT_ID"),
		AuthzPolicyPath:       getOrDefault("TOON_AUTHZ_POLICY_PATH", "/opt/toon-fleet/authz.rego"),
		AMQPConnectionString:  os.Getenv("TOON_AMQP_URL"),
		AMQPExchange:          getOrDefault("TOON_AMQP_EXCHANGE", "toon-fleet-events"),
	}

	if cfg.SigningKeyPEM == "" {
		return Config{}, fmt.Errorf("TOON_SIGNING_KEY must be set (PEM or base64 Ed25519 private key)")
	}

	return cfg, nil
}

// UsesPostgres reports whether SQLDBHost selects the Postgres connector
// rather than the embedded sqlite dev path.
func (c Config) UsesPostgres() bool {
	return c.SQLDBHost != ""
}

func getOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
