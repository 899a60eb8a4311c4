package config

import (
	"os"
	"strconv"
)

// Config holds process-wide configuration for the attestation kernel,
// loaded once at startup from environment variables.
type Config struct {
	Port          string
	LogLevel      string
	StoreDir      string
	ProfilesDir   string

	UniversalResolverURL string
	DefaultExpiryDays    int

	LedgerNetwork     string
	LedgerRPCURL      string
	LedgerPrivateKey  string
	LedgerSchemaUID   string
	LedgerChainID     int64
	AnchoringDisabled bool

	OTELEndpoint string
	OTELEnabled  bool
}

// Load loads configuration from environment variables, applying spec
// defaults where a variable is unset.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	storeDir := os.Getenv("STORE_DIR")
	if storeDir == "" {
		storeDir = "./data"
	}

	profilesDir := os.Getenv("PROFILES_DIR")
	if profilesDir == "" {
		profilesDir = "./profiles"
	}

	resolverURL := os.Getenv("UNIVERSAL_RESOLVER_URL")
	if resolverURL == "" {
		resolverURL = "https://dev.uniresolver.io/1.0/identifiers/"
	}

	expiryDays := 365
	if v := os.Getenv("DEFAULT_EXPIRY_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			expiryDays = n
		}
	}

	// Base mainnet chain ID; Base Sepolia (84532) for testnet deployments.
	chainID := int64(8453)
	if v := os.Getenv("LEDGER_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			chainID = n
		}
	}

	return &Config{
		Port:                 port,
		LogLevel:             logLevel,
		StoreDir:             storeDir,
		ProfilesDir:          profilesDir,
		UniversalResolverURL: resolverURL,
		DefaultExpiryDays:    expiryDays,
		LedgerNetwork:        os.Getenv("LEDGER_NETWORK"),
		LedgerRPCURL:         os.Getenv("LEDGER_RPC_URL"),
		LedgerPrivateKey:     os.Getenv("LEDGER_PRIVATE_KEY"),
		LedgerSchemaUID:      os.Getenv("LEDGER_SCHEMA_UID"),
		LedgerChainID:        chainID,
		AnchoringDisabled:    os.Getenv("ANCHORING_DISABLED") == "true",
		OTELEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTELEnabled:          os.Getenv("OTEL_ENABLED") == "true",
	}
}
