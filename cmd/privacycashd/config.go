// config.go - Configuration management for the shielded pool daemon
package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"privacycash/internal/privacycash"
)

const (
	BackendCircom = "circom"
	BackendGnark  = "gnark"
)

// ProverConfig selects the proving backend and its artifacts.
type ProverConfig struct {
	Backend  string
	WasmPath string
	ZkeyPath string
	PKPath   string
	VKPath   string
}

// Config represents the daemon configuration
type Config struct {
	// Remote services
	RelayerURL string
	RPCURL     string

	// Pool
	ProgramID    string
	LookupTable  string
	FeeRecipient string
	ComputeUnits uint32

	Prover ProverConfig

	// Confirmation poll
	ConfirmAttempts int
	ConfirmDelay    time.Duration

	// HTTP
	ListenAddr     string
	RequestTimeout time.Duration
	RateLimit      float64 // requests per second per public key
	RateBurst      int

	// Logging
	LogLevel     string
	LogOutput    string
	AuditLogPath string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		RelayerURL:  "https://api3.privacycash.org",
		RPCURL:      "https://api.mainnet-beta.solana.com",
		ProgramID:   "9fhQBbumKEFuXtMBDw8AaQyAjCorLGJQiS3skWZdQyQD",
		LookupTable: "HEN49U2ySJ85Vc78qprSW9y6mFDhs1NczRxyppNHjofe",
		Prover: ProverConfig{
			Backend:  BackendCircom,
			WasmPath: "circuit/transaction2.wasm",
			ZkeyPath: "circuit/transaction2.zkey",
		},
		ConfirmAttempts: privacycash.DefaultConfirmAttempts,
		ConfirmDelay:    privacycash.DefaultConfirmDelay,
		ListenAddr:      "127.0.0.1:9190",
		RequestTimeout:  2 * time.Minute,
		RateLimit:       1,
		RateBurst:       5,
		LogLevel:        "info",
		LogOutput:       "stderr",
		AuditLogPath:    "audit.log",
	}
}

// LoadConfig parses flags, then overlays an optional YAML file and
// PRIVACYCASH_* environment variables. Flags set explicitly win.
func LoadConfig(args []string) (*Config, error) {
	def := DefaultConfig()
	fs := pflag.NewFlagSet("privacycashd", pflag.ContinueOnError)
	fs.SortFlags = false
	configFile := fs.StringP("config", "c", "", "YAML configuration file")
	fs.String("relayerURL", def.RelayerURL, "relayer base URL")
	fs.String("rpcURL", def.RPCURL, "Solana JSON-RPC endpoint")
	fs.String("programID", def.ProgramID, "shielded pool program id")
	fs.String("lookupTable", def.LookupTable, "address lookup table used by deposits")
	fs.String("feeRecipient", "", "fee recipient used when the relayer names none")
	fs.Uint32("computeUnits", 0, "deposit compute unit limit (0 for the default)")
	fs.String("proverBackend", def.Prover.Backend, "proving backend: circom or gnark")
	fs.String("circuitWasm", def.Prover.WasmPath, "circom witness calculator wasm")
	fs.String("circuitZkey", def.Prover.ZkeyPath, "circom proving key")
	fs.String("gnarkPK", "", "gnark proving key file")
	fs.String("gnarkVK", "", "gnark verifying key file")
	fs.Int("confirmAttempts", def.ConfirmAttempts, "confirmation poll attempts")
	fs.Duration("confirmDelay", def.ConfirmDelay, "delay between confirmation checks")
	fs.String("listenAddr", def.ListenAddr, "HTTP listen address")
	fs.Duration("requestTimeout", def.RequestTimeout, "per-request deadline")
	fs.Float64("rateLimit", def.RateLimit, "requests per second per public key")
	fs.Int("rateBurst", def.RateBurst, "request burst per public key")
	fs.String("logLevel", def.LogLevel, "log level (debug, info, warn, error)")
	fs.String("logOutput", def.LogOutput, "log output (stdout, stderr or filepath)")
	fs.String("auditLog", def.AuditLogPath, "audit log file, empty to disable")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yml")
	v.SetEnvPrefix("PRIVACYCASH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, flag := range map[string]string{
		"relayerURL":      "relayerURL",
		"rpcURL":          "rpcURL",
		"programID":       "programID",
		"lookupTable":     "lookupTable",
		"feeRecipient":    "feeRecipient",
		"computeUnits":    "computeUnits",
		"prover.backend":  "proverBackend",
		"prover.wasmPath": "circuitWasm",
		"prover.zkeyPath": "circuitZkey",
		"prover.pkPath":   "gnarkPK",
		"prover.vkPath":   "gnarkVK",
		"confirmAttempts": "confirmAttempts",
		"confirmDelay":    "confirmDelay",
		"listenAddr":      "listenAddr",
		"requestTimeout":  "requestTimeout",
		"rateLimit":       "rateLimit",
		"rateBurst":       "rateBurst",
		"logLevel":        "logLevel",
		"logOutput":       "logOutput",
		"auditLogPath":    "auditLog",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	for name, raw := range map[string]string{"relayer_url": c.RelayerURL, "rpc_url": c.RPCURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s %q must be an absolute URL", name, raw)
		}
	}
	if _, err := solana.PublicKeyFromBase58(c.ProgramID); err != nil {
		return fmt.Errorf("program_id: %w", err)
	}
	if _, err := solana.PublicKeyFromBase58(c.LookupTable); err != nil {
		return fmt.Errorf("lookup_table: %w", err)
	}
	if c.FeeRecipient != "" {
		if _, err := solana.PublicKeyFromBase58(c.FeeRecipient); err != nil {
			return fmt.Errorf("fee_recipient: %w", err)
		}
	}
	switch c.Prover.Backend {
	case BackendCircom:
		if c.Prover.WasmPath == "" || c.Prover.ZkeyPath == "" {
			return fmt.Errorf("circom backend needs circuit wasm and zkey paths")
		}
	case BackendGnark:
	default:
		return fmt.Errorf("unknown prover backend %q", c.Prover.Backend)
	}
	if c.ConfirmAttempts <= 0 {
		return fmt.Errorf("confirm_attempts must be positive")
	}
	if c.ConfirmDelay <= 0 {
		return fmt.Errorf("confirm_delay must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("rate_limit and rate_burst must be positive")
	}
	return nil
}

// ServiceConfig converts the pool settings for the orchestrator.
func (c *Config) ServiceConfig() privacycash.Config {
	sc := privacycash.Config{
		ProgramID:       solana.MustPublicKeyFromBase58(c.ProgramID),
		LookupTable:     solana.MustPublicKeyFromBase58(c.LookupTable),
		ComputeUnits:    c.ComputeUnits,
		ConfirmAttempts: c.ConfirmAttempts,
		ConfirmDelay:    c.ConfirmDelay,
	}
	if c.FeeRecipient != "" {
		sc.FeeRecipient = solana.MustPublicKeyFromBase58(c.FeeRecipient)
	}
	return sc
}
