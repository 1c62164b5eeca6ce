package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())

	sc := cfg.ServiceConfig()
	require.Equal(t, cfg.ProgramID, sc.ProgramID.String())
	require.True(t, sc.FeeRecipient.IsZero())
}

func TestLoadConfigLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "privacycash.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
relayerURL: http://relay.internal:3000
confirmDelay: 5s
rateBurst: 2
prover:
  backend: gnark
  pkPath: /var/lib/privacycash/pk
`), 0o600))
	t.Setenv("PRIVACYCASH_LISTENADDR", "0.0.0.0:9000")
	t.Setenv("PRIVACYCASH_PROVER_VKPATH", "/var/lib/privacycash/vk")

	cfg, err := LoadConfig([]string{"--config", path, "--rateBurst", "7"})
	require.NoError(t, err)
	require.Equal(t, "http://relay.internal:3000", cfg.RelayerURL)
	require.Equal(t, 5*time.Second, cfg.ConfirmDelay)
	require.Equal(t, 7, cfg.RateBurst)
	require.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	require.Equal(t, BackendGnark, cfg.Prover.Backend)
	require.Equal(t, "/var/lib/privacycash/pk", cfg.Prover.PKPath)
	require.Equal(t, "/var/lib/privacycash/vk", cfg.Prover.VKPath)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig([]string{"--config", filepath.Join(t.TempDir(), "absent.yml")})
	require.Error(t, err)

	_, err = LoadConfig([]string{"--no-such-flag"})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"relative relayer":  func(c *Config) { c.RelayerURL = "relay.internal" },
		"bad program":       func(c *Config) { c.ProgramID = "not-a-key" },
		"bad lookup table":  func(c *Config) { c.LookupTable = "" },
		"bad fee recipient": func(c *Config) { c.FeeRecipient = "0x00" },
		"unknown backend":   func(c *Config) { c.Prover.Backend = "snarkjs" },
		"circom paths":      func(c *Config) { c.Prover.ZkeyPath = "" },
		"zero attempts":     func(c *Config) { c.ConfirmAttempts = 0 },
		"zero delay":        func(c *Config) { c.ConfirmDelay = 0 },
		"zero rate":         func(c *Config) { c.RateLimit = 0 },
	} {
		cfg := DefaultConfig()
		mutate(cfg)
		require.Error(t, cfg.Validate(), name)
	}

	cfg := DefaultConfig()
	cfg.FeeRecipient = "AWexibGxNFKTa1b5R5MN4PJr9HWnWRwf8EW9g8cLx3dM"
	require.NoError(t, cfg.Validate())
	require.Equal(t, cfg.FeeRecipient, cfg.ServiceConfig().FeeRecipient.String())
}
