package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dgmarket/crypto"
)

func TestLoadCreatesDefaultWithGeneratedOwnerKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8545", cfg.RPCAddress)
	require.Equal(t, uint32(50_000), cfg.Fee)
	require.Equal(t, "ICE", cfg.AcceptedToken)
	require.Len(t, cfg.Tokens, 1)
	require.Len(t, cfg.Collections, 1)
	require.Equal(t, cfg.Owner, cfg.FeeOwner)

	_, err = crypto.DecodeAddress(cfg.Owner)
	require.NoError(t, err)

	keyData, err := os.ReadFile(cfg.OwnerKeyPath)
	require.NoError(t, err)
	require.NotEmpty(t, keyData)

	// The generated file must round-trip through a second load.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Owner, reloaded.Owner)
	require.Equal(t, cfg.AcceptedToken, reloaded.AcceptedToken)
}

func TestValidateRejectsBadAddresses(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)

	broken := *cfg
	broken.Owner = "nhb1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"
	require.Error(t, broken.Validate())

	broken = *cfg
	broken.FeeOwner = "not-an-address"
	require.Error(t, broken.Validate())
}

func TestValidateRequiresAcceptedTokenAmongTokens(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)

	cfg.AcceptedToken = "MANA"
	err = cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "AcceptedToken")
}

func TestValidateRequiresRPCAddressAndDataDir(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)

	cfg.RPCAddress = " "
	require.Error(t, cfg.Validate())

	cfg, err = Load(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	cfg.DataDir = ""
	require.Error(t, cfg.Validate())
}
