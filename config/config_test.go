package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, "127.0.0.1:8645", cfg.RPCAddress)
	require.Equal(t, "rosca-local", cfg.NetworkName)
	require.Equal(t, "RSC", cfg.Circle.Token)

	// Reloading the generated file round-trips.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCAddress, reloaded.RPCAddress)
	require.Equal(t, cfg.Circle.DepositAmount, reloaded.Circle.DepositAmount)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("DataDir = \"/tmp/rosca\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/rosca", cfg.DataDir)
	require.NotEmpty(t, cfg.RPCAddress)
	require.NotEmpty(t, cfg.MetricsAddress)
}

func TestValidateRejectsBadGenesis(t *testing.T) {
	cfg := &Config{
		DataDir: "./data",
		Circle: CircleGenesis{
			Owner:             "rsc1qqqq",
			Token:             "RSC",
			DepositAmount:     "not-a-number",
			CycleIntervalSecs: 60,
		},
	}
	require.Error(t, cfg.Validate())

	cfg.Circle.DepositAmount = "-5"
	require.Error(t, cfg.Validate())

	cfg.Circle.DepositAmount = "10000"
	cfg.Circle.CycleIntervalSecs = 0
	require.Error(t, cfg.Validate())

	cfg.Circle.CycleIntervalSecs = 60
	require.NoError(t, cfg.Validate())
}

func TestValidateSkipsGenesisWithoutOwner(t *testing.T) {
	cfg := &Config{DataDir: "./data"}
	require.NoError(t, cfg.Validate())
}

func TestAmountParsing(t *testing.T) {
	cfg := &Config{Circle: CircleGenesis{DepositAmount: "12345", ReserveAmount: ""}}

	deposit, err := cfg.DepositAmount()
	require.NoError(t, err)
	require.Zero(t, deposit.Cmp(big.NewInt(12345)))

	reserve, err := cfg.ReserveAmount()
	require.NoError(t, err)
	require.Zero(t, reserve.Sign())

	cfg.Circle.ReserveAmount = "777"
	reserve, err = cfg.ReserveAmount()
	require.NoError(t, err)
	require.Zero(t, reserve.Cmp(big.NewInt(777)))
}
