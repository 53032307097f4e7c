package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), cfg.Droptip.FeeBps)
	assert.Equal(t, uint64(100), cfg.Droptip.TipFeeBps)
	assert.Equal(t, []int{1, 3, 5, 10, 15, 30}, cfg.Droptip.AllowedDurations)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
}

func TestLoadZeroFee(t *testing.T) {
	dir := t.TempDir()
	yaml := "droptip:\n  fee_bps: 0\n  tip_fee_bps: 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Zero(t, cfg.Droptip.FeeBps)
	assert.Zero(t, cfg.Droptip.TipFeeBps)
}

func TestLoadRejectsFeeAboveHundredPercent(t *testing.T) {
	dir := t.TempDir()
	yaml := "droptip:\n  fee_bps: 10001\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	_, err := Load(dir)
	assert.ErrorContains(t, err, "droptip.fee_bps")
}
