package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, int32(2), cfg.StablecoinScale)
	assert.Equal(t, "1", cfg.SwapRate.String())
	assert.Equal(t, 0, cfg.SwapFeeBps)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.Equal(t, 30*time.Second, cfg.QuoteCacheTTL)
	assert.Equal(t, 10*time.Second, cfg.PostingPollInterval)
	assert.Equal(t, int32(20), cfg.PostingBatchSize)
	assert.Equal(t, time.Hour, cfg.ReconciliationInterval)
	assert.Equal(t, "REC", cfg.ReceiptPrefix)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("EXCHANGE_STABLECOIN_SCALE", "6")
	t.Setenv("SWAP_RATE", "0.998")
	t.Setenv("SWAP_FEE_BPS", "25")
	t.Setenv("LOCK_TIMEOUT", "750ms")
	t.Setenv("RECEIPT_NUMBER_PREFIX", "cmp")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int32(6), cfg.StablecoinScale)
	assert.Equal(t, "0.998", cfg.SwapRate.String())
	assert.Equal(t, 25, cfg.SwapFeeBps)
	assert.Equal(t, 750*time.Millisecond, cfg.LockTimeout)
	assert.Equal(t, "CMP", cfg.ReceiptPrefix)
}

func TestLoad_RejectsInvalidSettings(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
		msg   string
	}{
		{"scale too small", "STABLECOIN_SCALE", "1", "STABLECOIN_SCALE"},
		{"scale too large", "STABLECOIN_SCALE", "7", "STABLECOIN_SCALE"},
		{"zero swap rate", "SWAP_RATE", "0", "SWAP_RATE"},
		{"garbage swap rate", "SWAP_RATE", "one", "SWAP_RATE"},
		{"negative fee", "SWAP_FEE_BPS", "-1", "SWAP_FEE_BPS"},
		{"full fee", "SWAP_FEE_BPS", "10000", "SWAP_FEE_BPS"},
		{"bad duration", "LOCK_TIMEOUT", "soon", "LOCK_TIMEOUT"},
		{"zero duration", "POSTING_POLL_INTERVAL", "0s", "POSTING_POLL_INTERVAL"},
		{"zero batch", "POSTING_BATCH_SIZE", "0", "POSTING_BATCH_SIZE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/test")
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}
