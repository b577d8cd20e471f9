package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks both key spellings so an exported ambient variable cannot
// leak into default assertions.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		t.Setenv(strings.ToLower(k), "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t,
		"RPC_URL", "CHAIN_ID", "STATE_PATH", "MIN_CHUNK_TOKENS", "MAX_CHUNK_TOKENS",
		"MAX_CHUNK_USD", "DAY_MIN_DELAY_SEC", "NIGHT_MAX_DELAY_SEC", "SCHEDULE_TZ",
		"PRICE_TTL_SEC", "BONUS_STAGE_PCTS", "WHITELIST", "AUTO_WITHDRAW")

	st := Load()

	assert.Equal(t, int64(1), st.ChainID)
	assert.Equal(t, "distributor-state.json", st.StatePath)
	assert.Equal(t, int64(100), st.MinChunkTokens)
	assert.Equal(t, int64(0), st.MaxChunkTokens)
	assert.Equal(t, 250.0, st.MaxChunkUSD)
	assert.Equal(t, int64(600), st.DayMinDelaySec)
	assert.Equal(t, int64(7200), st.NightMaxDelaySec)
	assert.Equal(t, "UTC", st.Timezone)
	assert.Equal(t, int64(60), st.PriceTTLSec)
	assert.Equal(t, []int{20, 15, 10, 5}, st.BonusStagePcts)
	assert.Empty(t, st.Whitelist)
	assert.False(t, st.AutoWithdraw)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t, "RPC_URL", "CHAIN_ID", "MAX_CHUNK_TOKENS", "AUTO_WITHDRAW",
		"WHITELIST", "BONUS_STAGE_PCTS")
	t.Setenv("RPC_URL", "https://rpc.example")
	t.Setenv("chain_id", "11155111")
	t.Setenv("MAX_CHUNK_TOKENS", "5000")
	t.Setenv("AUTO_WITHDRAW", "yes")
	t.Setenv("WHITELIST", " 0xaaa , 0xbbb ,, ")
	t.Setenv("BONUS_STAGE_PCTS", "30,20,10")

	st := Load()
	assert.Equal(t, "https://rpc.example", st.RPCURL)
	assert.Equal(t, int64(11155111), st.ChainID)
	assert.Equal(t, int64(5000), st.MaxChunkTokens)
	assert.True(t, st.AutoWithdraw)
	assert.Equal(t, []string{"0xaaa", "0xbbb"}, st.Whitelist)
	assert.Equal(t, []int{30, 20, 10}, st.BonusStagePcts)
}

func TestLoadLowercaseWinsOverUpper(t *testing.T) {
	t.Setenv("rpc_url", "https://lower.example")
	t.Setenv("RPC_URL", "https://upper.example")

	st := Load()
	assert.Equal(t, "https://lower.example", st.RPCURL)
}

func TestLoadMalformedNumbersFallBack(t *testing.T) {
	clearEnv(t, "MIN_CHUNK_TOKENS", "MAX_CHUNK_USD")
	t.Setenv("MIN_CHUNK_TOKENS", "lots")
	t.Setenv("MAX_CHUNK_USD", "cheap")

	st := Load()
	assert.Equal(t, int64(100), st.MinChunkTokens)
	assert.Equal(t, 250.0, st.MaxChunkUSD)
}

func validSettings() Settings {
	return Settings{
		RPCURL:         "https://rpc.example",
		ICOAddress:     "0x1234567890123456789012345678901234567890",
		PrivateKeyHex:  "abc123",
		MinChunkTokens: 100,
		MaxChunkUSD:    250,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validSettings().Validate())

	st := validSettings()
	st.RPCURL = " "
	assert.ErrorContains(t, st.Validate(), "RPC_URL")

	st = validSettings()
	st.ICOAddress = ""
	assert.ErrorContains(t, st.Validate(), "ICO_ADDRESS")

	st = validSettings()
	st.PrivateKeyHex = ""
	assert.ErrorContains(t, st.Validate(), "signing key")

	st = validSettings()
	st.PrivateKeyHex = ""
	st.KeystoreFile = "wallet.json"
	assert.ErrorContains(t, st.Validate(), "KEYSTORE_PASSPHRASE")

	st = validSettings()
	st.MinChunkTokens = 0
	assert.ErrorContains(t, st.Validate(), "MIN_CHUNK_TOKENS")

	st = validSettings()
	st.MaxChunkUSD = 0
	assert.ErrorContains(t, st.Validate(), "MAX_CHUNK")

	st = validSettings()
	st.DayMinDelaySec = 100
	st.DayMaxDelaySec = 50
	assert.ErrorContains(t, st.Validate(), "delay window")
}
