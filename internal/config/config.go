package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Settings keeps all configuration options for one distributor campaign.
// Everything is environment-driven; keys support UPPER_CASE and lower_case.
type Settings struct {
	RPCURL  string
	ChainID int64

	ICOAddress   string
	TokenAddress string // optional; resolved from ICO.saleToken() when empty

	PrivateKeyHex      string
	KeystoreFile       string
	KeystorePassphrase string

	CSVPath   string
	StatePath string

	MinChunkTokens int64
	MaxChunkTokens int64   // fixed token cap; 0 means derive from MaxChunkUSD
	MaxChunkUSD    float64 // used when MaxChunkTokens == 0

	DayMinDelaySec   int64
	DayMaxDelaySec   int64
	NightMinDelaySec int64
	NightMaxDelaySec int64
	Timezone         string

	DailyCap   int // hard per-day transfer count; 0 disables
	TargetDays int // completion horizon for the self-correcting budget; 0 disables

	AutoWithdraw  bool
	Confirmations uint64
	PriceTTLSec   int64

	Whitelist           []string // optional; empty means no whitelist policy
	MaxPerAddressTokens int64    // per-address cap; 0 disables

	GasBackoffMinSec int64
	GasBackoffMaxSec int64
	ErrorFloorSec    int64

	TelegramBotToken  string
	TelegramChatID    string
	TelegramAnimation string // optional file_id; sendAnimation instead of sendMessage

	BonusStagePcts []int // bonus percent per pricing stage, last entry repeats
}

// Load reads settings from environment supporting both UPPER_CASE and lower_case keys.
func Load() Settings {
	st := Settings{}
	st.RPCURL = get([]string{"rpc_url", "RPC_URL"}, "")
	st.ChainID = getInt64([]string{"chain_id", "CHAIN_ID"}, 1)

	st.ICOAddress = get([]string{"ico_address", "ICO_ADDRESS"}, "")
	st.TokenAddress = get([]string{"token_address", "TOKEN_ADDRESS"}, "")

	st.PrivateKeyHex = get([]string{"private_key", "PRIVATE_KEY"}, "")
	st.KeystoreFile = get([]string{"keystore_file", "KEYSTORE_FILE"}, "")
	st.KeystorePassphrase = get([]string{"keystore_passphrase", "KEYSTORE_PASSPHRASE"}, "")

	st.CSVPath = get([]string{"csv_path", "CSV_PATH"}, "")
	st.StatePath = get([]string{"state_path", "STATE_PATH"}, "distributor-state.json")

	st.MinChunkTokens = getInt64([]string{"min_chunk_tokens", "MIN_CHUNK_TOKENS"}, 100)
	st.MaxChunkTokens = getInt64([]string{"max_chunk_tokens", "MAX_CHUNK_TOKENS"}, 0)
	st.MaxChunkUSD = getFloat([]string{"max_chunk_usd", "MAX_CHUNK_USD"}, 250)

	st.DayMinDelaySec = getInt64([]string{"day_min_delay_sec", "DAY_MIN_DELAY_SEC"}, 600)
	st.DayMaxDelaySec = getInt64([]string{"day_max_delay_sec", "DAY_MAX_DELAY_SEC"}, 3600)
	st.NightMinDelaySec = getInt64([]string{"night_min_delay_sec", "NIGHT_MIN_DELAY_SEC"}, 1800)
	st.NightMaxDelaySec = getInt64([]string{"night_max_delay_sec", "NIGHT_MAX_DELAY_SEC"}, 7200)
	st.Timezone = get([]string{"schedule_tz", "SCHEDULE_TZ"}, "UTC")

	st.DailyCap = getInt([]string{"daily_cap", "DAILY_CAP"}, 0)
	st.TargetDays = getInt([]string{"target_days", "TARGET_DAYS"}, 0)

	st.AutoWithdraw = getBool([]string{"auto_withdraw", "AUTO_WITHDRAW"}, false)
	st.Confirmations = uint64(getInt64([]string{"confirmations", "CONFIRMATIONS"}, 0))
	st.PriceTTLSec = getInt64([]string{"price_ttl_sec", "PRICE_TTL_SEC"}, 60)

	st.Whitelist = splitCSV(get([]string{"whitelist", "WHITELIST"}, ""))
	st.MaxPerAddressTokens = getInt64([]string{"max_per_address_tokens", "MAX_PER_ADDRESS_TOKENS"}, 0)

	st.GasBackoffMinSec = getInt64([]string{"gas_backoff_min_sec", "GAS_BACKOFF_MIN_SEC"}, 300)
	st.GasBackoffMaxSec = getInt64([]string{"gas_backoff_max_sec", "GAS_BACKOFF_MAX_SEC"}, 600)
	st.ErrorFloorSec = getInt64([]string{"error_floor_sec", "ERROR_FLOOR_SEC"}, 60)

	st.TelegramBotToken = get([]string{"telegram_bot_token", "TELEGRAM_BOT_TOKEN"}, "")
	st.TelegramChatID = get([]string{"telegram_chat_id", "TELEGRAM_CHAT_ID"}, "")
	st.TelegramAnimation = get([]string{"telegram_animation", "TELEGRAM_ANIMATION"}, "")

	st.BonusStagePcts = parseCSVInts(get([]string{"bonus_stage_pcts", "BONUS_STAGE_PCTS"}, "20,15,10,5"), []int{20, 15, 10, 5})

	return st
}

// Validate rejects configurations the process cannot start with.
// These are unrecoverable: the caller exits 1, no retry.
func (st Settings) Validate() error {
	if strings.TrimSpace(st.RPCURL) == "" {
		return errors.New("RPC_URL is not set")
	}
	if strings.TrimSpace(st.ICOAddress) == "" {
		return errors.New("ICO_ADDRESS is not set")
	}
	if st.PrivateKeyHex == "" && st.KeystoreFile == "" {
		return errors.New("no signing key: set PRIVATE_KEY or KEYSTORE_FILE")
	}
	if st.KeystoreFile != "" && st.KeystorePassphrase == "" {
		return errors.New("KEYSTORE_FILE set but KEYSTORE_PASSPHRASE is empty")
	}
	if st.MinChunkTokens < 1 {
		return errors.Newf("MIN_CHUNK_TOKENS must be >= 1, got %d", st.MinChunkTokens)
	}
	if st.MaxChunkTokens == 0 && st.MaxChunkUSD <= 0 {
		return errors.New("either MAX_CHUNK_TOKENS or MAX_CHUNK_USD must be positive")
	}
	if st.DayMinDelaySec > st.DayMaxDelaySec || st.NightMinDelaySec > st.NightMaxDelaySec {
		return errors.New("delay window min exceeds max")
	}
	return nil
}

func get(keys []string, def string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return def
}

func getInt(keys []string, def int) int {
	s := get(keys, "")
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n
	}
	return def
}

func getInt64(keys []string, def int64) int64 {
	s := get(keys, "")
	if s == "" {
		return def
	}
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return n
	}
	return def
}

func getFloat(keys []string, def float64) float64 {
	s := get(keys, "")
	if s == "" {
		return def
	}
	if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return n
	}
	return def
}

func getBool(keys []string, def bool) bool {
	s := strings.ToLower(get(keys, ""))
	if s == "" {
		return def
	}
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseCSVInts(s string, def []int) []int {
	parts := splitCSV(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if v, err := strconv.Atoi(p); err == nil {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
