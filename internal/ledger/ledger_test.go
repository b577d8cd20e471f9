package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
)

func tempState(t *testing.T) *State {
	t.Helper()
	st, err := Load(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	return st
}

func TestMergeSeedsNewRecipients(t *testing.T) {
	st := tempState(t)
	rep := st.Merge(map[string]int64{alice: 1000, bob: 500})
	assert.Equal(t, 2, rep.NewRecipients)
	assert.Equal(t, int64(1000), st.Remaining[alice])
	assert.Equal(t, int64(500), st.Remaining[bob])
}

func TestMergeIsIdempotent(t *testing.T) {
	st := tempState(t)
	totals := map[string]int64{alice: 1000, bob: 500}
	st.Merge(totals)
	require.NoError(t, st.ApplySend(alice, 400))

	rep := st.Merge(totals)
	assert.Equal(t, 0, rep.NewRecipients)
	assert.Equal(t, 0, rep.ToppedUp)
	assert.Equal(t, 2, rep.Unchanged)
	assert.Equal(t, int64(600), st.Remaining[alice], "re-import must not double-count")
	assert.Equal(t, int64(500), st.Remaining[bob])
}

func TestMergeTopsUpByDelta(t *testing.T) {
	st := tempState(t)
	st.Merge(map[string]int64{alice: 1000})
	require.NoError(t, st.ApplySend(alice, 1000))
	assert.Equal(t, int64(0), st.Remaining[alice])

	// Raised total after full payment: remaining becomes exactly the delta.
	rep := st.Merge(map[string]int64{alice: 1500})
	assert.Equal(t, 1, rep.ToppedUp)
	assert.Equal(t, int64(500), st.Remaining[alice])
	assert.Equal(t, int64(1500), st.Totals[alice])
}

func TestMergeNeverLowersRemaining(t *testing.T) {
	st := tempState(t)
	st.Merge(map[string]int64{alice: 1000, bob: 500})

	// Lowered total and a CSV that dropped bob entirely: both untouched.
	st.Merge(map[string]int64{alice: 200})
	assert.Equal(t, int64(1000), st.Remaining[alice])
	assert.Equal(t, int64(500), st.Remaining[bob])
}

func TestApplySendBounds(t *testing.T) {
	st := tempState(t)
	st.Merge(map[string]int64{alice: 100})

	assert.Error(t, st.ApplySend(alice, 101), "overshoot must be rejected")
	assert.Error(t, st.ApplySend(alice, 0))
	assert.Error(t, st.ApplySend(bob, 10), "unknown recipient")

	require.NoError(t, st.ApplySend(alice, 100))
	assert.Equal(t, int64(0), st.Remaining[alice])
	assert.Equal(t, alice, st.LastAddr)
	assert.Equal(t, 1, st.SentToday)
}

func TestExcludeZeroesButKeepsEntry(t *testing.T) {
	st := tempState(t)
	st.Merge(map[string]int64{alice: 100})
	st.Exclude(alice)
	assert.Equal(t, int64(0), st.Remaining[alice])
	assert.Empty(t, st.Unfinished())

	// Same CSV cannot revive an excluded recipient.
	st.Merge(map[string]int64{alice: 100})
	assert.Equal(t, int64(0), st.Remaining[alice])
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "state.json")
	st, err := Load(path)
	require.NoError(t, err)
	st.Merge(map[string]int64{alice: 1000})
	require.NoError(t, st.ApplySend(alice, 250))
	st.Token = "0xdead"
	st.Decimals = 18
	st.Cursor = 12345
	st.DayKey = "2026-08-31"
	st.EstDailyBudget = 7
	require.NoError(t, st.Save())

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, st.Remaining, got.Remaining)
	assert.Equal(t, st.Totals, got.Totals)
	assert.Equal(t, alice, got.LastAddr)
	assert.Equal(t, 1, got.SentToday)
	assert.Equal(t, uint64(12345), got.Cursor)
	assert.Equal(t, "2026-08-31", got.DayKey)
	assert.Equal(t, 7, got.EstDailyBudget)

	// The file is the operator's audit surface; keep it readable.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "  \"remaining\"")
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestRollDay(t *testing.T) {
	st := tempState(t)
	st.SentToday = 9
	st.RollDay("2026-09-01", 4)
	assert.Equal(t, 0, st.SentToday)
	assert.Equal(t, "2026-09-01", st.DayKey)
	assert.Equal(t, 4, st.EstDailyBudget)
}

func TestTotalRemaining(t *testing.T) {
	st := tempState(t)
	st.Merge(map[string]int64{alice: 1000, bob: 500})
	require.NoError(t, st.ApplySend(bob, 500))
	assert.Equal(t, int64(1000), st.TotalRemaining())
	assert.Equal(t, []string{alice}, st.Unfinished())
}
