package bonus

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenops/presale-distributor/internal/chain"
	"github.com/tokenops/presale-distributor/internal/ledger"
	"github.com/tokenops/presale-distributor/internal/pricing"
)

var saleStart = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

type fakeChain struct {
	head       uint64
	blockTimes map[uint64]time.Time
	purchases  []chain.Purchase
	waitlisted map[common.Address]bool

	filteredFrom, filteredTo uint64
	blockTimeCalls           int
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) { return f.head, nil }

func (f *fakeChain) BlockTime(ctx context.Context, number uint64) (time.Time, error) {
	f.blockTimeCalls++
	return f.blockTimes[number], nil
}

func (f *fakeChain) FilterPurchases(ctx context.Context, fromBlock, toBlock uint64) ([]chain.Purchase, error) {
	f.filteredFrom, f.filteredTo = fromBlock, toBlock
	return f.purchases, nil
}

func (f *fakeChain) Waitlisted(ctx context.Context, account common.Address) (bool, error) {
	return f.waitlisted[account], nil
}

func (f *fakeChain) Decimals() uint8 { return 18 }

func tokens(whole int64) *big.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return wei.Mul(wei, big.NewInt(whole))
}

func purchase(buyer string, block uint64, whole int64) chain.Purchase {
	return chain.Purchase{
		Buyer:       common.HexToAddress(buyer),
		TokenAmount: tokens(whole),
		Block:       block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
	}
}

func testParams() pricing.Params {
	return pricing.Params{
		InitialPrice:     decimal.RequireFromString("0.05"),
		Increment:        decimal.RequireFromString("0.005"),
		SaleStart:        saleStart,
		WaitlistInterval: 14 * 24 * time.Hour,
		PublicInterval:   7 * 24 * time.Hour,
	}
}

func testState(t *testing.T) *ledger.State {
	t.Helper()
	st, err := ledger.Load(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	return st
}

func TestRunComputesStageBonuses(t *testing.T) {
	buyer := "0x1111111111111111111111111111111111111111"
	ch := &fakeChain{
		head: 200,
		blockTimes: map[uint64]time.Time{
			// Stage 0 on both intervals.
			100: saleStart.Add(24 * time.Hour),
			// Public stage 3, waitlist stage 1.
			150: saleStart.Add(22 * 24 * time.Hour),
		},
		purchases: []chain.Purchase{
			purchase(buyer, 100, 1000),
			purchase(buyer, 150, 1000),
		},
		waitlisted: map[common.Address]bool{},
	}
	st := testState(t)
	cfg := Config{StagePcts: []int{20, 15, 10, 5}}

	rep, err := Run(context.Background(), cfg, ch, testParams(), st, nil)
	require.NoError(t, err)
	require.Len(t, rep.Entries, 2)

	first := rep.Entries[0]
	assert.Equal(t, int64(0), first.Stage)
	assert.Equal(t, 20, first.Percent)
	assert.Equal(t, int64(1000), first.Purchased)
	assert.Equal(t, int64(200), first.Bonus)

	second := rep.Entries[1]
	assert.Equal(t, int64(3), second.Stage)
	assert.Equal(t, 5, second.Percent)
	assert.Equal(t, int64(50), second.Bonus)
	assert.False(t, second.Waitlisted)
}

func TestRunUsesWaitlistInterval(t *testing.T) {
	buyer := common.HexToAddress("0x2222222222222222222222222222222222222222")
	ch := &fakeChain{
		head:       200,
		blockTimes: map[uint64]time.Time{150: saleStart.Add(22 * 24 * time.Hour)},
		purchases:  []chain.Purchase{purchase(buyer.Hex(), 150, 1000)},
		waitlisted: map[common.Address]bool{buyer: true},
	}
	st := testState(t)
	cfg := Config{StagePcts: []int{20, 15, 10, 5}}

	rep, err := Run(context.Background(), cfg, ch, testParams(), st, nil)
	require.NoError(t, err)
	require.Len(t, rep.Entries, 1)

	// 22 days into the sale: waitlist interval of 14 days puts the buyer on
	// stage 1 where the public curve is already on stage 3.
	e := rep.Entries[0]
	assert.True(t, e.Waitlisted)
	assert.Equal(t, int64(1), e.Stage)
	assert.Equal(t, 15, e.Percent)
	assert.Equal(t, int64(150), e.Bonus)
}

func TestRunDryRunCreditsNothing(t *testing.T) {
	buyer := "0x3333333333333333333333333333333333333333"
	ch := &fakeChain{
		head:       200,
		blockTimes: map[uint64]time.Time{100: saleStart.Add(time.Hour)},
		purchases:  []chain.Purchase{purchase(buyer, 100, 1000)},
	}
	st := testState(t)
	st.Cursor = 50

	rep, err := Run(context.Background(), Config{StagePcts: []int{20}}, ch, testParams(), st, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(51), ch.filteredFrom, "resumes right after the cursor")
	assert.Equal(t, uint64(200), ch.filteredTo)
	assert.Equal(t, int64(0), rep.Credited)
	assert.Equal(t, uint64(50), st.Cursor, "dry run leaves the cursor alone")
	assert.Empty(t, st.Remaining)
}

func TestRunLiveCreditsAndAdvancesCursor(t *testing.T) {
	buyer := common.HexToAddress("0x4444444444444444444444444444444444444444").Hex()
	ch := &fakeChain{
		head:       200,
		blockTimes: map[uint64]time.Time{100: saleStart.Add(time.Hour)},
		purchases:  []chain.Purchase{purchase(buyer, 100, 1000), purchase(buyer, 100, 500)},
	}
	st := testState(t)

	rep, err := Run(context.Background(), Config{StagePcts: []int{20}, Live: true}, ch, testParams(), st, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(300), rep.Credited)
	assert.Equal(t, int64(300), st.Remaining[buyer])
	assert.Equal(t, int64(300), st.Totals[buyer])
	assert.Equal(t, uint64(200), st.Cursor)
	assert.Equal(t, 1, ch.blockTimeCalls, "block timestamps are cached per block")

	// Re-running from the advanced cursor finds nothing new.
	ch.purchases = nil
	rep2, err := Run(context.Background(), Config{StagePcts: []int{20}, Live: true}, ch, testParams(), st, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rep2.Credited)
	assert.Equal(t, int64(300), st.Remaining[buyer])
}

func TestRunCursorBeyondHead(t *testing.T) {
	ch := &fakeChain{head: 100}
	st := testState(t)
	st.Cursor = 100

	rep, err := Run(context.Background(), Config{StagePcts: []int{20}}, ch, testParams(), st, nil)
	require.NoError(t, err)
	assert.Empty(t, rep.Entries)
}

func TestRunRejectsEmptyStageTable(t *testing.T) {
	_, err := Run(context.Background(), Config{}, &fakeChain{}, testParams(), testState(t), nil)
	require.Error(t, err)
}

func TestStagePercent(t *testing.T) {
	pcts := []int{20, 15, 10, 5}
	assert.Equal(t, 20, StagePercent(pcts, 0))
	assert.Equal(t, 5, StagePercent(pcts, 3))
	assert.Equal(t, 5, StagePercent(pcts, 9), "last entry repeats for late stages")
	assert.Equal(t, 20, StagePercent(pcts, -1))
	assert.Equal(t, 0, StagePercent(nil, 2))
}
