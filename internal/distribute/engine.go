// Package distribute runs the paced transfer loop: pick an unfinished
// recipient, size a chunk against the current price, check gas and token
// funding, send, persist, notify, sleep, repeat. One transfer is in flight at
// a time and the ledger file is flushed after every send.
package distribute

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/tokenops/presale-distributor/internal/ledger"
	"github.com/tokenops/presale-distributor/internal/pricing"
	"github.com/tokenops/presale-distributor/internal/schedule"
)

// Chain is the slice of chain.Client the engine needs; tests substitute a fake.
type Chain interface {
	Sender() common.Address
	Symbol() string
	ToWei(wholeTokens int64) *big.Int
	NativeBalance(ctx context.Context) (*big.Int, error)
	TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	EstimateTransferCost(ctx context.Context, to common.Address, amountWei *big.Int) (*big.Int, error)
	Transfer(ctx context.Context, to common.Address, amountWei *big.Int) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash, confirmations uint64) error
	ICOTokenBalance(ctx context.Context) (*big.Int, error)
	WithdrawFromICO(ctx context.Context, amountWei *big.Int) (common.Hash, error)
}

// PriceSource yields the current tier prices (pricing.Cache in production).
type PriceSource interface {
	Prices(ctx context.Context) (pricing.Prices, error)
}

// Notifier receives a short HTML line per successful transfer.
type Notifier interface {
	Notify(ctx context.Context, html string) error
}

// Config tunes one campaign run.
type Config struct {
	Chunk    schedule.ChunkConfig
	Windows  schedule.Windows
	Location *time.Location

	DailyCap   int
	TargetDays int

	AutoWithdraw  bool
	Confirmations uint64

	Whitelist     map[string]bool // checksum address -> allowed; nil disables
	MaxPerAddress int64           // cap on totalOwed per address; 0 disables

	GasBackoffMin time.Duration
	GasBackoffMax time.Duration
	ErrorFloor    time.Duration
}

// Engine drives the state machine over a persisted ledger.
type Engine struct {
	cfg    Config
	chain  Chain
	prices PriceSource
	state  *ledger.State
	notify Notifier
	log    *slog.Logger

	rng *rand.Rand
	now func() time.Time
}

func New(cfg Config, ch Chain, prices PriceSource, state *ledger.State, notify Notifier, log *slog.Logger) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ErrorFloor < 60*time.Second {
		cfg.ErrorFloor = 60 * time.Second
	}
	if cfg.GasBackoffMin <= 0 {
		cfg.GasBackoffMin = 5 * time.Minute
	}
	if cfg.GasBackoffMax < cfg.GasBackoffMin {
		cfg.GasBackoffMax = cfg.GasBackoffMin + 5*time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		chain:  ch,
		prices: prices,
		state:  state,
		notify: notify,
		log:    log,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
	}
}

// Run loops until every recipient is fully paid or ctx is cancelled. A failed
// iteration is logged and retried after the floor delay; it never terminates
// the run.
func (e *Engine) Run(ctx context.Context) error {
	for {
		done, delay, err := e.step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.log.Error("iteration failed", "err", err)
			if delay < e.cfg.ErrorFloor {
				delay = e.cfg.ErrorFloor
			}
		}
		if done {
			e.log.Info("all recipients fully paid")
			return nil
		}
		e.log.Debug("sleeping", "delay", delay.Round(time.Second))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// step runs one iteration of the state machine and returns whether the ledger
// is exhausted plus the delay before the next iteration.
func (e *Engine) step(ctx context.Context) (done bool, delay time.Duration, err error) {
	local := e.now().In(e.cfg.Location)

	// Midnight rollover: reset the day counter and re-target the daily budget
	// from what is still owed over the days left in the completion horizon.
	if key := schedule.DayKey(local); e.state.DayKey != key {
		budget := 0
		if e.cfg.TargetDays > 0 {
			if e.state.Deadline == "" {
				e.state.Deadline = schedule.DayKey(local.AddDate(0, 0, e.cfg.TargetDays))
			}
			daysLeft := schedule.DaysUntil(e.state.Deadline, local)
			budget = schedule.DailyBudget(e.state.TotalRemaining(), e.avgChunk(ctx), daysLeft)
		}
		e.state.RollDay(key, budget)
		if err := e.state.Save(); err != nil {
			return false, 0, err
		}
		e.log.Info("day rollover",
			"day", key, "deadline", e.state.Deadline, "estDailyBudget", budget)
	}

	if limit := e.dailyLimit(); limit > 0 && e.state.SentToday >= limit {
		until := schedule.NextMidnight(local).Sub(local)
		if until <= 0 {
			until = time.Minute
		}
		e.log.Info("daily budget reached, sleeping until midnight",
			"sentToday", e.state.SentToday, "limit", limit)
		return false, until, nil
	}

	// SELECT_RECIPIENT
	addr, remaining, ok, err := e.selectRecipient()
	if err != nil {
		return false, 0, err
	}
	if !ok {
		return true, 0, nil
	}
	to := common.HexToAddress(addr)

	// Chunk sizing against the fresh public-tier price.
	px, err := e.prices.Prices(ctx)
	if err != nil {
		return false, 0, errors.Wrap(err, "price refresh")
	}
	chunk := schedule.ChunkSize(e.rng, e.cfg.Chunk, remaining, px.Public)
	amountWei := e.chain.ToWei(chunk)

	// CHECK_GAS: insufficient ETH is a pause, not a crash.
	cost, err := e.chain.EstimateTransferCost(ctx, to, amountWei)
	if err != nil {
		return false, 0, errors.Wrap(err, "estimate transfer cost")
	}
	native, err := e.chain.NativeBalance(ctx)
	if err != nil {
		return false, 0, errors.Wrap(err, "native balance")
	}
	if native.Cmp(cost) < 0 {
		backoff := e.gasBackoff()
		e.log.Warn("insufficient gas balance, backing off",
			"have", native, "need", cost, "backoff", backoff.Round(time.Second))
		return false, backoff, nil
	}

	// CHECK_TOKEN_BALANCE and optional withdraw from the ICO contract.
	if err := e.ensureTokenFunding(ctx, amountWei); err != nil {
		return false, 0, err
	}

	// SEND_TRANSFER / AWAIT_CONFIRMATION
	hash, err := e.chain.Transfer(ctx, to, amountWei)
	if err != nil {
		return false, 0, err
	}
	if err := e.chain.WaitMined(ctx, hash, e.cfg.Confirmations); err != nil {
		return false, 0, errors.Wrapf(err, "confirm %s", hash.Hex())
	}

	// PERSIST_STATE
	if err := e.state.ApplySend(addr, chunk); err != nil {
		return false, 0, err
	}
	if err := e.state.Save(); err != nil {
		return false, 0, errors.Wrap(err, "persist ledger")
	}
	left := e.state.Remaining[addr]
	e.log.Info("transfer sent",
		"to", addr, "tokens", chunk, "tx", hash.Hex(),
		"recipientRemaining", left, "sentToday", e.state.SentToday)

	// NOTIFY: best effort.
	if e.notify != nil {
		msg := fmt.Sprintf("✅ Sent <b>%d %s</b> to <code>%s</code>\nTx: <code>%s</code>\nRemaining for recipient: %d",
			chunk, e.chain.Symbol(), addr, hash.Hex(), left)
		if nerr := e.notify.Notify(ctx, msg); nerr != nil {
			e.log.Warn("notification failed", "err", nerr)
		}
	}

	return false, e.cfg.Windows.Delay(e.rng, e.now().In(e.cfg.Location)), nil
}

// selectRecipient enforces the security policy, then uniformly picks among the
// survivors, avoiding the immediately previous recipient when possible.
func (e *Engine) selectRecipient() (addr string, remaining int64, ok bool, err error) {
	dirty := false
	sender := e.chain.Sender().Hex()
	for _, a := range e.state.Unfinished() {
		switch {
		case a == sender:
			e.log.Warn("recipient is the sender wallet, excluding", "addr", a)
		case e.cfg.Whitelist != nil && !e.cfg.Whitelist[a]:
			e.log.Warn("recipient not whitelisted, excluding", "addr", a)
		case e.cfg.MaxPerAddress > 0 && e.state.Totals[a] > e.cfg.MaxPerAddress:
			e.log.Warn("recipient over per-address cap, excluding",
				"addr", a, "total", e.state.Totals[a], "cap", e.cfg.MaxPerAddress)
		default:
			continue
		}
		e.state.Exclude(a)
		dirty = true
	}
	if dirty {
		if err := e.state.Save(); err != nil {
			return "", 0, false, err
		}
	}

	candidates := e.state.Unfinished()
	if len(candidates) == 0 {
		return "", 0, false, nil
	}
	if len(candidates) > 1 && e.state.LastAddr != "" {
		filtered := lo.Filter(candidates, func(a string, _ int) bool { return a != e.state.LastAddr })
		if len(filtered) > 0 {
			candidates = filtered
		}
	}
	pick := candidates[e.rng.Intn(len(candidates))]
	return pick, e.state.Remaining[pick], true, nil
}

// ensureTokenFunding tops the sender wallet up from the ICO contract when
// auto-withdraw is on, bounded by what the contract holds. Still being short
// afterwards is an operator problem and fails the iteration loudly.
func (e *Engine) ensureTokenFunding(ctx context.Context, amountWei *big.Int) error {
	bal, err := e.chain.TokenBalance(ctx, e.chain.Sender())
	if err != nil {
		return errors.Wrap(err, "sender token balance")
	}
	if bal.Cmp(amountWei) >= 0 {
		return nil
	}
	if e.cfg.AutoWithdraw {
		shortfall := new(big.Int).Sub(amountWei, bal)
		avail, err := e.chain.ICOTokenBalance(ctx)
		if err != nil {
			return errors.Wrap(err, "ico token balance")
		}
		pull := shortfall
		if avail.Cmp(pull) < 0 {
			pull = avail
		}
		if pull.Sign() > 0 {
			hash, err := e.chain.WithdrawFromICO(ctx, pull)
			if err != nil {
				return errors.Wrap(err, "auto-withdraw")
			}
			e.log.Info("withdrew shortfall from ICO contract", "amountWei", pull, "tx", hash.Hex())
		}
		bal, err = e.chain.TokenBalance(ctx, e.chain.Sender())
		if err != nil {
			return errors.Wrap(err, "sender token balance after withdraw")
		}
		if bal.Cmp(amountWei) >= 0 {
			return nil
		}
	}
	return errors.Newf("sender balance too low: have %s, need %s", bal, amountWei)
}

// dailyLimit is the effective per-day send cap: the hard cap and the estimated
// budget, whichever is tighter among those configured.
func (e *Engine) dailyLimit() int {
	limit := e.cfg.DailyCap
	if e.state.EstDailyBudget > 0 && (limit == 0 || e.state.EstDailyBudget < limit) {
		limit = e.state.EstDailyBudget
	}
	return limit
}

func (e *Engine) gasBackoff() time.Duration {
	span := int64(e.cfg.GasBackoffMax - e.cfg.GasBackoffMin)
	if span <= 0 {
		return e.cfg.GasBackoffMin
	}
	return e.cfg.GasBackoffMin + time.Duration(e.rng.Int63n(span+1))
}

// avgChunk is the midpoint chunk estimate the budget math runs on. A
// USD-denominated cap is resolved against the current public price; if the
// price is unavailable the min chunk stands in, erring toward a higher budget.
func (e *Engine) avgChunk(ctx context.Context) int64 {
	hi := e.cfg.Chunk.MaxTokens
	if hi == 0 {
		if px, err := e.prices.Prices(ctx); err == nil {
			hi = e.cfg.Chunk.MaxChunkTokens(px.Public)
		}
	}
	if hi < e.cfg.Chunk.MinTokens {
		hi = e.cfg.Chunk.MinTokens
	}
	return (e.cfg.Chunk.MinTokens + hi) / 2
}
