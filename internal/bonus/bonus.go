// Package bonus credits stage-based purchase bonuses into the ledger. The
// pricing stage is computed from the purchase block's timestamp, and the
// buyer's waitlist status is captured when the purchase is scanned, so a later
// status flip can no longer change an already-recorded bonus interval.
package bonus

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tokenops/presale-distributor/internal/chain"
	"github.com/tokenops/presale-distributor/internal/ledger"
	"github.com/tokenops/presale-distributor/internal/pricing"
)

// Chain is the slice of chain.Client the scanner needs.
type Chain interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockTime(ctx context.Context, number uint64) (time.Time, error)
	FilterPurchases(ctx context.Context, fromBlock, toBlock uint64) ([]chain.Purchase, error)
	Waitlisted(ctx context.Context, account common.Address) (bool, error)
	Decimals() uint8
}

// Config tunes one bonus pass.
type Config struct {
	StagePcts []int  // bonus percent per pricing stage; the last entry repeats
	FromBlock uint64 // 0: resume from the ledger cursor
	Live      bool   // false: report only, credit nothing
}

// Entry is one computed bonus.
type Entry struct {
	Buyer       string
	TxHash      string
	Block       uint64
	PurchasedAt time.Time
	Waitlisted  bool
	Stage       int64
	Percent     int
	Purchased   int64 // whole tokens bought
	Bonus       int64 // whole tokens credited
}

// Report summarizes one pass.
type Report struct {
	FromBlock uint64
	ToBlock   uint64
	Entries   []Entry
	Credited  int64
}

// Run scans purchase logs from the cursor (or FromBlock), computes bonuses and,
// when live, credits them into the ledger and advances the cursor.
func Run(ctx context.Context, cfg Config, ch Chain, params pricing.Params, state *ledger.State, log *slog.Logger) (Report, error) {
	if len(cfg.StagePcts) == 0 {
		return Report{}, errors.New("no bonus stage percentages configured")
	}
	if log == nil {
		log = slog.Default()
	}

	head, err := ch.BlockNumber(ctx)
	if err != nil {
		return Report{}, errors.Wrap(err, "head block")
	}
	from := cfg.FromBlock
	if from == 0 {
		from = state.Cursor + 1
	}
	if from > head {
		return Report{FromBlock: from, ToBlock: head}, nil
	}

	purchases, err := ch.FilterPurchases(ctx, from, head)
	if err != nil {
		return Report{}, err
	}

	rep := Report{FromBlock: from, ToBlock: head}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(ch.Decimals())), nil)
	blockTimes := map[uint64]time.Time{}

	for _, p := range purchases {
		ts, ok := blockTimes[p.Block]
		if !ok {
			ts, err = ch.BlockTime(ctx, p.Block)
			if err != nil {
				return Report{}, err
			}
			blockTimes[p.Block] = ts
		}
		// Recorded once at scan time; payout never re-reads it.
		wl, err := ch.Waitlisted(ctx, p.Buyer)
		if err != nil {
			return Report{}, errors.Wrapf(err, "waitlisted(%s)", p.Buyer.Hex())
		}
		interval := params.PublicInterval
		if wl {
			interval = params.WaitlistInterval
		}
		stage := pricing.Stage(params, interval, ts)
		pct := StagePercent(cfg.StagePcts, stage)

		purchased := new(big.Int).Div(p.TokenAmount, scale).Int64()
		bonus := purchased * int64(pct) / 100

		entry := Entry{
			Buyer:       p.Buyer.Hex(),
			TxHash:      p.TxHash.Hex(),
			Block:       p.Block,
			PurchasedAt: ts,
			Waitlisted:  wl,
			Stage:       stage,
			Percent:     pct,
			Purchased:   purchased,
			Bonus:       bonus,
		}
		rep.Entries = append(rep.Entries, entry)
		if bonus <= 0 {
			continue
		}
		if cfg.Live {
			state.Credit(entry.Buyer, bonus)
			rep.Credited += bonus
		}
		log.Info("bonus computed",
			"buyer", entry.Buyer, "stage", stage, "pct", pct,
			"purchased", purchased, "bonus", bonus, "live", cfg.Live)
	}

	if cfg.Live {
		state.Cursor = head
		if err := state.Save(); err != nil {
			return Report{}, errors.Wrap(err, "persist ledger")
		}
	}
	return rep, nil
}

// StagePercent maps a pricing stage onto the configured percentage table; late
// stages reuse the last configured value.
func StagePercent(pcts []int, stage int64) int {
	if len(pcts) == 0 {
		return 0
	}
	if stage >= int64(len(pcts)) {
		return pcts[len(pcts)-1]
	}
	if stage < 0 {
		return pcts[0]
	}
	return pcts[stage]
}
