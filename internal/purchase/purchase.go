// Package purchase is the single parametrized buy path: one operation driven
// by a payment-method descriptor instead of one hand-written function per
// accepted currency.
package purchase

import (
	"context"
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Method describes one accepted payment currency. A zero Token address means
// the chain's native currency.
type Method struct {
	Symbol       string
	Token        common.Address
	Decimals     int32
	NeedsApprove bool
}

// Native reports whether the method pays in the chain's native currency.
func (m Method) Native() bool {
	return m.Token == (common.Address{})
}

// methods are mainnet descriptors. Other networks override the token address
// via the PAY_TOKEN_<SYMBOL> env handled in cmd.
var methods = map[string]Method{
	"ETH":  {Symbol: "ETH", Decimals: 18},
	"USDT": {Symbol: "USDT", Token: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), Decimals: 6, NeedsApprove: true},
	"USDC": {Symbol: "USDC", Token: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Decimals: 6, NeedsApprove: true},
	"DAI":  {Symbol: "DAI", Token: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), Decimals: 18, NeedsApprove: true},
	"WBTC": {Symbol: "WBTC", Token: common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"), Decimals: 8, NeedsApprove: true},
	"WETH": {Symbol: "WETH", Token: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Decimals: 18, NeedsApprove: true},
}

// ByName resolves a payment method by symbol, case-insensitively.
func ByName(symbol string) (Method, error) {
	m, ok := methods[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Method{}, errors.Newf("unknown payment method %q", symbol)
	}
	return m, nil
}

// Symbols lists the accepted method names.
func Symbols() []string {
	out := make([]string, 0, len(methods))
	for s := range methods {
		out = append(out, s)
	}
	return out
}

// Units converts a human amount to the method's smallest units, truncating
// sub-unit dust.
func (m Method) Units(amount decimal.Decimal) *big.Int {
	return amount.Shift(m.Decimals).Truncate(0).BigInt()
}

// Chain is the slice of chain.Client a purchase needs.
type Chain interface {
	BuyWithETH(ctx context.Context, valueWei *big.Int, referrer common.Address) (common.Hash, error)
	BuyWithToken(ctx context.Context, payToken common.Address, amount *big.Int, referrer common.Address) (common.Hash, error)
	ApproveToken(ctx context.Context, payToken common.Address, amount *big.Int) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash, confirmations uint64) error
}

// Buy executes one purchase: approve when the method requires it, then the
// matching buy call, then wait for inclusion.
func Buy(ctx context.Context, ch Chain, m Method, amount decimal.Decimal, referrer common.Address) (common.Hash, error) {
	if amount.Sign() <= 0 {
		return common.Hash{}, errors.New("amount must be positive")
	}
	units := m.Units(amount)
	if units.Sign() <= 0 {
		return common.Hash{}, errors.Newf("amount %s is below one smallest unit of %s", amount, m.Symbol)
	}

	var (
		hash common.Hash
		err  error
	)
	if m.Native() {
		hash, err = ch.BuyWithETH(ctx, units, referrer)
	} else {
		if m.NeedsApprove {
			if _, err := ch.ApproveToken(ctx, m.Token, units); err != nil {
				return common.Hash{}, errors.Wrapf(err, "approve %s", m.Symbol)
			}
		}
		hash, err = ch.BuyWithToken(ctx, m.Token, units, referrer)
	}
	if err != nil {
		return common.Hash{}, errors.Wrapf(err, "buy with %s", m.Symbol)
	}
	if err := ch.WaitMined(ctx, hash, 0); err != nil {
		return hash, errors.Wrap(err, "purchase inclusion")
	}
	return hash, nil
}
