// Package pricing computes the presale stage prices from the ICO contract's
// on-chain curve parameters, behind a TTL cache so chunk sizing does not hit
// the RPC on every iteration.
package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// Params are the four on-chain pricing values the curve is derived from.
type Params struct {
	InitialPrice     decimal.Decimal // USD per token at sale start
	Increment        decimal.Decimal // USD added per elapsed interval
	SaleStart        time.Time
	WaitlistInterval time.Duration
	PublicInterval   time.Duration
}

// Prices are the three named tier prices at one point in time.
type Prices struct {
	Initial  decimal.Decimal
	Waitlist decimal.Decimal
	Public   decimal.Decimal
	Fetched  time.Time
}

// Reader fetches the curve parameters from the chain.
type Reader interface {
	PriceParams(ctx context.Context) (Params, error)
}

// Stage is the zero-based pricing tier index at a given instant:
// floor((at - saleStart) / interval), never negative.
func Stage(p Params, interval time.Duration, at time.Time) int64 {
	if interval <= 0 || !at.After(p.SaleStart) {
		return 0
	}
	return int64(at.Sub(p.SaleStart) / interval)
}

// PriceAt returns initial + increment * stage, floored at the initial price
// before the sale starts.
func PriceAt(p Params, interval time.Duration, at time.Time) decimal.Decimal {
	n := Stage(p, interval, at)
	if n == 0 {
		return p.InitialPrice
	}
	return p.InitialPrice.Add(p.Increment.Mul(decimal.NewFromInt(n)))
}

// Cache lazily refreshes Params on a TTL.
type Cache struct {
	reader Reader
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	params  Params
	fetched time.Time
}

func NewCache(reader Reader, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Cache{reader: reader, ttl: ttl, now: time.Now}
}

// Prices returns the current tier prices, refreshing stale parameters first.
// Stale parameters are never used for chunk sizing.
func (c *Cache) Prices(ctx context.Context) (Prices, error) {
	p, fetched, err := c.current(ctx)
	if err != nil {
		return Prices{}, err
	}
	at := c.now()
	return Prices{
		Initial:  p.InitialPrice,
		Waitlist: PriceAt(p, p.WaitlistInterval, at),
		Public:   PriceAt(p, p.PublicInterval, at),
		Fetched:  fetched,
	}, nil
}

// Params returns the cached curve parameters, refreshing on expiry.
func (c *Cache) Params(ctx context.Context) (Params, error) {
	p, _, err := c.current(ctx)
	return p, err
}

func (c *Cache) current(ctx context.Context) (Params, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fetched.IsZero() && c.now().Sub(c.fetched) < c.ttl {
		return c.params, c.fetched, nil
	}
	p, err := c.reader.PriceParams(ctx)
	if err != nil {
		return Params{}, time.Time{}, errors.Wrap(err, "refresh price params")
	}
	if p.InitialPrice.Sign() <= 0 {
		return Params{}, time.Time{}, errors.New("on-chain initial price is zero")
	}
	c.params = p
	c.fetched = c.now()
	return c.params, c.fetched, nil
}
