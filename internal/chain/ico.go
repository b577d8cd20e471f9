package chain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/tokenops/presale-distributor/internal/pricing"
)

// usdtDecimals: all USD-denominated contract values are USDT-scaled.
const usdtDecimals = 6

var icoABI abi.ABI

func init() {
	const def = `[
		{"name":"saleToken","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"name":"initialUsdtPricePerToken","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"usdtPriceIncrement","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"saleStartTime","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"waitlistInterval","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"publicInterval","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"waitlisted","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"getContractInfo","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"token","type":"address"},{"name":"tokenBalance","type":"uint256"},{"name":"totalSold","type":"uint256"},{"name":"totalRaisedUsdt","type":"uint256"}]},
		{"name":"getPriceInfo","type":"function","stateMutability":"view","inputs":[{"name":"buyer","type":"address"}],"outputs":[{"name":"price","type":"uint256"},{"name":"isWaitlisted","type":"bool"}]},
		{"name":"withdrawTokens","type":"function","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"buyWithETH","type":"function","stateMutability":"payable","inputs":[{"name":"referrer","type":"address"}],"outputs":[]},
		{"name":"buyWithToken","type":"function","stateMutability":"nonpayable","inputs":[{"name":"payToken","type":"address"},{"name":"amount","type":"uint256"},{"name":"referrer","type":"address"}],"outputs":[]},
		{"type":"event","name":"TokensPurchased","inputs":[{"name":"buyer","type":"address","indexed":true},{"name":"paymentToken","type":"address","indexed":true},{"name":"paidAmount","type":"uint256","indexed":false},{"name":"tokenAmount","type":"uint256","indexed":false}],"anonymous":false}
	]`
	ab, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	icoABI = ab
}

func (c *Client) icoView(ctx context.Context, method string, args ...any) ([]byte, error) {
	data, err := icoABI.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}
	ret, err := callWithRetry(ctx, c.eth, ethereum.CallMsg{To: &c.ico, Data: data})
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", method)
	}
	return ret, nil
}

func (c *Client) icoViewUint(ctx context.Context, method string) (*big.Int, error) {
	ret, err := c.icoView(ctx, method)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(ret), nil
}

func (c *Client) saleToken(ctx context.Context) (common.Address, error) {
	ret, err := c.icoView(ctx, "saleToken")
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(ret), nil
}

// PriceParams reads the four pricing values and converts them to the curve
// parameters the pricing cache works with.
func (c *Client) PriceParams(ctx context.Context) (pricing.Params, error) {
	initial, err := c.icoViewUint(ctx, "initialUsdtPricePerToken")
	if err != nil {
		return pricing.Params{}, err
	}
	increment, err := c.icoViewUint(ctx, "usdtPriceIncrement")
	if err != nil {
		return pricing.Params{}, err
	}
	start, err := c.icoViewUint(ctx, "saleStartTime")
	if err != nil {
		return pricing.Params{}, err
	}
	waitlistIv, err := c.icoViewUint(ctx, "waitlistInterval")
	if err != nil {
		return pricing.Params{}, err
	}
	publicIv, err := c.icoViewUint(ctx, "publicInterval")
	if err != nil {
		return pricing.Params{}, err
	}
	return pricing.Params{
		InitialPrice:     decimal.NewFromBigInt(initial, -usdtDecimals),
		Increment:        decimal.NewFromBigInt(increment, -usdtDecimals),
		SaleStart:        time.Unix(start.Int64(), 0),
		WaitlistInterval: time.Duration(waitlistIv.Int64()) * time.Second,
		PublicInterval:   time.Duration(publicIv.Int64()) * time.Second,
	}, nil
}

// PriceInfo returns the contract's own price quote for a buyer, a cross-check
// against the locally computed curve.
func (c *Client) PriceInfo(ctx context.Context, buyer common.Address) (decimal.Decimal, bool, error) {
	ret, err := c.icoView(ctx, "getPriceInfo", buyer)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	vals, err := icoABI.Unpack("getPriceInfo", ret)
	if err != nil {
		return decimal.Decimal{}, false, errors.Wrap(err, "unpack getPriceInfo")
	}
	return decimal.NewFromBigInt(vals[0].(*big.Int), -usdtDecimals), vals[1].(bool), nil
}

// Waitlisted reports the buyer's current waitlist status.
func (c *Client) Waitlisted(ctx context.Context, account common.Address) (bool, error) {
	ret, err := c.icoView(ctx, "waitlisted", account)
	if err != nil {
		return false, err
	}
	return len(ret) > 0 && ret[len(ret)-1] == 1, nil
}

// ContractInfo is the ICO contract's self-reported summary.
type ContractInfo struct {
	Token           common.Address
	TokenBalance    *big.Int
	TotalSold       *big.Int
	TotalRaisedUsdt *big.Int
}

func (c *Client) ContractInfo(ctx context.Context) (ContractInfo, error) {
	ret, err := c.icoView(ctx, "getContractInfo")
	if err != nil {
		return ContractInfo{}, err
	}
	vals, err := icoABI.Unpack("getContractInfo", ret)
	if err != nil {
		return ContractInfo{}, errors.Wrap(err, "unpack getContractInfo")
	}
	return ContractInfo{
		Token:           vals[0].(common.Address),
		TokenBalance:    vals[1].(*big.Int),
		TotalSold:       vals[2].(*big.Int),
		TotalRaisedUsdt: vals[3].(*big.Int),
	}, nil
}

// ICOTokenBalance is what the contract can still release via withdrawTokens.
func (c *Client) ICOTokenBalance(ctx context.Context) (*big.Int, error) {
	return c.TokenBalance(ctx, c.ico)
}

// WithdrawFromICO pulls amountWei of the sale token from the ICO contract into
// the sender wallet and waits for inclusion.
func (c *Client) WithdrawFromICO(ctx context.Context, amountWei *big.Int) (common.Hash, error) {
	data, err := icoABI.Pack("withdrawTokens", c.token, amountWei)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "pack withdrawTokens")
	}
	hash, err := c.sendTx(ctx, c.ico, nil, data)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "withdrawTokens")
	}
	if err := c.WaitMined(ctx, hash, 0); err != nil {
		return hash, errors.Wrap(err, "withdrawTokens inclusion")
	}
	return hash, nil
}

// Purchase is one decoded TokensPurchased event.
type Purchase struct {
	Buyer        common.Address
	PaymentToken common.Address
	PaidAmount   *big.Int
	TokenAmount  *big.Int
	Block        uint64
	TxHash       common.Hash
}

// FilterPurchases decodes TokensPurchased logs in [fromBlock, toBlock].
func (c *Client) FilterPurchases(ctx context.Context, fromBlock, toBlock uint64) ([]Purchase, error) {
	topic := icoABI.Events["TokensPurchased"].ID
	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.ico},
		Topics:    [][]common.Hash{{topic}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "filter purchase logs")
	}

	out := make([]Purchase, 0, len(logs))
	for _, lg := range logs {
		if len(lg.Topics) < 3 {
			continue
		}
		vals, err := icoABI.Events["TokensPurchased"].Inputs.NonIndexed().Unpack(lg.Data)
		if err != nil {
			return nil, errors.Wrapf(err, "decode purchase log %s", lg.TxHash.Hex())
		}
		out = append(out, Purchase{
			Buyer:        common.BytesToAddress(lg.Topics[1].Bytes()),
			PaymentToken: common.BytesToAddress(lg.Topics[2].Bytes()),
			PaidAmount:   vals[0].(*big.Int),
			TokenAmount:  vals[1].(*big.Int),
			Block:        lg.BlockNumber,
			TxHash:       lg.TxHash,
		})
	}
	return out, nil
}

// BuyWithETH submits a native-currency purchase.
func (c *Client) BuyWithETH(ctx context.Context, valueWei *big.Int, referrer common.Address) (common.Hash, error) {
	data, err := icoABI.Pack("buyWithETH", referrer)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "pack buyWithETH")
	}
	return c.sendTx(ctx, c.ico, valueWei, data)
}

// BuyWithToken submits a stablecoin/token purchase.
func (c *Client) BuyWithToken(ctx context.Context, payToken common.Address, amount *big.Int, referrer common.Address) (common.Hash, error) {
	data, err := icoABI.Pack("buyWithToken", payToken, amount, referrer)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "pack buyWithToken")
	}
	return c.sendTx(ctx, c.ico, nil, data)
}

// ApproveToken approves the ICO contract to spend amount of an ERC-20 payment
// token and waits for inclusion.
func (c *Client) ApproveToken(ctx context.Context, payToken common.Address, amount *big.Int) (common.Hash, error) {
	data, err := erc20ABI.Pack("approve", c.ico, amount)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "pack approve")
	}
	hash, err := c.sendTx(ctx, payToken, nil, data)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "approve")
	}
	if err := c.WaitMined(ctx, hash, 0); err != nil {
		return hash, errors.Wrap(err, "approve inclusion")
	}
	return hash, nil
}
