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
	"github.com/ethereum/go-ethereum/ethclient"
)

var erc20ABI abi.ABI

func init() {
	const def = `[
		{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`
	ab, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	erc20ABI = ab
}

// EncodeERC20Transfer packs transfer(to, amount) calldata.
func EncodeERC20Transfer(to common.Address, amount *big.Int) []byte {
	selector := common.FromHex("0xa9059cbb")
	arg1 := common.LeftPadBytes(to.Bytes(), 32)
	arg2 := common.LeftPadBytes(amount.Bytes(), 32)
	return append(selector, append(arg1, arg2...)...)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "Too Many Requests") || strings.Contains(s, "-32005")
}

// callWithRetry performs eth_call with small exponential backoff.
func callWithRetry(ctx context.Context, ec *ethclient.Client, msg ethereum.CallMsg) ([]byte, error) {
	const maxAttempts = 3
	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ret, err := ec.CallContract(ctx, msg, nil)
		if err == nil {
			return ret, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			time.Sleep(backoff)
			if isRateLimitError(err) {
				backoff *= 2
			}
		}
	}
	return nil, lastErr
}

func estimateGasWithRetry(ctx context.Context, ec *ethclient.Client, msg ethereum.CallMsg) (uint64, error) {
	const maxAttempts = 3
	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		g, err := ec.EstimateGas(ctx, msg)
		if err == nil {
			return g, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			time.Sleep(backoff)
			if isRateLimitError(err) {
				backoff *= 2
			}
		}
	}
	return 0, lastErr
}

func (c *Client) tokenView(ctx context.Context, method string, args ...any) ([]byte, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}
	return callWithRetry(ctx, c.eth, ethereum.CallMsg{To: &c.token, Data: data})
}

// TokenBalance returns owner's sale-token balance in smallest units.
func (c *Client) TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	ret, err := c.tokenView(ctx, "balanceOf", owner)
	if err != nil {
		return nil, errors.Wrap(err, "balanceOf")
	}
	return new(big.Int).SetBytes(ret), nil
}

func (c *Client) fetchDecimals(ctx context.Context) (uint8, error) {
	ret, err := c.tokenView(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	if len(ret) == 0 {
		return 18, nil
	}
	return uint8(new(big.Int).SetBytes(ret).Uint64()), nil
}

func (c *Client) fetchSymbol(ctx context.Context) (string, error) {
	ret, err := c.tokenView(ctx, "symbol")
	if err != nil {
		return "", err
	}
	var out string
	if err := erc20ABI.UnpackIntoInterface(&out, "symbol", ret); err != nil {
		return "", errors.Wrap(err, "unpack symbol")
	}
	return out, nil
}

// EstimateTransferCost estimates the native-currency cost of one token
// transfer at the current gas price.
func (c *Client) EstimateTransferCost(ctx context.Context, to common.Address, amountWei *big.Int) (*big.Int, error) {
	data := EncodeERC20Transfer(to, amountWei)
	gas, err := estimateGasWithRetry(ctx, c.eth, ethereum.CallMsg{From: c.sender, To: &c.token, Data: data})
	if err != nil {
		// transfer would revert or the node is unwell; fall back to a typical
		// ERC-20 transfer gas limit so the gas check stays conservative.
		gas = 70000
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "suggest gas price")
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice), nil
}

// Transfer broadcasts an ERC-20 transfer of amountWei smallest units.
func (c *Client) Transfer(ctx context.Context, to common.Address, amountWei *big.Int) (common.Hash, error) {
	data := EncodeERC20Transfer(to, amountWei)
	hash, err := c.sendTx(ctx, c.token, nil, data)
	if err != nil {
		return common.Hash{}, errors.Wrapf(err, "transfer %s to %s", amountWei, to.Hex())
	}
	return hash, nil
}
