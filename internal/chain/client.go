// Package chain wraps the Ethereum RPC surface the distributor consumes: the
// sale token's ERC-20 interface and the ICO contract's read/write interface.
// The client is constructed once and passed to whoever needs chain access.
package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Options for constructing a Client.
type Options struct {
	RPCURL       string
	ChainID      int64
	Key          *ecdsa.PrivateKey
	ICOAddress   string
	TokenAddress string // empty: resolved from ICO.saleToken()
}

// Client is the single chain access point for a campaign.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	sender  common.Address

	ico      common.Address
	token    common.Address
	decimals uint8
	symbol   string
}

// Dial connects with keep-alives and sane timeouts, resolves the sale token
// and caches its immutable metadata.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if !common.IsHexAddress(opts.ICOAddress) {
		return nil, errors.Newf("invalid ICO address %q", opts.ICOAddress)
	}
	transport := &http.Transport{
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
	rpcClient, err := rpc.DialOptions(ctx, opts.RPCURL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.Wrap(err, "dial rpc")
	}

	c := &Client{
		eth:     ethclient.NewClient(rpcClient),
		chainID: big.NewInt(opts.ChainID),
		key:     opts.Key,
		ico:     common.HexToAddress(opts.ICOAddress),
	}
	if opts.Key != nil {
		c.sender = gethcrypto.PubkeyToAddress(opts.Key.PublicKey)
	}

	if opts.TokenAddress != "" {
		if !common.IsHexAddress(opts.TokenAddress) {
			return nil, errors.Newf("invalid token address %q", opts.TokenAddress)
		}
		c.token = common.HexToAddress(opts.TokenAddress)
	} else {
		tok, err := c.saleToken(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "resolve sale token")
		}
		c.token = tok
	}
	if (c.token == common.Address{}) {
		return nil, errors.New("sale token is not set on the ICO contract")
	}

	dec, err := c.fetchDecimals(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "token decimals")
	}
	c.decimals = dec
	// symbol() is cosmetic; tolerate tokens without it.
	c.symbol, _ = c.fetchSymbol(ctx)

	return c, nil
}

func (c *Client) Close() { c.eth.Close() }

func (c *Client) Sender() common.Address { return c.sender }
func (c *Client) Token() common.Address  { return c.token }
func (c *Client) ICO() common.Address    { return c.ico }
func (c *Client) Decimals() uint8        { return c.decimals }
func (c *Client) Symbol() string         { return c.symbol }

// ToWei converts whole tokens to the token's smallest unit.
func (c *Client) ToWei(wholeTokens int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(c.decimals)), nil)
	return new(big.Int).Mul(big.NewInt(wholeTokens), scale)
}

// NativeBalance returns the sender's ETH balance.
func (c *Client) NativeBalance(ctx context.Context) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, c.sender, nil)
}

// BlockNumber returns the current head number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// BlockTime returns the timestamp of the given block.
func (c *Client) BlockTime(ctx context.Context, number uint64) (time.Time, error) {
	h, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "header %d", number)
	}
	return time.Unix(int64(h.Time), 0), nil
}

// sendTx builds, signs and broadcasts an EIP-1559 transaction carrying data to
// the given contract. Gas is estimated with a 10% buffer.
func (c *Client) sendTx(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, errors.New("client has no signing key")
	}
	if value == nil {
		value = big.NewInt(0)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.sender)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "pending nonce")
	}
	gas, err := estimateGasWithRetry(ctx, c.eth, ethereum.CallMsg{
		From: c.sender, To: &to, Value: value, Data: data,
	})
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "estimate gas")
	}
	gas = gas + gas/10

	tip, feeCap, err := c.feeCaps(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "sign tx")
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, errors.Wrap(err, "send tx")
	}
	return signed.Hash(), nil
}

// feeCaps derives tip and fee cap from the suggested tip and current base fee.
func (c *Client) feeCaps(ctx context.Context) (tip, feeCap *big.Int, err error) {
	tip, err = c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "suggest tip")
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "head")
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	feeCap = new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)
	return tip, feeCap, nil
}

// WaitMined blocks until the transaction is included, then until the requested
// confirmation depth on top of inclusion. confirmations==0 means inclusion only.
func (c *Client) WaitMined(ctx context.Context, hash common.Hash, confirmations uint64) error {
	var receipt *types.Receipt
	for {
		r, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			receipt = r
			break
		}
		if !errors.Is(err, ethereum.NotFound) {
			return errors.Wrap(err, "receipt")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(4 * time.Second):
		}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return errors.Newf("tx %s reverted", hash.Hex())
	}
	if confirmations == 0 {
		return nil
	}
	need := new(big.Int).Add(receipt.BlockNumber, new(big.Int).SetUint64(confirmations))
	for {
		head, err := c.eth.BlockNumber(ctx)
		if err != nil {
			return errors.Wrap(err, "head number")
		}
		if new(big.Int).SetUint64(head).Cmp(need) >= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(8 * time.Second):
		}
	}
}
