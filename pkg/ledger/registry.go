// Package ledger talks to the name-registry contract: reads through eth_call,
// writes through the wallet's eth_sendTransaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"weebdomains/pkg/config"
	"weebdomains/pkg/metrics"
	"weebdomains/pkg/models"
	"weebdomains/pkg/wallet"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// RegistryABI is the subset of the registry contract this client uses.
const RegistryABI = `[
	{"type":"function","name":"getAllNames","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string[]"}]},
	{"type":"function","name":"records","stateMutability":"view","inputs":[{"name":"","type":"string"}],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"domains","stateMutability":"view","inputs":[{"name":"","type":"string"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"register","stateMutability":"payable","inputs":[{"name":"name","type":"string"}],"outputs":[]},
	{"type":"function","name":"setRecord","stateMutability":"nonpayable","inputs":[{"name":"name","type":"string"},{"name":"record","type":"string"}],"outputs":[]}
]`

var (
	ErrNoSender  = errors.New("no account to send from")
	ErrNoBackend = errors.New("no node connection")
)

// Backend is the node access the client needs. *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Sender submits a transaction for the wallet to sign.
type Sender interface {
	SendTransaction(ctx context.Context, tx wallet.TxRequest) (common.Hash, error)
}

// PendingTx is a submitted write awaiting confirmation.
type PendingTx interface {
	Hash() common.Hash
	Wait(ctx context.Context) (*models.Receipt, error)
}

// Options tune polling and throttling.
type Options struct {
	ConfirmationTimeout time.Duration
	ReceiptPollInterval time.Duration
	ReadsPerSecond      float64
}

func OptionsFrom(g config.GlobalConfig) Options {
	return Options{
		ConfirmationTimeout: g.ConfirmationTimeout(),
		ReceiptPollInterval: g.ReceiptPollInterval(),
		ReadsPerSecond:      g.RPCRequestsPerSecond,
	}
}

// Client is a registry contract binding.
type Client struct {
	abi     abi.ABI
	address common.Address
	backend Backend
	sender  Sender
	account func() string
	limiter *Limiter
	opts    Options
	logger  *slog.Logger
}

// NewClient binds the registry at address. account returns the address writes
// are sent from; it is read on every write.
func NewClient(address string, backend Backend, sender Sender, account func() string, opts Options) (*Client, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid contract address %q", address)
	}
	parsed, err := abi.JSON(strings.NewReader(RegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	if opts.ReceiptPollInterval <= 0 {
		opts.ReceiptPollInterval = 2 * time.Second
	}
	burst := int(opts.ReadsPerSecond)
	return &Client{
		abi:     parsed,
		address: common.HexToAddress(address),
		backend: backend,
		sender:  sender,
		account: account,
		limiter: NewLimiter(opts.ReadsPerSecond, burst),
		opts:    opts,
		logger:  slog.Default().With("component", "ledger", "contract", address),
	}, nil
}

func (c *Client) Address() common.Address {
	return c.address
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	out, err := c.doCall(ctx, method, args...)
	metrics.LedgerCallsTotal.WithLabelValues(method, metrics.Result(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

func (c *Client) doCall(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	if c.backend == nil {
		return nil, ErrNoBackend
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	to := c.address
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return c.abi.Unpack(method, raw)
}

// ListAllNames returns every registered name in contract order.
func (c *Client) ListAllNames(ctx context.Context) ([]string, error) {
	out, err := c.call(ctx, "getAllNames")
	if err != nil {
		return nil, err
	}
	names, ok := out[0].([]string)
	if !ok {
		return nil, fmt.Errorf("getAllNames: unexpected result type %T", out[0])
	}
	return names, nil
}

// GetRecord returns the record attached to name, empty when unset.
func (c *Client) GetRecord(ctx context.Context, name string) (string, error) {
	out, err := c.call(ctx, "records", name)
	if err != nil {
		return "", err
	}
	record, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("records: unexpected result type %T", out[0])
	}
	return record, nil
}

// GetOwner returns the checksummed owner address of name.
func (c *Client) GetOwner(ctx context.Context, name string) (string, error) {
	out, err := c.call(ctx, "domains", name)
	if err != nil {
		return "", err
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("domains: unexpected result type %T", out[0])
	}
	return owner.Hex(), nil
}

// Register submits register(name) paying value wei.
func (c *Client) Register(ctx context.Context, name string, value *big.Int) (PendingTx, error) {
	return c.transact(ctx, "register", value, name)
}

// SetRecord submits setRecord(name, record).
func (c *Client) SetRecord(ctx context.Context, name, record string) (PendingTx, error) {
	return c.transact(ctx, "setRecord", nil, name, record)
}

func (c *Client) transact(ctx context.Context, method string, value *big.Int, args ...interface{}) (PendingTx, error) {
	hash, err := c.send(ctx, method, value, args...)
	metrics.LedgerCallsTotal.WithLabelValues(method, metrics.Result(err)).Inc()
	if err != nil {
		return nil, err
	}
	c.logger.Info("transaction submitted", "method", method, "tx", hash.Hex())
	return &pendingTx{client: c, method: method, hash: hash, sent: time.Now()}, nil
}

func (c *Client) send(ctx context.Context, method string, value *big.Int, args ...interface{}) (common.Hash, error) {
	from := ""
	if c.account != nil {
		from = c.account()
	}
	if c.sender == nil || !common.IsHexAddress(from) {
		return common.Hash{}, ErrNoSender
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}
	tx := wallet.TxRequest{
		From: common.HexToAddress(from),
		To:   c.address,
		Data: data,
	}
	if value != nil && value.Sign() > 0 {
		tx.Value = (*hexutil.Big)(value)
	}
	return c.sender.SendTransaction(ctx, tx)
}

type pendingTx struct {
	client *Client
	method string
	hash   common.Hash
	sent   time.Time
}

func (p *pendingTx) Hash() common.Hash {
	return p.hash
}

// Wait polls for the receipt until it exists, ctx ends or the confirmation
// timeout passes.
func (p *pendingTx) Wait(ctx context.Context) (*models.Receipt, error) {
	c := p.client
	if c.opts.ConfirmationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ConfirmationTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.opts.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, p.hash)
		switch {
		case err == nil:
			metrics.ConfirmationLatency.WithLabelValues(p.method).Observe(time.Since(p.sent).Seconds())
			out := &models.Receipt{TxHash: p.hash.Hex(), Status: receipt.Status}
			if receipt.BlockNumber != nil {
				out.BlockNumber = receipt.BlockNumber.Uint64()
			}
			c.logger.Info("transaction confirmed", "method", p.method, "tx", out.TxHash,
				"status", out.Status, "block", out.BlockNumber)
			return out, nil
		case !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("receipt %s: %w", p.hash.Hex(), err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", p.hash.Hex(), ctx.Err())
		}
	}
}
