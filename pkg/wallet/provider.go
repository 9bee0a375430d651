package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"weebdomains/pkg/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Provider is the wallet capability the session drives. Accounts and chain
// ids come back exactly as the wallet reports them.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]string, error)
	AuthorizedAccounts(ctx context.Context) ([]string, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainID string) error
	AddChain(ctx context.Context, params AddChainParams) error
	OnChainChanged(ctx context.Context, handler func(chainID *big.Int)) error
}

// NativeCurrency is the wallet_addEthereumChain currency object.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// AddChainParams is the wallet_addEthereumChain parameter object.
type AddChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// AddChainParamsFrom builds the add-chain descriptor for a configured network.
func AddChainParamsFrom(n config.NetworkConfig) AddChainParams {
	return AddChainParams{
		ChainID:   strings.ToLower(n.ChainID),
		ChainName: n.Name,
		RPCURLs:   n.RPCURLs,
		NativeCurrency: NativeCurrency{
			Name:     n.NativeCurrency.Name,
			Symbol:   n.NativeCurrency.Symbol,
			Decimals: n.NativeCurrency.Decimals,
		},
		BlockExplorerURLs: n.ExplorerURLs,
	}
}

// TxRequest is the eth_sendTransaction parameter object. The wallet fills in
// gas, nonce and the signature.
type TxRequest struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *hexutil.Big   `json:"value,omitempty"`
	Data  hexutil.Bytes  `json:"data"`
}

// RPCProvider talks to a wallet that exposes the EIP-1193 method set over
// JSON-RPC (HTTP or WebSocket).
type RPCProvider struct {
	client       *rpc.Client
	eth          *ethclient.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// Dial connects to the wallet endpoint. An empty URL or a failed dial means
// there is no wallet to talk to.
func Dial(ctx context.Context, url string, pollInterval time.Duration) (*RPCProvider, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrProviderMissing
	}
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderMissing, err)
	}
	return NewRPCProvider(client, pollInterval), nil
}

func NewRPCProvider(client *rpc.Client, pollInterval time.Duration) *RPCProvider {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &RPCProvider{
		client:       client,
		eth:          ethclient.NewClient(client),
		pollInterval: pollInterval,
		logger:       slog.Default().With("component", "wallet"),
	}
}

// Eth exposes the wallet connection as an ethclient for contract reads and
// receipt lookups.
func (p *RPCProvider) Eth() *ethclient.Client {
	return p.eth
}

func (p *RPCProvider) Close() {
	p.client.Close()
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *RPCProvider) AuthorizedAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *RPCProvider) ChainID(ctx context.Context) (*big.Int, error) {
	return p.eth.ChainID(ctx)
}

func (p *RPCProvider) SwitchChain(ctx context.Context, chainID string) error {
	param := map[string]string{"chainId": strings.ToLower(chainID)}
	return p.client.CallContext(ctx, nil, "wallet_switchEthereumChain", param)
}

func (p *RPCProvider) AddChain(ctx context.Context, params AddChainParams) error {
	return p.client.CallContext(ctx, nil, "wallet_addEthereumChain", params)
}

// SendTransaction asks the wallet to sign and broadcast a transaction.
func (p *RPCProvider) SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error) {
	var hash common.Hash
	if err := p.client.CallContext(ctx, &hash, "eth_sendTransaction", tx); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// OnChainChanged invokes handler whenever the wallet switches chains. It uses
// a chainChanged subscription when the transport supports one and falls back
// to polling eth_chainId otherwise. The watch ends with ctx.
func (p *RPCProvider) OnChainChanged(ctx context.Context, handler func(chainID *big.Int)) error {
	ch := make(chan string, 4)
	sub, err := p.client.EthSubscribe(ctx, ch, "chainChanged")
	if err != nil {
		p.logger.Debug("chainChanged subscription unavailable, polling", "error", err, "interval", p.pollInterval)
		initial, err := p.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("read chain id: %w", err)
		}
		go p.pollChainID(ctx, initial, handler)
		return nil
	}

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case raw := <-ch:
				id, err := hexutil.DecodeBig(raw)
				if err != nil {
					p.logger.Warn("ignoring malformed chainChanged payload", "payload", raw, "error", err)
					continue
				}
				handler(id)
			case err := <-sub.Err():
				if err != nil {
					p.logger.Warn("chainChanged subscription dropped", "error", err)
				}
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (p *RPCProvider) pollChainID(ctx context.Context, last *big.Int, handler func(*big.Int)) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			id, err := p.ChainID(ctx)
			if err != nil {
				p.logger.Debug("chain id poll failed", "error", err)
				continue
			}
			if last == nil || id.Cmp(last) != 0 {
				last = id
				handler(id)
			}
		case <-ctx.Done():
			return
		}
	}
}
