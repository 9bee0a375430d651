package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"weebdomains/pkg/config"
	"weebdomains/pkg/models"
	"weebdomains/pkg/wallet"
)

// ErrWrongNetwork gates writes and catalog refreshes while the wallet is on
// another chain.
var ErrWrongNetwork = errors.New("wallet is not on the required network")

// ChainProvider is the slice of the wallet capability the guard needs.
type ChainProvider interface {
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainID string) error
	AddChain(ctx context.Context, params wallet.AddChainParams) error
}

// Guard compares the wallet chain to the required chain and drives the
// switch/add-chain flow.
type Guard struct {
	provider   ChainProvider
	required   config.NetworkConfig
	requiredID *big.Int
	logger     *slog.Logger
}

// NewGuard returns a guard for the required network. provider may be nil when
// no wallet is installed; every check then fails with ErrProviderMissing.
func NewGuard(provider ChainProvider, required config.NetworkConfig) (*Guard, error) {
	id, err := required.ChainIDBig()
	if err != nil {
		return nil, err
	}
	return &Guard{
		provider:   provider,
		required:   required,
		requiredID: id,
		logger:     slog.Default().With("component", "network_guard", "required", required.Name),
	}, nil
}

// Required returns the descriptor of the required network.
func (g *Guard) Required() config.NetworkConfig {
	return g.required
}

func (g *Guard) CurrentChainID(ctx context.Context) (*big.Int, error) {
	if g.provider == nil {
		return nil, wallet.ErrProviderMissing
	}
	return g.provider.ChainID(ctx)
}

// Describe builds the NetworkState for a chain id without any I/O.
func (g *Guard) Describe(id *big.Int) models.NetworkState {
	state := models.NetworkState{ChainID: id, DisplayName: DisplayName(id)}
	if id != nil && id.Cmp(g.requiredID) == 0 {
		state.IsRequired = true
		state.DisplayName = g.required.Name
	}
	return state
}

// State reads the active chain and describes it.
func (g *Guard) State(ctx context.Context) (models.NetworkState, error) {
	id, err := g.CurrentChainID(ctx)
	if err != nil {
		return models.NetworkState{}, err
	}
	return g.Describe(id), nil
}

func (g *Guard) IsOnRequiredNetwork(ctx context.Context) (bool, error) {
	state, err := g.State(ctx)
	if err != nil {
		return false, err
	}
	return state.IsRequired, nil
}

// Require returns nil only when the wallet is on the required chain.
func (g *Guard) Require(ctx context.Context) error {
	ok, err := g.IsOnRequiredNetwork(ctx)
	if err != nil {
		return fmt.Errorf("check network: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: connect to the %s", ErrWrongNetwork, g.required.Name)
	}
	return nil
}

// SwitchToRequired asks the wallet to switch chains, adding the chain first
// when the wallet does not know it.
func (g *Guard) SwitchToRequired(ctx context.Context) error {
	if g.provider == nil {
		return wallet.ErrProviderMissing
	}
	err := g.provider.SwitchChain(ctx, g.required.ChainID)
	if err == nil {
		return nil
	}
	if !wallet.IsUnrecognizedChain(err) {
		g.logger.Warn("switch chain failed", "error", err)
		return fmt.Errorf("switch chain: %w", err)
	}

	g.logger.Info("required chain unknown to wallet, adding it")
	if err := g.provider.AddChain(ctx, wallet.AddChainParamsFrom(g.required)); err != nil {
		g.logger.Warn("add chain failed", "error", err)
		return fmt.Errorf("add chain: %w", err)
	}
	return nil
}
