package main

import (
	"context"
	"fmt"
	"log/slog"

	"weebdomains/pkg/catalog"
	"weebdomains/pkg/config"
	"weebdomains/pkg/ledger"
	"weebdomains/pkg/network"
	"weebdomains/pkg/registrar"
	"weebdomains/pkg/rpc"
	"weebdomains/pkg/wallet"
	"weebdomains/pkg/watcher"

	"github.com/ethereum/go-ethereum/ethclient"
)

// app holds the wired session components.
type app struct {
	cfg          config.Config
	provider     *wallet.RPCProvider
	public       *ethclient.Client
	session      *wallet.Session
	guard        *network.Guard
	ledger       *ledger.Client
	reader       *catalog.Reader
	watcher      *watcher.Watcher
	orchestrator *registrar.Orchestrator
}

// newApp dials the wallet and wires the session around it. A missing wallet
// is not an error: the session starts in the no-wallet state and contract
// reads go to the first public endpoint that answers.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	var provider wallet.Provider
	var chain network.ChainProvider
	var sender ledger.Sender
	var backend ledger.Backend

	p, err := wallet.Dial(ctx, cfg.Wallet.URL, cfg.Wallet.ChainPollInterval())
	if err != nil {
		slog.Warn("wallet unavailable", "url", cfg.Wallet.URL, "error", err)
	} else {
		a.provider = p
		provider, chain, sender, backend = p, p, p, p.Eth()
	}

	if backend == nil {
		required, err := cfg.Network.ChainIDBig()
		if err != nil {
			return nil, err
		}
		client, failed, err := rpc.DialFirst(ctx, cfg.Network.RPCURLs, required)
		if len(failed) > 0 {
			slog.Warn("public rpc endpoints failed", "urls", failed)
		}
		if err == nil {
			a.public = client
			backend = client
		}
	}

	a.session = wallet.NewSession(provider)
	a.guard, err = network.NewGuard(chain, cfg.Network)
	if err != nil {
		a.close()
		return nil, err
	}

	a.ledger, err = ledger.NewClient(cfg.Registry.ContractAddress, backend, sender, a.session.Account, ledger.OptionsFrom(cfg.Global))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("registry client: %w", err)
	}

	a.reader = catalog.NewReader(a.ledger, a.guard, a.session.Account, cfg.Global.CatalogConcurrency)
	a.watcher = watcher.NewWatcher(cfg, a.session, a.guard, a.reader)
	a.orchestrator = registrar.New(a.ledger, a.reader, a.guard, a.watcher)
	a.watcher.SetOrchestrator(a.orchestrator)
	if a.provider != nil {
		a.watcher.SetChainNotifier(a.provider)
	}
	return a, nil
}

func (a *app) close() {
	if a.provider != nil {
		a.provider.Close()
	}
	if a.public != nil {
		a.public.Close()
	}
}
