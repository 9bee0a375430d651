package watcher

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"weebdomains/pkg/catalog"
	"weebdomains/pkg/config"
	"weebdomains/pkg/metrics"
	"weebdomains/pkg/models"
	"weebdomains/pkg/network"
)

// ErrNotOwner is returned when editing a name the connected account does not
// own.
var ErrNotOwner = errors.New("name is not owned by the connected account")

// Wallet is the account side of the session; *wallet.Session satisfies it.
type Wallet interface {
	HasProvider() bool
	Account() string
	DetectExisting(ctx context.Context) string
	Connect(ctx context.Context) (string, error)
	Reset()
}

// Network reads and corrects the active chain; *network.Guard satisfies it.
type Network interface {
	State(ctx context.Context) (models.NetworkState, error)
	SwitchToRequired(ctx context.Context) error
}

// Catalog is the read model; *catalog.Reader satisfies it.
type Catalog interface {
	Refresh(ctx context.Context) ([]models.ListedName, error)
	Entries() []models.ListedName
	Reset()
	SetSink(s catalog.Sink)
}

// Orchestrator runs the writes; *registrar.Orchestrator satisfies it.
type Orchestrator interface {
	Register(ctx context.Context, name, record string) (models.Outcome, error)
	UpdateRecord(ctx context.Context, name, record string) error
}

// ChainNotifier delivers wallet chain switches.
type ChainNotifier interface {
	OnChainChanged(ctx context.Context, handler func(chainID *big.Int)) error
}

// Watcher owns the session state: account, network, catalog, pending
// operation and form inputs. Presentation layers subscribe to its events and
// act through its methods.
type Watcher struct {
	config   config.Config
	wallet   Wallet
	network  Network
	catalog  Catalog
	orch     Orchestrator
	notifier ChainNotifier
	logger   *slog.Logger

	mu        sync.RWMutex
	account   string
	net       models.NetworkState
	entries   []models.ListedName
	pending   *models.PendingOperation
	inputs    Inputs
	inFlight  int
	outcome   *models.Outcome
	lastKey   string
	evaluated bool

	subMu       sync.RWMutex
	subscribers []Subscriber
}

// NewWatcher wires the session. The orchestrator is set afterwards because it
// reports back into the watcher.
func NewWatcher(cfg config.Config, w Wallet, n Network, c Catalog) *Watcher {
	watcher := &Watcher{
		config:  cfg,
		wallet:  w,
		network: n,
		catalog: c,
		net:     models.NetworkState{DisplayName: network.DisplayName(nil)},
		logger:  slog.Default().With("component", "watcher"),
	}
	c.SetSink(watcher.onCatalog)
	return watcher
}

// SetOrchestrator attaches the write path.
func (w *Watcher) SetOrchestrator(o Orchestrator) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.orch = o
}

// SetChainNotifier attaches the chain-changed source used by Start.
func (w *Watcher) SetChainNotifier(n ChainNotifier) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notifier = n
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (w *Watcher) Subscribe() Subscriber {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	ch := make(Subscriber, 100)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (w *Watcher) Unsubscribe(ch Subscriber) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	for i, sub := range w.subscribers {
		if sub == ch {
			w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (w *Watcher) notify(event Event) {
	w.subMu.RLock()
	defer w.subMu.RUnlock()
	for _, sub := range w.subscribers {
		select {
		case sub <- event:
		default:
			w.logger.Debug("subscriber full, dropping event", "type", event.Type)
		}
	}
}

// Start evaluates the session, watches for chain switches and, when
// configured, refreshes the catalog periodically. It returns once the first
// evaluation is done; background work ends with ctx.
func (w *Watcher) Start(ctx context.Context) {
	w.evaluate(ctx, true)

	w.mu.RLock()
	notifier := w.notifier
	w.mu.RUnlock()
	if notifier != nil {
		err := notifier.OnChainChanged(ctx, func(id *big.Int) {
			w.logger.Info("wallet switched chain", "chain_id", id)
			w.Reinitialize(ctx)
		})
		if err != nil {
			w.logger.Warn("cannot watch chain changes", "error", err)
		}
	}

	if secs := w.config.Global.CatalogRefreshSeconds; secs > 0 {
		go w.refreshLoop(ctx, time.Duration(secs)*time.Second)
	}
}

func (w *Watcher) refreshLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = w.Refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// evaluate reads account and chain from the wallet and refreshes the catalog
// when the pair changed and the chain is the required one.
func (w *Watcher) evaluate(ctx context.Context, detect bool) {
	account := w.wallet.Account()
	if detect {
		account = w.wallet.DetectExisting(ctx)
	}

	state, err := w.network.State(ctx)
	if err != nil {
		w.logger.Warn("cannot read network", "error", err)
		state = models.NetworkState{DisplayName: network.DisplayName(nil)}
	}

	w.mu.Lock()
	accountChanged := account != w.account || !w.evaluated
	networkChanged := !state.SameChain(w.net) || state.DisplayName != w.net.DisplayName || !w.evaluated
	w.account = account
	w.net = state
	w.evaluated = true
	key := strings.ToLower(account) + "@" + chainKey(state.ChainID)
	pairChanged := key != w.lastKey
	w.lastKey = key
	w.mu.Unlock()

	if accountChanged {
		w.notify(Event{Type: EventAccountChanged, Data: account})
	}
	if networkChanged {
		w.notify(Event{Type: EventNetworkChanged, Data: state})
	}
	if pairChanged && account != "" && state.IsRequired {
		_ = w.Refresh(ctx)
	}
}

func chainKey(id *big.Int) string {
	if id == nil {
		return ""
	}
	return id.String()
}

// Reinitialize drops account, network and catalog and evaluates them from
// scratch. Inputs, subscribers and in-flight writes are left alone.
func (w *Watcher) Reinitialize(ctx context.Context) {
	metrics.SessionResetsTotal.Inc()
	w.wallet.Reset()
	w.catalog.Reset()

	w.mu.Lock()
	w.account = ""
	w.net = models.NetworkState{DisplayName: network.DisplayName(nil)}
	w.entries = nil
	w.lastKey = ""
	w.evaluated = false
	w.mu.Unlock()

	w.notify(Event{Type: EventSessionReset})
	w.notify(Event{Type: EventCatalogUpdated, Data: []models.ListedName{}})
	w.evaluate(ctx, true)
}

// Refresh rebuilds the catalog. Refresh errors are logged, never surfaced.
func (w *Watcher) Refresh(ctx context.Context) error {
	_, err := w.catalog.Refresh(ctx)
	var refreshErr *catalog.RefreshError
	switch {
	case err == nil:
	case errors.As(err, &refreshErr):
		w.logger.Warn("catalog refresh failed, keeping previous list", "error", err)
	default:
		w.logger.Debug("catalog refresh skipped", "reason", err)
	}
	return err
}

func (w *Watcher) onCatalog(entries []models.ListedName) {
	w.mu.Lock()
	w.entries = entries
	w.mu.Unlock()
	w.notify(Event{Type: EventCatalogUpdated, Data: entries})
}

// Connect prompts the wallet for an account.
func (w *Watcher) Connect(ctx context.Context) (string, error) {
	account, err := w.wallet.Connect(ctx)
	if err != nil {
		return "", err
	}
	w.evaluate(ctx, false)
	return account, nil
}

// SwitchNetwork asks the wallet to move to the required chain and
// re-evaluates the session.
func (w *Watcher) SwitchNetwork(ctx context.Context) error {
	if err := w.network.SwitchToRequired(ctx); err != nil {
		return err
	}
	w.evaluate(ctx, false)
	return nil
}

// Register mints name. The form is set to the submitted values so a
// successful mint clears what was submitted.
func (w *Watcher) Register(ctx context.Context, name, record string) (models.Outcome, error) {
	orch := w.beginAction(name, record)
	defer w.endAction()
	if orch == nil {
		return models.Outcome{}, errors.New("no orchestrator configured")
	}
	return orch.Register(ctx, name, record)
}

// UpdateRecord sets the record of an owned name.
func (w *Watcher) UpdateRecord(ctx context.Context, name, record string) error {
	orch := w.beginAction(name, record)
	defer w.endAction()
	if orch == nil {
		return errors.New("no orchestrator configured")
	}
	return orch.UpdateRecord(ctx, name, record)
}

func (w *Watcher) beginAction(name, record string) Orchestrator {
	w.mu.Lock()
	w.inFlight++
	w.inputs.Name, w.inputs.Record = name, record
	inputs := w.inputs
	orch := w.orch
	w.mu.Unlock()
	w.notify(Event{Type: EventInputsChanged, Data: inputs})
	return orch
}

func (w *Watcher) endAction() {
	w.mu.Lock()
	w.inFlight--
	w.mu.Unlock()
}

// EditRecord switches the form to editing an owned name.
func (w *Watcher) EditRecord(name string) error {
	w.mu.Lock()
	owned := false
	for _, e := range w.entries {
		if e.Name == name && e.IsOwnedBy(w.account) {
			owned = true
			break
		}
	}
	if !owned {
		w.mu.Unlock()
		return ErrNotOwner
	}
	w.inputs.Name = name
	w.inputs.Editing = true
	inputs := w.inputs
	w.mu.Unlock()

	w.notify(Event{Type: EventInputsChanged, Data: inputs})
	return nil
}

// CancelEdit leaves editing mode, keeping typed values.
func (w *Watcher) CancelEdit() {
	w.mu.Lock()
	w.inputs.Editing = false
	inputs := w.inputs
	w.mu.Unlock()
	w.notify(Event{Type: EventInputsChanged, Data: inputs})
}

// SetInputs stores the form values.
func (w *Watcher) SetInputs(name, record string) {
	w.mu.Lock()
	w.inputs.Name, w.inputs.Record = name, record
	inputs := w.inputs
	w.mu.Unlock()
	w.notify(Event{Type: EventInputsChanged, Data: inputs})
}

// SetPending implements registrar.Sink.
func (w *Watcher) SetPending(op *models.PendingOperation) {
	w.mu.Lock()
	if op != nil {
		cp := *op
		op = &cp
	}
	w.pending = op
	w.mu.Unlock()
	w.notify(Event{Type: EventPendingChanged, Data: op})
}

// ClearInputs implements registrar.Sink.
func (w *Watcher) ClearInputs() {
	w.mu.Lock()
	w.inputs = Inputs{}
	w.mu.Unlock()
	w.notify(Event{Type: EventInputsChanged, Data: Inputs{}})
}

// Outcome implements registrar.Sink.
func (w *Watcher) Outcome(o models.Outcome) {
	w.mu.Lock()
	w.outcome = &o
	w.mu.Unlock()
	w.notify(Event{Type: EventOutcome, Data: o})
}

// Snapshot returns a copy of the session state.
func (w *Watcher) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap := Snapshot{
		Account:         w.account,
		HasWallet:       w.wallet.HasProvider(),
		Network:         w.net,
		RequiredNetwork: w.config.Network.Name,
		Catalog:         append([]models.ListedName{}, w.entries...),
		Inputs:          w.inputs,
		Loading:         w.inFlight > 0 || w.pending != nil,
	}
	if w.pending != nil {
		p := *w.pending
		snap.Pending = &p
	}
	if w.outcome != nil {
		o := *w.outcome
		snap.LastOutcome = &o
	}
	return snap
}

// Config returns the configuration the session runs with.
func (w *Watcher) Config() config.Config {
	return w.config
}
