package registrar

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"weebdomains/pkg/ledger"
	"weebdomains/pkg/models"
	"weebdomains/pkg/network"
	"weebdomains/pkg/pricing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Register(ctx context.Context, name string, value *big.Int) (ledger.PendingTx, error) {
	args := m.Called(ctx, name, value)
	tx, _ := args.Get(0).(ledger.PendingTx)
	return tx, args.Error(1)
}

func (m *MockLedger) SetRecord(ctx context.Context, name, record string) (ledger.PendingTx, error) {
	args := m.Called(ctx, name, record)
	tx, _ := args.Get(0).(ledger.PendingTx)
	return tx, args.Error(1)
}

type MockRefresher struct {
	mock.Mock
}

func (m *MockRefresher) Refresh(ctx context.Context) ([]models.ListedName, error) {
	args := m.Called(ctx)
	entries, _ := args.Get(0).([]models.ListedName)
	return entries, args.Error(1)
}

// stubTx is a pending transaction with a canned receipt.
type stubTx struct {
	hash    common.Hash
	receipt *models.Receipt
	err     error
	wait    chan struct{}
}

func (s *stubTx) Hash() common.Hash { return s.hash }

func (s *stubTx) Wait(ctx context.Context) (*models.Receipt, error) {
	if s.wait != nil {
		select {
		case <-s.wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.receipt, s.err
}

func minedTx(n byte, status uint64) *stubTx {
	hash := common.BytesToHash([]byte{n})
	return &stubTx{hash: hash, receipt: &models.Receipt{TxHash: hash.Hex(), Status: status, BlockNumber: 1}}
}

type recordingSink struct {
	mu       sync.Mutex
	pending  []models.PendingOperation
	cleared  int
	outcomes []models.Outcome
}

func (s *recordingSink) SetPending(op *models.PendingOperation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op != nil {
		s.pending = append(s.pending, *op)
	}
}

func (s *recordingSink) ClearInputs() {
	s.mu.Lock()
	s.cleared++
	s.mu.Unlock()
}

func (s *recordingSink) Outcome(o models.Outcome) {
	s.mu.Lock()
	s.outcomes = append(s.outcomes, o)
	s.mu.Unlock()
}

func (s *recordingSink) states() []models.OpState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OpState
	for _, p := range s.pending {
		out = append(out, p.State)
	}
	return out
}

type gateFunc func(ctx context.Context) error

func (g gateFunc) Require(ctx context.Context) error { return g(ctx) }

var openGate = gateFunc(func(context.Context) error { return nil })

// rpcError mimics a wallet error carrying a nested node error code.
type rpcError struct {
	code int
	msg  string
	data interface{}
}

func (e rpcError) Error() string          { return e.msg }
func (e rpcError) ErrorCode() int         { return e.code }
func (e rpcError) ErrorData() interface{} { return e.data }

type fixture struct {
	ledger  *MockLedger
	catalog *MockRefresher
	sink    *recordingSink
	orch    *Orchestrator
}

func newFixture(gate Gate) *fixture {
	f := &fixture{ledger: new(MockLedger), catalog: new(MockRefresher), sink: &recordingSink{}}
	f.orch = New(f.ledger, f.catalog, gate, f.sink)
	return f
}

func TestRegister_ShortNameMakesNoCalls(t *testing.T) {
	f := newFixture(gateFunc(func(context.Context) error {
		t.Fatal("gate consulted for an invalid name")
		return nil
	}))

	out, err := f.orch.Register(context.Background(), "ab", "x")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, models.OutcomeInvalid, out.Kind)
	assert.Equal(t, MsgNameTooShort, out.Message)
	assert.Equal(t, []models.Outcome{out}, f.sink.outcomes)

	f.ledger.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
	f.ledger.AssertNotCalled(t, "SetRecord", mock.Anything, mock.Anything, mock.Anything)
	f.catalog.AssertNotCalled(t, "Refresh", mock.Anything)
	assert.Empty(t, f.sink.pending)
}

func TestRegister_CountsRunesNotBytes(t *testing.T) {
	f := newFixture(openGate)

	_, err := f.orch.Register(context.Background(), "ねこ", "")
	assert.ErrorIs(t, err, ErrValidation)
	f.ledger.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegister_EmptyNameIsSilent(t *testing.T) {
	f := newFixture(openGate)

	_, err := f.orch.Register(context.Background(), "", "x")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, f.sink.outcomes)
}

func TestRegister_Success(t *testing.T) {
	f := newFixture(openGate)
	mint := minedTx(1, models.ReceiptStatusSuccessful)
	setRec := minedTx(2, models.ReceiptStatusSuccessful)
	f.ledger.On("Register", mock.Anything, "neko", pricing.Fee(4)).Return(mint, nil).Once()
	f.ledger.On("SetRecord", mock.Anything, "neko", "https://example.com/cat.gif").Return(setRec, nil).Once()
	f.catalog.On("Refresh", mock.Anything).Return([]models.ListedName{{Name: "neko"}}, nil).Once()

	out, err := f.orch.Register(context.Background(), "neko", "https://example.com/cat.gif")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, out.Kind)
	assert.Equal(t, MsgMinted, out.Message)
	assert.Equal(t, mint.hash.Hex(), out.TxHash)
	assert.Empty(t, out.Warning)

	assert.Equal(t, 1, f.sink.cleared)
	assert.Equal(t, []models.Outcome{out}, f.sink.outcomes)
	assert.Equal(t, []models.OpState{models.OpSubmitting, models.OpConfirming, models.OpConfirmed}, f.sink.states())
	f.catalog.AssertNumberOfCalls(t, "Refresh", 1)
	f.ledger.AssertExpectations(t)
	assert.False(t, f.orch.Busy())
}

func TestRegister_FeeTiers(t *testing.T) {
	for _, tc := range []struct {
		name string
		fee  string
	}{
		{"abc", "0.5"},
		{"abcd", "0.3"},
		{"abcde", "0.1"},
		{"abcdefghij", "0.1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(openGate)
			f.ledger.On("Register", mock.Anything, tc.name, mock.Anything).Return(minedTx(1, 1), nil).Once()
			f.catalog.On("Refresh", mock.Anything).Return(nil, nil)

			_, err := f.orch.Register(context.Background(), tc.name, "")
			require.NoError(t, err)

			sent := f.ledger.Calls[0].Arguments.Get(2).(*big.Int)
			assert.Equal(t, tc.fee, pricing.FeeEther(pricing.NameLength(tc.name)))
			assert.Equal(t, 0, sent.Cmp(pricing.FeeForName(tc.name)))
			f.ledger.AssertNotCalled(t, "SetRecord", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRegister_Reverted(t *testing.T) {
	f := newFixture(openGate)
	f.ledger.On("Register", mock.Anything, "neko", mock.Anything).Return(minedTx(1, 0), nil).Once()

	out, err := f.orch.Register(context.Background(), "neko", "hello")
	assert.ErrorIs(t, err, ErrReverted)
	assert.Equal(t, models.OutcomeFailure, out.Kind)
	assert.Equal(t, MsgFailed, out.Message)

	assert.Zero(t, f.sink.cleared)
	f.catalog.AssertNotCalled(t, "Refresh", mock.Anything)
	f.ledger.AssertNotCalled(t, "SetRecord", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, models.OpReverted, f.sink.states()[len(f.sink.states())-1])
}

func TestRegister_InsufficientFunds(t *testing.T) {
	f := newFixture(openGate)
	walletErr := rpcError{code: -32603, msg: "Internal JSON-RPC error.", data: map[string]interface{}{
		"code":    float64(-32000),
		"message": "insufficient funds for gas * price + value",
	}}
	f.ledger.On("Register", mock.Anything, "neko", mock.Anything).Return(nil, walletErr).Once()

	out, err := f.orch.Register(context.Background(), "neko", "hello")
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.True(t, subErr.InsufficientFunds)

	require.Len(t, f.sink.outcomes, 1)
	assert.Equal(t, models.OutcomeInsufficientFunds, f.sink.outcomes[0].Kind)
	assert.Equal(t, MsgInsufficientFunds, out.Message)
	assert.Zero(t, f.sink.cleared)
	f.catalog.AssertNotCalled(t, "Refresh", mock.Anything)
	assert.Equal(t, []models.OpState{models.OpSubmitting, models.OpSubmissionFailed}, f.sink.states())
}

func TestRegister_UserRejected(t *testing.T) {
	f := newFixture(openGate)
	f.ledger.On("Register", mock.Anything, "neko", mock.Anything).
		Return(nil, rpcError{code: 4001, msg: "User denied transaction signature."}).Once()

	out, err := f.orch.Register(context.Background(), "neko", "")
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.False(t, subErr.InsufficientFunds)
	assert.Equal(t, models.OutcomeFailure, out.Kind)
	assert.Equal(t, MsgFailed, out.Message)
}

func TestRegister_WrongNetwork(t *testing.T) {
	f := newFixture(gateFunc(func(context.Context) error {
		return fmt.Errorf("%w: connect to the Polygon Mumbai Testnet", network.ErrWrongNetwork)
	}))

	out, err := f.orch.Register(context.Background(), "neko", "")
	assert.ErrorIs(t, err, network.ErrWrongNetwork)
	assert.Equal(t, models.OutcomeWrongNetwork, out.Kind)
	f.ledger.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegister_RecordFailureWarns(t *testing.T) {
	f := newFixture(openGate)
	f.ledger.On("Register", mock.Anything, "neko", mock.Anything).Return(minedTx(1, 1), nil).Once()
	f.ledger.On("SetRecord", mock.Anything, "neko", "hello").Return(minedTx(2, 0), nil).Once()
	f.catalog.On("Refresh", mock.Anything).Return(nil, nil).Once()

	out, err := f.orch.Register(context.Background(), "neko", "hello")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, out.Kind)
	assert.Equal(t, MsgRecordNotSet, out.Warning)
	assert.Equal(t, 1, f.sink.cleared)
	f.catalog.AssertNumberOfCalls(t, "Refresh", 1)
}

func TestRegister_WaitError(t *testing.T) {
	f := newFixture(openGate)
	tx := &stubTx{hash: common.BytesToHash([]byte{1}), err: errors.New("timeout")}
	f.ledger.On("Register", mock.Anything, "neko", mock.Anything).Return(tx, nil).Once()

	out, err := f.orch.Register(context.Background(), "neko", "")
	assert.Error(t, err)
	assert.Equal(t, models.OutcomeFailure, out.Kind)
	f.catalog.AssertNotCalled(t, "Refresh", mock.Anything)
}

func TestUpdateRecord_EmptyInputsMakeNoCalls(t *testing.T) {
	f := newFixture(openGate)

	assert.NoError(t, f.orch.UpdateRecord(context.Background(), "", "x"))
	assert.NoError(t, f.orch.UpdateRecord(context.Background(), "x", ""))

	f.ledger.AssertNotCalled(t, "SetRecord", mock.Anything, mock.Anything, mock.Anything)
	f.catalog.AssertNotCalled(t, "Refresh", mock.Anything)
	assert.Empty(t, f.sink.outcomes)
	assert.Empty(t, f.sink.pending)
}

func TestUpdateRecord_Success(t *testing.T) {
	f := newFixture(openGate)
	f.ledger.On("SetRecord", mock.Anything, "neko", "hello").Return(minedTx(3, 1), nil).Once()
	f.catalog.On("Refresh", mock.Anything).Return(nil, nil).Once()

	require.NoError(t, f.orch.UpdateRecord(context.Background(), "neko", "hello"))
	assert.Equal(t, 1, f.sink.cleared)
	assert.Empty(t, f.sink.outcomes)
	f.catalog.AssertNumberOfCalls(t, "Refresh", 1)
}

func TestUpdateRecord_FailuresAreSilent(t *testing.T) {
	f := newFixture(openGate)
	f.ledger.On("SetRecord", mock.Anything, "neko", "hello").Return(nil, rpcError{code: 4001, msg: "rejected"}).Once()
	f.ledger.On("SetRecord", mock.Anything, "neko", "again").Return(minedTx(4, 0), nil).Once()

	var subErr *SubmissionError
	assert.ErrorAs(t, f.orch.UpdateRecord(context.Background(), "neko", "hello"), &subErr)
	assert.ErrorIs(t, f.orch.UpdateRecord(context.Background(), "neko", "again"), ErrReverted)

	assert.Empty(t, f.sink.outcomes)
	assert.Zero(t, f.sink.cleared)
	f.catalog.AssertNotCalled(t, "Refresh", mock.Anything)
}

func TestUpdateRecord_WrongNetwork(t *testing.T) {
	f := newFixture(gateFunc(func(context.Context) error { return network.ErrWrongNetwork }))

	assert.ErrorIs(t, f.orch.UpdateRecord(context.Background(), "neko", "hello"), network.ErrWrongNetwork)
	f.ledger.AssertNotCalled(t, "SetRecord", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.sink.outcomes)
}

func TestOrchestrator_OneOperationAtATime(t *testing.T) {
	f := newFixture(openGate)
	first := minedTx(1, 1)
	first.wait = make(chan struct{})
	f.ledger.On("Register", mock.Anything, "neko", mock.Anything).Return(first, nil).Once()
	f.ledger.On("SetRecord", mock.Anything, "kawaii", "hello").Return(minedTx(2, 1), nil).Once()
	f.catalog.On("Refresh", mock.Anything).Return(nil, nil)

	registered := make(chan struct{})
	go func() {
		defer close(registered)
		_, _ = f.orch.Register(context.Background(), "neko", "")
	}()

	require.Eventually(t, f.orch.Busy, time.Second, 5*time.Millisecond)

	updated := make(chan error, 1)
	go func() { updated <- f.orch.UpdateRecord(context.Background(), "kawaii", "hello") }()

	select {
	case <-updated:
		t.Fatal("update ran while a register was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	f.ledger.AssertNotCalled(t, "SetRecord", mock.Anything, mock.Anything, mock.Anything)

	close(first.wait)
	<-registered
	require.NoError(t, <-updated)
	f.ledger.AssertExpectations(t)
}

func TestOrchestrator_WaitForSlotHonoursContext(t *testing.T) {
	f := newFixture(openGate)
	f.orch.slot <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.orch.Register(ctx, "neko", "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	f.ledger.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_CancelledWaitStillReportsOutcome(t *testing.T) {
	f := newFixture(openGate)
	f.orch.slot <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := f.orch.Register(ctx, "neko", "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.OutcomeFailure, out.Kind)
	assert.Equal(t, MsgFailed, out.Message)
	assert.Equal(t, "neko", out.Name)
	assert.Equal(t, []models.Outcome{out}, f.sink.outcomes)
	assert.Empty(t, f.sink.pending)
	assert.True(t, f.orch.Busy())
}
