// Package registrar runs the register and update-record flows: submit through
// the wallet, wait for the receipt, refresh the catalog and report an outcome.
package registrar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"weebdomains/pkg/ledger"
	"weebdomains/pkg/metrics"
	"weebdomains/pkg/models"
	"weebdomains/pkg/network"
	"weebdomains/pkg/pricing"
	"weebdomains/pkg/wallet"
)

// Outcome messages shown to the user.
const (
	MsgMinted            = "Domain minted!"
	MsgInsufficientFunds = "Error : Insufficient funds !"
	MsgFailed            = "Transaction failed! Please try again"
	MsgNameTooShort      = "Domain must be at least 3 characters long"
	MsgRecordNotSet      = "The record could not be attached, set it again from the list"
)

var (
	ErrValidation = errors.New("invalid name")
	// ErrReverted means the transaction was mined with a failure status.
	ErrReverted = errors.New("transaction reverted")
)

// SubmissionError is a wallet refusal: user rejection, insufficient funds or
// any other provider-side error before the transaction reached the chain.
type SubmissionError struct {
	Err               error
	InsufficientFunds bool
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit transaction: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Ledger is the write surface of the registry.
type Ledger interface {
	Register(ctx context.Context, name string, value *big.Int) (ledger.PendingTx, error)
	SetRecord(ctx context.Context, name, record string) (ledger.PendingTx, error)
}

type Refresher interface {
	Refresh(ctx context.Context) ([]models.ListedName, error)
}

type Gate interface {
	Require(ctx context.Context) error
}

// Sink receives state changes. The session state implements it.
type Sink interface {
	// SetPending is called on every state transition and with nil once the
	// operation is over.
	SetPending(op *models.PendingOperation)
	ClearInputs()
	Outcome(o models.Outcome)
}

// Orchestrator serialises writes: one register or update is in flight at a
// time, later calls wait for the slot.
type Orchestrator struct {
	ledger  Ledger
	catalog Refresher
	gate    Gate
	sink    Sink
	slot    chan struct{}
	logger  *slog.Logger
}

func New(l Ledger, catalog Refresher, gate Gate, sink Sink) *Orchestrator {
	return &Orchestrator{
		ledger:  l,
		catalog: catalog,
		gate:    gate,
		sink:    sink,
		slot:    make(chan struct{}, 1),
		logger:  slog.Default().With("component", "registrar"),
	}
}

func (o *Orchestrator) acquire(ctx context.Context) error {
	select {
	case o.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) release() {
	<-o.slot
}

// Busy reports whether an operation holds the slot.
func (o *Orchestrator) Busy() bool {
	return len(o.slot) > 0
}

func (o *Orchestrator) publish(op models.PendingOperation) {
	if o.sink != nil {
		o.sink.SetPending(&op)
	}
}

func (o *Orchestrator) finish() {
	if o.sink != nil {
		o.sink.SetPending(nil)
	}
	o.release()
}

func (o *Orchestrator) emit(out models.Outcome) models.Outcome {
	metrics.RegistrationsTotal.WithLabelValues(string(out.Kind)).Inc()
	if o.sink != nil {
		o.sink.Outcome(out)
	}
	return out
}

// Register mints name paying the length-tiered fee, then attaches record.
// Every path that gets past the empty-name check produces exactly one outcome.
func (o *Orchestrator) Register(ctx context.Context, name, record string) (models.Outcome, error) {
	if name == "" {
		return models.Outcome{}, fmt.Errorf("%w: empty name", ErrValidation)
	}
	base := models.Outcome{Op: models.OpRegister, Name: name}
	length := pricing.NameLength(name)
	if length < pricing.MinNameLength {
		base.Kind, base.Message = models.OutcomeInvalid, MsgNameTooShort
		return o.emit(base), fmt.Errorf("%w: %q has %d characters", ErrValidation, name, length)
	}

	if err := o.acquire(ctx); err != nil {
		o.logger.Warn("register abandoned waiting for slot", "name", name, "error", err)
		base.Kind, base.Message = models.OutcomeFailure, MsgFailed
		return o.emit(base), err
	}
	defer o.finish()

	if err := o.gate.Require(ctx); err != nil {
		o.logger.Warn("register blocked", "name", name, "error", err)
		base.Kind, base.Message = models.OutcomeFailure, MsgFailed
		if errors.Is(err, network.ErrWrongNetwork) {
			base.Kind, base.Message = models.OutcomeWrongNetwork, err.Error()
		}
		return o.emit(base), err
	}

	fee := pricing.Fee(length)
	op := models.PendingOperation{Kind: models.OpRegister, Name: name, Record: record, Fee: fee, State: models.OpSubmitting}
	o.publish(op)
	o.logger.Info("minting domain", "name", name, "fee", pricing.FeeEther(length))

	tx, err := o.ledger.Register(ctx, name, fee)
	if err != nil {
		op.State = models.OpSubmissionFailed
		o.publish(op)
		subErr := &SubmissionError{Err: err, InsufficientFunds: wallet.IsInsufficientFunds(err)}
		o.logger.Warn("register submission failed", "name", name, "error", err,
			"insufficient_funds", subErr.InsufficientFunds, "rejected", wallet.IsUserRejected(err))
		base.Kind, base.Message = models.OutcomeFailure, MsgFailed
		if subErr.InsufficientFunds {
			base.Kind, base.Message = models.OutcomeInsufficientFunds, MsgInsufficientFunds
		}
		return o.emit(base), subErr
	}

	op.State, op.TxHash = models.OpConfirming, tx.Hash().Hex()
	o.publish(op)
	base.TxHash = op.TxHash

	receipt, err := tx.Wait(ctx)
	if err != nil || !receipt.Succeeded() {
		op.State = models.OpReverted
		o.publish(op)
		if err == nil {
			err = ErrReverted
		}
		o.logger.Warn("register not confirmed", "name", name, "tx", op.TxHash, "error", err)
		base.Kind, base.Message = models.OutcomeFailure, MsgFailed
		return o.emit(base), err
	}

	op.State = models.OpConfirmed
	o.publish(op)

	if record != "" {
		if err := o.attachRecord(ctx, name, record); err != nil {
			o.logger.Warn("record not attached after mint", "name", name, "error", err)
			base.Warning = MsgRecordNotSet
		}
	}

	o.refresh(ctx)
	if o.sink != nil {
		o.sink.ClearInputs()
	}
	base.Kind, base.Message = models.OutcomeSuccess, MsgMinted
	return o.emit(base), nil
}

func (o *Orchestrator) attachRecord(ctx context.Context, name, record string) error {
	tx, err := o.ledger.SetRecord(ctx, name, record)
	if err != nil {
		return &SubmissionError{Err: err, InsufficientFunds: wallet.IsInsufficientFunds(err)}
	}
	receipt, err := tx.Wait(ctx)
	if err != nil {
		return err
	}
	if !receipt.Succeeded() {
		return ErrReverted
	}
	o.logger.Info("record set", "name", name, "tx", tx.Hash().Hex())
	return nil
}

func (o *Orchestrator) refresh(ctx context.Context) {
	if o.catalog == nil {
		return
	}
	if _, err := o.catalog.Refresh(ctx); err != nil {
		o.logger.Warn("catalog refresh after write failed", "error", err)
	}
}

// UpdateRecord replaces the record of an owned name. It never produces an
// outcome; failures are only logged and returned.
func (o *Orchestrator) UpdateRecord(ctx context.Context, name, record string) (err error) {
	if name == "" || record == "" {
		return nil
	}
	defer func() {
		metrics.RecordUpdatesTotal.WithLabelValues(metrics.Result(err)).Inc()
	}()

	if err := o.acquire(ctx); err != nil {
		return err
	}
	defer o.finish()

	if err := o.gate.Require(ctx); err != nil {
		o.logger.Warn("record update blocked", "name", name, "error", err)
		return err
	}

	op := models.PendingOperation{Kind: models.OpUpdateRecord, Name: name, Record: record, State: models.OpSubmitting}
	o.publish(op)
	o.logger.Info("updating record", "name", name, "record", record)

	tx, err := o.ledger.SetRecord(ctx, name, record)
	if err != nil {
		op.State = models.OpSubmissionFailed
		o.publish(op)
		o.logger.Warn("record update submission failed", "name", name, "error", err)
		return &SubmissionError{Err: err, InsufficientFunds: wallet.IsInsufficientFunds(err)}
	}

	op.State, op.TxHash = models.OpConfirming, tx.Hash().Hex()
	o.publish(op)

	receipt, err := tx.Wait(ctx)
	if err != nil || !receipt.Succeeded() {
		op.State = models.OpReverted
		o.publish(op)
		if err == nil {
			err = ErrReverted
		}
		o.logger.Warn("record update not confirmed", "name", name, "tx", op.TxHash, "error", err)
		return err
	}

	op.State = models.OpConfirmed
	o.publish(op)
	o.logger.Info("record set", "name", name, "tx", op.TxHash)

	o.refresh(ctx)
	if o.sink != nil {
		o.sink.ClearInputs()
	}
	return nil
}
