package models

import (
	"fmt"
	"math/big"
	"strings"
)

// NetworkState describes the chain the wallet is currently on.
type NetworkState struct {
	ChainID     *big.Int `json:"chain_id"`
	DisplayName string   `json:"display_name"`
	IsRequired  bool     `json:"is_required"`
}

// SameChain reports whether both states point at the same chain id.
func (n NetworkState) SameChain(other NetworkState) bool {
	if n.ChainID == nil || other.ChainID == nil {
		return n.ChainID == nil && other.ChainID == nil
	}
	return n.ChainID.Cmp(other.ChainID) == 0
}

// ListedName is one entry of the catalog of registered names.
type ListedName struct {
	ID       string `json:"id"`       // Stable for the session, keyed by Name
	Position int    `json:"position"` // Index in the fetched name list, only stable within one refresh
	Name     string `json:"name"`
	Record   string `json:"record"`
	Owner    string `json:"owner"`
}

// FullName appends the cosmetic suffix.
func (l ListedName) FullName(tld string) string {
	return l.Name + tld
}

// IsOwnedBy compares the owner to an account, ignoring address case.
func (l ListedName) IsOwnedBy(account string) bool {
	return account != "" && strings.EqualFold(l.Owner, account)
}

// RecordKind classifies how a record should be presented.
type RecordKind string

const (
	RecordText  RecordKind = "text"
	RecordLink  RecordKind = "link"
	RecordImage RecordKind = "image"
)

func (l ListedName) RecordKind() RecordKind {
	switch {
	case strings.HasSuffix(l.Record, ".gif"):
		return RecordImage
	case strings.HasPrefix(l.Record, "https://"):
		return RecordLink
	default:
		return RecordText
	}
}

// MarketplaceURL links the token minted for this name.
func (l ListedName) MarketplaceURL(base, contract string) string {
	return fmt.Sprintf("%s/%s/%d", strings.TrimRight(base, "/"), contract, l.Position)
}

// OpKind is the kind of a state-mutating registry operation.
type OpKind string

const (
	OpRegister     OpKind = "register"
	OpUpdateRecord OpKind = "update_record"
)

// OpState tracks one submit/confirm cycle.
type OpState string

const (
	OpIdle             OpState = "idle"
	OpSubmitting       OpState = "submitting"
	OpConfirming       OpState = "confirming"
	OpConfirmed        OpState = "confirmed"
	OpReverted         OpState = "reverted"
	OpSubmissionFailed OpState = "submission_failed"
)

// Terminal reports whether no further transition can happen.
func (s OpState) Terminal() bool {
	return s == OpConfirmed || s == OpReverted || s == OpSubmissionFailed
}

// PendingOperation exists for the duration of one submit/confirm cycle.
type PendingOperation struct {
	Kind   OpKind   `json:"kind"`
	Name   string   `json:"name"`
	Record string   `json:"record"`
	Fee    *big.Int `json:"fee,omitempty"`
	State  OpState  `json:"state"`
	TxHash string   `json:"tx_hash,omitempty"`
}

// OutcomeKind classifies a user-visible result.
type OutcomeKind string

const (
	OutcomeSuccess           OutcomeKind = "success"
	OutcomeInsufficientFunds OutcomeKind = "insufficient_funds"
	OutcomeFailure           OutcomeKind = "failure"
	OutcomeInvalid           OutcomeKind = "invalid"
	OutcomeWrongNetwork      OutcomeKind = "wrong_network"
)

// Outcome is what the presentation layer shows after an operation ends.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Op      OpKind      `json:"op"`
	Name    string      `json:"name"`
	Message string      `json:"message"`
	TxHash  string      `json:"tx_hash,omitempty"`
	Warning string      `json:"warning,omitempty"`
}

func (o Outcome) IsSuccess() bool {
	return o.Kind == OutcomeSuccess
}

// Receipt is the confirmation result of a submitted transaction.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"block_number"`
}

// ReceiptStatusSuccessful matches the EVM receipt status for success.
const ReceiptStatusSuccessful = 1

func (r Receipt) Succeeded() bool {
	return r.Status == ReceiptStatusSuccessful
}

// CheckResult holds the result of one endpoint probe in the check command.
type CheckResult struct {
	Endpoint  string `json:"endpoint"`
	Status    string `json:"status"` // "ok" or "error"
	ChainID   string `json:"chain_id,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CheckReport holds the results of the configuration check.
type CheckReport struct {
	ConfigPath      string        `json:"config_path"`
	ValidStructure  bool          `json:"valid_structure"`
	StructureErrors []string      `json:"structure_errors,omitempty"`
	RequiredChainID string        `json:"required_chain_id"`
	RPCs            []CheckResult `json:"rpcs"`
	Wallet          *CheckResult  `json:"wallet,omitempty"`
	ContractCode    bool          `json:"contract_code"`
	NameCount       int           `json:"name_count"`
}
