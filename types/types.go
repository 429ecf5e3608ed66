package types

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// SubmissionState is the lifecycle position of a transfer set inside the tracker.
type SubmissionState string

const (
	StateCreated    SubmissionState = "created"
	StateProcessing SubmissionState = "processing"
	StateInBlock    SubmissionState = "inBlock"
	StateFinalized  SubmissionState = "finalized"
	StateFailed     SubmissionState = "failed"
	StateCancelled  SubmissionState = "cancelled"
)

// IsTerminal reports whether no further transition can leave s.
func (s SubmissionState) IsTerminal() bool {
	return s == StateFinalized || s == StateFailed || s == StateCancelled
}

func (s SubmissionState) String() string {
	return string(s)
}

// ProgressState is what a progress sink observes. It mirrors SubmissionState
// except that failures surface as ProgressError.
type ProgressState string

const (
	ProgressProcessing ProgressState = "processing"
	ProgressInBlock    ProgressState = "inBlock"
	ProgressFinalized  ProgressState = "finalized"
	ProgressError      ProgressState = "error"
	ProgressCancelled  ProgressState = "cancelled"
)

// ProgressUpdate is handed to a ProgressSink on every state transition.
type ProgressUpdate struct {
	State   ProgressState `json:"state"`
	Message string        `json:"message"`
}

// ProgressSink receives progress updates. Its return value is never consumed,
// so it has none.
type ProgressSink func(ProgressUpdate)

// PaymentRequest is a user's intent to pay Amount of Asset, split between
// Recipient (99%) and FeeRecipient (1%).
type PaymentRequest struct {
	// Asset being transferred.
	Asset Asset `json:"asset"`

	// Payer signs and funds the transfer set.
	Payer string `json:"payer" validate:"required"`

	// Recipient receives the 99% share.
	Recipient string `json:"recipient" validate:"required"`

	// FeeRecipient receives the 1% share.
	FeeRecipient string `json:"feeRecipient" validate:"required"`

	// Amount in user units (e.g. 10.5 USDT).
	Amount decimal.Decimal `json:"amount"`

	// FeeAsset, when set, asks the chain to charge network fees in this asset
	// instead of the native currency.
	FeeAsset *Asset `json:"feeAsset,omitempty"`
}

// TransferLeg is a single asset transfer inside a TransferSet.
type TransferLeg struct {
	Asset       Asset    `json:"asset"`
	Destination string   `json:"destination"`
	Amount      *big.Int `json:"amount"`
}

// TransferSet is the atomic two-leg batch: index 0 pays the recipient,
// index 1 pays the fee collector.
type TransferSet struct {
	Payer    string         `json:"payer"`
	Legs     [2]TransferLeg `json:"legs"`
	FeeAsset *Asset         `json:"feeAsset,omitempty"`

	// Requested is the amount the user asked to pay, kept for receipts.
	Requested decimal.Decimal `json:"requested"`
}

// Recipient returns the recipient leg.
func (t *TransferSet) Recipient() TransferLeg {
	return t.Legs[0]
}

// Fee returns the fee-collector leg.
func (t *TransferSet) Fee() TransferLeg {
	return t.Legs[1]
}

// Asset returns the asset both legs move.
func (t *TransferSet) Asset() Asset {
	return t.Legs[0].Asset
}

// Total returns the sum of both legs in atomic units.
func (t *TransferSet) Total() *big.Int {
	return new(big.Int).Add(t.Legs[0].Amount, t.Legs[1].Amount)
}

// ChainEvent is an event emitted by the runtime for the submitted extrinsic.
type ChainEvent struct {
	// Section is the lower-camel pallet name, e.g. "system".
	Section string `json:"section"`
	// Method is the event name, e.g. "ExtrinsicSuccess".
	Method string `json:"method"`
	// ApplyExtrinsic is the extrinsic index when the event was emitted in the
	// ApplyExtrinsic phase, nil otherwise.
	ApplyExtrinsic *uint32 `json:"applyExtrinsic,omitempty"`
}

// StatusKind enumerates the statuses a transaction pool reports for a
// watched extrinsic.
type StatusKind string

const (
	StatusFuture          StatusKind = "future"
	StatusReady           StatusKind = "ready"
	StatusBroadcast       StatusKind = "broadcast"
	StatusInBlock         StatusKind = "inBlock"
	StatusRetracted       StatusKind = "retracted"
	StatusFinalityTimeout StatusKind = "finalityTimeout"
	StatusFinalized       StatusKind = "finalized"
	StatusUsurped         StatusKind = "usurped"
	StatusDropped         StatusKind = "dropped"
	StatusInvalid         StatusKind = "invalid"
)

// IsPoolFailure reports whether the pool gave up on the extrinsic.
func (k StatusKind) IsPoolFailure() bool {
	switch k {
	case StatusFinalityTimeout, StatusUsurped, StatusDropped, StatusInvalid:
		return true
	}
	return false
}

// StatusEvent is one item of the stream a chain client produces after
// submission.
type StatusEvent struct {
	Kind      StatusKind   `json:"kind"`
	BlockHash string       `json:"blockHash,omitempty"`
	Events    []ChainEvent `json:"events,omitempty"`

	// DispatchError is set when the runtime rejected the included extrinsic.
	DispatchError *DispatchError `json:"dispatchError,omitempty"`

	// EventsUnavailable is set when the block was known but its events could
	// not be read, so the dispatch result is unknown.
	EventsUnavailable bool `json:"eventsUnavailable,omitempty"`
}

// DispatchError is a decoded runtime rejection.
type DispatchError struct {
	Section string   `json:"section"`
	Name    string   `json:"name"`
	Docs    []string `json:"docs,omitempty"`
	// Raw is used when the error is not a module error and cannot be decoded
	// into a section/name pair (e.g. BadOrigin, Token(FundsUnavailable)).
	Raw string `json:"raw,omitempty"`
}

// BalanceSnapshot captures the payer's balances right before submission or
// right after finality.
type BalanceSnapshot struct {
	Native   decimal.Decimal `json:"native"`
	FeeAsset decimal.Decimal `json:"feeAsset"`
	TakenAt  time.Time       `json:"takenAt"`
}

// FeeBand classifies how the network fee was observed.
type FeeBand string

const (
	FeeBandFeeAsset     FeeBand = "fee_asset"
	FeeBandNative       FeeBand = "native"
	FeeBandNone         FeeBand = "none"
	FeeBandUndetermined FeeBand = "undetermined"
)

// FeeReport is the result of fee reconciliation.
type FeeReport struct {
	Band    FeeBand         `json:"band"`
	Amount  decimal.Decimal `json:"amount"`
	Asset   string          `json:"asset,omitempty"`
	Message string          `json:"message"`
}

// Receipt is the proof of a finalized payment. It is built once and never
// mutated.
type Receipt struct {
	ID              string    `json:"id"`
	Asset           string    `json:"asset"`
	FormattedAmount string    `json:"formattedAmount"`
	BlockNumber     uint64    `json:"blockNumber,omitempty"`
	BlockHash       string    `json:"blockHash,omitempty"`
	ExtrinsicIndex  *uint32   `json:"extrinsicIndex,omitempty"`
	ExplorerURL     string    `json:"explorerUrl,omitempty"`
	Message         string    `json:"message"`
	FinalizedAt     time.Time `json:"finalizedAt"`

	// Unverified marks a finalized extrinsic whose dispatch result could not
	// be read from the block events.
	Unverified bool `json:"unverified,omitempty"`
}

// SubmissionOutcome is what the tracker resolves to when no error occurred.
// Receipt is nil when State is StateCancelled.
type SubmissionOutcome struct {
	State   SubmissionState `json:"state"`
	Receipt *Receipt        `json:"receipt,omitempty"`
}

// PaymentResult is the facade level result of a payment.
type PaymentResult struct {
	State   SubmissionState `json:"state"`
	Receipt *Receipt        `json:"receipt,omitempty"`
	Fee     *FeeReport      `json:"fee,omitempty"`
}

// Cancelled reports whether the signer declined the payment.
func (r *PaymentResult) Cancelled() bool {
	return r != nil && r.State == StateCancelled
}

// VerificationResult is the outcome of the pre-submission checks.
type VerificationResult struct {
	Valid    bool            `json:"valid"`
	Asset    string          `json:"asset,omitempty"`
	Payer    string          `json:"payer,omitempty"`
	Required decimal.Decimal `json:"required"`
	Balance  decimal.Decimal `json:"balance"`
	Error    string          `json:"error,omitempty"`
}
