package run

import "github.com/ethereum/go-ethereum/common"

// Stage is the pipeline position of a run. Stages only move forward;
// Confirmed, Rejected, and Failed are terminal.
type Stage string

const (
	StageIdle         Stage = "IDLE"
	StagePriceFetched Stage = "PRICE_FETCHED"
	StageDecided      Stage = "DECIDED"
	StageAttested     Stage = "ATTESTED"
	StageSubmitted    Stage = "SUBMITTED"
	StageConfirmed    Stage = "CONFIRMED"
	StageRejected     Stage = "REJECTED"
	StageFailed       Stage = "FAILED"
)

// Terminal reports whether the stage ends the run.
func (s Stage) Terminal() bool {
	switch s {
	case StageConfirmed, StageRejected, StageFailed:
		return true
	}
	return false
}

// ErrorKind classifies terminal failures across the three trust domains.
type ErrorKind string

const (
	KindNone                   ErrorKind = ""
	KindOracleUnavailable      ErrorKind = "ORACLE_UNAVAILABLE"
	KindInvalidProof           ErrorKind = "INVALID_PROOF"
	KindStaleQuote             ErrorKind = "STALE_QUOTE"
	KindAttestationUnavailable ErrorKind = "ATTESTATION_UNAVAILABLE"
	KindAttestationTimeout     ErrorKind = "ATTESTATION_TIMEOUT"
	KindSubmissionFailed       ErrorKind = "SUBMISSION_FAILED"
	KindConfirmationTimeout    ErrorKind = "CONFIRMATION_TIMEOUT"
	KindOnChainRejected        ErrorKind = "ON_CHAIN_REJECTED"
	KindUnknownRevert          ErrorKind = "UNKNOWN_REVERT"
	KindCanceled               ErrorKind = "CANCELED"
)

// FundsState tells the caller whether the vault's balance changed.
type FundsState string

const (
	// FundsNotMoved: the run ended without an on-chain effect.
	FundsNotMoved FundsState = "NOT_MOVED"
	// FundsMoved: the vault executed the swap.
	FundsMoved FundsState = "MOVED"
	// FundsUnknown: the transaction was broadcast but its fate is unknown;
	// the caller should check the transaction reference.
	FundsUnknown FundsState = "UNKNOWN"
)

// Outcome is the terminal result of a run.
type Outcome struct {
	Stage  Stage
	Kind   ErrorKind
	Reason string
	Funds  FundsState
	TxHash common.Hash
}

// Event is emitted once per state transition so a caller can render
// pipeline progress without polling internal state.
type Event struct {
	Stage   Stage
	Message string
	TxHash  common.Hash
	Err     ErrorKind
}

// Sink receives progress events. It is called from the run's coordinating
// goroutine and must not block.
type Sink func(Event)
