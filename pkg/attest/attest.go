// Package attest binds strategy decisions to a TEE identity key. The
// decision is serialized canonically, hashed, and signed; the vault
// verifies the signature against the configured attestation-issuer key.
package attest

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/verifymind/verifymind-go-sdk/pkg/strategy"
	"github.com/verifymind/verifymind-go-sdk/pkg/types"
)

var (
	// ErrAttestationUnavailable wraps transport/service failures.
	ErrAttestationUnavailable = errors.New("attestation service unavailable")
	// ErrAttestationTimeout means no attestation arrived within the bounded wait.
	ErrAttestationTimeout = errors.New("attestation timed out")
	// ErrBadSignature means an attestation failed verification.
	ErrBadSignature = errors.New("attestation signature invalid")
)

// Attestation is a signed statement over one decision. It is single-use:
// once a run holding it reaches a terminal stage it must never be
// resubmitted.
type Attestation struct {
	ID        string
	Payload   []byte
	Signature []byte
	SignerID  string
	IssuedAt  time.Time
}

// decisionPayload is the canonical wire form of a decision. Field values
// are chosen so two evaluations of the same decision serialize
// byte-identically after RFC 8785 canonicalization.
type decisionPayload struct {
	Verdict     string        `json:"verdict"`
	Pair        string        `json:"pair"`
	Price       string        `json:"price"`
	EvaluatedAt int64         `json:"evaluated_at"`
	Trade       *tradePayload `json:"trade,omitempty"`
}

type tradePayload struct {
	AmountIn     types.U256 `json:"amount_in"`
	MinAmountOut types.U256 `json:"min_amount_out"`
	Path         []string   `json:"path"`
	Recipient    string     `json:"recipient"`
	Deadline     uint64     `json:"deadline"`
}

// CanonicalPayload serializes a decision into its canonical signing form.
func CanonicalPayload(d strategy.Decision) ([]byte, error) {
	p := decisionPayload{
		Verdict:     string(d.Verdict),
		Pair:        d.Pair,
		Price:       d.Price.String(),
		EvaluatedAt: d.EvaluatedAt.Unix(),
	}
	if d.Trade != nil {
		tp := &tradePayload{
			AmountIn:     types.NewU256(d.Trade.AmountIn),
			MinAmountOut: types.NewU256(d.Trade.MinAmountOut),
			Path:         make([]string, 0, len(d.Trade.Path)),
			Recipient:    d.Trade.Recipient.Hex(),
			Deadline:     d.Trade.Deadline,
		}
		for _, hop := range d.Trade.Path {
			tp.Path = append(tp.Path, hop.Hex())
		}
		p.Trade = tp
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal decision: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize decision: %w", err)
	}
	return canonical, nil
}

// Digest is the sha256 hash of the canonical payload; this is what gets signed.
func Digest(payload []byte) []byte {
	sum := sha256.Sum256(payload)
	return sum[:]
}

// envelope is the opaque wire form the vault receives as attestationBytes.
type envelope struct {
	Payload   []byte `json:"payload"`
	Signature []byte `json:"signature"`
	SignerID  string `json:"signer_id"`
}

// Bytes renders the attestation as the opaque byte blob the vault call
// carries; the contract side decodes it and checks the signature against
// its configured attestation-issuer key.
func (a Attestation) Bytes() ([]byte, error) {
	raw, err := json.Marshal(envelope{Payload: a.Payload, Signature: a.Signature, SignerID: a.SignerID})
	if err != nil {
		return nil, fmt.Errorf("marshal attestation: %w", err)
	}
	return jcs.Transform(raw)
}

// ParseBytes decodes an attestation blob produced by Bytes.
func ParseBytes(blob []byte) (Attestation, error) {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return Attestation{}, fmt.Errorf("decode attestation blob: %w", err)
	}
	return Attestation{Payload: env.Payload, Signature: env.Signature, SignerID: env.SignerID}, nil
}

// Verify checks an attestation's signature against a known signer key.
func Verify(att Attestation, pub ed25519.PublicKey) error {
	if len(att.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrBadSignature)
	}
	if !ed25519.Verify(pub, Digest(att.Payload), att.Signature) {
		return ErrBadSignature
	}
	return nil
}
