package attest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/verifymind/verifymind-go-sdk/pkg/strategy"
)

// Attestor produces signed attestations over decisions.
type Attestor interface {
	Attest(ctx context.Context, d strategy.Decision) (Attestation, error)
}

// Enclave simulates a TEE in-process. The signing key is provisioned once
// at startup and never rotated mid-run; in production the same interface
// is served by a remote enclave (see Client).
type Enclave struct {
	signerID string
	key      ed25519.PrivateKey
	now      func() time.Time
}

// NewEnclave creates a simulated enclave around an existing key.
func NewEnclave(signerID string, key ed25519.PrivateKey) *Enclave {
	return &Enclave{signerID: signerID, key: key, now: time.Now}
}

// GenerateEnclave creates a simulated enclave with a fresh key. The signer
// id is derived from the public key so the vault side can pin it.
func GenerateEnclave() (*Enclave, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate enclave key: %w", err)
	}
	return NewEnclave("sim-"+hex.EncodeToString(pub[:8]), priv), nil
}

// PublicKey returns the enclave's verification key.
func (e *Enclave) PublicKey() ed25519.PublicKey {
	return e.key.Public().(ed25519.PublicKey)
}

// SignerID returns the enclave's identity.
func (e *Enclave) SignerID() string {
	return e.signerID
}

// Attest signs the canonical form of the decision. Attesting the same
// decision twice yields the same payload; signature bytes are stable for
// ed25519 but callers must not rely on that.
func (e *Enclave) Attest(ctx context.Context, d strategy.Decision) (Attestation, error) {
	if err := ctx.Err(); err != nil {
		return Attestation{}, fmt.Errorf("%w: %v", ErrAttestationUnavailable, err)
	}
	payload, err := CanonicalPayload(d)
	if err != nil {
		return Attestation{}, fmt.Errorf("%w: %v", ErrAttestationUnavailable, err)
	}
	return Attestation{
		ID:        uuid.New().String(),
		Payload:   payload,
		Signature: ed25519.Sign(e.key, Digest(payload)),
		SignerID:  e.signerID,
		IssuedAt:  e.now().UTC(),
	}, nil
}
