package attest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/verifymind/verifymind-go-sdk/pkg/strategy"
	"github.com/verifymind/verifymind-go-sdk/pkg/transport"
)

const attestPath = "/attest"

// DefaultRequestTimeout bounds the wait for a remote attestation.
const DefaultRequestTimeout = 12 * time.Second

// Client requests attestations from a remote TEE attestation service.
type Client struct {
	http    *transport.Client
	timeout time.Duration
	now     func() time.Time
}

// NewClient creates a remote attestor. A non-positive timeout falls back
// to DefaultRequestTimeout.
func NewClient(http *transport.Client, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{http: http, timeout: timeout, now: time.Now}
}

type attestRequest struct {
	Payload string `json:"payload"`
}

type attestResponse struct {
	Signature string `json:"signature"`
	SignerID  string `json:"signer_id"`
	Status    string `json:"status"`
}

// Attest posts the canonical decision payload and returns the service's
// signature over it.
func (c *Client) Attest(ctx context.Context, d strategy.Decision) (Attestation, error) {
	payload, err := CanonicalPayload(d)
	if err != nil {
		return Attestation{}, fmt.Errorf("%w: %v", ErrAttestationUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp attestResponse
	err = c.http.PostJSON(ctx, attestPath, attestRequest{
		Payload: base64.StdEncoding.EncodeToString(payload),
	}, &resp)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Attestation{}, fmt.Errorf("%w after %s", ErrAttestationTimeout, c.timeout)
		}
		return Attestation{}, fmt.Errorf("%w: %v", ErrAttestationUnavailable, err)
	}

	sig, err := base64.StdEncoding.DecodeString(resp.Signature)
	if err != nil {
		return Attestation{}, fmt.Errorf("%w: bad signature encoding: %v", ErrAttestationUnavailable, err)
	}
	if len(sig) == 0 {
		return Attestation{}, fmt.Errorf("%w: empty signature (status %q)", ErrAttestationUnavailable, resp.Status)
	}

	return Attestation{
		ID:        uuid.New().String(),
		Payload:   payload,
		Signature: sig,
		SignerID:  resp.SignerID,
		IssuedAt:  c.now().UTC(),
	}, nil
}
