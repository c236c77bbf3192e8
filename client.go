// Package verifymind aggregates the oracle, attestation, and stream
// clients behind a shared configuration.
package verifymind

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/verifymind/verifymind-go-sdk/pkg/attest"
	"github.com/verifymind/verifymind-go-sdk/pkg/chain"
	"github.com/verifymind/verifymind-go-sdk/pkg/oracle"
	"github.com/verifymind/verifymind-go-sdk/pkg/stream"
	"github.com/verifymind/verifymind-go-sdk/pkg/transport"
)

// Client aggregates service clients behind a shared configuration.
type Client struct {
	Config Config

	Oracle   oracle.Client
	Attestor attest.Attestor
	Stream   stream.Client
	// Chain has no default: submission needs a signing key and an RPC
	// backend. Inject one with WithChain.
	Chain *chain.Client

	InitErrors []error
}

// InitError records a non-fatal client initialization failure for a sub-service.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init %s client: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewClient creates a new root client with optional overrides.
func NewClient(opts ...Option) *Client {
	c, _ := newClient(false, opts...)
	return c
}

// NewClientE creates a new root client and returns an aggregated error if any
// sub-client fails to initialize.
func NewClientE(opts ...Option) (*Client, error) {
	return newClient(true, opts...)
}

func newClient(strict bool, opts ...Option) (*Client, error) {
	// 1. Initialize with default configuration
	c := &Client{Config: DefaultConfig()}

	// 2. Apply Options (Config overrides)
	for _, opt := range opts {
		opt(c)
	}

	// 3. Ensure a default HTTP client with timeout if none was provided.
	if c.Config.HTTPClient == nil && c.Config.Timeout > 0 {
		c.Config.HTTPClient = &http.Client{Timeout: c.Config.Timeout}
	}

	// 4. Initialize default transports and clients (if not overridden)
	if c.Oracle == nil {
		oracleTransport := transport.NewClient(c.Config.HTTPClient, c.Config.BaseURLs.Oracle)
		oracleTransport.SetUserAgent(c.Config.UserAgent)
		c.Oracle = oracle.NewClient(oracleTransport, c.Config.Freshness)
	}
	if c.Attestor == nil {
		if c.Config.BaseURLs.Attestor != "" {
			attestTransport := transport.NewClient(c.Config.HTTPClient, c.Config.BaseURLs.Attestor)
			attestTransport.SetUserAgent(c.Config.UserAgent)
			c.Attestor = attest.NewClient(attestTransport, c.Config.Timeout)
		} else {
			enclave, err := attest.GenerateEnclave()
			if err != nil {
				c.InitErrors = append(c.InitErrors, &InitError{Component: "attestor", Err: err})
			} else {
				c.Attestor = enclave
			}
		}
	}
	if c.Stream == nil {
		streamClient, err := stream.NewClient(c.Config.BaseURLs.Stream, c.Config.StreamConfig)
		if err != nil {
			c.InitErrors = append(c.InitErrors, &InitError{Component: "stream", Err: err})
		} else {
			c.Stream = streamClient
		}
	}

	if strict && len(c.InitErrors) > 0 {
		return c, errors.Join(c.InitErrors...)
	}
	return c, nil
}
