package verifymind

import (
	"time"

	"github.com/verifymind/verifymind-go-sdk/pkg/attest"
	"github.com/verifymind/verifymind-go-sdk/pkg/chain"
	"github.com/verifymind/verifymind-go-sdk/pkg/oracle"
	"github.com/verifymind/verifymind-go-sdk/pkg/stream"
	"github.com/verifymind/verifymind-go-sdk/pkg/transport"
)

// Option customizes the root client during construction.
type Option func(*Client)

// WithConfig replaces the entire configuration.
func WithConfig(cfg Config) Option {
	return func(c *Client) { c.Config = cfg }
}

// WithHTTPClient sets the HTTP transport shared by all REST sub-clients.
func WithHTTPClient(doer transport.Doer) Option {
	return func(c *Client) { c.Config.HTTPClient = doer }
}

// WithUserAgent overrides the User-Agent header on outbound requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.Config.UserAgent = ua }
}

// WithTimeout sets the request timeout for the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.Config.Timeout = d }
}

// WithFreshness bounds how old an anchor feed reading may be before it is
// rejected as stale. Zero disables the check.
func WithFreshness(d time.Duration) Option {
	return func(c *Client) { c.Config.Freshness = d }
}

// WithOracleURL points the oracle client at a different feed API.
func WithOracleURL(url string) Option {
	return func(c *Client) { c.Config.BaseURLs.Oracle = url }
}

// WithAttestorURL switches attestation from the local simulated enclave to
// a remote attestation service.
func WithAttestorURL(url string) Option {
	return func(c *Client) { c.Config.BaseURLs.Attestor = url }
}

// WithStreamURL points the stream client at a different WebSocket endpoint.
func WithStreamURL(url string) Option {
	return func(c *Client) { c.Config.BaseURLs.Stream = url }
}

// WithStreamConfig overrides the WebSocket reconnect and heartbeat settings.
func WithStreamConfig(cfg stream.ClientConfig) Option {
	return func(c *Client) { c.Config.StreamConfig = cfg }
}

// WithOracle injects a pre-built oracle client.
func WithOracle(cl oracle.Client) Option {
	return func(c *Client) { c.Oracle = cl }
}

// WithAttestor injects a pre-built attestor.
func WithAttestor(a attest.Attestor) Option {
	return func(c *Client) { c.Attestor = a }
}

// WithStream injects a pre-built stream client.
func WithStream(cl stream.Client) Option {
	return func(c *Client) { c.Stream = cl }
}

// WithChain injects a submission client bound to a signer and RPC backend.
func WithChain(cl *chain.Client) Option {
	return func(c *Client) { c.Chain = cl }
}
