package verifymind

import (
	"time"

	"github.com/verifymind/verifymind-go-sdk/pkg/oracle"
	"github.com/verifymind/verifymind-go-sdk/pkg/stream"
	"github.com/verifymind/verifymind-go-sdk/pkg/transport"
)

// BaseURLs defines per-service base endpoints.
type BaseURLs struct {
	// Oracle is the anchor-feed data-availability API.
	Oracle string
	// Attestor is the remote attestation service. Leave empty to run a
	// locally generated simulated enclave instead.
	Attestor string
	// Stream is the WebSocket feed endpoint.
	Stream string
}

// Config holds shared SDK configuration.
type Config struct {
	BaseURLs     BaseURLs
	HTTPClient   transport.Doer
	UserAgent    string
	Timeout      time.Duration
	Freshness    time.Duration
	StreamConfig stream.ClientConfig
}

// DefaultConfig returns default service endpoints.
func DefaultConfig() Config {
	return Config{
		BaseURLs: BaseURLs{
			Oracle:   oracle.ProdURL,
			Attestor: "",
			Stream:   "wss://flr-data-availability.flare.network/ws/v0",
		},
		UserAgent:    "github.com/verifymind/verifymind-go-sdk",
		Timeout:      12 * time.Second,
		Freshness:    oracle.DefaultFreshness,
		StreamConfig: stream.ClientConfigFromEnv(),
	}
}
