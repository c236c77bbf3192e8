// Package oracle reads anchor price feeds, with their validity proofs, from
// the data-availability API.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/verifymind/verifymind-go-sdk/pkg/transport"
)

// ProdURL is the default data-availability API endpoint.
const ProdURL = "https://flr-data-availability.flare.network/api/v0"

const anchorFeedsPath = "/ftso/anchor-feeds-with-proof"

// DefaultFreshness is the default bound on feed age before a quote is
// rejected as stale.
const DefaultFreshness = 2 * time.Minute

var (
	// ErrOracleUnavailable wraps transport-level failures reaching the feed.
	ErrOracleUnavailable = errors.New("oracle unavailable")
	// ErrInvalidProof means the returned proof is missing or does not
	// correspond to the requested feed.
	ErrInvalidProof = errors.New("invalid feed proof")
	// ErrStaleQuote means the feed timestamp is older than the freshness bound.
	ErrStaleQuote = errors.New("stale quote")
)

// PriceQuote is one proven anchor feed reading.
type PriceQuote struct {
	Pair      string
	FeedID    FeedID
	Price     decimal.Decimal
	Value     int64
	Decimals  int32
	Timestamp time.Time
	Proof     []string
}

// Client fetches proven price quotes for configured feeds.
type Client interface {
	// FetchQuote returns the latest proven quote for a pair such as "BTC/USD".
	FetchQuote(ctx context.Context, pair string) (PriceQuote, error)
	// FetchQuotes returns the latest proven quotes for several pairs in one
	// round trip, keyed by pair.
	FetchQuotes(ctx context.Context, pairs ...string) (map[string]PriceQuote, error)
}

type clientImpl struct {
	http      *transport.Client
	freshness time.Duration
	now       func() time.Time
}

// NewClient creates an oracle client. freshness bounds how old a feed
// timestamp may be before the quote is rejected as stale; zero disables
// the staleness check.
func NewClient(http *transport.Client, freshness time.Duration) Client {
	return &clientImpl{http: http, freshness: freshness, now: time.Now}
}

type feedRequest struct {
	FeedIDs []string `json:"feed_ids"`
}

type feedRecord struct {
	Body struct {
		ID        string `json:"id"`
		Value     int64  `json:"value"`
		Decimals  int32  `json:"decimals"`
		Timestamp int64  `json:"timestamp"`
	} `json:"body"`
	Proof []string `json:"proof"`
}

func (c *clientImpl) FetchQuote(ctx context.Context, pair string) (PriceQuote, error) {
	quotes, err := c.FetchQuotes(ctx, pair)
	if err != nil {
		return PriceQuote{}, err
	}
	q, ok := quotes[pair]
	if !ok {
		return PriceQuote{}, fmt.Errorf("%w: no record for feed %s", ErrInvalidProof, pair)
	}
	return q, nil
}

func (c *clientImpl) FetchQuotes(ctx context.Context, pairs ...string) (map[string]PriceQuote, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("at least one pair is required")
	}

	req := feedRequest{FeedIDs: make([]string, 0, len(pairs))}
	wanted := make(map[FeedID]string, len(pairs))
	for _, pair := range pairs {
		id, err := FeedIDForPair(CategoryCrypto, pair)
		if err != nil {
			return nil, err
		}
		req.FeedIDs = append(req.FeedIDs, id.Hex())
		wanted[id] = pair
	}

	var records []feedRecord
	if err := c.http.PostJSON(ctx, anchorFeedsPath, req, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	// Match records back by feed id, never by position.
	quotes := make(map[string]PriceQuote, len(pairs))
	for _, rec := range records {
		id, err := ParseFeedID(rec.Body.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
		}
		pair, ok := wanted[id]
		if !ok {
			return nil, fmt.Errorf("%w: unsolicited record for feed %s", ErrInvalidProof, id)
		}
		if len(rec.Proof) == 0 {
			return nil, fmt.Errorf("%w: empty proof for feed %s", ErrInvalidProof, id)
		}
		if rec.Body.Value < 0 {
			return nil, fmt.Errorf("%w: negative value for feed %s", ErrInvalidProof, id)
		}
		if rec.Body.Decimals < 0 {
			return nil, fmt.Errorf("%w: negative decimals for feed %s", ErrInvalidProof, id)
		}

		ts := time.Unix(rec.Body.Timestamp, 0)
		if c.freshness > 0 && c.now().Sub(ts) > c.freshness {
			return nil, fmt.Errorf("%w: feed %s is %s old (bound %s)",
				ErrStaleQuote, pair, c.now().Sub(ts).Truncate(time.Second), c.freshness)
		}

		quotes[pair] = PriceQuote{
			Pair:      pair,
			FeedID:    id,
			Price:     decimal.New(rec.Body.Value, -rec.Body.Decimals),
			Value:     rec.Body.Value,
			Decimals:  rec.Body.Decimals,
			Timestamp: ts,
			Proof:     rec.Proof,
		}
	}

	for _, pair := range pairs {
		if _, ok := quotes[pair]; !ok {
			return nil, fmt.Errorf("%w: no record for feed %s", ErrInvalidProof, pair)
		}
	}
	return quotes, nil
}
