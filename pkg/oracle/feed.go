package oracle

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// FeedIDLen is the fixed width of an anchor feed identifier: one category
// byte followed by the ASCII pair name, zero-padded.
const FeedIDLen = 21

// CategoryCrypto is the category byte for crypto price pairs.
const CategoryCrypto = 0x01

// FeedID identifies a price feed on the data-availability layer.
type FeedID [FeedIDLen]byte

// FeedIDForPair builds the feed identifier for a pair such as "BTC/USD".
func FeedIDForPair(category byte, pair string) (FeedID, error) {
	var id FeedID
	if pair == "" {
		return id, fmt.Errorf("pair is required")
	}
	if len(pair) > FeedIDLen-1 {
		return id, fmt.Errorf("pair %q exceeds %d bytes", pair, FeedIDLen-1)
	}
	id[0] = category
	copy(id[1:], pair)
	return id, nil
}

// ParseFeedID decodes a 0x-prefixed hex feed identifier.
func ParseFeedID(s string) (FeedID, error) {
	var id FeedID
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return id, fmt.Errorf("invalid feed id %q: %w", s, err)
	}
	if len(raw) != FeedIDLen {
		return id, fmt.Errorf("feed id %q has %d bytes, want %d", s, len(raw), FeedIDLen)
	}
	copy(id[:], raw)
	return id, nil
}

// Hex renders the identifier as a 0x-prefixed lowercase hex string, the
// form the data-availability API expects.
func (id FeedID) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

// Pair recovers the ASCII pair name embedded in the identifier.
func (id FeedID) Pair() string {
	return strings.TrimRight(string(id[1:]), "\x00")
}

// Category returns the category byte.
func (id FeedID) Category() byte {
	return id[0]
}

func (id FeedID) String() string {
	return id.Hex()
}

// Well-known crypto feeds.
var (
	FeedBTCUSD = mustFeedID("BTC/USD")
	FeedETHUSD = mustFeedID("ETH/USD")
	FeedBNBUSD = mustFeedID("BNB/USD")
	FeedFLRUSD = mustFeedID("FLR/USD")
)

func mustFeedID(pair string) FeedID {
	id, err := FeedIDForPair(CategoryCrypto, pair)
	if err != nil {
		panic(err)
	}
	return id
}
