// Package types contains wire-level types shared by the SDK sub-clients.
package types

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Error is the generic error payload returned by the HTTP services the SDK
// talks to (oracle data-availability API, attestation service).
type Error struct {
	Code    string `json:"code,omitempty"`
	Status  int    `json:"-"`
	Message string `json:"message,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// U256 is a big.Int that marshals to/from a JSON decimal string, the way
// unsigned 256-bit amounts travel over the attestation wire format.
type U256 struct {
	*big.Int
}

// NewU256 wraps v without copying.
func NewU256(v *big.Int) U256 {
	return U256{Int: v}
}

func (u U256) MarshalJSON() ([]byte, error) {
	if u.Int == nil {
		return []byte(`"0"`), nil
	}
	return []byte(strconv.Quote(u.Int.String())), nil
}

func (u *U256) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		u.Int = new(big.Int)
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid uint256 value %q", s)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("uint256 value %q is negative", s)
	}
	u.Int = v
	return nil
}
