package chain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// RevertError is a mined-but-reverted execution with its decoded reason.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return fmt.Sprintf("execution reverted: %s", e.Reason)
}

// dataError is the interface geth RPC errors expose for revert payloads.
type dataError interface {
	ErrorData() interface{}
}

// reasonFromError pulls a revert string out of an RPC error, when present.
func reasonFromError(err error) string {
	var de dataError
	if !asDataError(err, &de) {
		return ""
	}
	raw, ok := de.ErrorData().(string)
	if !ok {
		return ""
	}
	data, decErr := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if decErr != nil {
		return ""
	}
	return reasonFromData(data)
}

func asDataError(err error, target *dataError) bool {
	for err != nil {
		if de, ok := err.(dataError); ok {
			*target = de
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// reasonFromData decodes an ABI-encoded Error(string) payload.
func reasonFromData(data []byte) string {
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return ""
	}
	return reason
}
