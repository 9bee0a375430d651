package wallet

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrProviderMissing means no wallet capability is available. The user has to
// install or start one; retrying does not help.
var ErrProviderMissing = errors.New("no wallet provider found: install a wallet and expose its RPC endpoint (get one at https://metamask.io/)")

// Provider error codes (EIP-1193 / EIP-3085 and the node's server error range).
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
	CodeServerError       = -32000
)

// ErrorCode extracts the JSON-RPC error code, if err carries one.
func ErrorCode(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	return 0, false
}

// dataCode extracts the code wallets nest in the error data object when they
// forward a node error.
func dataCode(err error) (int, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return 0, false
	}
	switch data := dataErr.ErrorData().(type) {
	case map[string]interface{}:
		switch code := data["code"].(type) {
		case float64:
			return int(code), true
		case json.Number:
			n, err := code.Int64()
			return int(n), err == nil
		}
	}
	return 0, false
}

func hasCode(err error, want int) bool {
	if code, ok := ErrorCode(err); ok && code == want {
		return true
	}
	code, ok := dataCode(err)
	return ok && code == want
}

// IsUnrecognizedChain reports the wallet does not know the requested chain.
func IsUnrecognizedChain(err error) bool {
	return err != nil && hasCode(err, CodeUnrecognizedChain)
}

// IsUserRejected reports the user dismissed the wallet prompt.
func IsUserRejected(err error) bool {
	return err != nil && hasCode(err, CodeUserRejected)
}

// IsInsufficientFunds reports the account cannot pay value plus gas. Wallets
// forward the node's -32000 in the error data; nodes reached directly only
// give the message.
func IsInsufficientFunds(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := dataCode(err); ok && code == CodeServerError {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "insufficient funds")
}
