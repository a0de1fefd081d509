package btcmultisig

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/pkg/errors"
)

// ErrorKind is the closed set of failure classes a workflow can end with.
type ErrorKind int

const (
	// AuthFailure covers bad RPC credentials and locked or wrongly
	// unlocked wallets.
	AuthFailure ErrorKind = iota

	// NotFound covers unknown addresses, keys, methods and the absence of
	// a spendable output at the multisig address.
	NotFound

	// ValidationFailure covers everything the node or a local check
	// refused: malformed transactions, keys outside the redeem script,
	// missing signatures, mismatching derivations.
	ValidationFailure

	// TransportFailure covers unreachable nodes and malformed responses.
	TransportFailure
)

func (k ErrorKind) String() string {
	switch k {
	case AuthFailure:
		return "auth failure"
	case NotFound:
		return "not found"
	case ValidationFailure:
		return "validation failure"
	case TransportFailure:
		return "transport failure"
	default:
		return fmt.Sprintf("unknown error kind %d", int(k))
	}
}

// Bitcoin Core error codes without a btcjson name in use here.
const (
	rpcWalletWrongEncState  btcjson.RPCErrorCode = -15
	rpcVerifyRejected       btcjson.RPCErrorCode = -26
	rpcVerifyAlreadyInChain btcjson.RPCErrorCode = -27
	rpcTypeError            btcjson.RPCErrorCode = -3
	rpcMethodNotFound       btcjson.RPCErrorCode = -32601
	rpcInvalidParams        btcjson.RPCErrorCode = -32602
)

// Error is returned by every operation in this module. Message carries the
// raw diagnostic of the node (or of the local check) unchanged.
type Error struct {
	Kind    ErrorKind
	Op      string
	Code    btcjson.RPCErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError returns an *Error of the given kind for a failed operation.
func NewError(kind ErrorKind, op, format string, args ...interface{}) error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// KindOf extracts the ErrorKind of err. The second return value is false
// when err does not carry one.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// ClassifyRPCError maps an error returned while executing the RPC method op
// onto an *Error. Errors that are already classified pass through.
func ClassifyRPCError(op string, err error) error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		return &Error{
			Kind:    kindForCode(rpcErr.Code),
			Op:      op,
			Code:    rpcErr.Code,
			Message: rpcErr.Message,
			Err:     err,
		}
	}

	// Replies that are not JSON-RPC, such as the empty body bitcoind sends
	// with a 401, arrive as "status code: N, response: ...".
	msg := err.Error()
	kind := TransportFailure
	if strings.Contains(msg, "status code: 401") ||
		strings.Contains(msg, "status code: 403") {

		kind = AuthFailure
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: msg,
		Err:     err,
	}
}

func kindForCode(code btcjson.RPCErrorCode) ErrorKind {
	switch code {
	case btcjson.ErrRPCWalletUnlockNeeded,
		btcjson.ErrRPCWalletPassphraseIncorrect,
		rpcWalletWrongEncState:

		return AuthFailure

	case btcjson.ErrRPCInvalidAddressOrKey, btcjson.ErrRPCWalletNotFound,
		rpcMethodNotFound:

		return NotFound

	case btcjson.ErrRPCInvalidParameter, btcjson.ErrRPCDeserialization,
		btcjson.ErrRPCVerify, rpcVerifyRejected, rpcVerifyAlreadyInChain,
		rpcTypeError, rpcInvalidParams:

		return ValidationFailure

	// Remaining codes are node-side refusals as well.
	default:
		return ValidationFailure
	}
}
