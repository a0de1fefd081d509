package btcmultisig

import "time"

// Node is the subset of the Bitcoin Core wallet RPC interface the workflows
// depend on. Every method is a blocking round trip; errors are *Error values.
type Node interface {
	// WalletPassphrase unlocks the wallet for the given duration.
	WalletPassphrase(passphrase string, timeout time.Duration) error

	// GetNewAddress asks the wallet for a fresh address of the given type.
	GetNewAddress(label string, addrType AddressType) (string, error)

	// DumpPrivKey returns the WIF private key the wallet holds for address.
	DumpPrivKey(address string) (string, error)

	// ValidateAddress reports the node's view of address.
	ValidateAddress(address string) (*AddressValidation, error)

	// CreateMultisig computes a multisig descriptor without touching the
	// wallet.
	CreateMultisig(required int, pubKeys []string,
		addrType AddressType) (*MultisigResult, error)

	// AddMultisigAddress computes a multisig descriptor and registers it
	// with the wallet so outputs paying to it are tracked.
	AddMultisigAddress(required int, pubKeys []string, label string,
		addrType AddressType) (*MultisigResult, error)

	// ListUnspent returns the wallet's unspent outputs.
	ListUnspent() ([]UTXO, error)

	// CreateRawTransaction returns the hex of an unsigned transaction.
	CreateRawTransaction(inputs []OutPoint, outputs []Output) (string, error)

	// SignRawTransactionWithKey adds the signatures the given keys can
	// produce for the inputs described by prevOuts.
	SignRawTransactionWithKey(txHex string, privKeys []string,
		prevOuts []PrevOut) (*SignResult, error)

	// SendRawTransaction submits a transaction for relay and returns its
	// txid.
	SendRawTransaction(txHex string) (string, error)
}

// AddressValidation is the result of validateaddress.
type AddressValidation struct {
	IsValid      bool
	Address      string
	ScriptPubKey string
	IsScript     bool
	IsWitness    bool
}

// MultisigResult is the result of createmultisig and addmultisigaddress.
type MultisigResult struct {
	Address      string
	RedeemScript string
	Descriptor   string
}

// SignResult is the result of signrawtransactionwithkey.
type SignResult struct {
	Hex      string
	Complete bool
	Errors   []SignError
}

// SignError is a per-input diagnostic reported by the signer. Bitcoin Core
// reports one for every input that is not yet fully signed.
type SignError struct {
	TxID      string
	Vout      uint32
	ScriptSig string
	Sequence  uint32
	Error     string
}
