package btcmultisig

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// SpendRequest parameterizes Spend.
type SpendRequest struct {
	// PrivateKeys are the three multisig keys in redeem script order, WIF
	// or hex. The first MultisigThreshold of them sign.
	PrivateKeys [MultisigKeys]string

	Label       string
	AddressType AddressType
	Destination Output

	Passphrase    string
	UnlockTimeout time.Duration
}

// SpendResult collects every intermediate value of a Spend.
type SpendResult struct {
	Keys        [MultisigKeys]*DerivedKey
	Validations [MultisigKeys]*AddressValidation
	Descriptor  *MultisigDescriptor
	Unspent     []UTXO
	UTXO        *UTXO
	UnsignedHex string
	SignedHex   []string
	TxID        string
}

// Spend moves req.Destination.Amount from the first unspent output paying to
// the 2-of-3 multisig address over req.PrivateKeys to req.Destination. The
// returned result holds everything computed up to the point of failure.
func Spend(node Node, net *chaincfg.Params, req *SpendRequest) (*SpendResult, error) {
	result := &SpendResult{}

	dest, err := btcutil.DecodeAddress(req.Destination.Address, net)
	if err != nil || !dest.IsForNet(net) {
		return result, NewError(ValidationFailure, "", "destination %q "+
			"is not an address on %s", req.Destination.Address, net.Name)
	}

	if req.Passphrase != "" {
		err := node.WalletPassphrase(req.Passphrase, req.UnlockTimeout)
		if err != nil {
			return result, err
		}
	}

	var pubKeys [MultisigKeys]string
	for i, privKey := range req.PrivateKeys {
		key, err := DeriveKey(privKey, net)
		if err != nil {
			return result, err
		}
		result.Keys[i] = key
		result.Validations[i], err = VerifyDerivedKey(node, key)
		if err != nil {
			return result, err
		}
		pubKeys[i] = key.PublicKey
		log.Infof("Key %d: public key %s, address %s", i, key.PublicKey,
			key.Address)
	}

	result.Descriptor, err = BuildMultisig(
		node, pubKeys, req.Label, req.AddressType,
	)
	if err != nil {
		return result, err
	}
	log.Infof("Multisig address [%d-of-%d]: %s", result.Descriptor.Threshold,
		MultisigKeys, result.Descriptor.Address)

	unspent, err := node.ListUnspent()
	if err != nil {
		return result, err
	}
	log.Tracef("listunspent: %v", spewClosure(unspent))
	result.Unspent = unspent

	result.UTXO, err = FindUTXO(unspent, result.Descriptor.Address)
	if err != nil {
		return result, err
	}
	log.Infof("Spending %s:%d (%v)", result.UTXO.TxID, result.UTXO.Vout,
		result.UTXO.Amount)

	tx, err := NewRawTransaction(
		node, result.Descriptor, result.UTXO,
		[]Output{req.Destination},
	)
	if err != nil {
		return result, err
	}
	result.UnsignedHex = tx.Hex()

	for i := 0; i < result.Descriptor.Threshold; i++ {
		if err := tx.Sign(node, result.Keys[i].PrivateKey); err != nil {
			return result, err
		}
		result.SignedHex = append(result.SignedHex, tx.Hex())
	}

	result.TxID, err = tx.Broadcast(node)
	if err != nil {
		return result, err
	}
	log.Infof("Transaction broadcast with txid %s", result.TxID)

	return result, nil
}
