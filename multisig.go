package btcmultisig

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/pkg/errors"
)

const (
	// MultisigKeys is the number of keys in the multisig policy.
	MultisigKeys = 3

	// MultisigThreshold is the number of signatures the policy requires.
	MultisigThreshold = 2
)

// MultisigDescriptor is the 2-of-3 policy as registered with the wallet.
// PublicKeys keeps the order the node was given; the address depends on it.
type MultisigDescriptor struct {
	Threshold    int
	PublicKeys   [MultisigKeys]string
	RedeemScript string
	Address      string
}

// BuildMultisig asks the node for the 2-of-3 descriptor over pubKeys twice:
// once through createmultisig for inspection, once through
// addmultisigaddress so the wallet tracks the address. Both calls get the
// keys in the same order.
func BuildMultisig(node Node, pubKeys [MultisigKeys]string, label string,
	addrType AddressType) (*MultisigDescriptor, error) {

	keys := pubKeys[:]

	inspected, err := node.CreateMultisig(MultisigThreshold, keys, addrType)
	if err != nil {
		return nil, err
	}
	log.Debugf("createmultisig: address=%s redeemScript=%s",
		inspected.Address, inspected.RedeemScript)

	registered, err := node.AddMultisigAddress(
		MultisigThreshold, keys, label, addrType,
	)
	if err != nil {
		return nil, err
	}
	log.Debugf("addmultisigaddress: address=%s", registered.Address)

	if registered.Address != inspected.Address {
		return nil, NewError(ValidationFailure, "addmultisigaddress",
			"wallet registered %s but createmultisig computed %s",
			registered.Address, inspected.Address)
	}

	if registered.RedeemScript != "" && inspected.RedeemScript != "" &&
		!strings.EqualFold(registered.RedeemScript, inspected.RedeemScript) {

		return nil, NewError(ValidationFailure, "addmultisigaddress",
			"wallet registered redeem script %s but createmultisig "+
				"computed %s", registered.RedeemScript,
			inspected.RedeemScript)
	}

	redeemScript := registered.RedeemScript
	if redeemScript == "" {
		redeemScript = inspected.RedeemScript
	}

	return &MultisigDescriptor{
		Threshold:    MultisigThreshold,
		PublicKeys:   pubKeys,
		RedeemScript: redeemScript,
		Address:      registered.Address,
	}, nil
}

// RedeemScriptInfo summarizes a multisig redeem script for display.
type RedeemScriptInfo struct {
	Required   int
	PublicKeys int
	Disasm     string
}

// DescribeRedeemScript decodes a hex multisig redeem script.
func DescribeRedeemScript(redeemScript string) (*RedeemScriptInfo, error) {
	script, err := hex.DecodeString(redeemScript)
	if err != nil {
		return nil, NewError(ValidationFailure, "", "malformed redeem "+
			"script: %v", err)
	}
	numPubKeys, numSigs, err := txscript.CalcMultiSigStats(script)
	if err != nil {
		return nil, NewError(ValidationFailure, "", "not a multisig "+
			"redeem script: %v", err)
	}
	disasm, err := txscript.DisasmString(script)
	if err != nil {
		return nil, NewError(ValidationFailure, "", "%v", err)
	}

	return &RedeemScriptInfo{
		Required:   numSigs,
		PublicKeys: numPubKeys,
		Disasm:     disasm,
	}, nil
}

// MultiSigAddress is a P2SH multisig descriptor computed locally, the
// offline counterpart of createmultisig with address_type legacy.
type MultiSigAddress struct {
	publicKeys          []*btcec.PublicKey
	serializedKeys      [][]byte
	signaturesRequired  int
	redeemScript        []byte
	redeemHash          []byte
	address             *btcutil.AddressScriptHash
	AddressEncoded      string
	RedeemScriptEncoded string
	RedeemScriptDisasm  string
	Network             *chaincfg.Params
}

func NewMultiSigAddress(net *chaincfg.Params, signaturesRequired int, strPubKeys ...string) (*MultiSigAddress, error) {
	if signaturesRequired > len(strPubKeys) {
		return nil, NewError(ValidationFailure, "", "signatures required "+
			"(%d) exceeds the number of public keys (%d)",
			signaturesRequired, len(strPubKeys))
	}
	if signaturesRequired <= 0 {
		return nil, NewError(ValidationFailure, "", "invalid number of "+
			"required signatures: %d", signaturesRequired)
	}
	if len(strPubKeys) <= 0 || len(strPubKeys) > 16 {
		return nil, NewError(ValidationFailure, "", "invalid number of "+
			"public keys: %d", len(strPubKeys))
	}
	serialized, pubKeys, err := getPubKeys(strPubKeys...)
	if err != nil {
		return nil, err
	}

	addr := &MultiSigAddress{
		signaturesRequired: signaturesRequired,
		publicKeys:         pubKeys,
		serializedKeys:     serialized,
		Network:            net,
	}
	err = addr.buildRedeemScript()
	if err != nil {
		return nil, err
	}
	addr.address, err = btcutil.NewAddressScriptHashFromHash(addr.redeemHash, net)
	if err != nil {
		return nil, NewError(ValidationFailure, "", "%v", err)
	}
	addr.AddressEncoded = addr.address.EncodeAddress()
	addr.RedeemScriptEncoded = hex.EncodeToString(addr.redeemScript)
	addr.RedeemScriptDisasm, err = txscript.DisasmString(addr.redeemScript)
	if err != nil {
		return nil, NewError(ValidationFailure, "", "%v", err)
	}
	return addr, nil
}

// Keys are pushed exactly as given, so compressed and uncompressed keys
// produce the same script bitcoind would.
func (addr *MultiSigAddress) buildRedeemScript() error {
	builder := txscript.NewScriptBuilder()
	builder.AddInt64(int64(addr.signaturesRequired))
	for _, x := range addr.serializedKeys {
		builder.AddData(x)
	}
	builder.AddInt64(int64(len(addr.serializedKeys)))
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	redeemScript, err := builder.Script()
	if err != nil {
		return NewError(ValidationFailure, "", "%v", err)
	}
	addr.redeemScript = redeemScript
	addr.redeemHash = btcutil.Hash160(redeemScript)
	return nil
}

// RedeemScript returns the serialized redeem script.
func (addr *MultiSigAddress) RedeemScript() []byte {
	return addr.redeemScript
}

// SignaturesRequired returns the threshold of the policy.
func (addr *MultiSigAddress) SignaturesRequired() int {
	return addr.signaturesRequired
}

// KeyIndex returns the position of pubKey in the redeem script, or -1.
func (addr *MultiSigAddress) KeyIndex(pubKey *btcec.PublicKey) int {
	for i, x := range addr.publicKeys {
		if x.IsEqual(pubKey) {
			return i
		}
	}
	return -1
}

// Descriptor converts a 2-of-3 local descriptor into the form BuildMultisig
// returns.
func (addr *MultiSigAddress) Descriptor() (*MultisigDescriptor, error) {
	if len(addr.serializedKeys) != MultisigKeys {
		return nil, NewError(ValidationFailure, "", "descriptor has %d "+
			"keys, want %d", len(addr.serializedKeys), MultisigKeys)
	}

	desc := &MultisigDescriptor{
		Threshold:    addr.signaturesRequired,
		RedeemScript: addr.RedeemScriptEncoded,
		Address:      addr.AddressEncoded,
	}
	for i, x := range addr.serializedKeys {
		desc.PublicKeys[i] = hex.EncodeToString(x)
	}
	return desc, nil
}

func getPubKeys(strPubKeys ...string) (serialized [][]byte, pubKeys []*btcec.PublicKey, err error) {
	for _, x := range strPubKeys {
		pubKeyBytes, err := hex.DecodeString(x)
		if err != nil {
			return nil, nil, NewError(ValidationFailure, "",
				"malformed public key %q: %v", x, err)
		}
		pubKey, err := btcec.ParsePubKey(pubKeyBytes)
		if err != nil {
			return nil, nil, &Error{
				Kind:    ValidationFailure,
				Message: errors.Wrapf(err, "invalid public key %q", x).Error(),
				Err:     err,
			}
		}
		serialized = append(serialized, pubKeyBytes)
		pubKeys = append(pubKeys, pubKey)
	}
	return
}
