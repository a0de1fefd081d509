package btcmultisig

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// AddressType is the address_type argument understood by Bitcoin Core.
type AddressType string

const (
	AddressLegacy     AddressType = "legacy"
	AddressP2SHSegwit AddressType = "p2sh-segwit"
	AddressBech32     AddressType = "bech32"
)

// ParseAddressType validates s as an AddressType.
func ParseAddressType(s string) (AddressType, error) {
	switch t := AddressType(strings.ToLower(strings.TrimSpace(s))); t {
	case AddressLegacy, AddressP2SHSegwit, AddressBech32:
		return t, nil
	default:
		return "", NewError(ValidationFailure, "", "unknown address type %q", s)
	}
}

// MatchesKeyAddress reports whether addr is a single-key address of type t.
func (t AddressType) MatchesKeyAddress(addr btcutil.Address) bool {
	switch t {
	case AddressLegacy:
		_, ok := addr.(*btcutil.AddressPubKeyHash)
		return ok
	case AddressP2SHSegwit:
		_, ok := addr.(*btcutil.AddressScriptHash)
		return ok
	case AddressBech32:
		_, ok := addr.(*btcutil.AddressWitnessPubKeyHash)
		return ok
	default:
		return false
	}
}

// DerivedKey holds what can be computed offline from a private key.
// PrivateKey is always WIF, whatever form the key was given in.
type DerivedKey struct {
	PrivateKey   string
	PublicKey    string
	Address      string
	ScriptPubKey string
}

// DeriveKey computes the public key and P2PKH address of privKey on net. The
// key is either WIF or 64 hex characters; hex keys are taken as compressed.
func DeriveKey(privKey string, net *chaincfg.Params) (*DerivedKey, error) {
	priv, compress, err := decodePrivateKey(privKey, net)
	if err != nil {
		return nil, err
	}

	var pubKey []byte
	if compress {
		pubKey = priv.PubKey().SerializeCompressed()
	} else {
		pubKey = priv.PubKey().SerializeUncompressed()
	}

	wif, err := btcutil.NewWIF(priv, net, compress)
	if err != nil {
		return nil, NewError(ValidationFailure, "derive", "%v", err)
	}
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pubKey), net)
	if err != nil {
		return nil, NewError(ValidationFailure, "derive", "%v", err)
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, NewError(ValidationFailure, "derive", "%v", err)
	}

	return &DerivedKey{
		PrivateKey:   wif.String(),
		PublicKey:    hex.EncodeToString(pubKey),
		Address:      addr.EncodeAddress(),
		ScriptPubKey: hex.EncodeToString(pkScript),
	}, nil
}

func decodePrivateKey(privKey string,
	net *chaincfg.Params) (*btcec.PrivateKey, bool, error) {

	if wif, err := btcutil.DecodeWIF(privKey); err == nil {
		if !wif.IsForNet(net) {
			return nil, false, NewError(ValidationFailure, "derive",
				"private key is not encoded for %s", net.Name)
		}
		return wif.PrivKey, wif.CompressPubKey, nil
	}

	if len(privKey) != 2*secp256k1.PrivKeyBytesLen {
		return nil, false, NewError(ValidationFailure, "derive",
			"private key is neither WIF nor %d hex characters",
			2*secp256k1.PrivKeyBytesLen)
	}
	raw, err := hex.DecodeString(privKey)
	if err != nil {
		return nil, false, NewError(ValidationFailure, "derive",
			"malformed hex private key: %v", err)
	}

	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(raw); overflow || scalar.IsZero() {
		return nil, false, NewError(ValidationFailure, "derive",
			"private key is out of range for secp256k1")
	}

	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, true, nil
}

// VerifyDerivedKey asks the node to validate the locally derived address and
// requires it to agree on both the address and its locking script. A
// disagreement means the key or the network is not what the caller assumes.
func VerifyDerivedKey(node Node, key *DerivedKey) (*AddressValidation, error) {
	res, err := node.ValidateAddress(key.Address)
	if err != nil {
		return nil, err
	}
	log.Tracef("validateaddress %s: %v", key.Address, spewClosure(res))

	switch {
	case !res.IsValid:
		return nil, NewError(ValidationFailure, "validateaddress",
			"node reports %s as invalid", key.Address)

	case res.Address != key.Address:
		return nil, NewError(ValidationFailure, "validateaddress",
			"node returned address %s, derived %s", res.Address,
			key.Address)

	case !strings.EqualFold(res.ScriptPubKey, key.ScriptPubKey):
		return nil, NewError(ValidationFailure, "validateaddress",
			"node returned script %s for %s, derived %s",
			res.ScriptPubKey, key.Address, key.ScriptPubKey)
	}

	return res, nil
}
