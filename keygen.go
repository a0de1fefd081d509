package btcmultisig

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// KeyGenRequest parameterizes GenerateKeys.
type KeyGenRequest struct {
	Count       int
	Label       string
	AddressType AddressType

	// Passphrase unlocks the wallet for UnlockTimeout. An empty passphrase
	// skips the unlock, for unencrypted wallets.
	Passphrase    string
	UnlockTimeout time.Duration
}

// GeneratedKey is one address/key pair handed out by the wallet.
type GeneratedKey struct {
	Address      string
	PrivateKey   string
	PublicKey    string
	ScriptPubKey string
}

// GenerateKeys requests req.Count fresh addresses from the node's wallet and
// returns them with their private keys. Every address becomes part of the
// wallet's keypool; nothing is stored locally.
func GenerateKeys(node Node, net *chaincfg.Params,
	req *KeyGenRequest) ([]GeneratedKey, error) {

	if req.Count < 0 {
		return nil, NewError(ValidationFailure, "getnewaddress",
			"negative key count %d", req.Count)
	}

	if req.Passphrase != "" {
		err := node.WalletPassphrase(req.Passphrase, req.UnlockTimeout)
		if err != nil {
			return nil, err
		}
		log.Debugf("Wallet unlocked for %v", req.UnlockTimeout)
	}

	keys := make([]GeneratedKey, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		key, err := generateKey(node, net, req)
		if err != nil {
			return nil, err
		}
		log.Infof("Generated address %d of %d: %s", i+1, req.Count,
			key.Address)
		keys = append(keys, *key)
	}

	return keys, nil
}

func generateKey(node Node, net *chaincfg.Params,
	req *KeyGenRequest) (*GeneratedKey, error) {

	address, err := node.GetNewAddress(req.Label, req.AddressType)
	if err != nil {
		return nil, err
	}

	addr, err := btcutil.DecodeAddress(address, net)
	if err != nil || !addr.IsForNet(net) {
		return nil, NewError(ValidationFailure, "getnewaddress",
			"node returned %s, which is not an address on %s",
			address, net.Name)
	}
	if !req.AddressType.MatchesKeyAddress(addr) {
		return nil, NewError(ValidationFailure, "getnewaddress",
			"node returned %s, which is not a %s address", address,
			req.AddressType)
	}

	wif, err := node.DumpPrivKey(address)
	if err != nil {
		return nil, err
	}

	validation, err := node.ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	if !validation.IsValid {
		return nil, NewError(ValidationFailure, "validateaddress",
			"node reports its own address %s as invalid", address)
	}
	log.Tracef("validateaddress %s: %v", address, spewClosure(validation))

	derived, err := DeriveKey(wif, net)
	if err != nil {
		return nil, err
	}

	return &GeneratedKey{
		Address:      address,
		PrivateKey:   wif,
		PublicKey:    derived.PublicKey,
		ScriptPubKey: validation.ScriptPubKey,
	}, nil
}
