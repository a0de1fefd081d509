package main

import (
	"fmt"
	"io"
	"os"

	"github.com/btcsuite/btcd/chaincfg"

	btcmultisig "github.com/pablonlr/btc-rpc-multisig"
)

func spend(cfg *config, c *spendConfig) error {
	privKeys, err := spendKeys(c)
	if err != nil {
		return err
	}
	passphrase, err := walletPassphrase(&c.UnlockOptions)
	if err != nil {
		return err
	}
	client, err := connectToNode(cfg)
	if err != nil {
		return err
	}
	defer client.Shutdown()

	return runSpend(os.Stdout, client, cfg.net.Params, c, privKeys,
		passphrase)
}

// spendKeys returns the keys given with --privkey, or else privkey1 to
// privkey3 from the environment or a prompt.
func spendKeys(c *spendConfig) ([btcmultisig.MultisigKeys]string, error) {
	var keys [btcmultisig.MultisigKeys]string
	if len(c.PrivKeys) == btcmultisig.MultisigKeys {
		copy(keys[:], c.PrivKeys)
		return keys, nil
	}

	store := newSecretStore(nil, true)
	for i := range keys {
		k, err := store.Secret(fmt.Sprintf("privkey%d", i+1))
		if err != nil {
			return keys, err
		}
		keys[i] = k
	}
	return keys, nil
}

func runSpend(w io.Writer, node btcmultisig.Node, net *chaincfg.Params,
	c *spendConfig, privKeys [btcmultisig.MultisigKeys]string,
	passphrase string) error {

	res, err := btcmultisig.Spend(node, net, &btcmultisig.SpendRequest{
		PrivateKeys: privKeys,
		Label:       c.Label,
		AddressType: c.addrType,
		Destination: btcmultisig.Output{
			Address: c.Destination,
			Amount:  c.amount,
		},
		Passphrase:    passphrase,
		UnlockTimeout: c.UnlockTimeout,
	})

	// Print whatever was computed, even on failure.
	for i, k := range res.Keys {
		if k == nil {
			break
		}
		fmt.Fprintf(w, "-- Address Pair: Number %d\n", i)
		printField(w, fmt.Sprintf("[%d]: Private Key", i), k.PrivateKey)
		printField(w, fmt.Sprintf("[%d]: Public Key", i), k.PublicKey)
		printField(w, fmt.Sprintf("[%d]: Public Bitcoin Address", i),
			k.Address)
		if v := res.Validations[i]; v != nil {
			fmt.Fprintf(w, "[%d]: Validated - isvalid=%t address=%s "+
				"scriptPubKey=%s isscript=%t iswitness=%t\n", i,
				v.IsValid, v.Address, v.ScriptPubKey, v.IsScript,
				v.IsWitness)
		}
	}
	if d := res.Descriptor; d != nil {
		fmt.Fprintln(w)
		printField(w, fmt.Sprintf("Multisig Address [%d-of-%d]",
			d.Threshold, btcmultisig.MultisigKeys), d.Address)
		printField(w, "Multisig RedeemScript", d.RedeemScript)
	}
	if res.Unspent != nil {
		fmt.Fprintf(w, "\nUnspent transactions in wallet: %d\n",
			len(res.Unspent))
		for _, u := range res.Unspent {
			fmt.Fprintf(w, "  %s:%d %s %v (%d confirmations)\n",
				u.TxID, u.Vout, u.Address, u.Amount, u.Confirmations)
		}
	}
	if u := res.UTXO; u != nil {
		fmt.Fprintf(w, "\nUTXO txId: %s\n", u.TxID)
		fmt.Fprintf(w, "UTXO vout: %d\n", u.Vout)
		fmt.Fprintf(w, "UTXO amount: %v\n", u.Amount)
		fmt.Fprintf(w, "UTXO scriptPubKey: %s\n", u.ScriptPubKey)
	}
	if res.UnsignedHex != "" {
		fmt.Fprintf(w, "\nRaw Transaction (Unsigned):\n%s\n",
			res.UnsignedHex)
	}
	for i, hex := range res.SignedHex {
		fmt.Fprintf(w, "\nSigned Raw Transaction by Private Key %d:\n%s\n",
			i, hex)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nTransaction broadcast with txid %s\n", res.TxID)
	return nil
}
